package config

import (
	"fmt"
	"proxy-healer/models"
	"strings"

	"github.com/zeebo/xxh3"
)

// Normalize fills derived fields. It is allowed to mutate settings.
func Normalize(s *Settings) {
	if s == nil {
		return
	}

	s.Polling.StatusPath = normalizePath(s.Polling.StatusPath)

	for i := range s.Proxies {
		NormalizeProxy(&s.Proxies[i])
	}
}

// NormalizeProxy fills the derived fields of one proxy entry
func NormalizeProxy(p *ProxyConfig) {
	p.URL = strings.TrimRight(p.URL, "/")
	if p.ID == "" {
		p.ID = ProxyID(p.URL)
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	// unset weight means full share
	if p.Weight == 0 {
		p.Weight = MaxWeight
	}
}

// ToProxy converts a proxy entry to the runtime model
func (p ProxyConfig) ToProxy() models.Proxy {
	return models.Proxy{
		ID:         p.ID,
		Name:       p.Name,
		URL:        p.URL,
		Weight:     p.Weight,
		RestartURL: p.RestartURL,
	}
}

// ProxyConfigOf converts a runtime proxy back to a config entry
func ProxyConfigOf(p models.Proxy) ProxyConfig {
	return ProxyConfig{
		ID:         p.ID,
		Name:       p.Name,
		URL:        p.URL,
		Weight:     p.Weight,
		RestartURL: p.RestartURL,
	}
}

// ProxyID derives a stable proxy ID from its URL
func ProxyID(rawURL string) string {
	return fmt.Sprintf("proxy-%016x", xxh3.HashString(strings.TrimRight(rawURL, "/")))
}

func normalizePath(p string) string {
	if p == "" {
		return StatusPath
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
