package config

import (
	"time"
)

const (
	// Server Configuration
	DefaultPort     = "8080"
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 30 * time.Second

	// Polling Configuration
	PollInterval     = 10 * time.Second
	ProbeTimeout     = 5 * time.Second
	StatusPath       = "/status"
	MinHealthyStatus = 200
	MaxHealthyStatus = 299

	// Reaction Policy Configuration
	QuarantineAfter    = 3
	RestartAfter       = 2
	FailureWindow      = 5 * time.Minute
	QuarantineCooldown = 1 * time.Minute

	// Restart Configuration
	MaxRestartRetries    = 3
	BaseRestartDelay     = 1 * time.Second
	MaxRestartDelay      = 10 * time.Second
	RestartTimeout       = 30 * time.Second
	MaxDeadLetterEntries = 10000

	// Persistence Configuration
	CheckpointSchedule = "@every 30s"

	// File Paths
	StateFilePath  = "healer_state.json.gz"
	DeadLetterFile = "failed_restarts.json"
	ConfigFilePath = "healer.yaml"

	// Validation
	MinWeight            = 0.0
	MaxWeight            = 1.0
	MaxProxyNameLength   = 100
	MaxEventDetailLength = 10000
)

// ProxyConfig represents a default proxy configuration
type ProxyConfig struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	URL        string  `yaml:"url"`
	Weight     float64 `yaml:"weight"`
	RestartURL string  `yaml:"restart_url"`
}

// GetDefaultProxies returns the proxies registered when no config file lists any
func GetDefaultProxies() []ProxyConfig {
	return []ProxyConfig{
		{
			ID:     "node-chrome",
			Name:   "Chrome Node",
			URL:    "http://localhost:5555",
			Weight: 0.5,
		},
		{
			ID:     "node-firefox",
			Name:   "Firefox Node",
			URL:    "http://localhost:5556",
			Weight: 0.3,
		},
		{
			ID:     "node-edge",
			Name:   "Edge Node",
			URL:    "http://localhost:5557",
			Weight: 0.2,
		},
	}
}
