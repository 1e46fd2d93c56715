package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks settings correctness.
// It MUST NOT mutate settings; call Normalize first.
func Validate(s *Settings) error {
	if s.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be > 0")
	}
	if s.Polling.Timeout <= 0 {
		return fmt.Errorf("polling timeout must be > 0")
	}
	if s.Polling.MinHealthyStatus > s.Polling.MaxHealthyStatus {
		return fmt.Errorf("min_healthy_status %d exceeds max_healthy_status %d",
			s.Polling.MinHealthyStatus, s.Polling.MaxHealthyStatus)
	}

	if s.Policy.QuarantineAfter < 1 {
		return fmt.Errorf("quarantine_after must be at least 1")
	}
	if s.Policy.RestartAfter < 0 {
		return fmt.Errorf("restart_after cannot be negative")
	}
	if s.Policy.Window < 0 || s.Policy.Cooldown < 0 {
		return fmt.Errorf("policy window and cooldown cannot be negative")
	}

	if s.Restart.MaxRetries < 0 {
		return fmt.Errorf("restart max_retries cannot be negative")
	}
	if s.Restart.Timeout <= 0 {
		return fmt.Errorf("restart timeout must be > 0")
	}

	if _, err := cron.ParseStandard(s.Persistence.CheckpointSchedule); err != nil {
		return fmt.Errorf("invalid checkpoint_schedule %q: %w", s.Persistence.CheckpointSchedule, err)
	}

	seen := make(map[string]struct{}, len(s.Proxies))
	for _, p := range s.Proxies {
		if err := ValidateProxyConfig(p); err != nil {
			return fmt.Errorf("invalid proxy config %s: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate proxy id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// ValidateProxyConfig validates a single proxy entry
func ValidateProxyConfig(p ProxyConfig) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Weight < MinWeight || p.Weight > MaxWeight {
		return fmt.Errorf("weight %.2f must be between %.2f and %.2f", p.Weight, MinWeight, MaxWeight)
	}
	if len(p.Name) > MaxProxyNameLength {
		return fmt.Errorf("name length %d exceeds maximum %d", len(p.Name), MaxProxyNameLength)
	}
	if err := validateHTTPURL(p.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if p.RestartURL != "" {
		if err := validateHTTPURL(p.RestartURL); err != nil {
			return fmt.Errorf("restart_url: %w", err)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
