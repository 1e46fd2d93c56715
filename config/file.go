package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the full runtime configuration of the healer
type Settings struct {
	Port        string              `yaml:"port"`
	LogLevel    string              `yaml:"log_level"`
	Polling     PollingSettings     `yaml:"polling"`
	Policy      PolicySettings      `yaml:"policy"`
	Restart     RestartSettings     `yaml:"restart"`
	Persistence PersistenceSettings `yaml:"persistence"`
	Proxies     []ProxyConfig       `yaml:"proxies"`
}

type PollingSettings struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	StatusPath       string        `yaml:"status_path"`
	MinHealthyStatus int           `yaml:"min_healthy_status"`
	MaxHealthyStatus int           `yaml:"max_healthy_status"`
}

type PolicySettings struct {
	QuarantineAfter int           `yaml:"quarantine_after"`
	RestartAfter    int           `yaml:"restart_after"` // 0 disables restarts
	Window          time.Duration `yaml:"window"`        // 0 means unbounded
	Cooldown        time.Duration `yaml:"cooldown"`
}

type RestartSettings struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PersistenceSettings struct {
	StateFile          string `yaml:"state_file"`
	DeadLetterFile     string `yaml:"dead_letter_file"`
	CheckpointSchedule string `yaml:"checkpoint_schedule"`
}

// DefaultSettings returns settings built from the package defaults
func DefaultSettings() *Settings {
	return &Settings{
		Port:     DefaultPort,
		LogLevel: "info",
		Polling: PollingSettings{
			Interval:         PollInterval,
			Timeout:          ProbeTimeout,
			StatusPath:       StatusPath,
			MinHealthyStatus: MinHealthyStatus,
			MaxHealthyStatus: MaxHealthyStatus,
		},
		Policy: PolicySettings{
			QuarantineAfter: QuarantineAfter,
			RestartAfter:    RestartAfter,
			Window:          FailureWindow,
			Cooldown:        QuarantineCooldown,
		},
		Restart: RestartSettings{
			MaxRetries:   MaxRestartRetries,
			InitialDelay: BaseRestartDelay,
			MaxDelay:     MaxRestartDelay,
			Timeout:      RestartTimeout,
		},
		Persistence: PersistenceSettings{
			StateFile:          StateFilePath,
			DeadLetterFile:     DeadLetterFile,
			CheckpointSchedule: CheckpointSchedule,
		},
	}
}

// LoadEnvFile loads variables from a .env file if one exists
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads settings from a YAML file, applies environment overrides,
// normalizes and validates the result. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(settings)

	if len(settings.Proxies) == 0 {
		settings.Proxies = GetDefaultProxies()
	}

	Normalize(settings)
	if err := Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ConfigPath returns the config file path from HEALER_CONFIG or the default
func ConfigPath() string {
	if p := os.Getenv("HEALER_CONFIG"); p != "" {
		return p
	}
	return ConfigFilePath
}

func applyEnv(s *Settings) {
	if port := os.Getenv("PORT"); port != "" {
		s.Port = port
	}
	if level := os.Getenv("HEALER_LOG_LEVEL"); level != "" {
		s.LogLevel = strings.ToLower(level)
	}
	if path := os.Getenv("HEALER_STATE_FILE"); path != "" {
		s.Persistence.StateFile = path
	}
	if path := os.Getenv("HEALER_DEAD_LETTER_FILE"); path != "" {
		s.Persistence.DeadLetterFile = path
	}
}
