package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	settings, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, settings.Port)
	assert.Equal(t, PollInterval, settings.Polling.Interval)
	assert.Equal(t, QuarantineAfter, settings.Policy.QuarantineAfter)
	assert.Len(t, settings.Proxies, len(GetDefaultProxies()))
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
port: "9090"
log_level: debug
polling:
  interval: 2s
  timeout: 500ms
  status_path: wd/hub/status
policy:
  quarantine_after: 5
  restart_after: 0
  window: 1m
  cooldown: 30s
persistence:
  checkpoint_schedule: "*/5 * * * *"
proxies:
  - id: grid-a
    url: http://grid-a:4444/
    weight: 0.7
    restart_url: http://grid-a:4444/restart
  - url: http://grid-b:4444
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", settings.Port)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, 2*time.Second, settings.Polling.Interval)
	assert.Equal(t, 500*time.Millisecond, settings.Polling.Timeout)
	assert.Equal(t, "/wd/hub/status", settings.Polling.StatusPath)
	assert.Equal(t, 5, settings.Policy.QuarantineAfter)
	assert.Equal(t, 0, settings.Policy.RestartAfter)
	assert.Equal(t, time.Minute, settings.Policy.Window)
	assert.Equal(t, "*/5 * * * *", settings.Persistence.CheckpointSchedule)

	// Unset sections keep their defaults
	assert.Equal(t, MaxRestartRetries, settings.Restart.MaxRetries)

	require.Len(t, settings.Proxies, 2)
	assert.Equal(t, "grid-a", settings.Proxies[0].ID)
	assert.Equal(t, "http://grid-a:4444", settings.Proxies[0].URL)
	assert.Equal(t, 0.7, settings.Proxies[0].Weight)
	assert.Equal(t, ProxyID("http://grid-b:4444"), settings.Proxies[1].ID)
	assert.Equal(t, settings.Proxies[1].ID, settings.Proxies[1].Name)
	assert.Equal(t, MaxWeight, settings.Proxies[1].Weight)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("HEALER_LOG_LEVEL", "WARN")
	t.Setenv("HEALER_STATE_FILE", "/tmp/state.json.gz")
	t.Setenv("HEALER_DEAD_LETTER_FILE", "/tmp/dead.json")

	settings, err := Load(writeConfigFile(t, "port: \"9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "7070", settings.Port)
	assert.Equal(t, "warn", settings.LogLevel)
	assert.Equal(t, "/tmp/state.json.gz", settings.Persistence.StateFile)
	assert.Equal(t, "/tmp/dead.json", settings.Persistence.DeadLetterFile)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "polling: [not, a, map"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HEALER_TEST_ENV_FILE=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("HEALER_TEST_ENV_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("HEALER_TEST_ENV_FILE"))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("HEALER_CONFIG", "")
	assert.Equal(t, ConfigFilePath, ConfigPath())

	t.Setenv("HEALER_CONFIG", "/etc/healer/healer.yaml")
	assert.Equal(t, "/etc/healer/healer.yaml", ConfigPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{name: "zero interval", mutate: func(s *Settings) { s.Polling.Interval = 0 }},
		{name: "zero timeout", mutate: func(s *Settings) { s.Polling.Timeout = 0 }},
		{name: "inverted status range", mutate: func(s *Settings) { s.Polling.MinHealthyStatus = 400 }},
		{name: "zero quarantine threshold", mutate: func(s *Settings) { s.Policy.QuarantineAfter = 0 }},
		{name: "negative restart threshold", mutate: func(s *Settings) { s.Policy.RestartAfter = -1 }},
		{name: "negative window", mutate: func(s *Settings) { s.Policy.Window = -time.Second }},
		{name: "negative retries", mutate: func(s *Settings) { s.Restart.MaxRetries = -1 }},
		{name: "zero restart timeout", mutate: func(s *Settings) { s.Restart.Timeout = 0 }},
		{name: "bad schedule", mutate: func(s *Settings) { s.Persistence.CheckpointSchedule = "sometimes" }},
		{name: "duplicate proxy", mutate: func(s *Settings) { s.Proxies = append(s.Proxies, s.Proxies[0]) }},
		{name: "bad proxy url", mutate: func(s *Settings) { s.Proxies[0].URL = "localhost:5555" }},
	}

	base := DefaultSettings()
	base.Proxies = GetDefaultProxies()
	Normalize(base)
	require.NoError(t, Validate(base))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.Proxies = GetDefaultProxies()
			Normalize(s)
			tt.mutate(s)
			assert.Error(t, Validate(s))
		})
	}
}

func TestProxyID(t *testing.T) {
	id := ProxyID("http://grid-a:4444")

	assert.Regexp(t, `^proxy-[0-9a-f]{16}$`, id)
	assert.Equal(t, id, ProxyID("http://grid-a:4444/"))
	assert.NotEqual(t, id, ProxyID("http://grid-b:4444"))
}

func TestNormalizeProxy(t *testing.T) {
	p := ProxyConfig{URL: "http://grid-a:4444//"}
	NormalizeProxy(&p)

	assert.Equal(t, "http://grid-a:4444", p.URL)
	assert.Equal(t, ProxyID("http://grid-a:4444"), p.ID)
	assert.Equal(t, p.ID, p.Name)
	assert.Equal(t, MaxWeight, p.Weight)

	explicit := ProxyConfig{ID: "grid-a", Name: "Grid A", URL: "http://grid-a:4444", Weight: 0.3}
	NormalizeProxy(&explicit)
	assert.Equal(t, "grid-a", explicit.ID)
	assert.Equal(t, "Grid A", explicit.Name)
	assert.Equal(t, 0.3, explicit.Weight)

	assert.Equal(t, explicit, ProxyConfigOf(explicit.ToProxy()))
}
