package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidArgument is returned for malformed events and mismatched OnEvent input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrProxyNotFound is returned when no proxy is registered under an ID
	ErrProxyNotFound = errors.New("proxy not found")
	// ErrProxyExists is returned when registering an ID twice
	ErrProxyExists = errors.New("proxy already registered")
	// ErrRestartUnsupported is returned for proxies without a restart endpoint
	ErrRestartUnsupported = errors.New("proxy does not support restart")
)

// FailureKind classifies a failure observed on a remote proxy
type FailureKind string

const (
	FailureConnectivity FailureKind = "connectivity"
	FailureTimeout      FailureKind = "timeout"
	FailureOverload     FailureKind = "overload"
	FailureProtocol     FailureKind = "protocol"
)

// Valid reports whether k is one of the known failure kinds
func (k FailureKind) Valid() bool {
	switch k {
	case FailureConnectivity, FailureTimeout, FailureOverload, FailureProtocol:
		return true
	}
	return false
}

// PollingState is the lifecycle state of a monitor's poller
type PollingState string

const (
	PollingStopped PollingState = "stopped"
	PollingRunning PollingState = "running"
)

// HealthState is the health of a monitored proxy as driven by the reaction policy
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthQuarantined HealthState = "quarantined"
)

// Action is the outcome of a reaction policy decision
type Action string

const (
	ActionNone       Action = "none"
	ActionQuarantine Action = "quarantine"
	ActionRestart    Action = "restart"
	ActionResume     Action = "resume"
)

// RemoteFailureEvent represents one observed anomaly on a remote proxy.
// Events are never mutated after creation.
type RemoteFailureEvent struct {
	ID        string      `json:"id"`
	ProxyID   string      `json:"proxy_id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      FailureKind `json:"kind"`
	Detail    string      `json:"detail,omitempty"`
}

// Proxy represents a remote grid node
type Proxy struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	URL        string  `json:"url" yaml:"url"`
	Weight     float64 `json:"weight" yaml:"weight"`
	RestartURL string  `json:"restart_url,omitempty" yaml:"restart_url"`
}

// HealthStatus is the current health of a proxy
type HealthStatus struct {
	State       HealthState `json:"state"`
	Since       time.Time   `json:"since"`
	RecoveredAt time.Time   `json:"recovered_at"` // failures before this no longer count
}

// ProxyStatus is a point-in-time snapshot of a monitored proxy
type ProxyStatus struct {
	Proxy      Proxy               `json:"proxy"`
	Polling    PollingState        `json:"polling"`
	Health     HealthStatus        `json:"health"`
	EventCount int                 `json:"event_count"`
	LastEvent  *RemoteFailureEvent `json:"last_event,omitempty"`
	ProbeCount int64               `json:"probe_count"`
}

// RegistryStats represents current registry statistics
type RegistryStats struct {
	TotalProxies       int                    `json:"total_proxies"`
	PollingProxies     int                    `json:"polling_proxies"`
	HealthyProxies     int                    `json:"healthy_proxies"`
	DegradedProxies    int                    `json:"degraded_proxies"`
	QuarantinedProxies int                    `json:"quarantined_proxies"`
	TotalEvents        int                    `json:"total_events"`
	Uptime             time.Duration          `json:"uptime"`
	ProxyStats         map[string]ProxyStatus `json:"proxy_stats"`
}

// HealerState represents the state that needs to be persisted for recovery
type HealerState struct {
	Histories      map[string][]RemoteFailureEvent `json:"histories"`
	Health         map[string]HealthStatus         `json:"health"`
	LastCheckpoint time.Time                       `json:"last_checkpoint"`
}

// FailedRestart is a dead-letter entry for a restart that ran out of retries
type FailedRestart struct {
	Proxy      Proxy     `json:"proxy"`
	FinalError string    `json:"final_error"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// NewRemoteFailureEvent creates a failure event with generated ID and timestamp
func NewRemoteFailureEvent(proxyID string, kind FailureKind, detail string) RemoteFailureEvent {
	return RemoteFailureEvent{
		ID:        uuid.New().String(),
		ProxyID:   proxyID,
		Timestamp: time.Now(),
		Kind:      kind,
		Detail:    detail,
	}
}

// NewHealthStatus returns the initial healthy status
func NewHealthStatus(now time.Time) HealthStatus {
	return HealthStatus{
		State: HealthHealthy,
		Since: now,
	}
}
