package interfaces

import "proxy-healer/models"

// SelfHealingProxy defines how a monitored proxy mitigates failures of its remote.
// Polling starts once the proxy is fully registered.
type SelfHealingProxy interface {
	// StartPolling starts or restarts the periodic health check of the remote
	StartPolling()

	// StopPolling puts polling on hold; no probe events are recorded after it returns
	StopPolling()

	// AddNewEvent records a failure observed on the remote
	AddNewEvent(event models.RemoteFailureEvent) error

	// OnEvent reacts to the full history of events and the one inserted last
	OnEvent(events []models.RemoteFailureEvent, lastInserted models.RemoteFailureEvent) error
}

// HealthMonitor is a SelfHealingProxy that also exposes its state
type HealthMonitor interface {
	SelfHealingProxy

	Proxy() models.Proxy
	History() []models.RemoteFailureEvent
	Health() models.HealthStatus
	PollingState() models.PollingState
	Status() models.ProxyStatus

	// Restore seeds history and health from a persisted snapshot before polling starts
	Restore(events []models.RemoteFailureEvent, health models.HealthStatus)
}
