package interfaces

import "proxy-healer/models"

// Registry defines the lifecycle manager that owns monitored proxies
type Registry interface {
	// Start recovers persisted state and begins checkpointing
	Start() error

	// Stop halts every poller and persists state
	Stop() error

	// Register adds a proxy and starts polling it
	Register(proxy models.Proxy) error

	// Deregister stops polling a proxy and removes it
	Deregister(proxyID string) error

	Get(proxyID string) (HealthMonitor, error)
	List() []models.ProxyStatus
	SelectProxy() *models.Proxy
	GetFailedRestarts() ([]models.FailedRestart, error)

	// GetStats returns current registry statistics
	GetStats() *models.RegistryStats
}
