package interfaces

import "proxy-healer/models"

// ProxySelector defines the interface for proxy selection and weight management
type ProxySelector interface {
	Add(proxy models.Proxy, health func() models.HealthStatus)
	Remove(proxyID string)
	SelectProxy() *models.Proxy
	UpdateWeights()
}
