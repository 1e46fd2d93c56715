package interfaces

import "proxy-healer/models"

// EventValidator defines the interface for failure event validation
type EventValidator interface {
	ValidateEvent(event models.RemoteFailureEvent, proxyID string) error
}
