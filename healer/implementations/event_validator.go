package implementations

import (
	"fmt"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
)

// EventValidator implements the EventValidator interface
type EventValidator struct{}

// Ensure EventValidator implements EventValidator interface
var _ interfaces.EventValidator = (*EventValidator)(nil)

func NewEventValidator() interfaces.EventValidator {
	return &EventValidator{}
}

// ValidateEvent validates a failure event recorded for proxyID
func (v *EventValidator) ValidateEvent(event models.RemoteFailureEvent, proxyID string) error {
	if event.ID == "" {
		return fmt.Errorf("%w: event id is required", models.ErrInvalidArgument)
	}
	if event.ProxyID != proxyID {
		return fmt.Errorf("%w: event belongs to proxy %q, not %q", models.ErrInvalidArgument, event.ProxyID, proxyID)
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", models.ErrInvalidArgument)
	}
	if !event.Kind.Valid() {
		return fmt.Errorf("%w: unknown failure kind %q", models.ErrInvalidArgument, event.Kind)
	}
	if len(event.Detail) > config.MaxEventDetailLength {
		return fmt.Errorf("%w: detail length %d exceeds maximum %d", models.ErrInvalidArgument, len(event.Detail), config.MaxEventDetailLength)
	}
	return nil
}
