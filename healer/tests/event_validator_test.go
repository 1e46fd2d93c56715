package tests

import (
	"proxy-healer/config"
	"proxy-healer/healer/implementations"
	"proxy-healer/models"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventValidator_ValidateEvent(t *testing.T) {
	validator := implementations.NewEventValidator()

	valid := func() models.RemoteFailureEvent {
		return models.RemoteFailureEvent{
			ID:        "event-1",
			ProxyID:   "proxy-1",
			Timestamp: time.Now(),
			Kind:      models.FailureTimeout,
			Detail:    "probe timed out",
		}
	}

	tests := []struct {
		name    string
		mutate  func(e *models.RemoteFailureEvent)
		wantErr bool
	}{
		{
			name:   "valid event",
			mutate: func(e *models.RemoteFailureEvent) {},
		},
		{
			name:    "missing id",
			mutate:  func(e *models.RemoteFailureEvent) { e.ID = "" },
			wantErr: true,
		},
		{
			name:    "other proxy",
			mutate:  func(e *models.RemoteFailureEvent) { e.ProxyID = "proxy-2" },
			wantErr: true,
		},
		{
			name:    "zero timestamp",
			mutate:  func(e *models.RemoteFailureEvent) { e.Timestamp = time.Time{} },
			wantErr: true,
		},
		{
			name:    "unknown kind",
			mutate:  func(e *models.RemoteFailureEvent) { e.Kind = "meltdown" },
			wantErr: true,
		},
		{
			name: "detail too long",
			mutate: func(e *models.RemoteFailureEvent) {
				e.Detail = strings.Repeat("x", config.MaxEventDetailLength+1)
			},
			wantErr: true,
		},
		{
			name:   "empty detail",
			mutate: func(e *models.RemoteFailureEvent) { e.Detail = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid()
			tt.mutate(&event)

			err := validator.ValidateEvent(event, "proxy-1")
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
