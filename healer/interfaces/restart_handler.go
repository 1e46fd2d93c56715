package interfaces

import (
	"context"
	"proxy-healer/models"
)

// RestartHandler defines the interface for restarting remote proxies
type RestartHandler interface {
	Restart(ctx context.Context, proxy models.Proxy) error
	GetFailedRestarts() ([]models.FailedRestart, error)
}
