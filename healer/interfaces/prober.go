package interfaces

import (
	"context"
	"proxy-healer/models"
)

// Prober defines a single health check against a remote proxy
type Prober interface {
	Probe(ctx context.Context, proxy models.Proxy) error
}
