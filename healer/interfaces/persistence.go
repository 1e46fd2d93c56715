package interfaces

import (
	"context"
	"proxy-healer/models"
	"sync"
)

// PersistenceManager defines the interface for state persistence
type PersistenceManager interface {
	SaveState(state *models.HealerState) error
	RecoverState() (*models.HealerState, error)
	StartCheckpointing(ctx context.Context, wg *sync.WaitGroup, schedule string, getStateFunc func() *models.HealerState) error
}
