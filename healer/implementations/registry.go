package implementations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RegistryConfig holds the configuration for creating a Registry
type RegistryConfig struct {
	// Monitor is the template for every monitor; OnHealthChange is set by the registry
	Monitor            HealthMonitorConfig
	Selector           interfaces.ProxySelector
	PersistenceMgr     interfaces.PersistenceManager
	CheckpointSchedule string
}

type restoredProxy struct {
	events []models.RemoteFailureEvent
	health models.HealthStatus
}

// Registry implements the Registry interface
type Registry struct {
	monitors  *xsync.Map[string, interfaces.HealthMonitor]
	logger    *zap.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	regMu     sync.Mutex // serializes Register and Deregister
	startTime time.Time
	isRunning bool

	// Snapshots recovered for proxies that have not registered yet, guarded by mu
	restored map[string]restoredProxy

	// Injected components
	monitorCfg         HealthMonitorConfig
	selector           interfaces.ProxySelector
	persistence        interfaces.PersistenceManager
	checkpointSchedule string
}

// Ensure Registry implements Registry interface
var _ interfaces.Registry = (*Registry)(nil)

// NewRegistry creates a new registry instance with dependency injection
func NewRegistry(logger *zap.Logger, cfg *RegistryConfig) interfaces.Registry {
	schedule := cfg.CheckpointSchedule
	if schedule == "" {
		schedule = config.CheckpointSchedule
	}

	return &Registry{
		monitors:           xsync.NewMap[string, interfaces.HealthMonitor](),
		logger:             logger,
		startTime:          time.Now(),
		restored:           make(map[string]restoredProxy),
		monitorCfg:         cfg.Monitor,
		selector:           cfg.Selector,
		persistence:        cfg.PersistenceMgr,
		checkpointSchedule: schedule,
	}
}

// Start recovers the previous state and begins checkpointing
func (r *Registry) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("registry is already running")
	}
	r.isRunning = true
	// Fresh context so a restarted registry checkpoints again
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	if state, err := r.persistence.RecoverState(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info("No previous state to recover")
		} else {
			r.logger.Error("Failed to recover previous state", zap.Error(err))
		}
	} else {
		r.recoverFromState(state)
	}

	if err := r.persistence.StartCheckpointing(ctx, &r.wg, r.checkpointSchedule, r.getState); err != nil {
		cancel()
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return fmt.Errorf("failed to start checkpointing: %w", err)
	}
	return nil
}

// Stop halts every poller, saves state and stops checkpointing
func (r *Registry) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("registry is not running")
	}
	r.isRunning = false
	cancel := r.cancel
	r.mu.Unlock()

	var g errgroup.Group
	r.monitors.Range(func(_ string, m interfaces.HealthMonitor) bool {
		g.Go(func() error {
			m.StopPolling()
			return nil
		})
		return true
	})
	_ = g.Wait()

	if err := r.persistence.SaveState(r.getState()); err != nil {
		r.logger.Error("Failed to save state during shutdown", zap.Error(err))
	}

	cancel()
	r.wg.Wait()

	return nil
}

// Register adds a proxy, restores its history if one was persisted, and starts polling it
func (r *Registry) Register(proxy models.Proxy) error {
	proxyCfg := config.ProxyConfigOf(proxy)
	config.NormalizeProxy(&proxyCfg)
	if err := config.ValidateProxyConfig(proxyCfg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	proxy = proxyCfg.ToProxy()

	r.regMu.Lock()
	defer r.regMu.Unlock()

	cfg := r.monitorCfg
	cfg.OnHealthChange = r.onHealthChange
	monitor := NewHealthMonitor(proxy, &cfg, r.logger)

	if _, loaded := r.monitors.LoadOrStore(proxy.ID, monitor); loaded {
		return fmt.Errorf("%w: %s", models.ErrProxyExists, proxy.ID)
	}

	r.mu.Lock()
	if snapshot, ok := r.restored[proxy.ID]; ok {
		monitor.Restore(snapshot.events, snapshot.health)
		delete(r.restored, proxy.ID)
	}
	r.mu.Unlock()

	r.selector.Add(proxy, monitor.Health)
	monitor.StartPolling()

	r.logger.Info("Proxy registered",
		zap.String("proxy", proxy.ID),
		zap.String("url", proxy.URL),
	)
	return nil
}

// Deregister stops polling a proxy and removes it
func (r *Registry) Deregister(proxyID string) error {
	// Map and selector change together; a re-registration may start right after
	r.regMu.Lock()
	monitor, ok := r.monitors.LoadAndDelete(proxyID)
	if ok {
		r.selector.Remove(proxyID)
	}
	r.regMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", models.ErrProxyNotFound, proxyID)
	}

	monitor.StopPolling()

	r.logger.Info("Proxy deregistered", zap.String("proxy", proxyID))
	return nil
}

// Get returns the monitor of a registered proxy
func (r *Registry) Get(proxyID string) (interfaces.HealthMonitor, error) {
	monitor, ok := r.monitors.Load(proxyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProxyNotFound, proxyID)
	}
	return monitor, nil
}

// List returns the status of every registered proxy ordered by ID
func (r *Registry) List() []models.ProxyStatus {
	statuses := make([]models.ProxyStatus, 0, r.monitors.Size())
	r.monitors.Range(func(_ string, m interfaces.HealthMonitor) bool {
		statuses = append(statuses, m.Status())
		return true
	})
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Proxy.ID < statuses[j].Proxy.ID
	})
	return statuses
}

// SelectProxy picks a proxy for new work
func (r *Registry) SelectProxy() *models.Proxy {
	return r.selector.SelectProxy()
}

// GetFailedRestarts returns restarts that ran out of retries
func (r *Registry) GetFailedRestarts() ([]models.FailedRestart, error) {
	if r.monitorCfg.RestartHandler == nil {
		return []models.FailedRestart{}, nil
	}
	return r.monitorCfg.RestartHandler.GetFailedRestarts()
}

// GetStats returns current registry statistics
func (r *Registry) GetStats() *models.RegistryStats {
	stats := &models.RegistryStats{
		ProxyStats: make(map[string]models.ProxyStatus),
		Uptime:     time.Since(r.startTime),
	}

	for _, status := range r.List() {
		stats.TotalProxies++
		stats.TotalEvents += status.EventCount
		if status.Polling == models.PollingRunning {
			stats.PollingProxies++
		}
		switch status.Health.State {
		case models.HealthHealthy:
			stats.HealthyProxies++
		case models.HealthDegraded:
			stats.DegradedProxies++
		case models.HealthQuarantined:
			stats.QuarantinedProxies++
		}
		stats.ProxyStats[status.Proxy.ID] = status
	}

	return stats
}

// onHealthChange resets selection weights after any monitor changes health
func (r *Registry) onHealthChange() {
	r.selector.UpdateWeights()
}

// getState creates a state snapshot for persistence
func (r *Registry) getState() *models.HealerState {
	state := &models.HealerState{
		Histories:      make(map[string][]models.RemoteFailureEvent),
		Health:         make(map[string]models.HealthStatus),
		LastCheckpoint: time.Now(),
	}

	// Keep snapshots of proxies that have not registered again yet
	r.mu.Lock()
	for id, snapshot := range r.restored {
		state.Histories[id] = snapshot.events
		state.Health[id] = snapshot.health
	}
	r.mu.Unlock()

	r.monitors.Range(func(id string, m interfaces.HealthMonitor) bool {
		state.Histories[id] = m.History()
		state.Health[id] = m.Health()
		return true
	})

	return state
}

// recoverFromState restores histories into registered monitors and keeps the rest for later registrations
func (r *Registry) recoverFromState(state *models.HealerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	restoredEvents := 0
	for id, events := range state.Histories {
		health := state.Health[id]
		restoredEvents += len(events)

		if monitor, ok := r.monitors.Load(id); ok {
			monitor.Restore(events, health)
			continue
		}
		r.restored[id] = restoredProxy{events: events, health: health}
	}

	r.logger.Info("State recovery completed",
		zap.Int("proxies", len(state.Histories)),
		zap.Int("events", restoredEvents),
		zap.Time("last_checkpoint", state.LastCheckpoint),
	)
}
