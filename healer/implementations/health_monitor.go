package implementations

import (
	"context"
	"fmt"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// HealthMonitorConfig holds the configuration for creating a HealthMonitor
type HealthMonitorConfig struct {
	Interval       time.Duration
	ProbeTimeout   time.Duration
	RestartTimeout time.Duration

	Prober         interfaces.Prober
	Policy         interfaces.ReactionPolicy
	Validator      interfaces.EventValidator
	RestartHandler interfaces.RestartHandler

	// OnHealthChange is called after every health state transition
	OnHealthChange func()
}

// HealthMonitor implements the HealthMonitor interface for one proxy.
//
// Polling:  stopped -> running on StartPolling, running -> stopped on StopPolling.
// Health:   healthy -> degraded on the first failure, degraded -> quarantined on
// ActionQuarantine or a failed restart, degraded|quarantined -> healthy on ActionResume.
type HealthMonitor struct {
	proxy          models.Proxy
	interval       time.Duration
	probeTimeout   time.Duration
	restartTimeout time.Duration
	logger         *zap.Logger

	// Injected components
	prober         interfaces.Prober
	policy         interfaces.ReactionPolicy
	validator      interfaces.EventValidator
	restartHandler interfaces.RestartHandler
	onHealthChange func()

	// Poller lifecycle, guarded by lifeMu
	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	// History and health, guarded by mu
	mu     sync.RWMutex
	events []models.RemoteFailureEvent
	health models.HealthStatus

	restarting atomic.Bool
	probeCount atomic.Int64
}

// Ensure HealthMonitor implements HealthMonitor interface
var _ interfaces.HealthMonitor = (*HealthMonitor)(nil)

func NewHealthMonitor(proxy models.Proxy, cfg *HealthMonitorConfig, logger *zap.Logger) interfaces.HealthMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.PollInterval
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = config.ProbeTimeout
	}
	restartTimeout := cfg.RestartTimeout
	if restartTimeout <= 0 {
		restartTimeout = config.RestartTimeout
	}
	validator := cfg.Validator
	if validator == nil {
		validator = NewEventValidator()
	}

	return &HealthMonitor{
		proxy:          proxy,
		interval:       interval,
		probeTimeout:   probeTimeout,
		restartTimeout: restartTimeout,
		logger:         logger.With(zap.String("proxy", proxy.ID)),
		prober:         cfg.Prober,
		policy:         cfg.Policy,
		validator:      validator,
		restartHandler: cfg.RestartHandler,
		onHealthChange: cfg.OnHealthChange,
		health:         models.NewHealthStatus(time.Now()),
	}
}

// StartPolling starts the poller; a no-op when it is already running
func (m *HealthMonitor) StartPolling() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running.Store(true)

	go m.poller(ctx, done)

	m.logger.Info("Polling started", zap.Duration("interval", m.interval))
}

// StopPolling cancels the poller and waits for it to exit
func (m *HealthMonitor) StopPolling() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.running.Store(false)

	m.logger.Info("Polling stopped")
}

// poller probes the proxy on every tick until ctx is cancelled
func (m *HealthMonitor) poller(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce runs one probe and feeds a failure through record then react
func (m *HealthMonitor) pollOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(probeCtx, m.proxy)
	cancel()
	m.probeCount.Add(1)

	// A probe that finishes after StopPolling must not produce events
	if ctx.Err() != nil {
		return
	}

	if err == nil {
		m.onProbeSuccess()
		return
	}

	detail := truncateDetail(err.Error(), config.MaxEventDetailLength)
	event := models.NewRemoteFailureEvent(m.proxy.ID, FailureKindOf(err), detail)

	m.logger.Warn("Probe failed",
		zap.String("kind", string(event.Kind)),
		zap.String("detail", event.Detail),
	)

	if err := m.AddNewEvent(event); err != nil {
		m.logger.Error("Failed to record probe failure", zap.Error(err))
		return
	}
	if err := m.react(ctx, m.History(), event); err != nil {
		m.logger.Error("Failed to react to probe failure", zap.Error(err))
	}
}

// AddNewEvent validates and appends a failure event to the history
func (m *HealthMonitor) AddNewEvent(event models.RemoteFailureEvent) error {
	if err := m.validator.ValidateEvent(event, m.proxy.ID); err != nil {
		return err
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	return nil
}

// OnEvent applies the reaction policy to events, whose member lastInserted triggered it
func (m *HealthMonitor) OnEvent(events []models.RemoteFailureEvent, lastInserted models.RemoteFailureEvent) error {
	return m.react(context.Background(), events, lastInserted)
}

// react applies the policy decision; ctx bounds any restart it triggers
func (m *HealthMonitor) react(ctx context.Context, events []models.RemoteFailureEvent, lastInserted models.RemoteFailureEvent) error {
	if !containsEvent(events, lastInserted) {
		return fmt.Errorf("%w: last inserted event %q is not part of the event list", models.ErrInvalidArgument, lastInserted.ID)
	}

	now := time.Now()
	m.mu.Lock()
	changed := false
	if m.health.State == models.HealthHealthy {
		m.setHealthLocked(models.HealthDegraded, now)
		changed = true
	}
	status := m.health
	m.mu.Unlock()

	action := m.policy.Decide(events, lastInserted, status)

	switch action {
	case models.ActionQuarantine:
		if m.setHealth(models.HealthQuarantined) {
			changed = true
		}
	case models.ActionRestart:
		if m.restart(ctx) {
			changed = true
		}
	case models.ActionResume:
		if m.setHealth(models.HealthHealthy) {
			changed = true
		}
	}

	if action != models.ActionNone {
		m.logger.Info("Reaction applied",
			zap.String("action", string(action)),
			zap.Int("events", len(events)),
			zap.String("last_kind", string(lastInserted.Kind)),
		)
	}
	if changed {
		m.notifyHealthChange()
	}
	return nil
}

// restart asks the remote to restart; it reports whether health changed
func (m *HealthMonitor) restart(ctx context.Context) bool {
	if m.restartHandler == nil {
		return m.setHealth(models.HealthQuarantined)
	}
	if !m.restarting.CompareAndSwap(false, true) {
		m.logger.Debug("Restart already in progress")
		return false
	}
	defer m.restarting.Store(false)

	restartCtx, cancel := context.WithTimeout(ctx, m.restartTimeout)
	defer cancel()

	err := m.restartHandler.Restart(restartCtx, m.proxy)
	if err == nil {
		// The next successful probe resumes the proxy
		return false
	}
	if ctx.Err() != nil {
		m.logger.Info("Restart interrupted", zap.Error(err))
		return false
	}

	m.logger.Error("Restart failed, quarantining proxy", zap.Error(err))
	return m.setHealth(models.HealthQuarantined)
}

// onProbeSuccess lets the policy resume a degraded or quarantined proxy
func (m *HealthMonitor) onProbeSuccess() {
	observed := m.Health()
	if m.policy.Recovered(observed, time.Now()) != models.ActionResume {
		return
	}
	// Resume only from the status the policy judged
	if m.setHealthFrom(observed, models.HealthHealthy) {
		m.logger.Info("Proxy recovered")
		m.notifyHealthChange()
	}
}

// setHealth transitions to state; it reports whether the state changed
func (m *HealthMonitor) setHealth(state models.HealthState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.health.State == state {
		return false
	}
	m.setHealthLocked(state, time.Now())
	return true
}

// setHealthFrom transitions to state only if health still equals expected
func (m *HealthMonitor) setHealthFrom(expected models.HealthStatus, state models.HealthState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.health.State != expected.State || !m.health.Since.Equal(expected.Since) || m.health.State == state {
		return false
	}
	m.setHealthLocked(state, time.Now())
	return true
}

func (m *HealthMonitor) setHealthLocked(state models.HealthState, now time.Time) {
	m.health.State = state
	m.health.Since = now
	if state == models.HealthHealthy {
		m.health.RecoveredAt = now
	}
}

func (m *HealthMonitor) notifyHealthChange() {
	if m.onHealthChange != nil {
		m.onHealthChange()
	}
}

// Restore seeds history and health from a persisted snapshot.
// Restored events precede anything already recorded.
func (m *HealthMonitor) Restore(events []models.RemoteFailureEvent, health models.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := make([]models.RemoteFailureEvent, 0, len(events)+len(m.events))
	restored = append(restored, events...)
	m.events = append(restored, m.events...)

	if health.State != "" {
		m.health = health
	}
}

// Proxy returns the monitored proxy
func (m *HealthMonitor) Proxy() models.Proxy {
	return m.proxy
}

// History returns a copy of the recorded events in insertion order
func (m *HealthMonitor) History() []models.RemoteFailureEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]models.RemoteFailureEvent, len(m.events))
	copy(events, m.events)
	return events
}

// Health returns the current health status
func (m *HealthMonitor) Health() models.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// PollingState reports whether the poller is running
func (m *HealthMonitor) PollingState() models.PollingState {
	if m.running.Load() {
		return models.PollingRunning
	}
	return models.PollingStopped
}

// Status returns a snapshot of the monitor
func (m *HealthMonitor) Status() models.ProxyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := models.ProxyStatus{
		Proxy:      m.proxy,
		Polling:    m.PollingState(),
		Health:     m.health,
		EventCount: len(m.events),
		ProbeCount: m.probeCount.Load(),
	}
	if n := len(m.events); n > 0 {
		last := m.events[n-1]
		status.LastEvent = &last
	}
	return status
}

// truncateDetail cuts s to at most limit bytes without splitting a rune
func truncateDetail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func containsEvent(events []models.RemoteFailureEvent, event models.RemoteFailureEvent) bool {
	if event.ID == "" {
		return false
	}
	for i := range events {
		if events[i].ID == event.ID {
			return true
		}
	}
	return false
}
