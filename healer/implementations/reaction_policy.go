package implementations

import (
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"time"
)

// ThresholdPolicyConfig holds the thresholds of a ThresholdPolicy
type ThresholdPolicyConfig struct {
	QuarantineAfter int           // failures that quarantine a proxy
	RestartAfter    int           // overload failures that restart a proxy; 0 disables
	Window          time.Duration // only failures this close to the last one count; 0 means unbounded
	Cooldown        time.Duration // minimum time quarantined before a successful probe resumes
}

// ThresholdPolicy implements the ReactionPolicy interface.
// Only failures recorded after the last recovery are counted.
type ThresholdPolicy struct {
	cfg ThresholdPolicyConfig
}

// Ensure ThresholdPolicy implements ReactionPolicy interface
var _ interfaces.ReactionPolicy = (*ThresholdPolicy)(nil)

func NewThresholdPolicy(cfg ThresholdPolicyConfig) interfaces.ReactionPolicy {
	if cfg.QuarantineAfter < 1 {
		cfg.QuarantineAfter = 1
	}
	return &ThresholdPolicy{cfg: cfg}
}

// Decide picks the action for lastInserted given the full history
func (p *ThresholdPolicy) Decide(events []models.RemoteFailureEvent, lastInserted models.RemoteFailureEvent, status models.HealthStatus) models.Action {
	if status.State == models.HealthQuarantined {
		return models.ActionNone
	}

	failures, overloads := p.countRecent(events, lastInserted, status.RecoveredAt)

	if p.cfg.RestartAfter > 0 && lastInserted.Kind == models.FailureOverload && overloads >= p.cfg.RestartAfter {
		return models.ActionRestart
	}
	if failures >= p.cfg.QuarantineAfter {
		return models.ActionQuarantine
	}
	return models.ActionNone
}

// Recovered resumes degraded proxies at once and quarantined ones after the cooldown
func (p *ThresholdPolicy) Recovered(status models.HealthStatus, now time.Time) models.Action {
	switch status.State {
	case models.HealthDegraded:
		return models.ActionResume
	case models.HealthQuarantined:
		if now.Sub(status.Since) >= p.cfg.Cooldown {
			return models.ActionResume
		}
	}
	return models.ActionNone
}

// countRecent counts failures and overload failures that still count against the proxy
func (p *ThresholdPolicy) countRecent(events []models.RemoteFailureEvent, last models.RemoteFailureEvent, recoveredAt time.Time) (failures, overloads int) {
	var windowStart time.Time
	if p.cfg.Window > 0 {
		windowStart = last.Timestamp.Add(-p.cfg.Window)
	}

	for _, ev := range events {
		if !recoveredAt.IsZero() && ev.Timestamp.Before(recoveredAt) {
			continue
		}
		if !windowStart.IsZero() && ev.Timestamp.Before(windowStart) {
			continue
		}
		failures++
		if ev.Kind == models.FailureOverload {
			overloads++
		}
	}
	return failures, overloads
}
