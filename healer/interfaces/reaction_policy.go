package interfaces

import (
	"proxy-healer/models"
	"time"
)

// ReactionPolicy decides how a proxy reacts to its failure history
type ReactionPolicy interface {
	// Decide picks the action for a newly recorded failure
	Decide(events []models.RemoteFailureEvent, lastInserted models.RemoteFailureEvent, status models.HealthStatus) models.Action

	// Recovered picks the action for a successful probe
	Recovered(status models.HealthStatus, now time.Time) models.Action
}
