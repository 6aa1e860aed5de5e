package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType names the reason a trigger fired.
type TriggerType string

const (
	TriggerInterval       TriggerType = "interval"
	TriggerScheduled      TriggerType = "scheduled"
	TriggerRetry          TriggerType = "retry"
	TriggerDataChange     TriggerType = "dataChange"
	TriggerManual         TriggerType = "manual"
	TriggerNetworkRestore TriggerType = "networkRestore"
	TriggerAppStateChange TriggerType = "appStateChange"
	TriggerIntelligent    TriggerType = "intelligent"
)

// Trigger is a scheduler-emitted signal meaning "attempt a sync now" for a
// given reason. Triggers are ephemeral: consumed by the orchestrator, never
// persisted.
type Trigger struct {
	ID          string
	Type        TriggerType
	ScheduledAt time.Time

	// Collection is empty for triggers that apply to every collection
	// (e.g. networkRestore).
	Collection string
}

func newTrigger(t TriggerType, at time.Time, collection string) Trigger {
	return Trigger{
		ID:          uuid.NewString(),
		Type:        t,
		ScheduledAt: at,
		Collection:  collection,
	}
}

// automatic reports whether the trigger type is subject to the scheduler's
// network/battery gates.
func (t TriggerType) automatic() bool {
	switch t {
	case TriggerInterval, TriggerScheduled, TriggerIntelligent, TriggerRetry:
		return true
	default:
		return false
	}
}
