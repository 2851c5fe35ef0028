package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransitionBegin    EventType = "transition_begin"
	EventTransitionCommit   EventType = "transition_commit"
	EventTransitionRollback EventType = "transition_rollback"
	EventCycle              EventType = "cycle"
	EventJobDone            EventType = "job_done"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
}

// TransitionEvent records a step of a node through its state machine.
type TransitionEvent struct {
	EventBase
	Project    ProjectKey      `json:"project"`
	BundleID   int64           `json:"bundle_id,omitempty"`
	Transition Transition      `json:"transition"`
	From       StateKind       `json:"from"`
	To         StateKind       `json:"to"`
	Error      TransitionError `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration,omitempty"`
}

// CycleEvent records projects excluded from a job because they depend on each other.
type CycleEvent struct {
	EventBase
	Members []ProjectKey `json:"members"`
}

// JobEvent records the outcome of a lifecycle job.
type JobEvent struct {
	EventBase
	Job      string        `json:"job"`
	Projects []ProjectKey  `json:"projects"`
	Code     StatusCode    `json:"code"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for job observability.
type LifecycleHooks struct {
	OnTransitionBegin    func(context.Context, *TransitionEvent)
	OnTransitionCommit   func(context.Context, *TransitionEvent)
	OnTransitionRollback func(context.Context, *TransitionEvent)
	OnCycle              func(context.Context, *CycleEvent)
	OnJobDone            func(context.Context, *JobEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransitionBegin:    chain(h.OnTransitionBegin, other.OnTransitionBegin),
		OnTransitionCommit:   chain(h.OnTransitionCommit, other.OnTransitionCommit),
		OnTransitionRollback: chain(h.OnTransitionRollback, other.OnTransitionRollback),
		OnCycle:              chain(h.OnCycle, other.OnCycle),
		OnJobDone:            chain(h.OnJobDone, other.OnJobDone),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
