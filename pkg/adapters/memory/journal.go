package memory

import (
	"context"
	"sync"

	"github.com/aretw0/inplace/pkg/domain"
)

// Journal implements ports.Journal in memory.
type Journal struct {
	mu     sync.RWMutex
	events map[domain.ProjectKey][]domain.TransitionEvent
}

func NewJournal() *Journal {
	return &Journal{events: make(map[domain.ProjectKey][]domain.TransitionEvent)}
}

func (j *Journal) Append(ctx context.Context, event domain.TransitionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events[event.Project] = append(j.events[event.Project], event)
	return nil
}

func (j *Journal) History(ctx context.Context, project domain.ProjectKey, limit int) ([]domain.TransitionEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	events := j.events[project]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]domain.TransitionEvent, len(events))
	copy(out, events)
	return out, nil
}
