package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/inplace/pkg/domain"
)

// Store implements ports.NodeStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.ProjectKey]domain.NodeSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.ProjectKey]domain.NodeSnapshot),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, snapshot domain.NodeSnapshot) error {
	copied := copySnapshot(snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snapshot.Project] = copied
	return nil
}

// Load retrieves a copy of the snapshot so callers cannot mutate the store.
func (s *Store) Load(ctx context.Context, project domain.ProjectKey) (domain.NodeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.data[project]
	if !ok {
		return domain.NodeSnapshot{}, domain.ErrSnapshotNotFound
	}
	return copySnapshot(snapshot), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, project domain.ProjectKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, project)
	return nil
}

// List returns the stored projects.
func (s *Store) List(ctx context.Context) ([]domain.ProjectKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]domain.ProjectKey, 0, len(s.data))
	for p := range s.data {
		projects = append(projects, p)
	}
	slices.Sort(projects)
	return projects, nil
}

func copySnapshot(s domain.NodeSnapshot) domain.NodeSnapshot {
	out := s
	if s.Bundle != nil {
		b := *s.Bundle
		out.Bundle = &b
	}
	out.Pending = slices.Clone(s.Pending)
	return out
}
