package jobs

import (
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
)

// View runs fn while no job is changing nodes. fn may read any node of the
// registry but must not mutate nodes or start a job.
func (r *Runner) View(fn func(reg *registry.Registry) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.registry)
}

// Snapshots copies every node in registration order.
func (r *Runner) Snapshots() []domain.NodeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.Snapshots()
}

// Snapshot copies the node of project.
func (r *Runner) Snapshot(project domain.ProjectKey) (domain.NodeSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.registry.Node(project)
	if !ok {
		return domain.NodeSnapshot{}, false
	}
	return n.Snapshot(), true
}

func (r *Runner) IsActivated(project domain.ProjectKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.IsActivated(project)
}

// Closure computes the closure of op over seeds (see closure.Closures.Compute).
func (r *Runner) Closure(op closure.Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closures.Compute(op, seeds, allowCycles)
}

// PendingProjects returns the registered projects with t pending.
func (r *Runner) PendingProjects(t domain.Transition) []domain.ProjectKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transitions.PendingProjects(nil, t)
}

// AddPending marks projects with a pending t. It waits for running jobs, so
// a job clearing t cannot lose the mark.
func (r *Runner) AddPending(t domain.Transition, projects ...domain.ProjectKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range projects {
		if _, err := r.transitions.AddPending(p, t); err != nil {
			return err
		}
	}
	return nil
}
