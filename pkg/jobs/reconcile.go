package jobs

import (
	"context"
	"time"

	"github.com/aretw0/inplace/pkg/domain"
)

// Reconcile compares every installed node with the state the framework
// reports and records drift as an EXTERNAL transition. A bundle the
// framework no longer knows is taken as uninstalled.
func (r *Runner) Reconcile(ctx context.Context) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		var scope []domain.ProjectKey
		for _, n := range r.registry.Nodes() {
			if _, ok := n.BundleID(); ok {
				scope = append(scope, n.Project())
			}
		}
		return scope, nil
	}
	return r.run(ctx, "reconcile", plan, func(ctx context.Context, j *job) error {
		for _, n := range j.nodes(j.scope) {
			id, ok := n.BundleID()
			if !ok || n.IsStateChanging() {
				continue
			}
			actual := domain.Uninstalled
			bits, err := r.framework.State(ctx, id)
			if err == nil {
				actual = domain.FromFrameworkState(bits)
			}
			if actual == n.State() || actual == domain.StateLess {
				continue
			}

			from := n.State()
			if err := n.Begin(domain.External, actual); err != nil {
				return err
			}
			j.touch(n.Project())
			if r.hooks.OnTransitionBegin != nil {
				r.hooks.OnTransitionBegin(ctx, j.event(domain.EventTransitionBegin, n, domain.External, from, actual, time.Time{}))
			}
			if actual == domain.Uninstalled {
				if err := r.registry.SetBundle(n.Project(), nil); err != nil {
					return err
				}
			}
			n.Commit()
			if r.hooks.OnTransitionCommit != nil {
				r.hooks.OnTransitionCommit(ctx, j.event(domain.EventTransitionCommit, n, domain.External, from, actual, time.Time{}))
			}
			j.report(domain.NewStatus(domain.StatusInfo, n.Project(), "changed outside the workspace: %s -> %s", from, actual).WithBundle(id))
		}
		return nil
	})
}
