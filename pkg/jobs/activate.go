package jobs

import (
	"context"

	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
)

// Activate activates projects together with their activation closure and
// brings their bundles up providers first: install, resolve, then start.
// Projects that cannot be processed yet keep a pending ACTIVATE_PROJECT.
func (r *Runner) Activate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		return r.closures.Activation(closure.ActivateProject, projects, true)
	}
	return r.run(ctx, "activate", plan, func(ctx context.Context, j *job) error {
		order, err := j.acyclic(ctx, domain.ActivateProject, func(allowCycles bool) ([]domain.ProjectKey, error) {
			return r.closures.Activation(closure.ActivateProject, projects, allowCycles)
		})
		if err != nil {
			return err
		}
		for _, n := range j.nodes(order) {
			n.SetActivation(domain.Activated)
			n.RemoveTransitionError(domain.Cycle)
			j.touch(n.Project())
		}
		j.bringUp(ctx, order, domain.ActivateProject)
		return nil
	})
}

// Deactivate stops projects together with their deactivation closure,
// requirers first, and marks them deactivated. Bundles stay installed.
func (r *Runner) Deactivate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		return r.closures.Deactivation(closure.DeactivateProject, projects, true)
	}
	return r.run(ctx, "deactivate", plan, func(ctx context.Context, j *job) error {
		for _, n := range j.nodes(j.scope) {
			p := n.Project()
			n.SetActivation(domain.Deactivated)
			n.RemovePending(domain.ActivateProject)
			j.touch(p)
			if err := j.stop(ctx, n); err != nil {
				continue
			}
			if _, err := r.transitions.SetTransition(p, domain.Deactivate); err != nil {
				return err
			}
		}
		return nil
	})
}

// bringUp installs, resolves and starts the activated projects of order,
// which must list providers first. Projects whose provider failed in this
// job are deferred with pending.
func (j *job) bringUp(ctx context.Context, order []domain.ProjectKey, pending domain.Transition) {
	var nodes []*domain.BundleNode
	for _, n := range j.nodes(order) {
		if n.IsActivated() {
			nodes = append(nodes, n)
		}
	}

	installed := make(map[domain.ProjectKey]bool)
	for _, n := range nodes {
		if !n.IsState(domain.Uninstalled) && !n.IsState(domain.StateLess) {
			continue
		}
		if j.deferred(n, pending) {
			continue
		}
		p := n.Project()
		err := j.step(ctx, n, domain.Install, func(ctx context.Context) error {
			b, err := j.r.framework.Install(ctx, p, j.r.locate(p))
			if err != nil {
				return err
			}
			return j.r.registry.SetBundle(p, b)
		})
		if err == nil {
			installed[p] = true
		}
	}
	j.duplicates(ctx, installed)

	var resolve []*domain.BundleNode
	for _, n := range nodes {
		if !n.IsState(domain.Installed) || j.failed[n.Project()] || j.deferred(n, pending) {
			continue
		}
		resolve = append(resolve, n)
	}
	j.batch(ctx, resolve, domain.Resolve, j.r.framework.Resolve)

	for _, n := range nodes {
		p := n.Project()
		if j.failed[p] || j.deferred(n, pending) {
			continue
		}
		lazy := j.r.lazy(p)
		op := domain.Start
		switch {
		case n.IsState(domain.Resolved) && lazy:
			op = domain.LazyActivate
		case n.IsState(domain.Resolved), n.IsState(domain.Starting) && !lazy:
		case n.IsState(domain.Active), n.IsState(domain.Starting):
			if pending != domain.NoTransition {
				n.RemovePending(pending)
			}
			continue
		default:
			continue
		}
		err := j.step(ctx, n, op, func(ctx context.Context) error {
			id, err := bundleOf(n)
			if err != nil {
				return err
			}
			return j.r.framework.Start(ctx, id, op == domain.LazyActivate)
		})
		if err == nil && pending != domain.NoTransition {
			n.RemovePending(pending)
		}
	}
}

// deferred queues pending on n when one of its providers failed in this job.
func (j *job) deferred(n *domain.BundleNode, pending domain.Transition) bool {
	q, ok := j.blocked(n.Project())
	if !ok {
		return false
	}
	p := n.Project()
	j.failed[p] = true
	j.touch(p)
	if pending != domain.NoTransition {
		n.AddPending(pending)
	}
	j.report(domain.NewStatus(domain.StatusWarning, p, "deferred: provider %s is not ready", q))
	return true
}

// duplicates uninstalls bundles installed by this job whose symbolic name
// and version are already taken by another project.
func (j *job) duplicates(ctx context.Context, installed map[domain.ProjectKey]bool) {
	if len(installed) == 0 {
		return
	}
	for _, group := range j.r.registry.Duplicates(j.r.registry.Projects()) {
		keeper := group[0]
		for _, p := range group {
			if !installed[p] {
				keeper = p
				break
			}
		}
		for _, p := range group {
			if p == keeper || !installed[p] {
				continue
			}
			n, ok := j.r.registry.Node(p)
			if !ok {
				continue
			}
			key := n.Bundle().SymbolicKey()
			n.SetActivation(domain.Deactivated)
			j.failed[p] = true
			if err := j.uninstall(ctx, n); err != nil {
				// The rollback already marked the node in error; keep it.
				j.report(domain.NewStatus(domain.StatusError, p, "duplicate bundle %s, already provided by %s, is still installed", key, keeper).WithErr(err))
				continue
			}
			n.SetTransitionError(domain.Duplicate)
			j.report(domain.NewStatus(domain.StatusError, p, "duplicate bundle %s, already provided by %s", key, keeper))
		}
	}
}

// stop stops n if it is running.
func (j *job) stop(ctx context.Context, n *domain.BundleNode) error {
	if !n.IsState(domain.Active) && !n.IsState(domain.Starting) && !n.IsState(domain.Stopping) {
		return nil
	}
	return j.step(ctx, n, domain.Stop, func(ctx context.Context) error {
		id, err := bundleOf(n)
		if err != nil {
			return err
		}
		return j.r.framework.Stop(ctx, id)
	})
}

// uninstall uninstalls the bundle of n and drops its binding.
func (j *job) uninstall(ctx context.Context, n *domain.BundleNode) error {
	if !n.State().Allows(domain.Uninstall) {
		return nil
	}
	p := n.Project()
	return j.step(ctx, n, domain.Uninstall, func(ctx context.Context) error {
		id, ok := n.BundleID()
		if !ok {
			return nil
		}
		if err := j.r.framework.Uninstall(ctx, id); err != nil {
			return err
		}
		return j.r.registry.SetBundle(p, nil)
	})
}

// takeDown stops and uninstalls n.
func (j *job) takeDown(ctx context.Context, n *domain.BundleNode) error {
	if err := j.stop(ctx, n); err != nil {
		return err
	}
	return j.uninstall(ctx, n)
}
