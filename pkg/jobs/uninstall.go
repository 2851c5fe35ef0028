package jobs

import (
	"context"
	"fmt"

	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
)

// Uninstall stops and uninstalls projects and everything requiring them,
// requirers first. With unregister the named projects also leave the registry.
func (r *Runner) Uninstall(ctx context.Context, projects []domain.ProjectKey, unregister bool) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		return r.sorter.Sort(closure.Requiring, projects, false, true)
	}
	return r.run(ctx, "uninstall", plan, func(ctx context.Context, j *job) error {
		for _, n := range j.nodes(j.scope) {
			n.SetActivation(domain.Deactivated)
			n.RemovePending(domain.ActivateProject)
			j.touch(n.Project())
			_ = j.takeDown(ctx, n)
		}
		if !unregister {
			return nil
		}
		for _, p := range projects {
			if err := r.registry.Unregister(p); err != nil {
				j.report(domain.NewStatus(domain.StatusError, p, "not unregistered").WithErr(err))
			}
		}
		return nil
	})
}

// RemoveProject takes a project out of the workspace. Its activated
// requirers are stopped and refreshed without it and keep a pending
// UNRESOLVE until the refresh succeeds. When the project cannot be
// uninstalled it stays registered and the stopped requirers are queued for
// activation instead.
func (r *Runner) RemoveProject(ctx context.Context, project domain.ProjectKey) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		if !r.registry.Contains(project) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, project)
		}
		return r.sorter.Sort(closure.Requiring, []domain.ProjectKey{project}, true, true)
	}
	return r.run(ctx, "remove_project", plan, func(ctx context.Context, j *job) error {
		node, ok := r.registry.Node(project)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, project)
		}
		if err := r.transitions.InitTransition(project); err != nil {
			return err
		}

		var requirers []*domain.BundleNode
		for _, n := range j.nodes(j.scope) {
			if n.Project() == project {
				continue
			}
			j.touch(n.Project())
			if err := j.stop(ctx, n); err == nil {
				n.AddPending(domain.Unresolve)
				requirers = append(requirers, n)
			}
		}

		j.touch(project)
		if err := j.takeDown(ctx, node); err != nil {
			for _, n := range requirers {
				n.RemovePending(domain.Unresolve)
				n.AddPending(domain.ActivateProject)
			}
			j.report(domain.NewStatus(domain.StatusWarning, project, "not removed, %d requirers queued for activation", len(requirers)))
			return nil
		}

		j.batch(ctx, requirers, domain.Refresh, func(ctx context.Context, ids []int64) ([]int64, error) {
			return nil, r.framework.Refresh(ctx, ids)
		})
		for _, n := range requirers {
			if !j.failed[n.Project()] {
				n.RemovePending(domain.Unresolve)
				n.AddPending(domain.ActivateProject)
			}
		}

		if err := r.registry.Unregister(project); err != nil {
			j.report(domain.NewStatus(domain.StatusError, project, "not unregistered").WithErr(err))
		}
		return nil
	})
}
