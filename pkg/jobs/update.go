package jobs

import (
	"context"
	"slices"

	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
)

// Update updates the bundles of projects providers first and refreshes
// everything requiring them. A nil slice updates every project with a
// pending UPDATE. Deactivated providers of an updated project get a pending
// ACTIVATE_PROJECT.
func (r *Runner) Update(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		if projects == nil {
			projects = r.transitions.PendingProjects(nil, domain.Update)
		}
		requiring, err := r.requirers(projects)
		if err != nil {
			return nil, err
		}
		providing, err := r.sorter.Sort(closure.Providing, projects, false, true)
		if err != nil {
			return nil, err
		}
		return append(requiring, providing...), nil
	}

	return r.run(ctx, "update", plan, func(ctx context.Context, j *job) error {
		order, err := j.acyclic(ctx, domain.Update, func(allowCycles bool) ([]domain.ProjectKey, error) {
			return r.sorter.Sort(closure.Providing, projects, true, allowCycles)
		})
		if err != nil {
			return err
		}

		var updated []domain.ProjectKey
		for _, n := range j.nodes(order) {
			p := n.Project()
			if !slices.Contains(projects, p) {
				continue
			}
			if !n.IsActivated() || !n.State().Allows(domain.Update) {
				j.report(domain.NewStatus(domain.StatusInfo, p, "not updated: %s in state %s", n.Activation(), n.State()))
				continue
			}

			providers, err := r.deactivatedProviders(p)
			if err != nil {
				return err
			}
			for _, q := range providers {
				if _, err := r.transitions.AddPending(q, domain.ActivateProject); err == nil {
					j.touch(q)
					j.report(domain.NewStatus(domain.StatusInfo, q, "required by %s, queued for activation", p))
				}
			}

			err = j.step(ctx, n, domain.Update, func(ctx context.Context) error {
				id, err := bundleOf(n)
				if err != nil {
					return err
				}
				return r.framework.Update(ctx, id)
			})
			if err != nil {
				continue
			}
			n.RemovePending(domain.Update)
			updated = append(updated, p)
		}
		if len(updated) > 0 {
			j.refresh(ctx, updated)
		}
		return nil
	})
}

// Refresh rewires the bundles of projects and their activated requirers,
// then brings the activated ones back up. A nil slice refreshes every
// project with a pending REFRESH.
func (r *Runner) Refresh(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error) {
	plan := func() ([]domain.ProjectKey, error) {
		if projects == nil {
			projects = r.transitions.PendingProjects(nil, domain.Refresh)
		}
		return r.requirers(projects)
	}
	return r.run(ctx, "refresh", plan, func(ctx context.Context, j *job) error {
		j.refresh(ctx, projects)
		return nil
	})
}

// DeactivatedProviders returns the projects project depends on, directly or
// not, that are not activated.
func (r *Runner) DeactivatedProviders(project domain.ProjectKey) ([]domain.ProjectKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deactivatedProviders(project)
}

func (r *Runner) deactivatedProviders(project domain.ProjectKey) ([]domain.ProjectKey, error) {
	providers, err := r.sorter.Sort(closure.Providing, []domain.ProjectKey{project}, false, true)
	if err != nil {
		return nil, err
	}
	var out []domain.ProjectKey
	for _, p := range providers {
		if p != project && !r.registry.IsActivated(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// requirers returns seeds and their activated requirers, requirers first.
// When the framework exposes its wiring, activated bundles wired to the
// seeds join the closure even if no requirement is declared for them.
func (r *Runner) requirers(seeds []domain.ProjectKey) ([]domain.ProjectKey, error) {
	declared, err := r.sorter.Sort(closure.Requiring, seeds, true, true)
	if err != nil || r.bundles == nil {
		return declared, err
	}
	wired, err := r.bundles.Sort(closure.Requiring, r.registry.Bundles(seeds), true, true)
	if err != nil {
		r.logger.Warn("Bundle wiring unavailable, using declared requirements", "seeds", seeds, "err", err)
		return declared, nil
	}
	var extra []domain.ProjectKey
	for _, p := range r.registry.ProjectsOf(wired) {
		if !slices.Contains(declared, p) {
			extra = append(extra, p)
		}
	}
	return append(extra, declared...), nil
}

// refresh runs one framework refresh over seeds and their activated
// requirers, then restarts what is activated.
func (j *job) refresh(ctx context.Context, seeds []domain.ProjectKey) {
	affected, err := j.r.requirers(seeds)
	if err != nil {
		j.report(domain.NewStatus(domain.StatusError, "", "refresh closure").WithErr(err))
		return
	}
	nodes := j.nodes(affected)
	j.batch(ctx, nodes, domain.Refresh, func(ctx context.Context, ids []int64) ([]int64, error) {
		return nil, j.r.framework.Refresh(ctx, ids)
	})
	for _, n := range nodes {
		if !j.failed[n.Project()] {
			n.RemovePending(domain.Refresh)
		}
	}

	providersFirst := slices.Clone(affected)
	slices.Reverse(providersFirst)
	j.bringUp(ctx, providersFirst, domain.NoTransition)
}
