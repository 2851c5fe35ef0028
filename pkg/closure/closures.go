package closure

import (
	"errors"
	"fmt"

	"github.com/aretw0/inplace/pkg/domain"
)

// ErrUnknownOperation is returned by Compute for an operation it does not know.
var ErrUnknownOperation = errors.New("unknown operation")

// Closures computes the project sets of activations and deactivations under
// a Scope policy.
type Closures struct {
	sorter  *ProjectSorter
	options Options
}

func NewClosures(sorter *ProjectSorter, options Options) *Closures {
	return &Closures{sorter: sorter, options: options}
}

func (c *Closures) Options() Options {
	return c.options
}

// Activation returns the projects to activate with seeds, providers first.
// The providing closure is always included since a bundle cannot start
// before its providers.
func (c *Closures) Activation(op Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error) {
	members, err := c.members(c.options.Scope(op), seeds, false)
	if err != nil {
		return nil, err
	}
	return c.sorter.Sort(Providing, members, false, allowCycles)
}

// Deactivation returns the activated projects to deactivate with seeds,
// requirers first. The requiring closure is always included since a
// bundle cannot keep running without its providers.
func (c *Closures) Deactivation(op Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error) {
	members, err := c.members(c.options.Scope(op), seeds, true)
	if err != nil {
		return nil, err
	}
	return c.sorter.Sort(Requiring, members, true, allowCycles)
}

// Compute dispatches op to Activation or Deactivation.
func (c *Closures) Compute(op Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error) {
	switch op {
	case ActivateProject, ActivateBundle:
		return c.Activation(op, seeds, allowCycles)
	case DeactivateProject, DeactivateBundle:
		return c.Deactivation(op, seeds, allowCycles)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOperation, op)
	}
}

// members expands seeds according to scope without ordering them.
func (c *Closures) members(scope Scope, seeds []domain.ProjectKey, activatedOnly bool) ([]domain.ProjectKey, error) {
	expand := func(dir Direction, in []domain.ProjectKey) ([]domain.ProjectKey, error) {
		return c.sorter.Sort(dir, in, activatedOnly, true)
	}

	switch scope {
	case ScopeSingle:
		return seeds, nil
	case ScopeProviding:
		return expand(Providing, seeds)
	case ScopeRequiring:
		return expand(Requiring, seeds)
	case ScopeProvidingAndRequiring:
		providers, err := expand(Providing, seeds)
		if err != nil {
			return nil, err
		}
		return expand(Requiring, providers)
	case ScopeRequiringAndProviding:
		requirers, err := expand(Requiring, seeds)
		if err != nil {
			return nil, err
		}
		return expand(Providing, requirers)
	case ScopePartialGraph:
		return c.component(seeds, activatedOnly)
	default:
		return seeds, nil
	}
}

// component returns the weakly connected component of seeds by expanding in
// both directions until nothing new is found.
func (c *Closures) component(seeds []domain.ProjectKey, activatedOnly bool) ([]domain.ProjectKey, error) {
	set := unique(seeds)
	for {
		providers, err := c.sorter.Sort(Providing, set, activatedOnly, true)
		if err != nil {
			return nil, err
		}
		all, err := c.sorter.Sort(Requiring, providers, activatedOnly, true)
		if err != nil {
			return nil, err
		}
		if len(all) == len(set) {
			return all, nil
		}
		set = all
	}
}

func unique[K comparable](in []K) []K {
	seen := make(map[K]bool, len(in))
	out := make([]K, 0, len(in))
	for _, k := range in {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
