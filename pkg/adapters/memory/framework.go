package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
)

// ErrUnknownBundle is returned for ids the framework has not installed.
var ErrUnknownBundle = errors.New("unknown bundle")

// ErrIllegalState is returned when an operation does not fit the bundle state.
var ErrIllegalState = errors.New("illegal bundle state")

type simBundle struct {
	bundle  domain.Bundle
	project domain.ProjectKey
	state   int
}

type failKey struct {
	op      domain.Transition
	project domain.ProjectKey
}

// Framework simulates a bundle runtime. Bundles resolve when all their
// declared providers are installed and resolvable; cycles resolve together.
// It implements ports.Framework and ports.BundleWiring.
type Framework struct {
	mu        sync.Mutex
	deps      ports.DependencyReader
	nextID    int64
	bundles   map[int64]*simBundle
	byProject map[domain.ProjectKey]int64
	failures  map[failKey]error
	identity  func(domain.ProjectKey) (string, string)
}

// FrameworkOption configures a Framework.
type FrameworkOption func(*Framework)

// WithIdentity sets how a project maps to a bundle symbolic name and version.
// The default uses the project key and version 1.0.0.
func WithIdentity(fn func(domain.ProjectKey) (name, version string)) FrameworkOption {
	return func(f *Framework) {
		f.identity = fn
	}
}

func NewFramework(deps ports.DependencyReader, opts ...FrameworkOption) *Framework {
	f := &Framework{
		deps:      deps,
		nextID:    1,
		bundles:   make(map[int64]*simBundle),
		byProject: make(map[domain.ProjectKey]int64),
		failures:  make(map[failKey]error),
		identity: func(p domain.ProjectKey) (string, string) {
			return string(p), "1.0.0"
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fail makes op on project return err until Heal is called.
func (f *Framework) Fail(op domain.Transition, project domain.ProjectKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failKey{op, project}] = err
}

func (f *Framework) Heal(op domain.Transition, project domain.ProjectKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, failKey{op, project})
}

func (f *Framework) failure(op domain.Transition, project domain.ProjectKey) error {
	if err, ok := f.failures[failKey{op, project}]; ok {
		return fmt.Errorf("%s %s: %w", op.Name(true, false), project, err)
	}
	return nil
}

// Bundle returns the installed bundle of a project.
func (f *Framework) Bundle(project domain.ProjectKey) (*domain.Bundle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byProject[project]
	if !ok {
		return nil, false
	}
	b := f.bundles[id].bundle
	return &b, true
}

func (f *Framework) get(id int64) (*simBundle, error) {
	b, ok := f.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBundle, id)
	}
	return b, nil
}

func (f *Framework) Install(ctx context.Context, project domain.ProjectKey, location string) (*domain.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(domain.Install, project); err != nil {
		return nil, err
	}
	if id, ok := f.byProject[project]; ok {
		b := f.bundles[id].bundle
		return &b, nil
	}
	name, version := f.identity(project)
	sb := &simBundle{
		bundle:  domain.Bundle{ID: f.nextID, SymbolicName: name, Version: version, Location: location},
		project: project,
		state:   domain.FrameworkInstalled,
	}
	f.nextID++
	f.bundles[sb.bundle.ID] = sb
	f.byProject[project] = sb.bundle.ID
	b := sb.bundle
	return &b, nil
}

func isResolved(state int) bool {
	return state >= domain.FrameworkResolved
}

// resolvable returns the greatest set of candidates that can resolve
// together: every provider is either resolved already or in the set.
func (f *Framework) resolvable(candidates []int64) (map[int64]bool, error) {
	set := make(map[int64]bool)
	providers := make(map[int64][]int64)
	for _, id := range candidates {
		sb := f.bundles[id]
		if f.failure(domain.Resolve, sb.project) != nil {
			continue
		}
		reqs, err := f.deps.RequiredBy(sb.project)
		if err != nil {
			return nil, err
		}
		ok := true
		for _, p := range reqs {
			pid, installed := f.byProject[p]
			if !installed {
				ok = false
				break
			}
			providers[id] = append(providers[id], pid)
		}
		if ok {
			set[id] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for id := range set {
			for _, pid := range providers[id] {
				if !set[pid] && !isResolved(f.bundles[pid].state) {
					delete(set, id)
					changed = true
					break
				}
			}
		}
	}
	return set, nil
}

// Resolve resolves the installed bundles among ids. Already resolved bundles
// count as resolved.
func (f *Framework) Resolve(ctx context.Context, ids []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidates []int64
	for _, id := range ids {
		sb, err := f.get(id)
		if err != nil {
			return nil, err
		}
		if sb.state == domain.FrameworkInstalled {
			candidates = append(candidates, id)
		}
	}
	ok, err := f.resolvable(candidates)
	if err != nil {
		return nil, err
	}
	var unresolved []int64
	for _, id := range candidates {
		if ok[id] {
			f.bundles[id].state = domain.FrameworkResolved
		} else {
			unresolved = append(unresolved, id)
		}
	}
	return unresolved, nil
}

func (f *Framework) Start(ctx context.Context, id int64, lazy bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return err
	}
	if err := f.failure(domain.Start, sb.project); err != nil {
		return err
	}
	switch {
	case sb.state == domain.FrameworkResolved && lazy:
		sb.state = domain.FrameworkStarting
	case sb.state == domain.FrameworkResolved, sb.state == domain.FrameworkStarting:
		sb.state = domain.FrameworkActive
	case sb.state == domain.FrameworkActive:
	default:
		return fmt.Errorf("%w: start %d in state %s", ErrIllegalState, id, domain.FromFrameworkState(sb.state))
	}
	return nil
}

func (f *Framework) Stop(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return err
	}
	if err := f.failure(domain.Stop, sb.project); err != nil {
		return err
	}
	switch sb.state {
	case domain.FrameworkActive, domain.FrameworkStarting, domain.FrameworkStopping:
		sb.state = domain.FrameworkResolved
	case domain.FrameworkResolved, domain.FrameworkInstalled:
	default:
		return fmt.Errorf("%w: stop %d", ErrIllegalState, id)
	}
	return nil
}

func (f *Framework) Uninstall(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return err
	}
	if err := f.failure(domain.Uninstall, sb.project); err != nil {
		return err
	}
	delete(f.bundles, id)
	delete(f.byProject, sb.project)
	return nil
}

func (f *Framework) Update(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return err
	}
	if err := f.failure(domain.Update, sb.project); err != nil {
		return err
	}
	if sb.state != domain.FrameworkActive {
		sb.state = domain.FrameworkInstalled
	}
	return nil
}

// Refresh unresolves the bundles and everything wired to them, resolves
// them again and restarts those that were active.
func (f *Framework) Refresh(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	affected, err := f.requiringClosure(ids)
	if err != nil {
		return err
	}
	for _, id := range affected {
		if err := f.failure(domain.Refresh, f.bundles[id].project); err != nil {
			return err
		}
	}

	wasActive := make(map[int64]bool)
	var candidates []int64
	for _, id := range affected {
		sb := f.bundles[id]
		wasActive[id] = sb.state == domain.FrameworkActive
		if isResolved(sb.state) {
			candidates = append(candidates, id)
		}
		sb.state = domain.FrameworkInstalled
	}
	ok, err := f.resolvable(candidates)
	if err != nil {
		return err
	}
	for _, id := range candidates {
		if !ok[id] {
			continue
		}
		if wasActive[id] {
			f.bundles[id].state = domain.FrameworkActive
		} else {
			f.bundles[id].state = domain.FrameworkResolved
		}
	}
	return nil
}

func (f *Framework) requiringClosure(ids []int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		sb, err := f.get(id)
		if err != nil {
			return nil, err
		}
		seen[id] = true
		out = append(out, id)
		requirers, err := f.deps.ProvidesTo(sb.project)
		if err != nil {
			return nil, err
		}
		for _, p := range requirers {
			if rid, ok := f.byProject[p]; ok {
				queue = append(queue, rid)
			}
		}
	}
	return out, nil
}

func (f *Framework) State(ctx context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return 0, err
	}
	return sb.state, nil
}

// SetState forces the framework state of a bundle, as an external agent would.
func (f *Framework) SetState(id int64, state int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return err
	}
	sb.state = state
	return nil
}

// RequiredBundles returns the resolved providers of a resolved bundle.
func (f *Framework) RequiredBundles(id int64) ([]int64, error) {
	return f.wires(id, f.deps.RequiredBy)
}

// RequiringBundles returns the resolved requirers of a resolved bundle.
func (f *Framework) RequiringBundles(id int64) ([]int64, error) {
	return f.wires(id, f.deps.ProvidesTo)
}

func (f *Framework) wires(id int64, edges func(domain.ProjectKey) ([]domain.ProjectKey, error)) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if !isResolved(sb.state) {
		return nil, nil
	}
	projects, err := edges(sb.project)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, p := range projects {
		if wid, ok := f.byProject[p]; ok && isResolved(f.bundles[wid].state) {
			out = append(out, wid)
		}
	}
	return out, nil
}
