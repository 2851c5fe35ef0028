package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
)

// job carries the bookkeeping of a single lifecycle job.
type job struct {
	r       *Runner
	id      string
	name    string
	started time.Time
	status  *domain.Status
	touched []domain.ProjectKey
	seen    map[domain.ProjectKey]bool
	failed  map[domain.ProjectKey]bool
	scope   []domain.ProjectKey
	locked  map[domain.ProjectKey]bool
}

func (r *Runner) newJob(name string, scope []domain.ProjectKey) *job {
	j := &job{
		r:       r,
		id:      uuid.NewString(),
		name:    name,
		started: time.Now(),
		status:  domain.NewStatus(domain.StatusJobInfo, "", "%s", name),
		seen:    make(map[domain.ProjectKey]bool),
		failed:  make(map[domain.ProjectKey]bool),
		scope:   scope,
		locked:  make(map[domain.ProjectKey]bool, len(scope)),
	}
	for _, p := range scope {
		j.locked[p] = true
	}
	return j
}

func (j *job) touch(p domain.ProjectKey) {
	if !j.seen[p] {
		j.seen[p] = true
		j.touched = append(j.touched, p)
	}
}

func (j *job) report(st *domain.Status) {
	j.status.Add(st)
}

func (j *job) event(typ domain.EventType, node *domain.BundleNode, op domain.Transition, from, to domain.StateKind, began time.Time) *domain.TransitionEvent {
	ev := &domain.TransitionEvent{
		EventBase:  domain.EventBase{Timestamp: j.r.now(), Type: typ, JobID: j.id},
		Project:    node.Project(),
		Transition: op,
		From:       from,
		To:         to,
		Error:      node.TransitionError(),
	}
	if id, ok := node.BundleID(); ok {
		ev.BundleID = id
	}
	if !began.IsZero() {
		ev.Duration = time.Since(began)
	}
	return ev
}

// begin applies op to node and announces it.
func (j *job) begin(ctx context.Context, node *domain.BundleNode, op domain.Transition) (domain.StateKind, error) {
	from := node.State()
	if err := node.Apply(op); err != nil {
		j.report(domain.NewStatus(domain.StatusError, node.Project(), "%s refused", op.Name(true, true)).WithErr(err))
		j.failed[node.Project()] = true
		return from, err
	}
	j.touch(node.Project())
	if j.r.hooks.OnTransitionBegin != nil {
		j.r.hooks.OnTransitionBegin(ctx, j.event(domain.EventTransitionBegin, node, op, from, node.State(), time.Time{}))
	}
	return from, nil
}

// commit ends the transition of node. When the framework reports a state
// other than the one the table predicted, the node commits to that state.
func (j *job) commit(ctx context.Context, node *domain.BundleNode, op domain.Transition, from domain.StateKind, began time.Time) {
	target := node.State()
	if id, ok := node.BundleID(); ok && op != domain.Uninstall {
		bits, err := j.r.framework.State(ctx, id)
		if err == nil {
			if actual := domain.FromFrameworkState(bits); actual != domain.StateLess && actual != target {
				j.r.logger.Debug("Framework state differs from table",
					"project", node.Project(), "op", op, "expected", target, "actual", actual)
				target = actual
			}
		}
	}
	if target != node.State() {
		node.CommitTo(op, target)
	} else {
		node.Commit()
	}
	if j.r.hooks.OnTransitionCommit != nil {
		j.r.hooks.OnTransitionCommit(ctx, j.event(domain.EventTransitionCommit, node, op, from, target, began))
	}
}

// rollback restores node after a failed framework call and marks it in error.
func (j *job) rollback(ctx context.Context, node *domain.BundleNode, op domain.Transition, from domain.StateKind, began time.Time, cause error) {
	to := node.State()
	node.RollBack()
	node.SetTransitionError(domain.Error)
	j.failed[node.Project()] = true
	st := domain.NewStatus(domain.StatusError, node.Project(), "%s failed", op.Name(true, true)).WithErr(cause)
	if id, ok := node.BundleID(); ok {
		st.WithBundle(id)
	}
	j.report(st)
	j.r.logger.Warn("Transition rolled back", "project", node.Project(), "op", op, "err", cause)
	if j.r.hooks.OnTransitionRollback != nil {
		j.r.hooks.OnTransitionRollback(ctx, j.event(domain.EventTransitionRollback, node, op, from, to, began))
	}
}

// step drives node through op, with action performing the framework side.
func (j *job) step(ctx context.Context, node *domain.BundleNode, op domain.Transition, action func(context.Context) error) error {
	from, err := j.begin(ctx, node, op)
	if err != nil {
		return err
	}
	began := time.Now()
	if err := action(ctx); err != nil {
		j.rollback(ctx, node, op, from, began, err)
		return err
	}
	j.commit(ctx, node, op, from, began)
	return nil
}

// batch drives several nodes through op with a single framework call.
// The call returns the ids that failed; nodes without a bundle are skipped.
func (j *job) batch(ctx context.Context, nodes []*domain.BundleNode, op domain.Transition, call func(context.Context, []int64) ([]int64, error)) {
	type started struct {
		node *domain.BundleNode
		from domain.StateKind
		id   int64
	}
	var run []started
	var ids []int64
	for _, n := range nodes {
		id, ok := n.BundleID()
		if !ok || !n.State().Allows(op) {
			continue
		}
		from, err := j.begin(ctx, n, op)
		if err != nil {
			continue
		}
		run = append(run, started{n, from, id})
		ids = append(ids, id)
	}
	if len(run) == 0 {
		return
	}

	began := time.Now()
	failed, err := call(ctx, ids)
	for _, s := range run {
		switch {
		case err != nil:
			j.rollback(ctx, s.node, op, s.from, began, err)
		case slices.Contains(failed, s.id):
			j.rollback(ctx, s.node, op, s.from, began, errors.New("framework could not "+op.Name(true, false)+" the bundle"))
		default:
			j.commit(ctx, s.node, op, s.from, began)
		}
	}
}

// blocked reports whether a provider of p failed earlier in this job.
func (j *job) blocked(p domain.ProjectKey) (domain.ProjectKey, bool) {
	providers, err := j.r.deps.RequiredBy(p)
	if err != nil {
		return "", false
	}
	for _, q := range providers {
		if j.failed[q] {
			return q, true
		}
	}
	return "", false
}

// nodes looks up the registered nodes of projects, keeping their order.
// Projects outside the locked scope of the job are left out.
func (j *job) nodes(projects []domain.ProjectKey) []*domain.BundleNode {
	out := make([]*domain.BundleNode, 0, len(projects))
	for _, p := range projects {
		if !j.locked[p] {
			continue
		}
		if n, ok := j.r.registry.Node(p); ok {
			out = append(out, n)
		}
	}
	return out
}

// bundleOf returns the bundle id of n.
func bundleOf(n *domain.BundleNode) (int64, error) {
	id, ok := n.BundleID()
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrNoBundle, n.Project())
	}
	return id, nil
}

// acyclic computes a providers-first closure with sort. On a circular
// reference the members are marked with a Cycle error, pending is removed
// from them, and they are left out together with every project requiring them.
func (j *job) acyclic(ctx context.Context, pending domain.Transition, sort func(allowCycles bool) ([]domain.ProjectKey, error)) ([]domain.ProjectKey, error) {
	order, err := sort(false)
	var ce *closure.CycleError[domain.ProjectKey]
	if !errors.As(err, &ce) {
		return order, err
	}

	j.cycle(ctx, ce.Members, pending)
	all, err := sort(true)
	if err != nil {
		return nil, err
	}
	excluded, err := j.r.sorter.Sort(closure.Requiring, ce.Members, false, true)
	if err != nil {
		return nil, err
	}
	skip := make(map[domain.ProjectKey]bool, len(excluded))
	for _, p := range excluded {
		skip[p] = true
	}
	for _, p := range ce.Members {
		delete(skip, p)
	}

	kept := all[:0:0]
	for _, p := range all {
		switch {
		case slices.Contains(ce.Members, p):
		case skip[p]:
			if pending != domain.NoTransition && j.locked[p] {
				_, _ = j.r.transitions.AddPending(p, pending)
			}
			j.touch(p)
			j.report(domain.NewStatus(domain.StatusWarning, p, "skipped: depends on a circular reference"))
		default:
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (j *job) cycle(ctx context.Context, members []domain.ProjectKey, pending domain.Transition) {
	names := make([]string, len(members))
	for i, p := range members {
		names[i] = string(p)
		_, _ = j.r.transitions.SetError(p, domain.Cycle)
		if pending != domain.NoTransition {
			j.r.transitions.RemovePending(p, pending)
		}
		j.touch(p)
	}
	j.report(domain.NewStatus(domain.StatusError, "", "circular reference between %s", strings.Join(names, ", ")).
		WithErr(closure.ErrCircularReference))
	if j.r.hooks.OnCycle != nil {
		j.r.hooks.OnCycle(ctx, &domain.CycleEvent{
			EventBase: domain.EventBase{Timestamp: j.r.now(), Type: domain.EventCycle, JobID: j.id},
			Members:   slices.Clone(members),
		})
	}
}
