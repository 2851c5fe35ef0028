package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/aretw0/inplace/pkg/registry"
	"github.com/aretw0/inplace/pkg/transition"
)

// Runner executes lifecycle jobs. Each job computes its closure, locks the
// projects it will touch and then drives their nodes through the framework.
//
// Nodes are not safe for concurrent use. Jobs own them exclusively from the
// moment they plan their scope until the touched nodes are persisted;
// readers go through View, Snapshots and the other accessors of this type.
type Runner struct {
	mu sync.RWMutex // guards every node of the registry

	registry    *registry.Registry
	deps        ports.DependencyReader
	framework   ports.Framework
	sorter      *closure.ProjectSorter
	bundles     *closure.BundleSorter
	closures    *closure.Closures
	transitions *transition.Manager
	locks       *Locks
	store       ports.NodeStore
	status      ports.StatusHandler
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	now         func() time.Time
	lazy        func(domain.ProjectKey) bool
	locate      func(domain.ProjectKey) string
	scopes      closure.Options
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger sets a custom structured logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls chain the hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// WithStatusHandler receives the status tree of every finished job.
func WithStatusHandler(h ports.StatusHandler) Option {
	return func(r *Runner) {
		r.status = h
	}
}

// WithStore persists the nodes a job touched once it finishes.
func WithStore(store ports.NodeStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLocks shares a lock table between runners, or adds a distributed locker.
func WithLocks(locks *Locks) Option {
	return func(r *Runner) {
		r.locks = locks
	}
}

// WithClosureOptions sets the scope of activation and deactivation closures.
func WithClosureOptions(opts closure.Options) Option {
	return func(r *Runner) {
		r.scopes = opts
	}
}

// WithLazyActivation makes started bundles of matching projects wait in
// STARTING until the framework activates them on first use.
func WithLazyActivation(lazy func(domain.ProjectKey) bool) Option {
	return func(r *Runner) {
		r.lazy = lazy
	}
}

// WithLocator sets the install location of a project.
// The default is "reference:file:<project>".
func WithLocator(locate func(domain.ProjectKey) string) Option {
	return func(r *Runner) {
		r.locate = locate
	}
}

// WithClock overrides time.Now for events.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner over the registry, the declared dependencies and a framework.
func NewRunner(reg *registry.Registry, deps ports.DependencyReader, fw ports.Framework, opts ...Option) *Runner {
	r := &Runner{
		registry:  reg,
		deps:      deps,
		framework: fw,
		logger:    logging.NewNop(),
		now:       time.Now,
		lazy:      func(domain.ProjectKey) bool { return false },
		locate: func(p domain.ProjectKey) string {
			return "reference:file:" + string(p)
		},
		scopes: closure.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locks == nil {
		r.locks = NewLocks(WithLockLogger(r.logger))
	}
	r.sorter = closure.NewProjectSorter(deps, reg)
	if wiring, ok := fw.(ports.BundleWiring); ok {
		r.bundles = closure.NewBundleSorter(wiring, reg)
	}
	r.closures = closure.NewClosures(r.sorter, r.scopes)
	r.transitions = transition.NewManager(reg)
	return r
}

func (r *Runner) Registry() *registry.Registry { return r.registry }

func (r *Runner) Transitions() *transition.Manager { return r.transitions }

func (r *Runner) Closures() *closure.Closures { return r.closures }

func (r *Runner) Sorter() *closure.ProjectSorter { return r.sorter }

// run plans the scope of a job and executes body over it. The node lock is
// held from planning until the touched nodes are persisted, so the projects
// a job locks are the projects it works on. A planning error returns no
// status.
func (r *Runner) run(ctx context.Context, name string, plan func() ([]domain.ProjectKey, error), body func(context.Context, *job) error) (*domain.Status, error) {
	j, err := r.execute(ctx, name, plan, body)
	if j == nil {
		return nil, err
	}

	code := j.status.Worst()
	if r.hooks.OnJobDone != nil {
		r.hooks.OnJobDone(ctx, &domain.JobEvent{
			EventBase: domain.EventBase{Timestamp: r.now(), Type: domain.EventJobDone, JobID: j.id},
			Job:       name,
			Projects:  j.touched,
			Code:      code,
			Duration:  time.Since(j.started),
		})
	}
	if r.status != nil {
		r.status.Handle(ctx, j.status)
	}
	r.logger.Info("Job finished", "job", name, "job_id", j.id, "code", code, "touched", len(j.touched), "duration", time.Since(j.started))
	return j.status, err
}

func (r *Runner) execute(ctx context.Context, name string, plan func() ([]domain.ProjectKey, error), body func(context.Context, *job) error) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope, err := plan()
	if err != nil {
		return nil, err
	}
	j := r.newJob(name, scope)
	r.logger.Debug("Job started", "job", name, "job_id", j.id, "scope", scope)

	err = r.locks.WithLocks(ctx, scope, func(ctx context.Context) error {
		if err := body(ctx, j); err != nil {
			return err
		}
		return r.persist(ctx, j)
	})
	if err != nil {
		j.status.Add(domain.NewStatus(domain.StatusException, "", "%s aborted", name).WithErr(err))
	}
	return j, err
}

func (r *Runner) persist(ctx context.Context, j *job) error {
	if r.store == nil {
		return nil
	}
	for _, p := range j.touched {
		node, ok := r.registry.Node(p)
		if !ok {
			if err := r.store.Delete(ctx, p); err != nil {
				return err
			}
			continue
		}
		if err := r.store.Save(ctx, node.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

// Restore loads persisted nodes into the registry. Projects already
// registered keep their live node.
func (r *Runner) Restore(ctx context.Context) ([]domain.ProjectKey, error) {
	if r.store == nil {
		return nil, nil
	}
	projects, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]domain.NodeSnapshot, 0, len(projects))
	for _, p := range projects {
		s, err := r.store.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	r.mu.Lock()
	skipped := r.registry.Restore(snapshots)
	r.mu.Unlock()
	r.logger.Debug("Restored nodes", "loaded", len(snapshots), "skipped", len(skipped))
	return skipped, nil
}
