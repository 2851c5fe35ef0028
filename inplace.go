package inplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/internal/manifest"
	"github.com/aretw0/inplace/pkg/adapters/badger"
	"github.com/aretw0/inplace/pkg/adapters/file"
	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/adapters/redis"
	"github.com/aretw0/inplace/pkg/adapters/sqlite"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/jobs"
	"github.com/aretw0/inplace/pkg/observability"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/aretw0/inplace/pkg/registry"
)

// Workspace is the high-level entry point of the library. It wires a
// manifest, the node registry, persistence and the job runner together.
type Workspace struct {
	Name string

	mu        sync.RWMutex
	manifest  *manifest.Manifest
	deps      *memory.Dependencies
	registry  *registry.Registry
	framework ports.Framework
	runner    *jobs.Runner

	store   ports.NodeStore
	journal ports.Journal
	locker  ports.DistributedLocker
	metrics *observability.Metrics

	promRegistry prometheus.Registerer
	hooks        domain.LifecycleHooks
	status       ports.StatusHandler
	logger       *slog.Logger
	closers      []func() error
}

// Option defines a functional option for configuring the Workspace.
type Option func(*Workspace)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// WithFramework replaces the simulated framework with a real bundle runtime.
func WithFramework(fw ports.Framework) Option {
	return func(w *Workspace) {
		w.framework = fw
	}
}

// WithStore bypasses the storage configured in the manifest.
func WithStore(store ports.NodeStore) Option {
	return func(w *Workspace) {
		w.store = store
	}
}

// WithJournal bypasses the journal configured in the manifest.
func WithJournal(journal ports.Journal) Option {
	return func(w *Workspace) {
		w.journal = journal
	}
}

// WithLocker makes jobs also take a distributed lock per project.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(w *Workspace) {
		w.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Workspace) {
		w.hooks = w.hooks.Merge(hooks)
	}
}

// WithStatusHandler receives the status of every finished job.
func WithStatusHandler(h ports.StatusHandler) Option {
	return func(w *Workspace) {
		w.status = h
	}
}

// WithMetrics registers the Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(w *Workspace) {
		w.promRegistry = reg
	}
}

// Open loads the manifest found at dirOrFile and restores the persisted
// nodes. Projects are registered but nothing is activated until Sync or an
// explicit job runs.
func Open(ctx context.Context, dirOrFile string, opts ...Option) (*Workspace, error) {
	m, err := manifest.Load(dirOrFile)
	if err != nil {
		return nil, err
	}
	return New(ctx, m, opts...)
}

// New builds a workspace from an already loaded manifest.
func New(ctx context.Context, m *manifest.Manifest, opts ...Option) (*Workspace, error) {
	w := &Workspace{manifest: m}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.NewNop()
	}

	w.Name = m.Name
	if w.Name == "" && m.Dir != "" {
		if abs, err := filepath.Abs(m.Dir); err == nil {
			w.Name = filepath.Base(abs)
		}
	}
	if w.Name != "" {
		w.logger = w.logger.With("workspace", w.Name)
	}

	if err := w.openStorage(); err != nil {
		_ = w.Close()
		return nil, err
	}

	w.deps = m.Dependencies()
	w.registry = registry.NewRegistry()
	if w.framework == nil {
		w.framework = memory.NewFramework(w.deps, memory.WithIdentity(func(p domain.ProjectKey) (string, string) {
			return w.Manifest().Identity(p)
		}))
	}

	hooks := observability.LogHooks(w.logger)
	if w.journal != nil {
		hooks = hooks.Merge(observability.JournalHooks(w.journal, w.logger))
	}
	if w.promRegistry != nil {
		metrics, err := observability.NewMetrics(w.promRegistry)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.metrics = metrics
		hooks = hooks.Merge(metrics.Hooks())
	}
	hooks = hooks.Merge(w.hooks)

	status := w.status
	if status == nil {
		status = observability.LogStatus(w.logger)
	}

	lockOpts := []jobs.LockOption{jobs.WithLockLogger(w.logger)}
	if w.locker != nil {
		lockOpts = append(lockOpts, jobs.WithDistributedLocker(w.locker, 0))
	}

	runnerOpts := []jobs.Option{
		jobs.WithLogger(w.logger),
		jobs.WithLifecycleHooks(hooks),
		jobs.WithStatusHandler(status),
		jobs.WithLocks(jobs.NewLocks(lockOpts...)),
		jobs.WithClosureOptions(m.ClosureOptions()),
		jobs.WithLazyActivation(w.isLazy),
		jobs.WithLocator(w.location),
	}
	if w.store != nil {
		runnerOpts = append(runnerOpts, jobs.WithStore(w.store))
	}
	w.runner = jobs.NewRunner(w.registry, w.deps, w.framework, runnerOpts...)

	skipped, err := w.runner.Restore(ctx)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to restore nodes: %w", err)
	}
	if len(skipped) > 0 {
		w.logger.Warn("Skipped persisted nodes", "projects", skipped)
	}
	if w.registry.Len() > 0 {
		if _, err := w.runner.Reconcile(ctx); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	if _, err := m.Register(w.registry); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Workspace) openStorage() error {
	cfg := w.manifest.Storage

	if w.store == nil {
		switch cfg.Driver {
		case "redis":
			var opts []redis.Option
			if cfg.Prefix != "" {
				opts = append(opts, redis.WithPrefix(cfg.Prefix))
			}
			rs := redis.New(cfg.RedisAddr, cfg.Password, 0, opts...)
			w.closers = append(w.closers, rs.Close)
			w.store = rs
			if w.journal == nil && cfg.Journal == "" {
				w.journal = rs
			}
			if w.locker == nil {
				w.locker = rs.Locker()
			}
		case "file":
			w.store = file.New(cfg.Path)
		case "badger":
			bs, err := badger.Open(badger.Config{Path: cfg.Path, Logger: w.logger})
			if err != nil {
				return err
			}
			w.closers = append(w.closers, bs.Close)
			w.store = bs
		default:
			w.store = memory.NewStore()
		}
	}

	if w.journal == nil {
		if cfg.Journal != "" {
			j, err := sqlite.NewJournal(cfg.Journal)
			if err != nil {
				return err
			}
			w.closers = append(w.closers, j.Close)
			w.journal = j
		} else {
			w.journal = memory.NewJournal()
		}
	}
	return nil
}

func (w *Workspace) isLazy(p domain.ProjectKey) bool {
	return w.Manifest().IsLazy(p)
}

func (w *Workspace) location(p domain.ProjectKey) string {
	return w.Manifest().Location(p)
}

// Runner returns the job runner.
func (w *Workspace) Runner() *jobs.Runner { return w.runner }

func (w *Workspace) Manifest() *manifest.Manifest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.manifest
}

func (w *Workspace) Registry() *registry.Registry { return w.registry }

func (w *Workspace) Dependencies() ports.DependencyReader { return w.deps }

func (w *Workspace) Journal() ports.Journal { return w.journal }

// Metrics is nil unless WithMetrics was given.
func (w *Workspace) Metrics() *observability.Metrics { return w.metrics }

func (w *Workspace) Logger() *slog.Logger { return w.logger }

// Sync activates the projects the manifest declares as activated.
func (w *Workspace) Sync(ctx context.Context) (*domain.Status, error) {
	activated := w.Manifest().Activated()
	if len(activated) == 0 {
		return domain.NewStatus(domain.StatusOK, "", "nothing to activate"), nil
	}
	return w.runner.Activate(ctx, activated)
}

// Reload re-reads the manifest and brings the workspace in line with it:
// undeclared projects are removed, projects whose requirements changed are
// refreshed and newly declared activated projects are activated.
func (w *Workspace) Reload(ctx context.Context) (*domain.Status, error) {
	previous := w.Manifest()
	if previous.Dir == "" {
		return nil, errors.New("workspace was not opened from a directory")
	}
	next, err := manifest.Load(previous.Dir)
	if err != nil {
		return nil, err
	}

	status := domain.NewStatus(domain.StatusJobInfo, "", "reload")
	removed := next.Removed(w.registry)
	for _, p := range removed {
		st, err := w.runner.RemoveProject(ctx, p)
		status.Add(st)
		if err != nil {
			return status, err
		}
	}

	var changed []domain.ProjectKey
	for _, p := range next.Keys() {
		before, _ := w.deps.RequiredBy(p)
		want, _ := next.Project(p)
		if !sameRequirements(before, want.Requires) && w.runner.IsActivated(p) {
			changed = append(changed, p)
		}
	}

	w.mu.Lock()
	w.manifest = next
	w.mu.Unlock()
	next.Apply(w.deps)
	added, err := next.Register(w.registry)
	if err != nil {
		return status, err
	}

	if len(changed) > 0 {
		st, err := w.runner.Refresh(ctx, changed)
		status.Add(st)
		if err != nil {
			return status, err
		}
	}

	var activate []domain.ProjectKey
	for _, p := range next.Activated() {
		old, known := previous.Project(p)
		if slices.Contains(added, p) || !known || !old.Activated {
			activate = append(activate, p)
		}
	}
	if len(activate) > 0 {
		st, err := w.runner.Activate(ctx, activate)
		status.Add(st)
		if err != nil {
			return status, err
		}
	}
	w.logger.Info("Manifest reloaded", "removed", len(removed), "added", len(added), "refreshed", len(changed))
	return status, nil
}

func sameRequirements(current []domain.ProjectKey, declared []string) bool {
	if len(current) != len(declared) {
		return false
	}
	for i := range current {
		if string(current[i]) != declared[i] {
			return false
		}
	}
	return true
}

// Close releases the storage backends.
func (w *Workspace) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.closers = nil
	return errors.Join(errs...)
}
