package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/inplace"
	"github.com/aretw0/inplace/internal/manifest"
	"github.com/aretw0/inplace/internal/presentation/tui"
	httpAdapter "github.com/aretw0/inplace/pkg/adapters/http"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/jobs"
	"github.com/aretw0/inplace/pkg/observability"
	"github.com/aretw0/inplace/pkg/ports"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions configure the HTTP server.
type ServeOptions struct {
	Addr string
	// Listener overrides Addr when set.
	Listener net.Listener
	Watch    bool
	// Ready is called once the workspace is synced and the server accepts
	// requests.
	Ready func(addr net.Addr)
}

// Serve opens the workspace, activates it and serves the HTTP API until
// ctx is done. With Watch set, project changes are batched by the update
// scheduler and manifest changes reload the workspace.
func Serve(ctx context.Context, o Options, so ServeOptions) error {
	logger, err := o.Logger()
	if err != nil {
		return err
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector())
	streams := httpAdapter.NewStreamManager(logger)

	ws, err := inplace.Open(ctx, o.Dir,
		inplace.WithLogger(logger),
		inplace.WithMetrics(prom),
		inplace.WithStatusHandler(ports.StatusHandlers{observability.LogStatus(logger), streams}),
	)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Error("Workspace close failed", "err", err)
		}
	}()

	if _, err := ws.Sync(ctx); err != nil {
		return fmt.Errorf("initial activation failed: %w", err)
	}

	sched, err := newScheduler(ws)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { _ = sched.Stop() }()

	ln := so.Listener
	if ln == nil {
		if ln, err = net.Listen("tcp", so.Addr); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Handler: httpAdapter.NewHandler(ws.Runner(),
			httpAdapter.WithJournal(ws.Journal()),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithMetrics(prom),
			httpAdapter.WithLogger(logger),
			httpAdapter.WithVersion(inplace.Version),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting InPlace Server", "address", ln.Addr().String(), "workspace", ws.Name)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("InPlace Server stopped gracefully")
		return nil
	})
	if so.Watch {
		g.Go(func() error {
			return newWorkspaceWatcher(ws, sched, logger, nil).Run(gctx)
		})
	}
	if so.Ready != nil {
		so.Ready(ln.Addr())
	}
	return g.Wait()
}

// Watch opens the workspace, activates it and follows changes of the
// manifest and of the project directories until ctx is done.
func Watch(ctx context.Context, o Options, out io.Writer) error {
	ws, err := OpenWorkspace(ctx, o)
	if err != nil {
		return err
	}
	defer ws.Close()

	printer := tui.NewPrinter(out)
	tui.PrintBanner(out, inplace.Version)

	status, err := ws.Sync(ctx)
	if err != nil {
		return err
	}
	printer.Status(status)

	sched, err := newScheduler(ws)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { _ = sched.Stop() }()

	printSystemMessage(out, "Watching '%s'. Waiting for changes...", ws.Manifest().Dir)
	return newWorkspaceWatcher(ws, sched, ws.Logger(), ReportTo(printer, out)).Run(ctx)
}

func newScheduler(ws *inplace.Workspace) (*jobs.UpdateScheduler, error) {
	interval, quiet := ws.Manifest().Scheduler.Durations()
	sched, err := jobs.NewUpdateScheduler(ws.Runner(), interval, quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to create update scheduler: %w", err)
	}
	return sched, nil
}

func newWorkspaceWatcher(ws *inplace.Workspace, sched *jobs.UpdateScheduler, logger *slog.Logger, report func(*domain.Status, error)) *Watcher {
	m := ws.Manifest()
	opts := []WatchOption{
		WithWatchLogger(logger),
		WithProjectDirs(m.Dirs(), sched.Schedule),
	}
	if report != nil {
		opts = append(opts, WithReloadReport(report))
	}
	return NewWatcher(manifest.Path(m.Dir), ws.Reload, opts...)
}
