package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/inplace"
	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/domain"
)

// ErrJobFailed is returned when a job finished with an error status. The
// status itself has already been printed.
var ErrJobFailed = errors.New("job reported errors")

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// Options are the flags shared by every command.
type Options struct {
	Dir       string
	LogLevel  string
	LogFormat string
	Stderr    io.Writer
}

// Logger builds the command logger. Logs always go to stderr so stdout
// stays clean for graphs and JSON.
func (o Options) Logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	switch strings.ToLower(o.LogFormat) {
	case "", "text":
	case "json":
		format = logging.FormatJSON
	default:
		return nil, fmt.Errorf("unknown log format %q", o.LogFormat)
	}
	w := o.Stderr
	if w == nil {
		w = os.Stderr
	}
	return logging.NewWithFormat(w, level, format), nil
}

// OpenWorkspace opens the workspace in o.Dir with the command logger.
func OpenWorkspace(ctx context.Context, o Options, opts ...inplace.Option) (*inplace.Workspace, error) {
	logger, err := o.Logger()
	if err != nil {
		return nil, err
	}
	ws, err := inplace.Open(ctx, o.Dir, append([]inplace.Option{inplace.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	return ws, nil
}

// ParseProjects turns command arguments into project keys. Each argument
// may hold a comma separated list.
func ParseProjects(args []string) []domain.ProjectKey {
	var out []domain.ProjectKey
	for _, arg := range args {
		for _, p := range strings.Split(arg, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, domain.ProjectKey(p))
			}
		}
	}
	return out
}

// CheckStatus maps a job outcome to the command error. Warnings do not
// fail a command.
func CheckStatus(status *domain.Status, err error) error {
	if err != nil {
		return err
	}
	if status == nil {
		return nil
	}
	if worst := status.Worst(); worst.IsProblem() && worst != domain.StatusWarning {
		return ErrJobFailed
	}
	return nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
