package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
)

// LogHooks logs every lifecycle event. Commits and job results go to Info,
// begins to Debug and failures to Warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransitionBegin: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.DebugContext(ctx, "transition_begin",
				"project", e.Project,
				"transition", e.Transition,
				"from", e.From,
				"to", e.To,
			)
		},
		OnTransitionCommit: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition_commit",
				"project", e.Project,
				"bundle_id", e.BundleID,
				"transition", e.Transition,
				"state", e.To,
				"duration", e.Duration,
			)
		},
		OnTransitionRollback: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.WarnContext(ctx, "transition_rollback",
				"project", e.Project,
				"transition", e.Transition,
				"state", e.From,
			)
		},
		OnCycle: func(ctx context.Context, e *domain.CycleEvent) {
			logger.WarnContext(ctx, "circular_reference", "members", e.Members)
		},
		OnJobDone: func(ctx context.Context, e *domain.JobEvent) {
			logger.InfoContext(ctx, "job_done",
				"job", e.Job,
				"job_id", e.JobID,
				"code", e.Code,
				"projects", len(e.Projects),
				"duration", e.Duration,
			)
		},
	}
}

// JournalHooks appends every transition event to journal. Append failures
// are logged and never interrupt a job.
func JournalHooks(journal ports.Journal, logger *slog.Logger) domain.LifecycleHooks {
	record := func(ctx context.Context, e *domain.TransitionEvent) {
		if err := journal.Append(ctx, *e); err != nil {
			logger.Warn("Failed to append to journal", "project", e.Project, "err", err)
		}
	}
	return domain.LifecycleHooks{
		OnTransitionBegin:    record,
		OnTransitionCommit:   record,
		OnTransitionRollback: record,
	}
}

// LogStatus is a ports.StatusHandler writing every problem of a status tree
// to logger. A clean tree logs a single Debug line.
func LogStatus(logger *slog.Logger) ports.StatusHandler {
	return ports.StatusHandlerFunc(func(ctx context.Context, status *domain.Status) {
		if status.IsOK() {
			logger.DebugContext(ctx, "Job succeeded", "job", status.Message)
			return
		}
		status.Walk(func(depth int, st *domain.Status) {
			if depth == 0 || !st.Code.IsProblem() {
				return
			}
			attrs := []any{"job", status.Message, "code", st.Code}
			if st.Project != "" {
				attrs = append(attrs, "project", st.Project)
			}
			if st.Err != nil {
				attrs = append(attrs, "err", st.Err)
			}
			if st.Code == domain.StatusWarning {
				logger.WarnContext(ctx, st.Message, attrs...)
			} else {
				logger.ErrorContext(ctx, st.Message, attrs...)
			}
		})
	})
}
