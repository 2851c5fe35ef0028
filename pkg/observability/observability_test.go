package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/observability"
)

func commit(project domain.ProjectKey, op domain.Transition, to domain.StateKind) *domain.TransitionEvent {
	return &domain.TransitionEvent{
		EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventTransitionCommit, JobID: "j"},
		Project:    project,
		Transition: op,
		To:         to,
		Duration:   time.Millisecond,
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnTransitionCommit(ctx, commit("core", domain.Start, domain.Active))
	hooks.OnTransitionCommit(ctx, commit("lib", domain.Start, domain.Active))
	hooks.OnTransitionRollback(ctx, commit("app", domain.Resolve, domain.Resolved))
	hooks.OnCycle(ctx, &domain.CycleEvent{Members: []domain.ProjectKey{"a", "b"}})
	hooks.OnJobDone(ctx, &domain.JobEvent{Job: "activate", Code: domain.StatusError, Duration: time.Second})

	count, err := testutil.GatherAndCount(reg, "inplace_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series per transition and state")

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err, "collectors are already registered")
}

func TestMetrics_Values(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()

	hooks.OnCycle(context.Background(), &domain.CycleEvent{})
	hooks.OnCycle(context.Background(), &domain.CycleEvent{})

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "inplace_cycles_total" {
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
			return
		}
	}
	t.Fatal("inplace_cycles_total not gathered")
}

func TestJournalHooks(t *testing.T) {
	journal := memory.NewJournal()
	hooks := observability.JournalHooks(journal, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	ctx := context.Background()

	hooks.OnTransitionBegin(ctx, commit("core", domain.Install, domain.Installed))
	hooks.OnTransitionCommit(ctx, commit("core", domain.Install, domain.Installed))

	history, err := journal.History(ctx, "core", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Nil(t, hooks.OnJobDone)
}

func TestLogHooksAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	observability.LogHooks(logger).OnTransitionCommit(ctx, commit("core", domain.Start, domain.Active))
	assert.Contains(t, buf.String(), "transition_commit")
	assert.Contains(t, buf.String(), "project=core")
	assert.Contains(t, buf.String(), "state=ACTIVE")

	buf.Reset()
	status := domain.NewStatus(domain.StatusJobInfo, "", "activate")
	status.Add(domain.NewStatus(domain.StatusOK, "core", "started"))
	status.Add(domain.NewStatus(domain.StatusError, "lib", "Install failed").WithErr(errors.New("boom")))
	observability.LogStatus(logger).Handle(ctx, status)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "Install failed")
	assert.Contains(t, out, "err=boom")
	assert.NotContains(t, out, "started")
}
