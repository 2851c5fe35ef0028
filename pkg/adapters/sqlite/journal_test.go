package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/inplace/pkg/adapters/sqlite"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteJournal_Contract(t *testing.T) {
	j, err := sqlite.NewJournal(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ports.RunJournalContract(t, j)
}

func TestSQLiteJournal_JobAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := sqlite.NewJournal(path)
	require.NoError(t, err)
	for _, p := range []domain.ProjectKey{"core", "lib", "core"} {
		require.NoError(t, j.Append(ctx, domain.TransitionEvent{
			EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventTransitionCommit, JobID: "job-1"},
			Project:    p,
			Transition: domain.Start,
			From:       domain.Resolved,
			To:         domain.Active,
		}))
	}
	require.NoError(t, j.Close())

	j, err = sqlite.NewJournal(path)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Job(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.ProjectKey("lib"), events[1].Project)

	history, err := j.History(ctx, "core", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	none, err := j.Job(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
