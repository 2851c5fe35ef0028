package ports

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunNodeStoreContract runs a suite of tests to verify that a NodeStore implementation
// adheres to the defined interface contract.
func RunNodeStoreContract(t *testing.T, store NodeStore) {
	ctx := context.Background()
	project := domain.ProjectKey("contract-" + time.Now().Format("20060102150405"))

	t.Run("Save and Load", func(t *testing.T) {
		node := domain.NewBundleNode(project, &domain.Bundle{ID: 11, SymbolicName: "contract", Version: "1.0.0"}, domain.Activated)
		require.NoError(t, node.Apply(domain.Install))
		node.Commit()
		node.AddPending(domain.Update)
		node.SetTransitionError(domain.Duplicate)

		err := store.Save(ctx, node.Snapshot())
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, project)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, node.Snapshot(), loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		node := domain.NewBundleNode(project, nil, domain.Deactivated)
		require.NoError(t, store.Save(ctx, node.Snapshot()))

		loaded, err := store.Load(ctx, project)
		require.NoError(t, err)
		assert.Nil(t, loaded.Bundle)
		assert.Equal(t, domain.Deactivated, loaded.Activation)
		assert.Empty(t, loaded.Pending)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+project)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, domain.NewBundleNode(project, nil, domain.ActivationUnset).Snapshot())
		require.NoError(t, err)

		err = store.Delete(ctx, project)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, project)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, project), "Delete of an absent project")
	})

	t.Run("List", func(t *testing.T) {
		ids := make([]domain.ProjectKey, 0, 3)
		for i := 3; i > 0; i-- {
			id := domain.ProjectKey(fmt.Sprintf("%s-%d", project, i))
			ids = append(ids, id)
			require.NoError(t, store.Save(ctx, domain.NewBundleNode(id, nil, domain.Activated).Snapshot()))
		}
		defer func() {
			for _, id := range ids {
				_ = store.Delete(ctx, id)
			}
		}()

		projects, err := store.List(ctx)
		require.NoError(t, err)
		for _, id := range ids {
			assert.Contains(t, projects, id)
		}
		assert.True(t, slices.IsSorted(projects), "List should be sorted")
	})
}

// RunJournalContract verifies that a Journal implementation keeps events in order per project.
func RunJournalContract(t *testing.T, journal Journal) {
	ctx := context.Background()
	project := domain.ProjectKey("journal-" + time.Now().Format("20060102150405"))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	events := []domain.TransitionEvent{
		{EventBase: domain.EventBase{Timestamp: base, Type: domain.EventTransitionBegin, JobID: "j1"}, Project: project, Transition: domain.Install, From: domain.Uninstalled, To: domain.Installed},
		{EventBase: domain.EventBase{Timestamp: base.Add(time.Second), Type: domain.EventTransitionCommit, JobID: "j1"}, Project: project, BundleID: 4, Transition: domain.Install, From: domain.Uninstalled, To: domain.Installed, Duration: time.Second},
		{EventBase: domain.EventBase{Timestamp: base.Add(2 * time.Second), Type: domain.EventTransitionRollback, JobID: "j2"}, Project: project, BundleID: 4, Transition: domain.Resolve, From: domain.Resolved, To: domain.Installed, Error: domain.Error},
	}
	for _, e := range events {
		require.NoError(t, journal.Append(ctx, e))
	}
	require.NoError(t, journal.Append(ctx, domain.TransitionEvent{
		EventBase: domain.EventBase{Timestamp: base, Type: domain.EventTransitionBegin},
		Project:   "other-" + project,
	}))

	t.Run("History", func(t *testing.T) {
		got, err := journal.History(ctx, project, 0)
		require.NoError(t, err)
		require.Len(t, got, len(events))
		for i := range events {
			assert.Equal(t, events[i].Type, got[i].Type)
			assert.Equal(t, events[i].Transition, got[i].Transition)
			assert.Equal(t, events[i].To, got[i].To)
			assert.Equal(t, events[i].Error, got[i].Error)
			assert.Equal(t, events[i].JobID, got[i].JobID)
			assert.True(t, events[i].Timestamp.Equal(got[i].Timestamp))
		}
	})

	t.Run("History Limit", func(t *testing.T) {
		got, err := journal.History(ctx, project, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.EventTransitionCommit, got[0].Type, "limit keeps the latest events")
		assert.Equal(t, domain.EventTransitionRollback, got[1].Type)
	})
}
