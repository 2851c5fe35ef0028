package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundle(id int64, name string) *domain.Bundle {
	return &domain.Bundle{ID: id, SymbolicName: name, Version: "1.0.0"}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	node, err := r.Register("a", bundle(1, "a"), domain.Activated)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectKey("a"), node.Project())

	_, err = r.Register("a", nil, domain.Activated)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = r.Register("b", bundle(1, "b"), domain.Activated)
	assert.ErrorIs(t, err, ErrBundleInUse)

	_, err = r.Register("b", nil, domain.Deactivated)
	require.NoError(t, err)

	got, ok := r.NodeByBundle(1)
	require.True(t, ok)
	assert.Same(t, node, got)

	p, ok := r.Project(1)
	assert.True(t, ok)
	assert.Equal(t, domain.ProjectKey("a"), p)

	assert.True(t, r.Contains("b"))
	assert.False(t, r.Contains("c"))
	assert.Equal(t, []domain.ProjectKey{"a", "b"}, r.Projects())
	assert.Equal(t, []domain.ProjectKey{"a"}, r.ActivatedProjects())
	assert.True(t, r.IsActivated("a"))
	assert.False(t, r.IsActivated("b"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SetBundle(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", nil, domain.Activated)
	require.NoError(t, err)
	_, err = r.Register("b", bundle(2, "b"), domain.Activated)
	require.NoError(t, err)

	require.NoError(t, r.SetBundle("a", bundle(5, "a")))
	assert.Equal(t, []int64{5, 2}, r.Bundles([]domain.ProjectKey{"a", "b", "missing"}))

	require.NoError(t, r.SetBundle("a", bundle(6, "a")))
	_, ok := r.NodeByBundle(5)
	assert.False(t, ok, "old binding is dropped")

	assert.ErrorIs(t, r.SetBundle("a", bundle(2, "a")), ErrBundleInUse)
	assert.ErrorIs(t, r.SetBundle("zzz", nil), domain.ErrNodeNotFound)

	assert.Equal(t, []domain.ProjectKey{"b", "a"}, r.ProjectsOf([]int64{2, 6, 99}))
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	node, err := r.Register("a", bundle(1, "a"), domain.Activated)
	require.NoError(t, err)

	require.NoError(t, node.Apply(domain.Install))
	node.Commit()
	assert.ErrorIs(t, r.Unregister("a"), ErrNotUninstalled)

	require.NoError(t, node.Apply(domain.Uninstall))
	assert.ErrorIs(t, r.Unregister("a"), ErrNotUninstalled, "uninstall still in progress")
	node.Commit()

	require.NoError(t, r.Unregister("a"))
	assert.False(t, r.Contains("a"))
	_, ok := r.NodeByBundle(1)
	assert.False(t, ok)
	assert.Empty(t, r.Projects())

	assert.ErrorIs(t, r.Unregister("a"), domain.ErrNodeNotFound)
}

func TestRegistry_Duplicates(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"x", "y", "x", "z", "x", "y"} {
		p := domain.ProjectKey(fmt.Sprintf("p%d", i))
		_, err := r.Register(p, bundle(int64(i+1), name), domain.Activated)
		require.NoError(t, err)
	}
	_, err := r.Register("nobundle", nil, domain.Activated)
	require.NoError(t, err)

	groups := r.Duplicates(r.Projects())
	assert.Equal(t, [][]domain.ProjectKey{{"p0", "p2", "p4"}, {"p1", "p5"}}, groups)
	assert.Empty(t, r.Duplicates([]domain.ProjectKey{"p0", "p1"}))
}

func TestRegistry_SnapshotsRestore(t *testing.T) {
	r := NewRegistry()
	node, err := r.Register("a", bundle(1, "a"), domain.Activated)
	require.NoError(t, err)
	node.AddPending(domain.Update)
	_, err = r.Register("b", nil, domain.Deactivated)
	require.NoError(t, err)

	restored := NewRegistry()
	_, err = restored.Register("b", nil, domain.Activated)
	require.NoError(t, err)

	skipped := restored.Restore(r.Snapshots())
	assert.Equal(t, []domain.ProjectKey{"b"}, skipped)

	got, ok := restored.NodeByBundle(1)
	require.True(t, ok)
	assert.True(t, got.ContainsPending(domain.Update, false))
	assert.Equal(t, []domain.ProjectKey{"b", "a"}, restored.Projects())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Register(domain.ProjectKey(fmt.Sprintf("p%d", i)), bundle(int64(i), "n"), domain.Activated)
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Projects()
			_ = r.Duplicates(r.Projects())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
