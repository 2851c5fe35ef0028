package closure_test

import (
	"context"
	"testing"

	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type P = domain.ProjectKey

// workspace builds:
//
//	app -> lib -> core
//	tool -> core
//	other (isolated)
//
// with every project activated except tool.
func workspace(t *testing.T) (*memory.Dependencies, *registry.Registry) {
	t.Helper()
	deps := memory.NewDependencies()
	deps.Set("app", "lib")
	deps.Set("lib", "core")
	deps.Set("core")
	deps.Set("tool", "core")
	deps.Set("other")

	reg := registry.NewRegistry()
	for _, p := range deps.Projects() {
		activation := domain.Activated
		if p == "tool" {
			activation = domain.Deactivated
		}
		_, err := reg.Register(p, nil, activation)
		require.NoError(t, err)
	}
	return deps, reg
}

func TestProjectSorter(t *testing.T) {
	deps, reg := workspace(t)
	ps := closure.NewProjectSorter(deps, reg)

	order, err := ps.SortProviding([]P{"app"}, false)
	require.NoError(t, err)
	assert.Equal(t, []P{"core", "lib", "app"}, order)

	order, err = ps.SortRequiring([]P{"core"}, false)
	require.NoError(t, err)
	assert.Equal(t, []P{"app", "lib", "tool", "core"}, order)

	order, err = ps.SortRequiring([]P{"core"}, true)
	require.NoError(t, err)
	assert.Equal(t, []P{"app", "lib", "core"}, order, "tool is not activated")
}

func TestProjectSorter_IgnoresUnregistered(t *testing.T) {
	deps, reg := workspace(t)
	deps.Set("ghost", "core")
	ps := closure.NewProjectSorter(deps, reg)

	order, err := ps.SortRequiring([]P{"core"}, false)
	require.NoError(t, err)
	assert.NotContains(t, order, P("ghost"))
}

func TestProjectSorter_Cycle(t *testing.T) {
	deps, reg := workspace(t)
	deps.Set("core", "app")
	ps := closure.NewProjectSorter(deps, reg)

	_, err := ps.SortProviding([]P{"tool"}, false)
	require.ErrorIs(t, err, closure.ErrCircularReference)
	var ce *closure.CycleError[P]
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []P{"core", "lib", "app"}, ce.Members)

	all, err := ps.Sort(closure.Requiring, []P{"core"}, false, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []P{"core", "lib", "app", "tool"}, all)
}

func TestBundleSorter(t *testing.T) {
	deps, reg := workspace(t)
	fw := memory.NewFramework(deps)
	ctx := context.Background()

	var ids []int64
	for _, p := range []P{"core", "lib", "app", "tool"} {
		b, err := fw.Install(ctx, p, "")
		require.NoError(t, err)
		require.NoError(t, reg.SetBundle(p, b))
		ids = append(ids, b.ID)
	}
	_, err := fw.Resolve(ctx, ids)
	require.NoError(t, err)

	bs := closure.NewBundleSorter(fw, reg)
	order, err := bs.SortRequiring([]int64{ids[0]}, false)
	require.NoError(t, err)
	assert.Equal(t, []P{"app", "lib", "tool", "core"}, reg.ProjectsOf(order))

	order, err = bs.SortProviding([]int64{ids[2]}, true)
	require.NoError(t, err)
	assert.Equal(t, []P{"core", "lib", "app"}, reg.ProjectsOf(order))
}

func TestClosures_Activation(t *testing.T) {
	tests := []struct {
		scope closure.Scope
		seeds []P
		want  []P
	}{
		{closure.ScopeSingle, []P{"lib"}, []P{"core", "lib"}},
		{closure.ScopeProviding, []P{"lib"}, []P{"core", "lib"}},
		{closure.ScopeRequiring, []P{"lib"}, []P{"core", "lib", "app"}},
		{closure.ScopeProvidingAndRequiring, []P{"lib"}, []P{"core", "lib", "app", "tool"}},
		{closure.ScopeRequiringAndProviding, []P{"lib"}, []P{"core", "lib", "app"}},
		{closure.ScopePartialGraph, []P{"app"}, []P{"core", "lib", "app", "tool"}},
		{closure.ScopePartialGraph, []P{"other"}, []P{"other"}},
	}

	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			deps, reg := workspace(t)
			opts := closure.DefaultOptions()
			opts.ActivateProject = tt.scope
			c := closure.NewClosures(closure.NewProjectSorter(deps, reg), opts)

			got, err := c.Activation(closure.ActivateProject, tt.seeds, false)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
			assertProvidersFirst(t, deps, got)
		})
	}
}

func TestClosures_Deactivation(t *testing.T) {
	tests := []struct {
		scope closure.Scope
		seeds []P
		want  []P
	}{
		{closure.ScopeSingle, []P{"lib"}, []P{"app", "lib"}},
		{closure.ScopeRequiring, []P{"core"}, []P{"app", "lib", "core"}},
		{closure.ScopeProviding, []P{"lib"}, []P{"app", "lib", "core"}},
		{closure.ScopePartialGraph, []P{"lib"}, []P{"app", "lib", "core"}},
	}

	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			deps, reg := workspace(t)
			opts := closure.DefaultOptions()
			opts.DeactivateProject = tt.scope
			c := closure.NewClosures(closure.NewProjectSorter(deps, reg), opts)

			got, err := c.Deactivation(closure.DeactivateProject, tt.seeds, false)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
			assertRequirersFirst(t, deps, got)
		})
	}
}

func assertProvidersFirst(t *testing.T, deps *memory.Dependencies, order []P) {
	t.Helper()
	pos := map[P]int{}
	for i, p := range order {
		pos[p] = i
	}
	for _, p := range order {
		providers, _ := deps.RequiredBy(p)
		for _, q := range providers {
			if i, ok := pos[q]; ok {
				assert.Less(t, i, pos[p], "%s before %s", q, p)
			}
		}
	}
}

func assertRequirersFirst(t *testing.T, deps *memory.Dependencies, order []P) {
	t.Helper()
	pos := map[P]int{}
	for i, p := range order {
		pos[p] = i
	}
	for _, p := range order {
		providers, _ := deps.RequiredBy(p)
		for _, q := range providers {
			if i, ok := pos[q]; ok {
				assert.Less(t, pos[p], i, "%s before %s", p, q)
			}
		}
	}
}

func TestScope_Parse(t *testing.T) {
	for _, s := range []closure.Scope{closure.ScopeProviding, closure.ScopeRequiring, closure.ScopeProvidingAndRequiring, closure.ScopeRequiringAndProviding, closure.ScopePartialGraph, closure.ScopeSingle} {
		parsed, err := closure.ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	parsed, err := closure.ParseScope("Partial-Graph")
	require.NoError(t, err)
	assert.Equal(t, closure.ScopePartialGraph, parsed)

	_, err = closure.ParseScope("everything")
	assert.Error(t, err)
}

func TestDecodeOptions(t *testing.T) {
	opts, err := closure.DecodeOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, closure.DefaultOptions(), opts)

	opts, err = closure.DecodeOptions(map[string]any{
		"activate_project":   "partial_graph",
		"deactivate_project": "single",
	})
	require.NoError(t, err)
	assert.Equal(t, closure.ScopePartialGraph, opts.Scope(closure.ActivateProject))
	assert.Equal(t, closure.ScopeSingle, opts.Scope(closure.DeactivateProject))
	assert.Equal(t, closure.ScopeProviding, opts.Scope(closure.ActivateBundle))

	_, err = closure.DecodeOptions(map[string]any{"activate_project": "sideways"})
	assert.Error(t, err)

	_, err = closure.DecodeOptions(map[string]any{"unknown_key": "single"})
	assert.Error(t, err)
}

func TestCompute(t *testing.T) {
	deps, reg := workspace(t)
	c := closure.NewClosures(closure.NewProjectSorter(deps, reg), closure.DefaultOptions())

	order, err := c.Compute(closure.ActivateBundle, []P{"app"}, false)
	require.NoError(t, err)
	assert.Equal(t, []P{"core", "lib", "app"}, order)

	order, err = c.Compute(closure.DeactivateProject, []P{"lib"}, false)
	require.NoError(t, err)
	assert.Equal(t, []P{"app", "lib"}, order)

	_, err = c.Compute("sideways", []P{"app"}, false)
	assert.ErrorIs(t, err, closure.ErrUnknownOperation)
}
