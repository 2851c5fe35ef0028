package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/internal/presentation/graph"
	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/domain"
)

func nodeIn(t *testing.T, project domain.ProjectKey, state domain.StateKind, activation domain.Activation) *domain.BundleNode {
	t.Helper()
	var bundle *domain.Bundle
	if state != domain.StateLess {
		bundle = &domain.Bundle{ID: 1, SymbolicName: string(project), Version: "1.0.0"}
	}
	n := domain.NewBundleNode(project, bundle, activation)
	if state > domain.Uninstalled {
		require.NoError(t, n.Begin(domain.External, state))
		n.Commit()
	}
	return n
}

func TestGenerateMermaid(t *testing.T) {
	deps := memory.NewDependencies()
	deps.Set("app.web", "lib-core")
	deps.Set("lib-core")
	deps.Set("tool", "lib-core")

	failed := nodeIn(t, "tool", domain.Installed, domain.Deactivated)
	failed.SetTransitionError(domain.Cycle)

	tests := []struct {
		name     string
		nodes    []*domain.BundleNode
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "State Shapes",
			nodes: []*domain.BundleNode{
				nodeIn(t, "app.web", domain.Active, domain.Activated),
				nodeIn(t, "lib-core", domain.Resolved, domain.Activated),
				failed,
			},
			contains: []string{
				`app_web(("app.web <br/> app.web_1.0.0 ACTIVE"))`,
				`lib_core[["lib-core <br/> lib-core_1.0.0 RESOLVED"]]`,
				`tool[/"tool <br/> tool_1.0.0 INSTALLED <br/> ⚠️ CYCLE"/]`,
			},
		},
		{
			name:  "Stateless Node",
			nodes: []*domain.BundleNode{nodeIn(t, "lib-core", domain.StateLess, domain.Deactivated)},
			contains: []string{
				`lib_core["lib-core <br/> STATELESS"]`,
			},
			excludes: []string{"-->", "classDef"},
		},
		{
			name: "Activation Edges",
			nodes: []*domain.BundleNode{
				nodeIn(t, "app.web", domain.Active, domain.Activated),
				failed,
			},
			contains: []string{
				"app_web --> lib_core",
				"tool -.-> lib_core",
				"class tool failed;",
			},
		},
		{
			name: "Closure Overlay",
			nodes: []*domain.BundleNode{
				nodeIn(t, "app.web", domain.Active, domain.Activated),
				nodeIn(t, "lib-core", domain.Active, domain.Activated),
			},
			overlay: &graph.Overlay{
				Closure: []domain.ProjectKey{"lib-core", "app.web"},
				Seeds:   []domain.ProjectKey{"app.web"},
			},
			contains: []string{
				`lib_core(("1. lib-core`,
				`app_web(("2. app.web`,
				"class lib_core closure;",
				"class app_web seed;",
			},
			excludes: []string{"class app_web closure;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := graph.GenerateMermaid(tt.nodes, deps, tt.overlay)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}
