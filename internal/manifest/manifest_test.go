package manifest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/internal/manifest"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
)

const sample = `
name: demo
projects:
  - name: app
    requires: [lib]
    activated: true
  - name: lib
    requires: [core]
    lazy: true
    symbolic_name: org.demo.lib
    version: 2.1.0
  - name: core
    location: bundles/core
scopes:
  activate_project: partial_graph
  deactivate_project: single
storage:
  driver: badger
  path: state
  journal: journal.db
scheduler:
  interval: 500ms
  quiet: 3s
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeManifest(t, sample)

	m, err := manifest.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []domain.ProjectKey{"app", "lib", "core"}, m.Keys())
	assert.Equal(t, []domain.ProjectKey{"app"}, m.Activated())
	assert.True(t, m.IsLazy("lib"))
	assert.False(t, m.IsLazy("ghost"))

	opts := m.ClosureOptions()
	assert.Equal(t, closure.ScopePartialGraph, opts.ActivateProject)
	assert.Equal(t, closure.ScopeSingle, opts.DeactivateProject)
	assert.Equal(t, closure.ScopeRequiring, opts.DeactivateBundle)

	assert.Equal(t, filepath.Join(dir, "state"), m.Storage.Path)
	assert.Equal(t, filepath.Join(dir, "journal.db"), m.Storage.Journal)
	assert.Equal(t, "reference:file:"+filepath.Join(dir, "bundles/core"), m.Location("core"))

	name, version := m.Identity("lib")
	assert.Equal(t, "org.demo.lib", name)
	assert.Equal(t, "2.1.0", version)
	name, version = m.Identity("app")
	assert.Equal(t, "app", name)
	assert.Equal(t, "1.0.0", version)

	interval, quiet := m.Scheduler.Durations()
	assert.Equal(t, 500*time.Millisecond, interval)
	assert.Equal(t, 3*time.Second, quiet)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := manifest.Load(t.TempDir())
	assert.ErrorIs(t, err, manifest.ErrNotFound)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := writeManifest(t, "projects:\n  - name: a\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INPLACE_REDIS_ADDR=localhost:6399\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(manifest.EnvRedisAddr) })

	m, err := manifest.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis", m.Storage.Driver)
	assert.Equal(t, "localhost:6399", m.Storage.RedisAddr)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no projects", "name: x\n", "projects"},
		{"duplicate", "projects:\n  - name: a\n  - name: a\n", "unique"},
		{"missing name", "projects:\n  - requires: [a]\n", "name"},
		{"unknown requirement", "projects:\n  - name: a\n    requires: [b]\n", `unknown project "b"`},
		{"bad driver", "projects:\n  - name: a\nstorage:\n  driver: etcd\n", "oneof"},
		{"badger without path", "projects:\n  - name: a\nstorage:\n  driver: badger\n", "required_if"},
		{"bad duration", "projects:\n  - name: a\nscheduler:\n  quiet: soon\n", "duration"},
		{"bad scope", "projects:\n  - name: a\nscopes:\n  activate_project: everything\n", "everything"},
		{"unknown scope key", "projects:\n  - name: a\nscopes:\n  activate_everything: single\n", "activate_everything"},
		{"syntax", "projects: [\n", "invalid manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDependenciesAndRegister(t *testing.T) {
	m, err := manifest.Parse([]byte(sample))
	require.NoError(t, err)

	deps := m.Dependencies()
	providers, err := deps.RequiredBy("app")
	require.NoError(t, err)
	assert.Equal(t, []domain.ProjectKey{"lib"}, providers)

	reg := registry.NewRegistry()
	_, err = reg.Register("stale", nil, domain.Activated)
	require.NoError(t, err)

	added, err := m.Register(reg)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProjectKey{"app", "lib", "core"}, added)
	assert.Equal(t, []domain.ProjectKey{"stale"}, m.Removed(reg))

	node, ok := reg.Node("app")
	require.True(t, ok)
	assert.False(t, node.IsActivated(), "activation is left to a job")

	again, err := m.Register(reg)
	require.NoError(t, err)
	assert.Empty(t, again)

	// A smaller manifest drops the forgotten declarations.
	small, err := manifest.Parse([]byte("projects:\n  - name: core\n"))
	require.NoError(t, err)
	small.Apply(deps)
	assert.Equal(t, []domain.ProjectKey{"core"}, deps.Projects())
}
