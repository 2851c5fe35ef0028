package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/internal/manifest"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
)

const workspace = `
name: demo
projects:
  - name: app
    requires: [lib]
    activated: true
  - name: lib
  - name: a
    requires: [b]
  - name: b
    requires: [a]
`

func newWorkspace(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(workspace), 0o644))
	return Options{Dir: dir, LogLevel: "error", Stderr: &bytes.Buffer{}}
}

func TestParseProjects(t *testing.T) {
	assert.Equal(t, []domain.ProjectKey{"a", "b", "c"}, ParseProjects([]string{"a,b", " c ", ","}))
	assert.Nil(t, ParseProjects(nil))
}

func TestCheckStatus(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, CheckStatus(nil, boom), boom)
	assert.NoError(t, CheckStatus(nil, nil))

	status := domain.NewStatus(domain.StatusJobInfo, "", "activate")
	assert.NoError(t, CheckStatus(status, nil))

	status.Add(domain.NewStatus(domain.StatusWarning, "app", "deferred"))
	assert.NoError(t, CheckStatus(status, nil), "warnings do not fail a command")

	status.Add(domain.NewStatus(domain.StatusError, "lib", "start failed"))
	assert.ErrorIs(t, CheckStatus(status, nil), ErrJobFailed)
}

func TestOptionsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Options{LogLevel: "debug", LogFormat: "json", Stderr: &buf}.Logger()
	require.NoError(t, err)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = Options{LogLevel: "loud"}.Logger()
	assert.Error(t, err)
	_, err = Options{LogFormat: "xml"}.Logger()
	assert.Error(t, err)
}

func TestRunJob(t *testing.T) {
	o := newWorkspace(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, RunJob(ctx, o, "sync", JobOptions{}, &out))
	assert.Contains(t, out.String(), "JOBINFO activate")

	out.Reset()
	require.NoError(t, RunJob(ctx, o, "activate", JobOptions{Projects: []domain.ProjectKey{"lib"}, JSON: true}, &out))
	var status domain.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, "activate", status.Message)

	assert.Error(t, RunJob(ctx, o, "explode", JobOptions{}, &out))
	assert.Error(t, RunJob(ctx, o, "remove", JobOptions{}, &out))
	assert.ErrorIs(t, RunJob(ctx, o, "remove", JobOptions{Projects: []domain.ProjectKey{"ghost"}}, &out), domain.ErrNodeNotFound)

	out.Reset()
	err := RunJob(ctx, o, "activate", JobOptions{Projects: []domain.ProjectKey{"a"}}, &out)
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, out.String(), "circular reference between a, b")
}

func TestPrintNodesAndClosure(t *testing.T) {
	o := newWorkspace(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, PrintNodes(ctx, o, false, &out))
	assert.Contains(t, out.String(), "| app |")

	out.Reset()
	require.NoError(t, PrintNodes(ctx, o, true, &out))
	var nodes []domain.NodeSnapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &nodes))
	assert.Len(t, nodes, 4)

	out.Reset()
	require.NoError(t, PrintClosure(ctx, o, ClosureOptions{Seeds: []domain.ProjectKey{"app"}}, &out))
	assert.Contains(t, out.String(), "## activate_project closure (providing)")
	assert.Contains(t, out.String(), "1. lib\n2. app\n")

	err := PrintClosure(ctx, o, ClosureOptions{Seeds: []domain.ProjectKey{"a"}}, &out)
	assert.ErrorIs(t, err, closure.ErrCircularReference)
}

func TestPrintGraph(t *testing.T) {
	o := newWorkspace(t)

	var out bytes.Buffer
	require.NoError(t, PrintGraph(context.Background(), o, ClosureOptions{Seeds: []domain.ProjectKey{"app"}}, &out))
	chart := out.String()
	assert.Contains(t, chart, "graph TD")
	assert.Contains(t, chart, "classDef closure")
	assert.Contains(t, chart, "classDef seed")
}

func TestValidate(t *testing.T) {
	o := newWorkspace(t)

	var out bytes.Buffer
	require.NoError(t, Validate(o.Dir, &out))
	assert.Contains(t, out.String(), "Warning: circular reference")
	assert.Contains(t, out.String(), "Workspace 'demo' is valid (4 projects).")

	assert.ErrorIs(t, Validate(t.TempDir(), &out), manifest.ErrNotFound)
}

func TestServe(t *testing.T) {
	o := newWorkspace(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, o, ServeOptions{Listener: ln, Ready: func(a net.Addr) { ready <- a }})
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/nodes/app", addr))
	require.NoError(t, err)
	var node map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&node))
	resp.Body.Close()
	assert.Equal(t, "ACTIVE", node["state"], "serve activates the workspace first")

	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, manifest.FileName)
	require.NoError(t, os.WriteFile(path, []byte(workspace), 0o644))
	projectDir := filepath.Join(dir, "lib")
	require.NoError(t, os.Mkdir(projectDir, 0o755))

	reloads := make(chan struct{}, 8)
	scheduled := make(chan domain.ProjectKey, 8)
	w := NewWatcher(path,
		func(ctx context.Context) (*domain.Status, error) {
			select {
			case reloads <- struct{}{}:
			default:
			}
			return domain.NewStatus(domain.StatusJobInfo, "", "reload"), nil
		},
		WithDebounce(10*time.Millisecond),
		WithProjectDirs(map[string]domain.ProjectKey{projectDir: "lib"}, func(projects ...domain.ProjectKey) error {
			for _, p := range projects {
				select {
				case scheduled <- p:
				default:
				}
			}
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watcher registers asynchronously, so keep touching files until
	// both changes are seen.
	touch := time.NewTicker(50 * time.Millisecond)
	defer touch.Stop()
	deadline := time.After(5 * time.Second)
	var gotReload, gotSchedule bool
	for !gotReload || !gotSchedule {
		select {
		case <-touch.C:
			_ = os.WriteFile(path, []byte(workspace), 0o644)
			_ = os.WriteFile(filepath.Join(projectDir, "Main.class"), []byte("x"), 0o644)
		case <-reloads:
			gotReload = true
		case p := <-scheduled:
			assert.Equal(t, domain.ProjectKey("lib"), p)
			gotSchedule = true
		case <-deadline:
			t.Fatalf("reload=%v schedule=%v", gotReload, gotSchedule)
		}
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestReportTo(t *testing.T) {
	var out bytes.Buffer
	report := ReportTo(fakePrinter{&out}, &out)

	report(nil, errors.New("bad yaml\n"))
	assert.Contains(t, out.String(), ">>> Reload failed: bad yaml\n")

	out.Reset()
	report(domain.NewStatus(domain.StatusJobInfo, "", "reload"), nil)
	assert.Equal(t, ">>> Manifest reloaded.\nreload\n", out.String())
}

type fakePrinter struct{ buf *bytes.Buffer }

func (p fakePrinter) Status(s *domain.Status) { p.buf.WriteString(s.Message + "\n") }
