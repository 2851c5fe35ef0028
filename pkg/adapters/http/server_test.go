package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/pkg/adapters/memory"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/jobs"
	"github.com/aretw0/inplace/pkg/observability"
	"github.com/aretw0/inplace/pkg/registry"
)

type fixture struct {
	runner  *jobs.Runner
	deps    *memory.Dependencies
	streams *StreamManager
	handler http.Handler
	prom    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	deps := memory.NewDependencies()
	deps.Set("app", "lib")
	deps.Set("lib")
	deps.Set("a", "b")
	deps.Set("b", "a")

	reg := registry.NewRegistry()
	for _, p := range deps.Projects() {
		_, err := reg.Register(p, nil, domain.Deactivated)
		require.NoError(t, err)
	}

	prom := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(prom)
	require.NoError(t, err)

	journal := memory.NewJournal()
	streams := NewStreamManager(nil)
	runner := jobs.NewRunner(reg, deps, memory.NewFramework(deps),
		jobs.WithStatusHandler(streams),
		jobs.WithLifecycleHooks(observability.JournalHooks(journal, slog.Default())),
		jobs.WithLifecycleHooks(metrics.Hooks()),
	)
	return &fixture{
		runner:  runner,
		deps:    deps,
		streams: streams,
		prom:    prom,
		handler: NewHandler(runner,
			WithJournal(journal),
			WithStreams(streams),
			WithMetrics(prom),
			WithVersion("1.2.3\n"),
		),
	}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	info := decode[map[string]any](t, f.do(t, "GET", "/info", nil))
	assert.Equal(t, "1.2.3", info["version"])
	assert.EqualValues(t, 4, info["projects"])
}

func TestActivateJobAndNodes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/jobs/activate", JobRequest{Projects: []domain.ProjectKey{"app"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode[map[string]any](t, w)
	assert.Equal(t, "JOBINFO", status["code"])
	assert.Equal(t, "activate", status["message"])

	nodes := decode[[]map[string]any](t, f.do(t, "GET", "/nodes", nil))
	assert.Len(t, nodes, 4)

	app := decode[map[string]any](t, f.do(t, "GET", "/nodes/app", nil))
	assert.Equal(t, "ACTIVE", app["state"])
	assert.Equal(t, "activated", app["activation"])

	history := decode[[]map[string]any](t, f.do(t, "GET", "/nodes/app/history?limit=2", nil))
	assert.Len(t, history, 2)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/nodes/ghost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/nodes/app/history?limit=-1", nil).Code)

	metrics := f.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `inplace_jobs_total{code="JOBINFO",job="activate"} 1`)
}

// Reads must not observe nodes while a job is changing them; run with -race.
func TestReadsDuringJobs(t *testing.T) {
	f := newFixture(t)
	body, err := json.Marshal(JobRequest{Projects: []domain.ProjectKey{"app"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	codes := make(chan int, 40)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			for _, job := range []string{"activate", "deactivate"} {
				req := httptest.NewRequest("POST", "/jobs/"+job, bytes.NewReader(body))
				w := httptest.NewRecorder()
				f.handler.ServeHTTP(w, req)
				codes <- w.Code
			}
		}
	}()

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, f.do(t, "GET", "/nodes", nil).Code)
		assert.Equal(t, http.StatusOK, f.do(t, "GET", "/nodes/app", nil).Code)
		assert.Equal(t, http.StatusOK, f.do(t, "GET", "/closure?projects=app&op=deactivate_project", nil).Code)
		assert.Equal(t, http.StatusOK, f.do(t, "GET", "/nodes/app/providers/deactivated", nil).Code)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	app := decode[map[string]any](t, f.do(t, "GET", "/nodes/app", nil))
	assert.Equal(t, "deactivated", app["activation"])
}

func TestRunJob_Errors(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/jobs/explode", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/jobs/remove", JobRequest{}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/jobs/remove", JobRequest{Projects: []domain.ProjectKey{"ghost"}}).Code)

	req := httptest.NewRequest("POST", "/jobs/activate", strings.NewReader("{"))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/jobs/reconcile", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestClosure(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/closure?projects=app", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ClosureResponse](t, w)
	assert.Equal(t, []domain.ProjectKey{"lib", "app"}, resp.Order)
	assert.Equal(t, "providing", resp.Scope.String())

	w = f.do(t, "GET", "/closure?projects=a", nil)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	cycle := decode[CycleResponse](t, w)
	assert.ElementsMatch(t, []domain.ProjectKey{"a", "b"}, cycle.Members)

	w = f.do(t, "GET", "/closure?projects=a&allow_cycles=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/closure", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/closure?projects=a&op=explode", nil).Code)
}

func TestPendingAndDeactivatedProviders(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.runner.AddPending(domain.Update, "lib"))

	pending := decode[[]domain.ProjectKey](t, f.do(t, "GET", "/pending/update", nil))
	assert.Equal(t, []domain.ProjectKey{"lib"}, pending)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/pending/explode", nil).Code)

	providers := decode[[]domain.ProjectKey](t, f.do(t, "GET", "/nodes/app/providers/deactivated", nil))
	assert.Equal(t, []domain.ProjectKey{"lib"}, providers)
}

func TestSubscribeEvents(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func() string {
		select {
		case l := <-lines:
			return l
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for an event")
			return ""
		}
	}
	assert.Equal(t, "event: ping", next())

	_, err = f.runner.Activate(context.Background(), []domain.ProjectKey{"app"})
	require.NoError(t, err)

	for {
		if next() == "event: job" {
			break
		}
	}
	data := next()
	assert.True(t, strings.HasPrefix(data, "data: "), data)
	assert.Contains(t, data, `"message":"activate"`)
}

func TestStreamManager_Topics(t *testing.T) {
	sm := NewStreamManager(nil)
	all, cancelAll := sm.Subscribe(AllJobs)
	defer cancelAll()
	lib, cancelLib := sm.Subscribe("lib")
	defer cancelLib()
	app, cancelApp := sm.Subscribe("app")

	status := domain.NewStatus(domain.StatusJobInfo, "", "activate")
	status.Add(domain.NewStatus(domain.StatusWarning, "app", "deferred: provider lib is not ready"))
	sm.Handle(context.Background(), status)

	assert.Contains(t, <-all, `"message":"activate"`)
	assert.Contains(t, <-app, `"project":"app"`)
	assert.Empty(t, lib, "lib is not mentioned by the status")

	cancelApp()
	cancelApp()
	_, open := <-app
	assert.False(t, open)
}

