package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/aretw0/inplace/pkg/registry"
)

// Runner is the part of jobs.Runner the API drives.
type Runner interface {
	Activate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Deactivate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Update(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Refresh(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Uninstall(ctx context.Context, projects []domain.ProjectKey, unregister bool) (*domain.Status, error)
	RemoveProject(ctx context.Context, project domain.ProjectKey) (*domain.Status, error)
	Reconcile(ctx context.Context) (*domain.Status, error)
	DeactivatedProviders(project domain.ProjectKey) ([]domain.ProjectKey, error)

	Snapshots() []domain.NodeSnapshot
	Snapshot(project domain.ProjectKey) (domain.NodeSnapshot, bool)
	Closure(op closure.Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error)
	PendingProjects(t domain.Transition) []domain.ProjectKey

	Registry() *registry.Registry
	Closures() *closure.Closures
}

// Server serves the inspection and job API of a workspace.
type Server struct {
	Runner  Runner
	Journal ports.Journal
	Streams *StreamManager
	Version string

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithJournal exposes the transition history of each node.
func WithJournal(j ports.Journal) Option {
	return func(s *Server) {
		s.Journal = j
	}
}

// WithStreams publishes job statuses on GET /events. The same StreamManager
// must be registered as a status handler of the runner.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics serves the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// NewHandler creates the HTTP handler for the runner.
func NewHandler(runner Runner, opts ...Option) http.Handler {
	s := &Server{Runner: runner, logger: logging.NewNop(), Version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.ListNodes)
		r.Route("/{project}", func(r chi.Router) {
			r.Get("/", s.GetNode)
			r.Get("/history", s.GetHistory)
			r.Get("/providers/deactivated", s.GetDeactivatedProviders)
		})
	})
	r.Get("/closure", s.GetClosure)
	r.Get("/pending/{transition}", s.GetPending)
	r.Post("/jobs/{job}", s.RunJob)

	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClosureResponse is the ordered result of GET /closure.
type ClosureResponse struct {
	Operation   closure.Operation   `json:"operation"`
	Scope       closure.Scope       `json:"scope"`
	Seeds       []domain.ProjectKey `json:"seeds"`
	Order       []domain.ProjectKey `json:"order"`
	AllowCycles bool                `json:"allow_cycles"`
}

// CycleResponse is returned with 409 when a closure meets a cycle.
type CycleResponse struct {
	Error   string              `json:"error"`
	Members []domain.ProjectKey `json:"members"`
}

// JobRequest is the body of POST /jobs/{job}.
type JobRequest struct {
	Projects   []domain.ProjectKey `json:"projects"`
	Unregister bool                `json:"unregister,omitempty"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":      "inplace-http",
		"version":  strings.TrimSpace(s.Version),
		"projects": s.Runner.Registry().Len(),
	})
}

// ListNodes handles the GET /nodes request.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Runner.Snapshots())
}

// GetNode handles the GET /nodes/{project} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	n, ok := s.node(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

// GetHistory handles the GET /nodes/{project}/history request.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "no journal configured", http.StatusNotImplemented)
		return
	}
	project := domain.ProjectKey(chi.URLParam(r, "project"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := s.Journal.History(r.Context(), project, limit)
	if err != nil {
		s.fail(w, "History failed", err)
		return
	}
	if events == nil {
		events = []domain.TransitionEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// GetDeactivatedProviders handles GET /nodes/{project}/providers/deactivated.
func (s *Server) GetDeactivatedProviders(w http.ResponseWriter, r *http.Request) {
	n, ok := s.node(w, r)
	if !ok {
		return
	}
	providers, err := s.Runner.DeactivatedProviders(n.Project)
	if err != nil {
		s.fail(w, "DeactivatedProviders failed", err)
		return
	}
	if providers == nil {
		providers = []domain.ProjectKey{}
	}
	s.writeJSON(w, http.StatusOK, providers)
}

// GetClosure handles GET /closure?op=activate_project&projects=a,b&allow_cycles=true.
func (s *Server) GetClosure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := closure.Operation(q.Get("op"))
	if op == "" {
		op = closure.ActivateProject
	}
	seeds := splitProjects(q.Get("projects"))
	if len(seeds) == 0 {
		http.Error(w, "projects is required", http.StatusBadRequest)
		return
	}
	allowCycles := q.Get("allow_cycles") == "true"

	order, err := s.Runner.Closure(op, seeds, allowCycles)
	if errors.Is(err, closure.ErrUnknownOperation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var cycle *closure.CycleError[domain.ProjectKey]
	if errors.As(err, &cycle) {
		s.writeJSON(w, http.StatusConflict, CycleResponse{Error: cycle.Error(), Members: cycle.Members})
		return
	}
	if err != nil {
		s.fail(w, "Closure failed", err)
		return
	}
	if order == nil {
		order = []domain.ProjectKey{}
	}
	s.writeJSON(w, http.StatusOK, ClosureResponse{
		Operation:   op,
		Scope:       s.Runner.Closures().Options().Scope(op),
		Seeds:       seeds,
		Order:       order,
		AllowCycles: allowCycles,
	})
}

// GetPending handles the GET /pending/{transition} request.
func (s *Server) GetPending(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseTransition(chi.URLParam(r, "transition"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	projects := s.Runner.PendingProjects(t)
	if projects == nil {
		projects = []domain.ProjectKey{}
	}
	s.writeJSON(w, http.StatusOK, projects)
}

// RunJob handles the POST /jobs/{job} request and answers with the job
// status. A job that ran but reported problems still answers 200; an
// aborted job answers 500 with its partial status.
func (s *Server) RunJob(w http.ResponseWriter, r *http.Request) {
	var body JobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("RunJob: Invalid request body", "err", err)
			return
		}
	}

	ctx := r.Context()
	name := chi.URLParam(r, "job")
	var (
		status *domain.Status
		err    error
	)
	switch name {
	case "activate":
		status, err = s.Runner.Activate(ctx, body.Projects)
	case "deactivate":
		status, err = s.Runner.Deactivate(ctx, body.Projects)
	case "update":
		status, err = s.Runner.Update(ctx, body.Projects)
	case "refresh":
		status, err = s.Runner.Refresh(ctx, body.Projects)
	case "uninstall":
		status, err = s.Runner.Uninstall(ctx, body.Projects, body.Unregister)
	case "remove":
		if len(body.Projects) != 1 {
			http.Error(w, "remove takes exactly one project", http.StatusBadRequest)
			return
		}
		status, err = s.Runner.RemoveProject(ctx, body.Projects[0])
	case "reconcile":
		status, err = s.Runner.Reconcile(ctx)
	default:
		http.Error(w, fmt.Sprintf("unknown job %q", name), http.StatusNotFound)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNodeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case status == nil && err != nil:
		s.fail(w, "Job failed", err)
	case err != nil:
		s.logger.Error("Job aborted", "job", name, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, status)
	default:
		s.writeJSON(w, http.StatusOK, status)
	}
}

// SubscribeEvents handles the GET /events request (SSE). Every finished job
// is sent as a JSON status. ?project= keeps only the statuses mentioning it.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := AllJobs
	if p := r.URL.Query().Get("project"); p != "" {
		topic = p
	}
	ch, cancel := s.Streams.Subscribe(topic)
	defer cancel()
	s.logger.Info("SSE: Subscribing to job statuses", "topic", topic)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: job\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) node(w http.ResponseWriter, r *http.Request) (domain.NodeSnapshot, bool) {
	project := domain.ProjectKey(chi.URLParam(r, "project"))
	n, ok := s.Runner.Snapshot(project)
	if !ok {
		http.Error(w, fmt.Sprintf("%s: %s", domain.ErrNodeNotFound, project), http.StatusNotFound)
		return n, false
	}
	return n, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
	s.logger.Error(msg, "err", err)
}

func splitProjects(raw string) []domain.ProjectKey {
	var out []domain.ProjectKey
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, domain.ProjectKey(p))
		}
	}
	return out
}
