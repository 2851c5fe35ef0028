package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/internal/presentation/graph"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/aretw0/inplace/pkg/registry"
)

const (
	nodesURI = "inplace://nodes"
	graphURI = "inplace://graph"
)

// Runner is the part of jobs.Runner exposed as tools.
type Runner interface {
	Activate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Deactivate(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Update(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Refresh(ctx context.Context, projects []domain.ProjectKey) (*domain.Status, error)
	Uninstall(ctx context.Context, projects []domain.ProjectKey, unregister bool) (*domain.Status, error)
	RemoveProject(ctx context.Context, project domain.ProjectKey) (*domain.Status, error)

	Snapshots() []domain.NodeSnapshot
	Snapshot(project domain.ProjectKey) (domain.NodeSnapshot, bool)
	Closure(op closure.Operation, seeds []domain.ProjectKey, allowCycles bool) ([]domain.ProjectKey, error)
	View(fn func(reg *registry.Registry) error) error
}

// JobArgs are the arguments of the run_job tool.
type JobArgs struct {
	Job        string `json:"job"`
	Projects   string `json:"projects"`
	Unregister bool   `json:"unregister"`
}

// JobResponse is the structured result of run_job. The status tree is
// flattened depth first so the output schema stays finite.
type JobResponse struct {
	Job    string       `json:"job" jsonschema_description:"Name of the job"`
	Status []StatusLine `json:"status" jsonschema_description:"Status tree of the job, depth first"`
	OK     bool         `json:"ok" jsonschema_description:"True when no warning or error was reported"`
	Error  string       `json:"error,omitempty" jsonschema_description:"Set when the job aborted"`
}

// StatusLine is one entry of a flattened status tree.
type StatusLine struct {
	Depth    int    `json:"depth" jsonschema_description:"Nesting level, 0 for the job itself"`
	Code     string `json:"code" jsonschema_description:"OK, INFO, WARNING, ERROR, ..."`
	Project  string `json:"project,omitempty"`
	BundleID int64  `json:"bundle_id,omitempty"`
	Message  string `json:"message"`
	Cause    string `json:"cause,omitempty"`
}

func statusLines(status *domain.Status) []StatusLine {
	lines := []StatusLine{}
	if status == nil {
		return lines
	}
	status.Walk(func(depth int, st *domain.Status) {
		lines = append(lines, StatusLine{
			Depth:    depth,
			Code:     st.Code.String(),
			Project:  string(st.Project),
			BundleID: st.BundleID,
			Message:  st.Message,
			Cause:    st.Cause,
		})
	})
	return lines
}

// Server exposes a workspace runner as an MCP server.
type Server struct {
	runner    Runner
	deps      ports.DependencyReader
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(runner Runner, deps ports.DependencyReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		runner:    runner,
		deps:      deps,
		mcpServer: server.NewMCPServer("inplace-mcp", strings.TrimSpace(version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List every project of the workspace with its bundle state, pending transitions and error."),
	), s.handleListNodes)

	s.mcpServer.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Get the bundle node of one project."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
	), s.handleGetNode)

	s.mcpServer.AddTool(mcp.NewTool("closure",
		mcp.WithDescription("Compute the ordered closure an activation or deactivation of the given projects would touch."),
		mcp.WithString("projects", mcp.Required(), mcp.Description("Comma separated project keys")),
		mcp.WithString("op",
			mcp.Description("Closure operation"),
			mcp.Enum(string(closure.ActivateProject), string(closure.ActivateBundle), string(closure.DeactivateProject), string(closure.DeactivateBundle)),
		),
		mcp.WithBoolean("allow_cycles", mcp.Description("Order the closure even when projects depend on each other")),
	), s.handleClosure)

	s.mcpServer.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run a lifecycle job over projects and return its status tree."),
		mcp.WithString("job", mcp.Required(),
			mcp.Description("Job to run"),
			mcp.Enum("activate", "deactivate", "update", "refresh", "uninstall", "remove"),
		),
		mcp.WithString("projects", mcp.Description("Comma separated project keys. Update and refresh use the pending projects when empty.")),
		mcp.WithBoolean("unregister", mcp.Description("Uninstall only: also forget the projects")),
		mcp.WithOutputSchema[JobResponse](),
	), mcp.NewStructuredToolHandler(s.handleRunJob))
}

func (s *Server) handleListNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.runner.Snapshots())
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, ok := s.runner.Snapshot(domain.ProjectKey(project))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", domain.ErrNodeNotFound, project)), nil
	}
	return jsonResult(n)
}

func (s *Server) handleClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("projects")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seeds := splitProjects(raw)
	op := closure.Operation(request.GetString("op", string(closure.ActivateProject)))
	allowCycles := request.GetBool("allow_cycles", false)

	order, err := s.runner.Closure(op, seeds, allowCycles)
	if errors.Is(err, closure.ErrUnknownOperation) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var cycle *closure.CycleError[domain.ProjectKey]
	if errors.As(err, &cycle) {
		return mcp.NewToolResultError(cycle.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("closure failed: %w", err)
	}
	if order == nil {
		order = []domain.ProjectKey{}
	}
	return jsonResult(order)
}

func (s *Server) handleRunJob(ctx context.Context, request mcp.CallToolRequest, args JobArgs) (JobResponse, error) {
	projects := splitProjects(args.Projects)

	var (
		status *domain.Status
		err    error
	)
	switch args.Job {
	case "activate":
		status, err = s.runner.Activate(ctx, projects)
	case "deactivate":
		status, err = s.runner.Deactivate(ctx, projects)
	case "update":
		status, err = s.runner.Update(ctx, projects)
	case "refresh":
		status, err = s.runner.Refresh(ctx, projects)
	case "uninstall":
		status, err = s.runner.Uninstall(ctx, projects, args.Unregister)
	case "remove":
		if len(projects) != 1 {
			return JobResponse{}, errors.New("remove takes exactly one project")
		}
		status, err = s.runner.RemoveProject(ctx, projects[0])
	default:
		return JobResponse{}, fmt.Errorf("unknown job %q", args.Job)
	}
	if status == nil && err != nil {
		return JobResponse{}, fmt.Errorf("%s failed: %w", args.Job, err)
	}

	resp := JobResponse{Job: args.Job, Status: statusLines(status), OK: status.IsOK() && err == nil}
	if err != nil {
		s.logger.Error("MCP job aborted", "job", args.Job, "err", err)
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(nodesURI, "Workspace Nodes",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.runner.Snapshots())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: nodesURI, MIMEType: "application/json", Text: string(jsonBytes)},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Workspace Dependency Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var chart string
		err := s.runner.View(func(reg *registry.Registry) error {
			var err error
			chart, err = graph.GenerateMermaid(reg.Nodes(), s.deps, nil)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: graphURI, MIMEType: "text/vnd.mermaid", Text: chart},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
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
