package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/inplace/internal/manifest"
	"github.com/aretw0/inplace/internal/presentation/graph"
	"github.com/aretw0/inplace/internal/presentation/tui"
	"github.com/aretw0/inplace/pkg/closure"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
)

// Jobs lists the job names accepted by RunJob.
var Jobs = []string{"activate", "deactivate", "update", "refresh", "uninstall", "remove", "reconcile", "sync"}

// JobOptions select the projects of a job.
type JobOptions struct {
	Projects   []domain.ProjectKey
	Unregister bool
	JSON       bool
}

// RunJob opens the workspace, runs one job and prints its status.
func RunJob(ctx context.Context, o Options, job string, jo JobOptions, out io.Writer) error {
	ws, err := OpenWorkspace(ctx, o)
	if err != nil {
		return err
	}
	defer ws.Close()

	runner := ws.Runner()
	var status *domain.Status
	switch job {
	case "activate":
		status, err = runner.Activate(ctx, jo.Projects)
	case "deactivate":
		status, err = runner.Deactivate(ctx, jo.Projects)
	case "update":
		status, err = runner.Update(ctx, jo.Projects)
	case "refresh":
		status, err = runner.Refresh(ctx, jo.Projects)
	case "uninstall":
		status, err = runner.Uninstall(ctx, jo.Projects, jo.Unregister)
	case "remove":
		if len(jo.Projects) != 1 {
			return errors.New("remove takes exactly one project")
		}
		status, err = runner.RemoveProject(ctx, jo.Projects[0])
	case "reconcile":
		status, err = runner.Reconcile(ctx)
	case "sync":
		status, err = ws.Sync(ctx)
	default:
		return fmt.Errorf("unknown job %q", job)
	}

	if status != nil {
		if jo.JSON {
			if encErr := writeJSON(out, status); encErr != nil {
				return encErr
			}
		} else {
			tui.NewPrinter(out).Status(status)
		}
	}
	return CheckStatus(status, err)
}

// PrintNodes writes the node table of the workspace.
func PrintNodes(ctx context.Context, o Options, asJSON bool, out io.Writer) error {
	ws, err := OpenWorkspace(ctx, o)
	if err != nil {
		return err
	}
	defer ws.Close()

	if asJSON {
		return writeJSON(out, ws.Runner().Snapshots())
	}
	return ws.Runner().View(func(reg *registry.Registry) error {
		return tui.NewPrinter(out).Nodes(reg.Nodes())
	})
}

// ClosureOptions select a closure.
type ClosureOptions struct {
	Operation   closure.Operation
	Seeds       []domain.ProjectKey
	AllowCycles bool
}

func (co ClosureOptions) operation() closure.Operation {
	if co.Operation == "" {
		return closure.ActivateProject
	}
	return co.Operation
}

// PrintClosure writes the ordered closure of the seeds.
func PrintClosure(ctx context.Context, o Options, co ClosureOptions, out io.Writer) error {
	ws, err := OpenWorkspace(ctx, o)
	if err != nil {
		return err
	}
	defer ws.Close()

	op := co.operation()
	order, err := ws.Runner().Closure(op, co.Seeds, co.AllowCycles)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s closure (%s)", op, ws.Runner().Closures().Options().Scope(op))
	return tui.NewPrinter(out).Markdown(tui.ProjectList(title, order))
}

// PrintGraph writes the Mermaid graph of the workspace. With seeds the
// closure of the operation is highlighted.
func PrintGraph(ctx context.Context, o Options, co ClosureOptions, out io.Writer) error {
	ws, err := OpenWorkspace(ctx, o)
	if err != nil {
		return err
	}
	defer ws.Close()

	var overlay *graph.Overlay
	if len(co.Seeds) > 0 {
		order, err := ws.Runner().Closure(co.operation(), co.Seeds, true)
		if err != nil {
			return err
		}
		overlay = &graph.Overlay{Closure: order, Seeds: co.Seeds}
	}
	var chart string
	err = ws.Runner().View(func(reg *registry.Registry) error {
		var err error
		chart, err = graph.GenerateMermaid(reg.Nodes(), ws.Dependencies(), overlay)
		return err
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, chart)
	return err
}

// Validate loads the manifest and reports requirement cycles. Cycles are
// legal but every activation touching them needs allow_cycles.
func Validate(dirOrFile string, out io.Writer) error {
	m, err := manifest.Load(dirOrFile)
	if err != nil {
		return err
	}
	deps := m.Dependencies()
	_, err = closure.NewSorter[domain.ProjectKey](deps.RequiredBy, nil).Sort(m.Keys(), false)
	var cycle *closure.CycleError[domain.ProjectKey]
	switch {
	case errors.As(err, &cycle):
		printSystemMessage(out, "Warning: %s", cycle.Error())
	case err != nil:
		return err
	}
	printSystemMessage(out, "Workspace '%s' is valid (%d projects).", m.Name, len(m.Projects))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
