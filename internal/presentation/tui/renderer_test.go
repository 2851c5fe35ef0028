package tui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/inplace/pkg/domain"
)

func TestNodesTable(t *testing.T) {
	installed := domain.NewBundleNode("lib", &domain.Bundle{ID: 7, SymbolicName: "org.lib", Version: "2.0.0"}, domain.Activated)
	require.NoError(t, installed.Apply(domain.Install))
	installed.Commit()
	installed.AddPending(domain.Update)
	installed.SetTransitionError(domain.Error)

	table := NodesTable([]*domain.BundleNode{
		domain.NewBundleNode("app", nil, domain.Deactivated),
		installed,
	})

	assert.Contains(t, table, "| app | - | deactivated | STATELESS | NOTRANSITION | - | - |")
	assert.Contains(t, table, "| lib | org.lib_2.0.0 (#7) | activated | INSTALLED | INSTALL | ERROR | UPDATE |")
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	require.NoError(t, p.Markdown(ProjectList("Closure", []domain.ProjectKey{"core", "app"})))
	assert.Equal(t, "## Closure\n\n1. core\n2. app\n", buf.String(), "non terminals get raw markdown")

	buf.Reset()
	root := domain.NewStatus(domain.StatusJobInfo, "", "activate")
	root.Add(domain.NewStatus(domain.StatusError, "app", "start failed").WithErr(errors.New("boom")))
	p.Status(root)
	assert.Equal(t, "JOBINFO activate\n  ERROR [app] start failed: boom\n", buf.String())
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
