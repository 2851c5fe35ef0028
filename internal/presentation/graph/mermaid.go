package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
)

// Overlay highlights part of the workspace, typically a computed closure.
type Overlay struct {
	// Closure members, in order. Their position is added to the label.
	Closure []domain.ProjectKey
	// Seeds are the projects the closure was computed from.
	Seeds []domain.ProjectKey
}

// GenerateMermaid produces a Mermaid flowchart of the workspace. Edges point
// from a requiring project to its provider. Node shapes follow the bundle
// state:
// - Active: ((Circle))
// - Resolved or Starting: [[Subroutine]]
// - Installed: [/Parallelogram/]
// - Uninstalled or no bundle: [Rectangle]
// Activated projects use solid edges, deactivated ones dotted edges.
// Nodes in error are styled in red; the overlay, if any, on top.
func GenerateMermaid(nodes []*domain.BundleNode, deps ports.DependencyReader, overlay *Overlay) (string, error) {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	position := make(map[domain.ProjectKey]int)
	if overlay != nil {
		for i, p := range overlay.Closure {
			position[p] = i + 1
		}
	}

	var errored []string
	for _, node := range nodes {
		safeID := sanitizeMermaidID(string(node.Project()))

		opener, closer := "[", "]"
		switch node.State() {
		case domain.Active:
			opener, closer = "((", "))"
		case domain.Resolved, domain.Starting:
			opener, closer = "[[", "]]"
		case domain.Installed:
			opener, closer = "[/", "/]"
		}

		label := fmt.Sprintf("%s <br/> %s", node.Project(), node.State())
		if b := node.Bundle(); b != nil {
			label = fmt.Sprintf("%s <br/> %s %s", node.Project(), b.SymbolicKey(), node.State())
		}
		if node.HasTransitionError() {
			label += fmt.Sprintf(" <br/> ⚠️ %s", node.TransitionError())
			errored = append(errored, safeID)
		}
		if pos, ok := position[node.Project()]; ok {
			label = fmt.Sprintf("%d. %s", pos, label)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer))

		providers, err := deps.RequiredBy(node.Project())
		if err != nil {
			return "", fmt.Errorf("reading providers of %s: %w", node.Project(), err)
		}
		arrow := "-->"
		if !node.IsActivated() {
			arrow = "-.->"
		}
		for _, p := range providers {
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(string(p))))
		}
	}

	if len(errored) > 0 {
		sb.WriteString("\n    %% Error Styles\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")
		for _, id := range errored {
			sb.WriteString(fmt.Sprintf("    class %s failed;\n", id))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on light fills in both themes.
		sb.WriteString("    classDef closure fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef seed fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seeds := make(map[string]bool)
		for _, p := range overlay.Seeds {
			seeds[sanitizeMermaidID(string(p))] = true
		}
		styled := make(map[string]bool)
		for _, p := range overlay.Closure {
			safeID := sanitizeMermaidID(string(p))
			if styled[safeID] || seeds[safeID] {
				continue
			}
			styled[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s closure;\n", safeID))
		}
		for _, p := range overlay.Seeds {
			sb.WriteString(fmt.Sprintf("    class %s seed;\n", sanitizeMermaidID(string(p))))
		}
	}

	return sb.String(), nil
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
