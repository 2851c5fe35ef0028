package transition

import (
	"fmt"

	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/registry"
)

// Manager answers transition questions about projects and bundles by
// delegating to their nodes in the registry. It never cascades: every call
// touches the named node only.
type Manager struct {
	registry *registry.Registry
}

// NewManager creates a Manager over reg.
func NewManager(reg *registry.Registry) *Manager {
	return &Manager{registry: reg}
}

func (m *Manager) node(project domain.ProjectKey) (*domain.BundleNode, error) {
	node, ok := m.registry.Node(project)
	if !ok {
		return nil, fmt.Errorf("%w: project %s", domain.ErrNodeNotFound, project)
	}
	return node, nil
}

func (m *Manager) bundleNode(id int64) (*domain.BundleNode, error) {
	node, ok := m.registry.NodeByBundle(id)
	if !ok {
		return nil, fmt.Errorf("%w: bundle %d", domain.ErrNodeNotFound, id)
	}
	return node, nil
}

// Transition returns the current transition of a project, or NoTransition
// when the project is unknown.
func (m *Manager) Transition(project domain.ProjectKey) domain.Transition {
	if node, ok := m.registry.Node(project); ok {
		return node.Transition()
	}
	return domain.NoTransition
}

func (m *Manager) TransitionForBundle(id int64) domain.Transition {
	if node, ok := m.registry.NodeByBundle(id); ok {
		return node.Transition()
	}
	return domain.NoTransition
}

// TransitionName returns the display name of the current transition of a project.
func (m *Manager) TransitionName(project domain.ProjectKey, format, caption bool) string {
	return m.Transition(project).Name(format, caption)
}

// SetTransition clears the transition error of the project and sets t.
// It returns the previous transition.
func (m *Manager) SetTransition(project domain.ProjectKey, t domain.Transition) (domain.Transition, error) {
	node, err := m.node(project)
	if err != nil {
		return domain.NoTransition, err
	}
	node.ClearTransitionError()
	return node.SetTransition(t), nil
}

func (m *Manager) SetBundleTransition(id int64, t domain.Transition) (domain.Transition, error) {
	node, err := m.bundleNode(id)
	if err != nil {
		return domain.NoTransition, err
	}
	node.ClearTransitionError()
	return node.SetTransition(t), nil
}

// InitTransition marks a project as pending removal by setting UNINSTALL.
func (m *Manager) InitTransition(project domain.ProjectKey) error {
	_, err := m.SetTransition(project, domain.Uninstall)
	return err
}

// SetError records e on the project and reports whether an error was already set.
func (m *Manager) SetError(project domain.ProjectKey, e domain.TransitionError) (bool, error) {
	node, err := m.node(project)
	if err != nil {
		return false, err
	}
	return node.SetTransitionError(e), nil
}

func (m *Manager) SetBundleError(id int64, e domain.TransitionError) (bool, error) {
	node, err := m.bundleNode(id)
	if err != nil {
		return false, err
	}
	return node.SetTransitionError(e), nil
}

// Error returns the transition error of a project, NoError if unknown.
func (m *Manager) Error(project domain.ProjectKey) domain.TransitionError {
	if node, ok := m.registry.Node(project); ok {
		return node.TransitionError()
	}
	return domain.NoError
}

func (m *Manager) HasError(project domain.ProjectKey) bool {
	return m.Error(project) != domain.NoError
}

func (m *Manager) HasBundleError(id int64) bool {
	node, ok := m.registry.NodeByBundle(id)
	return ok && node.HasTransitionError()
}

// HasAnyError reports whether some node in the workspace has error e.
func (m *Manager) HasAnyError(e domain.TransitionError) bool {
	for _, node := range m.registry.Nodes() {
		if node.TransitionError() == e {
			return true
		}
	}
	return false
}

// ClearError resets the error of a project and reports whether one was set.
func (m *Manager) ClearError(project domain.ProjectKey) bool {
	node, ok := m.registry.Node(project)
	return ok && node.ClearTransitionError()
}

// RemoveError clears the error of a project only if it equals e.
func (m *Manager) RemoveError(project domain.ProjectKey, e domain.TransitionError) bool {
	node, ok := m.registry.Node(project)
	return ok && node.RemoveTransitionError(e)
}

func (m *Manager) RemoveBundleError(id int64, e domain.TransitionError) bool {
	node, ok := m.registry.NodeByBundle(id)
	return ok && node.RemoveTransitionError(e)
}

// RemoveErrorAll clears e from every node holding it and returns the affected projects.
func (m *Manager) RemoveErrorAll(e domain.TransitionError) []domain.ProjectKey {
	var out []domain.ProjectKey
	for _, node := range m.registry.Nodes() {
		if node.RemoveTransitionError(e) {
			out = append(out, node.Project())
		}
	}
	return out
}

// AddPending queues t on a project and reports whether it was newly added.
func (m *Manager) AddPending(project domain.ProjectKey, t domain.Transition) (bool, error) {
	node, err := m.node(project)
	if err != nil {
		return false, err
	}
	return node.AddPending(t), nil
}

func (m *Manager) AddBundlePending(id int64, t domain.Transition) (bool, error) {
	node, err := m.bundleNode(id)
	if err != nil {
		return false, err
	}
	return node.AddPending(t), nil
}

// RemovePending dequeues t from a project and reports whether it was queued.
func (m *Manager) RemovePending(project domain.ProjectKey, t domain.Transition) bool {
	node, ok := m.registry.Node(project)
	return ok && node.RemovePending(t)
}

func (m *Manager) RemoveBundlePending(id int64, t domain.Transition) bool {
	node, ok := m.registry.NodeByBundle(id)
	return ok && node.RemovePending(t)
}

// RemovePendingAll dequeues t from each project and reports whether any was queued.
func (m *Manager) RemovePendingAll(projects []domain.ProjectKey, t domain.Transition) bool {
	removed := false
	for _, p := range projects {
		if m.RemovePending(p, t) {
			removed = true
		}
	}
	return removed
}

// ContainsPending reports whether t is queued on a project, removing it when remove is set.
func (m *Manager) ContainsPending(project domain.ProjectKey, t domain.Transition, remove bool) bool {
	node, ok := m.registry.Node(project)
	return ok && node.ContainsPending(t, remove)
}

func (m *Manager) ContainsBundlePending(id int64, t domain.Transition, remove bool) bool {
	node, ok := m.registry.NodeByBundle(id)
	return ok && node.ContainsPending(t, remove)
}

// ContainsPendingAny reports whether t is queued on any node of the workspace.
func (m *Manager) ContainsPendingAny(t domain.Transition) bool {
	for _, node := range m.registry.Nodes() {
		if node.ContainsPending(t, false) {
			return true
		}
	}
	return false
}

// PendingProjects returns the projects among the given ones with t queued.
// A nil slice means every registered project.
func (m *Manager) PendingProjects(projects []domain.ProjectKey, t domain.Transition) []domain.ProjectKey {
	if projects == nil {
		projects = m.registry.Projects()
	}
	var out []domain.ProjectKey
	for _, p := range projects {
		if m.ContainsPending(p, t, false) {
			out = append(out, p)
		}
	}
	return out
}

// PendingTransitions returns the queued transitions of a project.
func (m *Manager) PendingTransitions(project domain.ProjectKey) domain.TransitionSet {
	if node, ok := m.registry.Node(project); ok {
		return node.PendingTransitions()
	}
	return 0
}
