package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/inplace/pkg/domain"
)

// ErrAlreadyRegistered is returned when a project already has a node.
var ErrAlreadyRegistered = errors.New("project already registered")

// ErrNotUninstalled is returned when a node is unregistered before its bundle is uninstalled.
var ErrNotUninstalled = errors.New("bundle is not uninstalled")

// ErrBundleInUse is returned when a bundle id is already bound to another project.
var ErrBundleInUse = errors.New("bundle bound to another project")

// Registry is the in-memory workspace model: one BundleNode per project,
// indexed by bundle id once installed.
//
// A single lock guards membership and the indexes. The nodes it hands out
// are not guarded by it; see domain.BundleNode.
type Registry struct {
	mu       sync.RWMutex
	nodes    map[domain.ProjectKey]*domain.BundleNode
	byBundle map[int64]domain.ProjectKey
	order    []domain.ProjectKey
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes:    make(map[domain.ProjectKey]*domain.BundleNode),
		byBundle: make(map[int64]domain.ProjectKey),
	}
}

// Register creates the node of a newly discovered project.
func (r *Registry) Register(project domain.ProjectKey, bundle *domain.Bundle, activation domain.Activation) (*domain.BundleNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[project]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, project)
	}
	if bundle != nil {
		if owner, ok := r.byBundle[bundle.ID]; ok {
			return nil, fmt.Errorf("%w: bundle %d belongs to %s", ErrBundleInUse, bundle.ID, owner)
		}
	}
	node := domain.NewBundleNode(project, bundle, activation)
	r.insert(node)
	return node, nil
}

func (r *Registry) insert(node *domain.BundleNode) {
	r.nodes[node.Project()] = node
	r.order = append(r.order, node.Project())
	if id, ok := node.BundleID(); ok {
		r.byBundle[id] = node.Project()
	}
}

// Node returns the node of a project.
func (r *Registry) Node(project domain.ProjectKey) (*domain.BundleNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[project]
	return node, ok
}

// NodeByBundle returns the node owning a bundle.
func (r *Registry) NodeByBundle(id int64) (*domain.BundleNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	project, ok := r.byBundle[id]
	if !ok {
		return nil, false
	}
	return r.nodes[project], true
}

// Project returns the project owning a bundle.
func (r *Registry) Project(id int64) (domain.ProjectKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	project, ok := r.byBundle[id]
	return project, ok
}

func (r *Registry) Contains(project domain.ProjectKey) bool {
	_, ok := r.Node(project)
	return ok
}

// SetBundle binds a bundle to a project, replacing any previous binding.
// A nil bundle removes the binding.
func (r *Registry) SetBundle(project domain.ProjectKey, bundle *domain.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[project]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, project)
	}
	if bundle != nil {
		if owner, ok := r.byBundle[bundle.ID]; ok && owner != project {
			return fmt.Errorf("%w: bundle %d belongs to %s", ErrBundleInUse, bundle.ID, owner)
		}
	}
	if id, ok := node.BundleID(); ok {
		delete(r.byBundle, id)
	}
	node.SetBundle(bundle)
	if bundle != nil {
		r.byBundle[bundle.ID] = project
	}
	return nil
}

// Unregister removes the node of a project. A project with an installed
// bundle must be uninstalled first.
func (r *Registry) Unregister(project domain.ProjectKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[project]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, project)
	}
	if node.IsStateChanging() || !(node.IsState(domain.Uninstalled) || node.IsState(domain.StateLess)) {
		return fmt.Errorf("%w: %s is %s", ErrNotUninstalled, project, node.State())
	}
	delete(r.nodes, project)
	if id, ok := node.BundleID(); ok {
		delete(r.byBundle, id)
	}
	for i, p := range r.order {
		if p == project {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Projects returns the registered projects in registration order.
func (r *Registry) Projects() []domain.ProjectKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProjectKey, len(r.order))
	copy(out, r.order)
	return out
}

// Nodes returns the registered nodes in registration order.
func (r *Registry) Nodes() []*domain.BundleNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.BundleNode, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.nodes[p])
	}
	return out
}

// ActivatedProjects returns the activated projects in registration order.
func (r *Registry) ActivatedProjects() []domain.ProjectKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ProjectKey
	for _, p := range r.order {
		if r.nodes[p].IsActivated() {
			out = append(out, p)
		}
	}
	return out
}

// IsActivated reports whether a project is registered and activated.
func (r *Registry) IsActivated(project domain.ProjectKey) bool {
	node, ok := r.Node(project)
	return ok && node.IsActivated()
}

// Bundles returns the bundle ids of the given projects, skipping projects without a bundle.
func (r *Registry) Bundles(projects []domain.ProjectKey) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int64
	for _, p := range projects {
		if node, ok := r.nodes[p]; ok {
			if id, ok := node.BundleID(); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

// ProjectsOf maps bundle ids back to their projects, skipping unknown ids.
func (r *Registry) ProjectsOf(ids []int64) []domain.ProjectKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ProjectKey
	for _, id := range ids {
		if p, ok := r.byBundle[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Duplicates groups the given projects that share a bundle symbolic key.
// Each group keeps the input order; projects without a bundle are ignored.
func (r *Registry) Duplicates(projects []domain.ProjectKey) [][]domain.ProjectKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make(map[string][]domain.ProjectKey)
	var keys []string
	for _, p := range projects {
		node, ok := r.nodes[p]
		if !ok || node.Bundle() == nil {
			continue
		}
		key := node.Bundle().SymbolicKey()
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], p)
	}

	var out [][]domain.ProjectKey
	for _, k := range keys {
		if len(groups[k]) > 1 {
			out = append(out, groups[k])
		}
	}
	return out
}

// Snapshots copies every node in registration order.
func (r *Registry) Snapshots() []domain.NodeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NodeSnapshot, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.nodes[p].Snapshot())
	}
	return out
}

// Restore adds nodes rebuilt from snapshots. Projects already registered are skipped
// and reported in the returned slice.
func (r *Registry) Restore(snapshots []domain.NodeSnapshot) []domain.ProjectKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	var skipped []domain.ProjectKey
	for _, s := range snapshots {
		if _, ok := r.nodes[s.Project]; ok {
			skipped = append(skipped, s.Project)
			continue
		}
		if s.Bundle != nil {
			if _, ok := r.byBundle[s.Bundle.ID]; ok {
				skipped = append(skipped, s.Project)
				continue
			}
		}
		r.insert(domain.RestoreNode(s))
	}
	return skipped
}
