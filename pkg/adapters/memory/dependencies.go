package memory

import (
	"slices"
	"sync"

	"github.com/aretw0/inplace/pkg/domain"
)

// Dependencies implements ports.DependencyReader over an in-memory table of
// declared requirements. Safe for concurrent use.
type Dependencies struct {
	mu       sync.RWMutex
	requires map[domain.ProjectKey][]domain.ProjectKey
	order    []domain.ProjectKey
}

func NewDependencies() *Dependencies {
	return &Dependencies{requires: make(map[domain.ProjectKey][]domain.ProjectKey)}
}

// Set declares the providers of project, replacing earlier declarations.
func (d *Dependencies) Set(project domain.ProjectKey, providers ...domain.ProjectKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.requires[project]; !ok {
		d.order = append(d.order, project)
	}
	d.requires[project] = slices.Clone(providers)
}

// Remove forgets the declarations of project. Other projects keep requiring it.
func (d *Dependencies) Remove(project domain.ProjectKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.requires[project]; !ok {
		return
	}
	delete(d.requires, project)
	d.order = slices.DeleteFunc(d.order, func(p domain.ProjectKey) bool { return p == project })
}

// Projects returns the declared projects in declaration order.
func (d *Dependencies) Projects() []domain.ProjectKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.order)
}

func (d *Dependencies) RequiredBy(project domain.ProjectKey) ([]domain.ProjectKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.requires[project]), nil
}

// ProvidesTo scans the declarations in order, so requirers come back in the
// order they were declared.
func (d *Dependencies) ProvidesTo(project domain.ProjectKey) ([]domain.ProjectKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.ProjectKey
	for _, p := range d.order {
		if slices.Contains(d.requires[p], project) {
			out = append(out, p)
		}
	}
	return out, nil
}
