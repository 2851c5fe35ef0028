package closure

import (
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/aretw0/inplace/pkg/registry"
)

// ProjectSorter orders workspace projects by their declared dependencies.
// Only registered projects take part in a closure.
type ProjectSorter struct {
	reader   ports.DependencyReader
	registry *registry.Registry
}

func NewProjectSorter(reader ports.DependencyReader, reg *registry.Registry) *ProjectSorter {
	return &ProjectSorter{reader: reader, registry: reg}
}

// Sort returns the closure of seeds in the given direction. With
// activatedOnly, projects that are not activated are left out of the
// expansion.
func (ps *ProjectSorter) Sort(dir Direction, seeds []domain.ProjectKey, activatedOnly, allowCycles bool) ([]domain.ProjectKey, error) {
	edges := ps.reader.RequiredBy
	if dir == Requiring {
		edges = ps.reader.ProvidesTo
	}
	inDomain := ps.registry.Contains
	if activatedOnly {
		inDomain = ps.registry.IsActivated
	}
	return NewSorter[domain.ProjectKey](edges, inDomain).Sort(seeds, allowCycles)
}

// SortProviding returns seeds and their providers, providers first.
func (ps *ProjectSorter) SortProviding(seeds []domain.ProjectKey, activatedOnly bool) ([]domain.ProjectKey, error) {
	return ps.Sort(Providing, seeds, activatedOnly, false)
}

// SortRequiring returns seeds and their requirers, requirers first.
func (ps *ProjectSorter) SortRequiring(seeds []domain.ProjectKey, activatedOnly bool) ([]domain.ProjectKey, error) {
	return ps.Sort(Requiring, seeds, activatedOnly, false)
}

// BundleSorter orders installed bundles by their resolved wiring.
type BundleSorter struct {
	wiring   ports.BundleWiring
	registry *registry.Registry
}

func NewBundleSorter(wiring ports.BundleWiring, reg *registry.Registry) *BundleSorter {
	return &BundleSorter{wiring: wiring, registry: reg}
}

// Sort returns the closure of the seed bundles. Bundles without a node are
// left out of the expansion.
func (bs *BundleSorter) Sort(dir Direction, seeds []int64, activatedOnly, allowCycles bool) ([]int64, error) {
	edges := bs.wiring.RequiredBundles
	if dir == Requiring {
		edges = bs.wiring.RequiringBundles
	}
	inDomain := func(id int64) bool {
		node, ok := bs.registry.NodeByBundle(id)
		return ok && (!activatedOnly || node.IsActivated())
	}
	return NewSorter[int64](edges, inDomain).Sort(seeds, allowCycles)
}

func (bs *BundleSorter) SortProviding(seeds []int64, activatedOnly bool) ([]int64, error) {
	return bs.Sort(Providing, seeds, activatedOnly, false)
}

func (bs *BundleSorter) SortRequiring(seeds []int64, activatedOnly bool) ([]int64, error) {
	return bs.Sort(Requiring, seeds, activatedOnly, false)
}
