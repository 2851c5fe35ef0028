package ports

import "github.com/aretw0/inplace/pkg/domain"

// DependencyReader exposes the declared dependencies between projects.
// Results are returned in declaration order, which closures use as the
// tie-break for deterministic ordering.
type DependencyReader interface {
	// RequiredBy returns the projects the given project requires (its providers).
	RequiredBy(project domain.ProjectKey) ([]domain.ProjectKey, error)

	// ProvidesTo returns the projects that require the given project (its requirers).
	ProvidesTo(project domain.ProjectKey) ([]domain.ProjectKey, error)
}

// BundleWiring exposes the wires between installed bundles as the framework resolved them.
type BundleWiring interface {
	// RequiredBundles returns the bundles the given bundle is wired to as a consumer.
	RequiredBundles(id int64) ([]int64, error)

	// RequiringBundles returns the bundles wired to the given bundle as consumers.
	RequiringBundles(id int64) ([]int64, error)
}
