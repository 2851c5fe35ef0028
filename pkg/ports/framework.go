package ports

import (
	"context"

	"github.com/aretw0/inplace/pkg/domain"
)

// Framework is the bundle runtime the jobs drive.
type Framework interface {
	// Install installs the project from location and returns its bundle.
	Install(ctx context.Context, project domain.ProjectKey, location string) (*domain.Bundle, error)

	// Resolve resolves the bundles and returns the ids that could not be resolved.
	Resolve(ctx context.Context, ids []int64) ([]int64, error)

	// Start activates a bundle. With lazy the framework defers activation to the first class load.
	Start(ctx context.Context, id int64, lazy bool) error

	Stop(ctx context.Context, id int64) error
	Uninstall(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64) error

	// Refresh rewires the bundles and everything depending on them.
	Refresh(ctx context.Context, ids []int64) error

	// State returns the framework state bits of a bundle (see domain.FrameworkActive and friends).
	State(ctx context.Context, id int64) (int, error)
}

// StatusHandler receives the structured outcome of lifecycle jobs.
type StatusHandler interface {
	Handle(ctx context.Context, status *domain.Status)
}

// StatusHandlerFunc adapts a function to StatusHandler.
type StatusHandlerFunc func(ctx context.Context, status *domain.Status)

func (f StatusHandlerFunc) Handle(ctx context.Context, status *domain.Status) {
	f(ctx, status)
}

// StatusHandlers fans a status out to every handler in order.
type StatusHandlers []StatusHandler

func (hs StatusHandlers) Handle(ctx context.Context, status *domain.Status) {
	for _, h := range hs {
		if h != nil {
			h.Handle(ctx, status)
		}
	}
}
