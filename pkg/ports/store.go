package ports

import (
	"context"

	"github.com/aretw0/inplace/pkg/domain"
)

// NodeStore persists bundle node snapshots so a workspace survives restarts.
type NodeStore interface {
	// Save persists the snapshot, replacing any previous one for the same project.
	Save(ctx context.Context, snapshot domain.NodeSnapshot) error

	// Load retrieves the snapshot of a project.
	// Returns domain.ErrSnapshotNotFound if the project has none.
	Load(ctx context.Context, project domain.ProjectKey) (domain.NodeSnapshot, error)

	// Delete removes the snapshot of a project. Deleting an absent project is not an error.
	Delete(ctx context.Context, project domain.ProjectKey) error

	// List returns the stored projects in lexical order.
	List(ctx context.Context) ([]domain.ProjectKey, error)
}

// Journal is an append-only record of transition events.
type Journal interface {
	Append(ctx context.Context, event domain.TransitionEvent) error
	// History returns the events of a project, oldest first, at most limit entries (0 means all).
	History(ctx context.Context, project domain.ProjectKey, limit int) ([]domain.TransitionEvent, error)
}
