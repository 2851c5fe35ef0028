package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/inplace/pkg/domain"
)

const ext = ".json"

// Store implements ports.NodeStore using the local filesystem.
// It stores one JSON snapshot per project in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".inplace/nodes".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".inplace", "nodes")
	}
	return &Store{BasePath: basePath}
}

// Save persists the snapshot atomically: it is written to a temporary file,
// synced and then renamed over the previous snapshot.
func (s *Store) Save(ctx context.Context, snapshot domain.NodeSnapshot) error {
	if snapshot.Project == "" {
		return errors.New("project cannot be empty")
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure node directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, ".tmp-"+string(snapshot.Project)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path(snapshot.Project)
	// os.Rename does not replace an existing file on Windows.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove previous snapshot: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the snapshot of a project.
func (s *Store) Load(ctx context.Context, project domain.ProjectKey) (domain.NodeSnapshot, error) {
	data, err := os.ReadFile(s.path(project))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NodeSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.NodeSnapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot domain.NodeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.NodeSnapshot{}, fmt.Errorf("failed to unmarshal snapshot of %s: %w", project, err)
	}
	return snapshot, nil
}

// Delete removes the snapshot file.
func (s *Store) Delete(ctx context.Context, project domain.ProjectKey) error {
	err := os.Remove(s.path(project))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns the stored projects in lexical order.
func (s *Store) List(ctx context.Context) ([]domain.ProjectKey, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ProjectKey{}, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	projects := make([]domain.ProjectKey, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		projects = append(projects, domain.ProjectKey(strings.TrimSuffix(name, ext)))
	}
	slices.Sort(projects)
	return projects, nil
}

func (s *Store) path(project domain.ProjectKey) string {
	return filepath.Join(s.BasePath, string(project)+ext)
}
