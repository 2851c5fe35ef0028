// Package badger persists bundle node snapshots in an embedded BadgerDB.
//
// Snapshots are stored as JSON under "node/<project>". Badger keeps keys
// sorted, so List is a prefix scan.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/aretw0/inplace/pkg/domain"
)

const nodePrefix = "node/"

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements ports.NodeStore on BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func key(project domain.ProjectKey) []byte {
	return []byte(nodePrefix + string(project))
}

// Save persists the snapshot, replacing any previous one.
func (s *Store) Save(ctx context.Context, snapshot domain.NodeSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(snapshot.Project), data)
	})
}

// Load retrieves the snapshot of a project.
func (s *Store) Load(ctx context.Context, project domain.ProjectKey) (domain.NodeSnapshot, error) {
	var snapshot domain.NodeSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(project))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.NodeSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.NodeSnapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snapshot, nil
}

// Delete removes the snapshot of a project. Deleting an absent key is a no-op in Badger.
func (s *Store) Delete(ctx context.Context, project domain.ProjectKey) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(project))
	})
}

// List returns the stored projects in lexical order.
func (s *Store) List(ctx context.Context) ([]domain.ProjectKey, error) {
	var projects []domain.ProjectKey
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(nodePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			projects = append(projects, domain.ProjectKey(k[len(nodePrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return projects, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
