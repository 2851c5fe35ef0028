package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/inplace/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.NodeStore and ports.Journal using Redis.
//
// Snapshots live under <prefix>node:<project> as JSON. The project index is
// a sorted set with every score at zero, so ZRANGE returns it in lexical
// order. Journal entries are appended to one list per project.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for every key the store writes.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "inplace:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(project domain.ProjectKey) string {
	return s.prefix + "node:" + string(project)
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) journalKey(project domain.ProjectKey) string {
	return s.prefix + "journal:" + string(project)
}

// Save persists the snapshot to Redis.
func (s *Store) Save(ctx context.Context, snapshot domain.NodeSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snapshot.Project), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: string(snapshot.Project)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the snapshot of a project from Redis.
func (s *Store) Load(ctx context.Context, project domain.ProjectKey) (domain.NodeSnapshot, error) {
	val, err := s.client.Get(ctx, s.key(project)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.NodeSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.NodeSnapshot{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var snapshot domain.NodeSnapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		return domain.NodeSnapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// Delete removes the snapshot and the index entry of a project.
// The journal is kept.
func (s *Store) Delete(ctx context.Context, project domain.ProjectKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(project))
	pipe.ZRem(ctx, s.indexKey(), string(project))
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the stored projects in lexical order.
func (s *Store) List(ctx context.Context) ([]domain.ProjectKey, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	projects := make([]domain.ProjectKey, len(members))
	for i, m := range members {
		projects[i] = domain.ProjectKey(m)
	}
	return projects, nil
}

// Append pushes an event to the journal of its project.
func (s *Store) Append(ctx context.Context, event domain.TransitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.client.RPush(ctx, s.journalKey(event.Project), data).Err()
}

// History returns the latest limit events of a project, oldest first.
func (s *Store) History(ctx context.Context, project domain.ProjectKey, limit int) ([]domain.TransitionEvent, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, s.journalKey(project), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	events := make([]domain.TransitionEvent, 0, len(raw))
	for _, r := range raw {
		var ev domain.TransitionEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Locker returns a distributed locker sharing the store's client and prefix.
func (s *Store) Locker(opts ...LockerOption) *Locker {
	return NewLocker(s.client, s.prefix, opts...)
}
