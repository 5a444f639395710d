// Package redisstore implements store.Service on Redis. Each task is a JSON
// blob under <prefix>:task:<id>; each workspace keeps a set of its task ids.
// Writes run in WATCH/MULTI transactions so concurrent writers cannot lose
// each other's version checks.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

const defaultTxRetries = 8

// Store is a Redis-backed task service.
type Store struct {
	rdb       *redis.Client
	prefix    string
	txRetries int
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTxRetries bounds how often an optimistic transaction is retried
// before ErrConflict is returned.
func WithTxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.txRetries = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: prefix, txRetries: defaultTxRetries, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis server at url (redis://...) and checks it
// responds.
func Dial(ctx context.Context, url, prefix string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return New(rdb, prefix, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) taskKey(id string) string {
	return s.prefix + ":task:" + id
}

func (s *Store) workspaceKey(workspaceID string) string {
	return s.prefix + ":ws:" + workspaceID + ":tasks"
}

// ListTasks returns every task of a workspace. Ids whose blob has vanished
// are skipped.
func (s *Store) ListTasks(ctx context.Context, workspaceID string) ([]*task.Task, error) {
	ids, err := s.rdb.SMembers(ctx, s.workspaceKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing workspace %s: %w", workspaceID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		t, err := decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding task %s: %w", ids[i], err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask loads one task.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	raw, err := s.rdb.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return decode(raw)
}

// CreateTask stores a new task and adds it to its workspace set.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	created := t.Clone()
	created.File = ""
	if err := store.PrepareCreate(created, s.now()); err != nil {
		return nil, err
	}
	data, err := sonic.Marshal(created)
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}

	key := s.taskKey(created.ID)
	err = s.transact(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: task %s already exists", store.ErrConflict, created.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.workspaceKey(created.WorkspaceID), created.ID)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateTask applies p under an optimistic lock on the task key.
func (s *Store) UpdateTask(ctx context.Context, id string, p store.Patch) (*task.Task, error) {
	key := s.taskKey(id)
	var updated *task.Task
	err := s.transact(ctx, key, func(tx *redis.Tx) error {
		t, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := store.Apply(t, p, s.now()); err != nil {
			return err
		}
		data, err := sonic.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task and its workspace membership.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	key := s.taskKey(id)
	return s.transact(ctx, key, func(tx *redis.Tx) error {
		t, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.workspaceKey(t.WorkspaceID), id)
			return nil
		})
		return err
	})
}

// transact runs fn in a WATCH on key, retrying when another client touched
// the key between WATCH and EXEC.
func (s *Store) transact(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range s.txRetries {
		err := s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%w: %s changed concurrently %d times", store.ErrConflict, key, s.txRetries)
}

func (s *Store) load(ctx context.Context, tx *redis.Tx, id string) (*task.Task, error) {
	raw, err := tx.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (*task.Task, error) {
	var t task.Task
	if err := sonic.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
