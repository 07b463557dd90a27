package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "transition:status:"
	maxTxRetries     = 5
)

// RedisTracker stores statuses in Redis so several server instances can share them.
// Each record expires on its own after ttl; Cleanup additionally sweeps by CreatedAt.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// ConnectRedis opens a client and verifies the server answers
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisTracker wraps an existing client. A non-positive ttl uses DefaultMaxAge.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	return &RedisTracker{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *RedisTracker) key(id string) string {
	return r.prefix + id
}

func (r *RedisTracker) SetPending(ctx context.Context, id string) error {
	return r.update(ctx, id, func(existing *Status) (*Status, error) {
		created := r.now()
		if existing != nil {
			if existing.State.Terminal() {
				return nil, ErrAlreadyCompleted
			}
			created = existing.CreatedAt
		}
		return &Status{State: StatePending, TransitionID: id, CreatedAt: created}, nil
	})
}

func (r *RedisTracker) MarkReady(ctx context.Context, id string) error {
	return r.update(ctx, id, func(existing *Status) (*Status, error) {
		return complete(existing, id, StateReady, "", r.now())
	})
}

func (r *RedisTracker) MarkFailed(ctx context.Context, id, message string) error {
	return r.update(ctx, id, func(existing *Status) (*Status, error) {
		return complete(existing, id, StateFailed, message, r.now())
	})
}

// update runs fn inside an optimistic WATCH transaction so two writers
// can never both move the same record out of PENDING.
func (r *RedisTracker) update(ctx context.Context, id string, fn func(*Status) (*Status, error)) error {
	key := r.key(id)

	txf := func(tx *redis.Tx) error {
		existing, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(existing)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("status update for %s kept conflicting after %d attempts", id, maxTxRetries)
}

func (r *RedisTracker) Get(ctx context.Context, id string) (*Status, error) {
	return load(ctx, r.client, r.key(id))
}

func (r *RedisTracker) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := r.now().Add(-maxAge)
	removed := 0

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		s, err := load(ctx, r.client, key)
		if err != nil || s == nil {
			continue
		}
		if s.CreatedAt.Before(cutoff) {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan statuses: %w", err)
	}
	return removed, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (*Status, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &s, nil
}
