package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisDeadline bounds every L2 operation. Anything slower is
// dropped; L1 carries the request.
const DefaultRedisDeadline = 2 * time.Second

// scanBatchSize is the COUNT hint for cursor iteration and the maximum
// number of keys deleted per pipeline during pattern invalidation.
const scanBatchSize = 1000

// Redis is the distributed cache tier. It is optional: a nil *Redis is a
// valid no-op tier, and all methods on it return ErrTierDisabled.
type Redis struct {
	client   redis.UniversalClient
	deadline time.Duration
}

// ErrTierDisabled indicates the L2 tier is not configured.
var ErrTierDisabled = errors.New("distributed cache tier disabled")

// NewRedis wraps an existing Redis client. A non-positive deadline uses
// DefaultRedisDeadline.
func NewRedis(client redis.UniversalClient, deadline time.Duration) *Redis {
	if deadline <= 0 {
		deadline = DefaultRedisDeadline
	}

	return &Redis{client: client, deadline: deadline}
}

// withDeadline derives the per-op context.
func (r *Redis) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.deadline)
}

// Get fetches a single key. A miss returns (nil, false, nil).
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r == nil {
		return nil, false, ErrTierDisabled
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	val, err := r.client.Get(opCtx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	return val, true, nil
}

// Set stores a single key with TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r == nil {
		return ErrTierDisabled
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	err := r.client.Set(opCtx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}

// GetMany fetches keys in a single pipeline. The result maps each found key
// to its value; missing keys are absent.
func (r *Redis) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if r == nil {
		return nil, ErrTierDisabled
	}

	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	pipe := r.client.Pipeline()

	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(opCtx, key)
	}

	_, err := pipe.Exec(opCtx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline get: %w", err)
	}

	found := make(map[string][]byte, len(keys))

	for i, cmd := range cmds {
		val, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			continue
		}

		found[keys[i]] = val
	}

	return found, nil
}

// Entry is a single item in a batch write.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// SetMany writes entries in a single pipeline and returns the number of
// per-item failures.
func (r *Redis) SetMany(ctx context.Context, entries []Entry) (int, error) {
	if r == nil {
		return 0, ErrTierDisabled
	}

	if len(entries) == 0 {
		return 0, nil
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	pipe := r.client.Pipeline()

	cmds := make([]*redis.StatusCmd, 0, len(entries))
	for _, entry := range entries {
		cmds = append(cmds, pipe.Set(opCtx, entry.Key, entry.Value, entry.TTL))
	}

	_, execErr := pipe.Exec(opCtx)

	failed := 0

	for _, cmd := range cmds {
		if cmd.Err() != nil {
			failed++
		}
	}

	if execErr != nil && failed == 0 {
		// Whole-pipeline failure with no per-command attribution.
		return len(entries), fmt.Errorf("redis pipeline set: %w", execErr)
	}

	return failed, nil
}

// DeletePattern removes all keys matching the glob pattern using
// cursor-based SCAN (non-blocking on the server) and batched pipeline
// deletes of up to scanBatchSize keys. Returns the count deleted.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if r == nil {
		return 0, ErrTierDisabled
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	deleted := 0
	batch := make([]string, 0, scanBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		pipe := r.client.Pipeline()
		for _, key := range batch {
			pipe.Del(opCtx, key)
		}

		_, err := pipe.Exec(opCtx)
		if err != nil {
			return fmt.Errorf("redis pipeline del: %w", err)
		}

		deleted += len(batch)
		batch = batch[:0]

		return nil
	}

	iter := r.client.Scan(opCtx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(opCtx) {
		batch = append(batch, iter.Val())

		if len(batch) >= scanBatchSize {
			err := flush()
			if err != nil {
				return deleted, err
			}
		}
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan %q: %w", pattern, err)
	}

	err := flush()
	if err != nil {
		return deleted, err
	}

	return deleted, nil
}

// Ping verifies connectivity within the op deadline.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil {
		return ErrTierDisabled
	}

	opCtx, cancel := r.withDeadline(ctx)
	defer cancel()

	err := r.client.Ping(opCtx).Err()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}
