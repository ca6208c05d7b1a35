package finalize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insurance-checkout/internal/common/database"

	"github.com/redis/go-redis/v9"
)

// Latch is the single-shot finalization guard. Acquire reports whether the
// caller entered; once entered the latch stays held until Release (after a
// failed status update) or forever after Complete.
type Latch interface {
	Acquire(ctx context.Context, applicationID string) (bool, error)
	Complete(ctx context.Context, applicationID string) error
	Release(ctx context.Context, applicationID string) error
}

// MemoryLatch is an in-process Latch.
type MemoryLatch struct {
	mu      sync.Mutex
	entered map[string]bool
}

func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{entered: make(map[string]bool)}
}

func (l *MemoryLatch) Acquire(_ context.Context, applicationID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entered[applicationID]; ok {
		return false, nil
	}
	l.entered[applicationID] = false
	return true, nil
}

func (l *MemoryLatch) Complete(_ context.Context, applicationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entered[applicationID] = true
	return nil
}

func (l *MemoryLatch) Release(_ context.Context, applicationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if done := l.entered[applicationID]; !done {
		delete(l.entered, applicationID)
	}
	return nil
}

const (
	latchInProgress = "in_progress"
	latchDone       = "done"

	// An in-progress entry outlives any single finalization attempt but
	// expires if the holder crashed before releasing it.
	defaultHoldTTL = 5 * time.Minute
)

// RedisLatch shares the latch across worker instances using SET NX.
type RedisLatch struct {
	client  redis.Cmdable
	prefix  string
	holdTTL time.Duration
	doneTTL time.Duration
}

// NewRedisLatch returns a latch whose completed entries live for doneTTL.
func NewRedisLatch(client redis.Cmdable, prefix string, doneTTL time.Duration) *RedisLatch {
	return &RedisLatch{client: client, prefix: prefix, holdTTL: defaultHoldTTL, doneTTL: doneTTL}
}

func (l *RedisLatch) key(applicationID string) string {
	return database.JoinKey(l.prefix, "finalize", "latch", applicationID)
}

func (l *RedisLatch) Acquire(ctx context.Context, applicationID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(applicationID), latchInProgress, l.holdTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire finalization latch: %w", err)
	}
	return ok, nil
}

func (l *RedisLatch) Complete(ctx context.Context, applicationID string) error {
	if err := l.client.Set(ctx, l.key(applicationID), latchDone, l.doneTTL).Err(); err != nil {
		return fmt.Errorf("complete finalization latch: %w", err)
	}
	return nil
}

// Release deletes an in-progress entry. A completed entry is left in place.
func (l *RedisLatch) Release(ctx context.Context, applicationID string) error {
	key := l.key(applicationID)
	val, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release finalization latch: %w", err)
	}
	if val == latchDone {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release finalization latch: %w", err)
	}
	return nil
}

// UploadTracker records which applications already had their document set
// uploaded.
type UploadTracker interface {
	Uploaded(ctx context.Context, applicationID string) (bool, error)
	MarkUploaded(ctx context.Context, applicationID string) error
}

type MemoryUploadTracker struct {
	mu   sync.Mutex
	done map[string]struct{}
}

func NewMemoryUploadTracker() *MemoryUploadTracker {
	return &MemoryUploadTracker{done: make(map[string]struct{})}
}

func (t *MemoryUploadTracker) Uploaded(_ context.Context, applicationID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.done[applicationID]
	return ok, nil
}

func (t *MemoryUploadTracker) MarkUploaded(_ context.Context, applicationID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[applicationID] = struct{}{}
	return nil
}

type RedisUploadTracker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisUploadTracker(client redis.Cmdable, prefix string, ttl time.Duration) *RedisUploadTracker {
	return &RedisUploadTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisUploadTracker) key(applicationID string) string {
	return database.JoinKey(t.prefix, "finalize", "uploaded", applicationID)
}

func (t *RedisUploadTracker) Uploaded(ctx context.Context, applicationID string) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(applicationID)).Result()
	if err != nil {
		return false, fmt.Errorf("check uploaded flag: %w", err)
	}
	return n > 0, nil
}

func (t *RedisUploadTracker) MarkUploaded(ctx context.Context, applicationID string) error {
	if err := t.client.Set(ctx, t.key(applicationID), "1", t.ttl).Err(); err != nil {
		return fmt.Errorf("set uploaded flag: %w", err)
	}
	return nil
}
