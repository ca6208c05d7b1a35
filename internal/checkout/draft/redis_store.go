package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insurance-checkout/internal/common/database"
	"insurance-checkout/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps drafts as JSON under <prefix>:draft:<submissionId>.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(submissionID string) string {
	return database.JoinKey(s.prefix, "draft", submissionID)
}

func (s *RedisStore) Get(ctx context.Context, submissionID string) (*models.Application, error) {
	data, err := s.client.Get(ctx, s.key(submissionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}

	var app models.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &app, nil
}

func (s *RedisStore) Put(ctx context.Context, submissionID string, app *models.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(submissionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, submissionID string) error {
	if err := s.client.Del(ctx, s.key(submissionID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
