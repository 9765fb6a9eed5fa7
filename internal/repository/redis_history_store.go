package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalGuard/internal/domain/models"

	"github.com/redis/go-redis/v9"
)

// RedisHistoryStore keeps each source's window in a Redis list, newest at the head, trimmed to
// the window on every append. Survives restarts and can be shared by several instances.
type RedisHistoryStore struct {
	client redis.Cmdable
	prefix string
	window int
}

func NewRedisHistoryStore(client redis.Cmdable, prefix string, window int) *RedisHistoryStore {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &RedisHistoryStore{client: client, prefix: prefix, window: window}
}

func (s *RedisHistoryStore) key(source string) string {
	if s.prefix == "" {
		return "history:" + source
	}
	return s.prefix + ":history:" + source
}

func (s *RedisHistoryStore) Append(ctx context.Context, sample models.PerformanceSample) error {
	b, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	key := s.key(sample.SourceID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, b)
		p.LTrim(ctx, key, 0, int64(s.window-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

func (s *RedisHistoryStore) Window(ctx context.Context, sourceID string) ([]models.PerformanceSample, error) {
	key := s.key(sourceID)
	raw, err := s.client.LRange(ctx, key, 0, int64(s.window-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis window %s: %w", key, err)
	}

	out := make([]models.PerformanceSample, 0, len(raw))
	// list head is the newest entry
	for i := len(raw) - 1; i >= 0; i-- {
		var sample models.PerformanceSample
		if err := json.Unmarshal([]byte(raw[i]), &sample); err != nil {
			return nil, fmt.Errorf("decode sample in %s: %w", key, err)
		}
		out = append(out, sample)
	}
	return out, nil
}

func (s *RedisHistoryStore) Reset(ctx context.Context, sourceID string) error {
	return s.client.Del(ctx, s.key(sourceID)).Err()
}
