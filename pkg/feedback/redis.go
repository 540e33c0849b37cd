package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailguard/mailguard/pkg/config"
)

// RedisStore keeps feedback entries in Redis hashes, one hash per
// session, so multiple analyst instances can share decisions for
// cross-session learning. A session index set supports the
// all-sessions scope.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %v", err)
	}

	opt.DB = cfg.DatabaseNum
	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("Redis connection failed: %v", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mailguard"
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:feedback:%s", r.prefix, sessionID)
}

func (r *RedisStore) indexKey() string {
	return fmt.Sprintf("%s:sessions", r.prefix)
}

// RecordDecision inserts or replaces the entry for its pair. HSET on
// the record field gives the upsert semantics for free.
func (r *RedisStore) RecordDecision(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode feedback entry: %v", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.sessionKey(entry.SessionID), entry.RecordID, payload)
	pipe.SAdd(ctx, r.indexKey(), entry.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record decision: %v", err)
	}

	return nil
}

// Count returns the active entry count for the scope
func (r *RedisStore) Count(ctx context.Context, sessionID string) (int, error) {
	if sessionID != AllSessions {
		n, err := r.client.HLen(ctx, r.sessionKey(sessionID)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count feedback: %v", err)
		}
		return int(n), nil
	}

	sessions, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %v", err)
	}

	total := 0
	for _, id := range sessions {
		n, err := r.client.HLen(ctx, r.sessionKey(id)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count feedback: %v", err)
		}
		total += int(n)
	}
	return total, nil
}

// Entries returns the active entries for the scope, ordered by
// decision time
func (r *RedisStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	sessions := []string{sessionID}
	if sessionID == AllSessions {
		var err error
		sessions, err = r.client.SMembers(ctx, r.indexKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %v", err)
		}
	}

	var entries []Entry
	for _, id := range sessions {
		fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load feedback: %v", err)
		}

		for _, payload := range fields {
			var entry Entry
			if err := json.Unmarshal([]byte(payload), &entry); err != nil {
				return nil, fmt.Errorf("failed to decode feedback entry: %v", err)
			}
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DecidedAt.Before(entries[j].DecidedAt)
	})

	return entries, nil
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
