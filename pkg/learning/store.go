package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/mailguard/mailguard/pkg/config"
)

// ErrNoState indicates no model state has been persisted for a scope
var ErrNoState = errors.New("no model state for scope")

// Store persists model states keyed by learning scope. One state is
// kept per scope, replaced wholesale on each retrain.
type Store interface {
	Save(ctx context.Context, state *ModelState) error
	Load(ctx context.Context, scope string) (*ModelState, error)
	Close() error
}

// MemoryStore keeps model states in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ModelState
}

// NewMemoryStore creates an empty in-memory model store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*ModelState)}
}

// Save stores the state under its scope
func (m *MemoryStore) Save(ctx context.Context, state *ModelState) error {
	if state == nil || state.Scope == "" {
		return fmt.Errorf("model state requires a scope")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Scope] = state.Clone()
	return nil
}

// Load returns the state for a scope, or ErrNoState
func (m *MemoryStore) Load(ctx context.Context, scope string) (*ModelState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[scope]
	if !ok {
		return nil, ErrNoState
	}
	return state.Clone(), nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}

// SQLiteStore persists model states in a SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed bootstraps) the model state
// table in the given database file
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS model_states (
			scope TEXT PRIMARY KEY,
			trained_on INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create model_states table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save stores the state under its scope
func (s *SQLiteStore) Save(ctx context.Context, state *ModelState) error {
	if state == nil || state.Scope == "" {
		return fmt.Errorf("model state requires a scope")
	}

	payload, err := state.Encode()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_states (scope, trained_on, state, updated_at)
		VALUES (?, ?, ?, ?)
	`, state.Scope, state.TrainedOn, string(payload), state.UpdatedAt.Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("failed to save model state: %w", err)
	}
	return nil
}

// Load returns the state for a scope, or ErrNoState
func (s *SQLiteStore) Load(ctx context.Context, scope string) (*ModelState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM model_states WHERE scope = ?`, scope).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}

	return DecodeState([]byte(payload))
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RedisStore persists model states in Redis, allowing instances to
// share a global cross-session model
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

func (r *RedisStore) key(scope string) string {
	return fmt.Sprintf("%s:model:%s", r.prefix, scope)
}

// Save stores the state under its scope
func (r *RedisStore) Save(ctx context.Context, state *ModelState) error {
	if state == nil || state.Scope == "" {
		return fmt.Errorf("model state requires a scope")
	}

	payload, err := state.Encode()
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(state.Scope), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save model state: %v", err)
	}
	return nil
}

// Load returns the state for a scope, or ErrNoState
func (r *RedisStore) Load(ctx context.Context, scope string) (*ModelState, error) {
	payload, err := r.client.Get(ctx, r.key(scope)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model state: %v", err)
	}

	return DecodeState(payload)
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)
