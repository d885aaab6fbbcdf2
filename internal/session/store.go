package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Store persists a session across process restarts. Load reports false when
// nothing is stored.
type Store interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// FileStore keeps the session in a YAML file readable only by its owner.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Load reads the session file.
func (f *FileStore) Load(ctx context.Context) (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("session: read %s: %w", f.path, err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("session: decode %s: %w", f.path, err)
	}
	return s, s.Authenticated(), nil
}

// Save writes the session atomically with 0600 permissions.
func (f *FileStore) Save(ctx context.Context, s Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}

// Clear removes the session file.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", f.path, err)
	}
	return nil
}

// RedisStore keeps the session under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore returns a store using key. A zero ttl keeps the key until cleared.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "mdm:console:session"
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// Load reads the session key.
func (r *RedisStore) Load(ctx context.Context) (Session, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("session: decode: %w", err)
	}
	return s, s.Authenticated(), nil
}

// Save writes the session key. The key expires with the token when the session
// carries an expiry.
func (r *RedisStore) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	ttl := r.ttl
	if !s.ExpiresAt.IsZero() {
		if remaining := time.Until(s.ExpiresAt); remaining > 0 && (ttl == 0 || remaining < ttl) {
			ttl = remaining
		}
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

// Clear deletes the session key.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load returns the stored session.
func (m *MemoryStore) Load(ctx context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return m.session.clone(), true, nil
}

// Save replaces the stored session.
func (m *MemoryStore) Save(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.clone()
	m.session = &c
	return nil
}

// Clear drops the stored session.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
