package jwt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const expiresKey = "expires_at"

// TokenStore persists the single bearer credential of the client.
// An empty string from Get means no token is stored.
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Remove(ctx context.Context) error
}

// StoreOptions configures the backend selected by NewTokenStore
type StoreOptions struct {
	Dir        string        // directory of the durable token file
	SessionId  string        // identifies the session scope for the session backend
	SessionTTL time.Duration // lifetime of a session-scoped token in Redis
	Redis      *redis.Client // optional; enables the Redis session backend
	KeyPrefix  string
}

// NewTokenStore selects the backend once. Under the cookie strategy the
// storage is always the no-op cookie backend.
func NewTokenStore(strategy, storage string, opts StoreOptions) (TokenStore, error) {
	if strategy == constant.AuthStrategyCookie {
		dir, err := tokenDir(opts.Dir)
		if err != nil {
			return nil, err
		}
		return NewCookieJarStore(filepath.Join(dir, "cookies.yaml"))
	}

	switch storage {
	case constant.StorageMemory:
		return NewMemoryTokenStore(), nil
	case "", constant.StorageLocal:
		dir, err := tokenDir(opts.Dir)
		if err != nil {
			return nil, err
		}
		return NewFileTokenStore(filepath.Join(dir, "token.yaml")), nil
	case constant.StorageSession:
		if opts.SessionId == "" {
			return nil, fmt.Errorf("session storage needs a session id")
		}
		if opts.Redis != nil {
			return NewRedisTokenStore(opts.Redis, opts.KeyPrefix, opts.SessionId, opts.SessionTTL), nil
		}
		return NewExpiringFileTokenStore(SessionTokenPath(opts.SessionId), opts.SessionTTL), nil
	case constant.StorageCookie:
		return CookieTokenStore{}, nil
	default:
		return nil, fmt.Errorf("unknown token storage: %s", storage)
	}
}

// tokenDir returns dir, or the nexo-chat directory under the user config dir
func tokenDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(cfgDir, "nexo-chat"), nil
}

// SessionTokenPath returns the temp file of a session scope. The directory
// is per OS user.
func SessionTokenPath(sessionId string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, sessionId)
	dir := fmt.Sprintf("nexo-chat-%d", os.Getuid())
	return filepath.Join(os.TempDir(), dir, "session-"+safe+".yaml")
}

// MemoryTokenStore keeps the token for the lifetime of the process
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore creates a new MemoryTokenStore
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Remove(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// FileTokenStore keeps the token in a YAML document on disk. With a ttl the
// document also carries an expiry, and an expired file is deleted on read.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewFileTokenStore creates a FileTokenStore backed by path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path, now: time.Now}
}

// NewExpiringFileTokenStore creates a FileTokenStore whose token is dropped ttl after Set
func NewExpiringFileTokenStore(path string, ttl time.Duration) *FileTokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FileTokenStore{path: path, ttl: ttl, now: time.Now}
}

// Path returns the backing file path
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	doc := make(map[string]string)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to decode token file: %w", err)
	}
	if raw := doc[expiresKey]; raw != "" {
		expires, err := time.Parse(time.RFC3339, raw)
		if err != nil || !s.now().Before(expires) {
			if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("failed to remove token file: %w", err)
			}
			return "", nil
		}
	}
	return doc[constant.TokenKey], nil
}

func (s *FileTokenStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]string{constant.TokenKey: token}
	if s.ttl > 0 {
		doc[expiresKey] = s.now().Add(s.ttl).UTC().Format(time.RFC3339)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Remove(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// RedisTokenStore keeps a session-scoped token in a Redis hash with a TTL.
// Key format: {prefix}token:{sessionId}
type RedisTokenStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisTokenStore creates a new RedisTokenStore
func NewRedisTokenStore(rdb *redis.Client, keyPrefix, sessionId string, ttl time.Duration) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = "nexo-chat:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTokenStore{
		rdb: rdb,
		key: fmt.Sprintf("%stoken:%s", keyPrefix, sessionId),
		ttl: ttl,
	}
}

func (s *RedisTokenStore) Get(ctx context.Context) (string, error) {
	token, err := s.rdb.HGet(ctx, s.key, constant.TokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, token string) error {
	if err := s.rdb.HSet(ctx, s.key, constant.TokenKey, token).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := s.rdb.Expire(ctx, s.key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token expiration: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Remove(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// CookieTokenStore is used when the server owns the credential as an
// HttpOnly cookie. The client never sees or sends a bearer token.
type CookieTokenStore struct{}

func (CookieTokenStore) Get(context.Context) (string, error) { return "", nil }
func (CookieTokenStore) Set(context.Context, string) error   { return nil }
func (CookieTokenStore) Remove(context.Context) error        { return nil }
