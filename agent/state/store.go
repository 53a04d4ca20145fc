package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrEmptyKey    = errors.New("key is empty")
)

const maxResponseSizeBytes = 2 << 20

// KV is the bounded TTL key-value abstraction behind all ephemeral state
// (cart sessions, conversation context). Backing stores are swappable.
// SetJSONNX writes only when the key is absent and reports whether it won;
// it is the primitive behind mutual-exclusion locks.
type KV interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	SetJSONNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

/* --------------------------- Upstash Redis REST -------------------------- */

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// UpstashRedisKV stores JSON values in Upstash Redis via its REST protocol.
type UpstashRedisKV struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

type KVOption func(*UpstashRedisKV)

func WithKeyPrefix(prefix string) KVOption {
	return func(s *UpstashRedisKV) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) KVOption {
	return func(s *UpstashRedisKV) {
		if client != nil {
			s.httpClient = client
		}
	}
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashRedisKV(cfg UpstashRedisConfig, opts ...KVOption) (*UpstashRedisKV, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	kv := &UpstashRedisKV{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  "agent:",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kv)
		}
	}
	return kv, nil
}

func (s *UpstashRedisKV) GetJSON(ctx context.Context, key string, dest any) error {
	fullKey, err := s.redisKey(key)
	if err != nil {
		return err
	}

	resp, err := s.exec(ctx, []any{"GET", fullKey})
	if err != nil {
		return err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return ErrKeyNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return fmt.Errorf("decode kv payload: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), dest); err != nil {
		return fmt.Errorf("unmarshal kv value: %w", err)
	}
	return nil
}

func (s *UpstashRedisKV) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	fullKey, err := s.redisKey(key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kv value: %w", err)
	}

	cmd := []any{"SET", fullKey, string(payload)}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashRedisKV) SetJSONNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	fullKey, err := s.redisKey(key)
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal kv value: %w", err)
	}

	cmd := []any{"SET", fullKey, string(payload), "NX"}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}

	resp, err := s.exec(ctx, cmd)
	if err != nil {
		return false, err
	}

	// Redis answers OK when the key was set and null when it already existed.
	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return false, nil
	}
	return true, nil
}

func (s *UpstashRedisKV) Delete(ctx context.Context, key string) error {
	fullKey, err := s.redisKey(key)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", fullKey})
	return err
}

func (s *UpstashRedisKV) redisKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	return s.keyPrefix + key, nil
}

func (s *UpstashRedisKV) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

/* ------------------------------- In-process ------------------------------ */

// MemoryKV is the in-process fallback backing store. Entries expire lazily.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryKV) GetJSON(_ context.Context, key string, dest any) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrKeyNotFound
	}
	return json.Unmarshal(entry.payload, dest)
}

func (m *MemoryKV) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kv value: %w", err)
	}

	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) SetJSONNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal kv value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok {
		if existing.expiresAt.IsZero() || !m.now().After(existing.expiresAt) {
			return false, nil
		}
	}

	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return true, nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
