package state

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryKVRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := NewMemoryKV()

	if err := kv.SetJSON(ctx, "k1", payload{Name: "ada", Count: 2}, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got payload
	if err := kv.GetJSON(ctx, "k1", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Name != "ada" || got.Count != 2 {
		t.Fatalf("got %+v", got)
	}

	if err := kv.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.GetJSON(ctx, "k1", &got); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("after delete err = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryKVExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.now = func() time.Time { return current }

	if err := kv.SetJSON(ctx, "k1", payload{Name: "ada"}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got payload
	if err := kv.GetJSON(ctx, "k1", &got); err != nil {
		t.Fatalf("GetJSON before expiry: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if err := kv.GetJSON(ctx, "k1", &got); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expired entry err = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryKVSetJSONNX(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.now = func() time.Time { return current }

	acquired, err := kv.SetJSONNX(ctx, "lock:1", true, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first SetJSONNX = %v, %v", acquired, err)
	}
	if acquired, _ := kv.SetJSONNX(ctx, "lock:1", true, time.Minute); acquired {
		t.Fatal("SetJSONNX overwrote a live key")
	}

	// Expired entries no longer block the write.
	current = current.Add(2 * time.Minute)
	if acquired, err := kv.SetJSONNX(ctx, "lock:1", true, time.Minute); err != nil || !acquired {
		t.Fatalf("SetJSONNX after expiry = %v, %v", acquired, err)
	}

	// Delete frees the key immediately.
	if err := kv.Delete(ctx, "lock:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if acquired, err := kv.SetJSONNX(ctx, "lock:1", true, time.Minute); err != nil || !acquired {
		t.Fatalf("SetJSONNX after delete = %v, %v", acquired, err)
	}
}

func TestMemoryKVRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := NewMemoryKV()

	if err := kv.SetJSON(ctx, "  ", payload{}, 0); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("SetJSON err = %v, want ErrEmptyKey", err)
	}
	var got payload
	if err := kv.GetJSON(ctx, "", &got); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("GetJSON err = %v, want ErrEmptyKey", err)
	}
}

func TestUpstashRedisKVSetAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		commands [][]any
	)
	// Upstash stores the value we SET as a string; GET returns it JSON-wrapped.
	stored := map[string]string{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var cmd []any
		if err := json.Unmarshal(body, &cmd); err != nil {
			t.Errorf("bad command body: %v", err)
		}
		mu.Lock()
		commands = append(commands, cmd)
		mu.Unlock()

		switch cmd[0] {
		case "SET":
			stored[cmd[1].(string)] = cmd[2].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": "OK"})
		case "GET":
			value, ok := stored[cmd[1].(string)]
			if !ok {
				_ = json.NewEncoder(w).Encode(map[string]any{"result": nil})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": value})
		default:
			t.Errorf("unexpected command %v", cmd[0])
		}
	}))
	defer server.Close()

	kv, err := NewUpstashRedisKV(UpstashRedisConfig{URL: server.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewUpstashRedisKV: %v", err)
	}

	if err := kv.SetJSON(ctx, "cart:abc", payload{Name: "ada", Count: 3}, 90*time.Second); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got payload
	if err := kv.GetJSON(ctx, "cart:abc", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Name != "ada" || got.Count != 3 {
		t.Fatalf("got %+v", got)
	}

	if err := kv.GetJSON(ctx, "cart:missing", &got); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key err = %v, want ErrKeyNotFound", err)
	}

	mu.Lock()
	defer mu.Unlock()
	set := commands[0]
	if set[1] != "agent:cart:abc" {
		t.Fatalf("SET key = %v, want prefixed key", set[1])
	}
	if len(set) != 5 || set[3] != "EX" || set[4] != float64(90) {
		t.Fatalf("SET command = %v, want trailing EX 90", set)
	}
}

func TestUpstashRedisKVSetJSONNX(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		commands [][]any
	)
	held := map[string]bool{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var cmd []any
		if err := json.Unmarshal(body, &cmd); err != nil {
			t.Errorf("bad command body: %v", err)
		}
		mu.Lock()
		commands = append(commands, cmd)
		mu.Unlock()

		// SET ... NX answers OK on first write and null afterwards.
		key := cmd[1].(string)
		if held[key] {
			_ = json.NewEncoder(w).Encode(map[string]any{"result": nil})
			return
		}
		held[key] = true
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "OK"})
	}))
	defer server.Close()

	kv, err := NewUpstashRedisKV(UpstashRedisConfig{URL: server.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewUpstashRedisKV: %v", err)
	}

	acquired, err := kv.SetJSONNX(ctx, "lock:1", true, 2*time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first SetJSONNX = %v, %v", acquired, err)
	}
	acquired, err = kv.SetJSONNX(ctx, "lock:1", true, 2*time.Minute)
	if err != nil {
		t.Fatalf("second SetJSONNX: %v", err)
	}
	if acquired {
		t.Fatal("held key reported as acquired")
	}

	mu.Lock()
	defer mu.Unlock()
	set := commands[0]
	if set[1] != "agent:lock:1" {
		t.Fatalf("SET key = %v, want prefixed key", set[1])
	}
	if len(set) != 6 || set[3] != "NX" || set[4] != "EX" || set[5] != float64(120) {
		t.Fatalf("SET command = %v, want trailing NX EX 120", set)
	}
}

func TestUpstashRedisKVSurfacesProtocolError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "WRONGTYPE value"})
	}))
	defer server.Close()

	kv, err := NewUpstashRedisKV(UpstashRedisConfig{URL: server.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewUpstashRedisKV: %v", err)
	}
	var got payload
	if err := kv.GetJSON(context.Background(), "k1", &got); err == nil {
		t.Fatal("expected protocol error")
	}
}

func TestTTLSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ttl  time.Duration
		want int64
	}{
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
		{10 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if got := ttlSeconds(tt.ttl); got != tt.want {
			t.Errorf("ttlSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}
