package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

const (
	defaultContextMaxEntries = 10
	defaultContextTTL        = 30 * time.Minute
)

// ConversationStore keeps a bounded, TTL'd ring of past turns per identity.
// It exists for reference inheritance and UX continuity only; nothing read
// from it carries authority over identity or commerce actions.
type ConversationStore struct {
	kv         KV
	maxEntries int
	ttl        time.Duration
}

type ConversationOption func(*ConversationStore)

func WithMaxEntries(n int) ConversationOption {
	return func(s *ConversationStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func WithContextTTL(ttl time.Duration) ConversationOption {
	return func(s *ConversationStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewConversationStore(kv KV, opts ...ConversationOption) (*ConversationStore, error) {
	if kv == nil {
		return nil, errors.New("kv store is required")
	}
	s := &ConversationStore{
		kv:         kv,
		maxEntries: defaultContextMaxEntries,
		ttl:        defaultContextTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

var _ contractx.ContextStore = (*ConversationStore)(nil)

// Recent returns up to limit entries, oldest first.
func (s *ConversationStore) Recent(ctx context.Context, identityKey string, limit int) ([]contractx.ContextEntry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}

	var entries []contractx.ContextEntry
	err := s.kv.GetJSON(ctx, contextKey(identityKey), &entries)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation context: %w", err)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Append adds one turn and trims the ring to maxEntries. Best-effort by
// contract: callers may ignore the returned error.
func (s *ConversationStore) Append(ctx context.Context, identityKey string, entry contractx.ContextEntry) error {
	entries, err := s.Recent(ctx, identityKey, s.maxEntries)
	if err != nil {
		entries = nil
	}

	entries = append(entries, entry)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}

	if err := s.kv.SetJSON(ctx, contextKey(identityKey), entries, s.ttl); err != nil {
		return fmt.Errorf("append conversation context: %w", err)
	}
	return nil
}

func contextKey(identityKey string) string {
	return "ctx:" + identityKey
}
