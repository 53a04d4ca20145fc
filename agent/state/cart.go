package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultCartTTL         = 2 * time.Hour
	defaultCheckoutLockTTL = 2 * time.Minute
)

// CartLine is one uncommitted line item.
type CartLine struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// CartSession is the ephemeral pre-order basket, keyed by identity+session.
// Version increments on every mutation; checkout records the version it
// committed so an identical resubmission is recognized and not re-executed.
type CartSession struct {
	IdentityKey string     `json:"identity_key"`
	SessionID   string     `json:"session_id"`
	Lines       []CartLine `json:"lines,omitempty"`
	Version     int64      `json:"version"`

	PlacedVersion int64  `json:"placed_version,omitempty"`
	PlacedOrderID string `json:"placed_order_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AddLine merges duplicate products and bumps the cart version. Adding after
// an order was placed starts a fresh cart.
func (c *CartSession) AddLine(line CartLine, now time.Time) {
	if c.PlacedOrderID != "" {
		c.Lines = nil
		c.PlacedOrderID = ""
		c.PlacedVersion = 0
	}

	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			c.Version++
			c.UpdatedAt = now.UTC()
			return
		}
	}
	c.Lines = append(c.Lines, line)
	c.Version++
	c.UpdatedAt = now.UTC()
}

func (c *CartSession) Empty() bool {
	return len(c.Lines) == 0
}

func (c *CartSession) Subtotal() float64 {
	var sum float64
	for _, l := range c.Lines {
		sum += l.UnitPrice * float64(l.Quantity)
	}
	return sum
}

// MarkPlaced clears the line items and records which cart version the order
// committed.
func (c *CartSession) MarkPlaced(orderID string, now time.Time) {
	c.PlacedOrderID = orderID
	c.PlacedVersion = c.Version
	c.Lines = nil
	c.UpdatedAt = now.UTC()
}

// CartStore persists cart sessions in the TTL KV store.
type CartStore struct {
	kv      KV
	ttl     time.Duration
	lockTTL time.Duration
}

type CartOption func(*CartStore)

func WithCartTTL(ttl time.Duration) CartOption {
	return func(s *CartStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCheckoutLockTTL(ttl time.Duration) CartOption {
	return func(s *CartStore) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func NewCartStore(kv KV, opts ...CartOption) (*CartStore, error) {
	if kv == nil {
		return nil, errors.New("kv store is required")
	}
	s := &CartStore{kv: kv, ttl: defaultCartTTL, lockTTL: defaultCheckoutLockTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Load returns the cart for (identity, session), or a fresh empty one.
func (s *CartStore) Load(ctx context.Context, identityKey, sessionID string) (*CartSession, error) {
	var cart CartSession
	err := s.kv.GetJSON(ctx, cartKey(identityKey, sessionID), &cart)
	if errors.Is(err, ErrKeyNotFound) {
		return &CartSession{IdentityKey: identityKey, SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart session: %w", err)
	}
	return &cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart *CartSession) error {
	if cart == nil {
		return errors.New("cart session is nil")
	}
	if err := s.kv.SetJSON(ctx, cartKey(cart.IdentityKey, cart.SessionID), cart, s.ttl); err != nil {
		return fmt.Errorf("save cart session: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, identityKey, sessionID string) error {
	return s.kv.Delete(ctx, cartKey(identityKey, sessionID))
}

// AcquireCheckoutLock takes the per-cart checkout lock via a conditional
// write, so exactly one of any number of concurrent callers wins. The lock
// expires on its own if a crash skips the release.
func (s *CartStore) AcquireCheckoutLock(ctx context.Context, identityKey, sessionID string) (bool, error) {
	acquired, err := s.kv.SetJSONNX(ctx, checkoutLockKey(identityKey, sessionID), true, s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire checkout lock: %w", err)
	}
	return acquired, nil
}

func (s *CartStore) ReleaseCheckoutLock(ctx context.Context, identityKey, sessionID string) error {
	return s.kv.Delete(ctx, checkoutLockKey(identityKey, sessionID))
}

func cartKey(identityKey, sessionID string) string {
	return "cart:" + identityKey + ":" + sessionID
}

func checkoutLockKey(identityKey, sessionID string) string {
	return cartKey(identityKey, sessionID) + ":checkout"
}
