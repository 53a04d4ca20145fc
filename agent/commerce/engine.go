package commerce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	identityx "github.com/kasuwahq/support-agent/agent/identity"
	statex "github.com/kasuwahq/support-agent/agent/state"
	"github.com/kasuwahq/support-agent/storage"
)

// Engine is the stateful cart/checkout workflow. All store mutation (stock,
// orders, customer tier and lifetime spend) happens here and nowhere else,
// inside a single transaction per checkout.
type Engine struct {
	db      *bun.DB
	carts   *statex.CartStore
	pricing PricingConfig
	now     func() time.Time
}

func NewEngine(db *bun.DB, carts *statex.CartStore, pricing PricingConfig) (*Engine, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if carts == nil {
		return nil, errors.New("cart store is required")
	}
	return &Engine{db: db, carts: carts, pricing: pricing, now: time.Now}, nil
}

/* -------------------------------- AddToCart ------------------------------- */

// AddToCart resolves a product reference and merges it into the cart.
// Resolution priority: explicit naming in the utterance, then the most recent
// product surfaced in conversation context. ProductAmbiguous when neither
// resolves.
func (e *Engine) AddToCart(
	ctx context.Context,
	id contractx.Identity,
	sessionID string,
	entities contractx.EntityBag,
	history []contractx.ContextEntry,
) (map[string]any, error) {
	product, err := e.resolveProduct(ctx, entities, history)
	if err != nil {
		return nil, err
	}

	qty := entities.Quantity
	if qty <= 0 {
		qty = 1
	}

	key := identityx.Key(id, sessionID)
	cart, err := e.carts.Load(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}

	cart.AddLine(statex.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  qty,
	}, e.now())

	if err := e.carts.Save(ctx, cart); err != nil {
		return nil, err
	}

	return map[string]any{
		"product":       product.Name,
		"unit_price":    product.UnitPrice,
		"quantity":      qty,
		"cart_lines":    len(cart.Lines),
		"cart_subtotal": cart.Subtotal(),
	}, nil
}

// resolveProduct finds the referenced product. Explicit naming wins; the
// conversation context is consulted only when the utterance names nothing.
func (e *Engine) resolveProduct(
	ctx context.Context,
	entities contractx.EntityBag,
	history []contractx.ContextEntry,
) (*storage.Product, error) {
	terms := append(append([]string{}, entities.Brands...), entities.ProductKeywords...)
	if p, err := e.findProduct(ctx, terms); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	for i := len(history) - 1; i >= 0; i-- {
		name := strings.TrimSpace(history[i].LastProduct)
		if name == "" {
			continue
		}
		if p, err := e.findProduct(ctx, strings.Fields(strings.ToLower(name))); err != nil {
			return nil, err
		} else if p != nil {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: which product should I add?", contractx.ErrProductAmbiguous)
}

// findProduct matches all terms against product names, deterministically
// ordered. Returns nil without error when no term matches.
func (e *Engine) findProduct(ctx context.Context, terms []string) (*storage.Product, error) {
	var filtered []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	var products []storage.Product
	q := e.db.NewSelect().Model(&products)
	for _, term := range filtered {
		q = q.Where("name ILIKE ?", "%"+term+"%")
	}
	if err := q.Order("name ASC").Limit(1).Scan(ctx); err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

/* --------------------------- ViewCart / Quoting --------------------------- */

// ViewCart is read-only: lines plus a priced quote for the holder's tier.
func (e *Engine) ViewCart(ctx context.Context, id contractx.Identity, sessionID string) (map[string]any, error) {
	key := identityx.Key(id, sessionID)
	cart, err := e.carts.Load(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}

	tier, region := storage.TierBronze, ""
	if id.Verified() {
		if customer, err := e.loadCustomer(ctx, id.CustomerID); err == nil {
			tier, region = customer.Tier, customer.Region
		}
	}

	quote := e.pricing.ComputeQuote(cart.Subtotal(), tier, region)

	lines := make([]map[string]any, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, map[string]any{
			"product":    l.Name,
			"unit_price": l.UnitPrice,
			"quantity":   l.Quantity,
			"subtotal":   l.UnitPrice * float64(l.Quantity),
		})
	}

	return map[string]any{
		"lines":         lines,
		"subtotal":      quote.Subtotal,
		"tier_discount": quote.TierDiscount,
		"delivery_fee":  quote.DeliveryFee,
		"total":         quote.Total,
	}, nil
}

/* -------------------------------- Checkout -------------------------------- */

// Checkout places the order atomically: re-validate stock on every line under
// row locks, decrement, create the order, clear the cart, recompute lifetime
// spend and tier. Any line failing leaves the store untouched. Identical
// resubmission of an already placed cart returns the original order.
func (e *Engine) Checkout(
	ctx context.Context,
	id contractx.Identity,
	sessionID string,
	entities contractx.EntityBag,
) (map[string]any, error) {
	if err := identityx.RequireVerified(id); err != nil {
		return nil, err
	}

	// The conditional-write lock makes concurrent submissions mutually
	// exclusive before the cart is even read, so the loser can never act on
	// stale state.
	key := identityx.Key(id, sessionID)
	acquired, err := e.carts.AcquireCheckoutLock(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: checkout already in progress", contractx.ErrValidation)
	}
	defer func() {
		if releaseErr := e.carts.ReleaseCheckoutLock(ctx, key, sessionID); releaseErr != nil {
			log.Warn().Err(releaseErr).Msg("failed to release checkout lock")
		}
	}()

	cart, err := e.carts.Load(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}

	// Idempotent resubmission: nothing was added since the last placement.
	if cart.PlacedOrderID != "" && cart.PlacedVersion == cart.Version {
		return map[string]any{
			"order_id":     cart.PlacedOrderID,
			"already":      true,
			"order_status": string(storage.OrderPending),
		}, nil
	}

	if cart.Empty() {
		return nil, fmt.Errorf("%w: add an item before checking out", contractx.ErrCartEmpty)
	}

	order, err := e.placeOrder(ctx, id.CustomerID, cart, entities)
	if err != nil {
		return nil, err
	}

	cart.MarkPlaced(order.ID, e.now())
	if err := e.carts.Save(ctx, cart); err != nil {
		// The order is committed; losing the marker only risks a duplicate
		// being rejected by the empty-cart check.
		log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to persist placed cart")
	}

	return map[string]any{
		"order_id":       order.ID,
		"order_status":   string(order.Status),
		"subtotal":       order.Subtotal,
		"tier_discount":  order.TierDiscount,
		"delivery_fee":   order.DeliveryFee,
		"total":          order.Total,
		"payment_method": order.PaymentMethod,
		"delivery_date":  order.DeliveryDate.Format("2006-01-02"),
	}, nil
}

func (e *Engine) placeOrder(
	ctx context.Context,
	customerID string,
	cart *statex.CartSession,
	entities contractx.EntityBag,
) (*storage.Order, error) {
	now := e.now().UTC()
	order := &storage.Order{
		ID:            "ORD-" + strings.ToUpper(uuid.NewString()[:8]),
		CustomerID:    customerID,
		Status:        storage.OrderPending,
		PaymentMethod: e.pricing.ResolvePaymentMethod(entities.PaymentMethods),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		customer := new(storage.Customer)
		if err := tx.NewSelect().Model(customer).
			Where("id = ?", customerID).
			For("UPDATE").
			Scan(ctx); err != nil {
			return fmt.Errorf("load customer: %w", err)
		}

		// Re-validate every line under row locks before any write.
		for _, line := range cart.Lines {
			product := new(storage.Product)
			if err := tx.NewSelect().Model(product).
				Where("id = ?", line.ProductID).
				For("UPDATE").
				Scan(ctx); err != nil {
				return fmt.Errorf("load product %s: %w", line.ProductID, err)
			}
			if product.StockQuantity < line.Quantity {
				return fmt.Errorf("%w: %s has %d left, need %d",
					contractx.ErrStockInsufficient, product.Name, product.StockQuantity, line.Quantity)
			}
		}

		for _, line := range cart.Lines {
			res, err := tx.NewUpdate().Model((*storage.Product)(nil)).
				Set("stock_quantity = stock_quantity - ?", line.Quantity).
				Set("in_stock = (stock_quantity - ?) > 0", line.Quantity).
				Where("id = ?", line.ProductID).
				Where("stock_quantity >= ?", line.Quantity).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if affected, err := res.RowsAffected(); err == nil && affected == 0 {
				return fmt.Errorf("%w: stock changed under checkout", contractx.ErrStockInsufficient)
			}
		}

		quote := e.pricing.ComputeQuote(cart.Subtotal(), customer.Tier, customer.Region)
		order.Subtotal = quote.Subtotal
		order.TierDiscount = quote.TierDiscount
		order.DeliveryFee = quote.DeliveryFee
		order.Total = quote.Total
		order.DeliveryDate = DeliveryDate(now, customer.Region)

		if !order.DeliveryDate.After(order.CreatedAt) {
			return fmt.Errorf("%w: delivery date not after creation", contractx.ErrOrderIntegrity)
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items := make([]*storage.OrderItem, 0, len(cart.Lines))
		for _, line := range cart.Lines {
			items = append(items, &storage.OrderItem{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Name:      line.Name,
				UnitPrice: line.UnitPrice,
				Quantity:  line.Quantity,
				Subtotal:  line.UnitPrice * float64(line.Quantity),
			})
		}
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		newSpend := customer.LifetimeSpend + order.Total
		newTier := e.pricing.NextTier(customer.Tier, newSpend)
		if _, err := tx.NewUpdate().Model((*storage.Customer)(nil)).
			Set("lifetime_spend = ?", newSpend).
			Set("tier = ?", newTier).
			Set("updated_at = ?", now).
			Where("id = ?", customerID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update customer: %w", err)
		}

		if newTier != customer.Tier {
			log.Info().
				Str("customer_id", customerID).
				Str("from", string(customer.Tier)).
				Str("to", string(newTier)).
				Msg("tier raised")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (e *Engine) loadCustomer(ctx context.Context, customerID string) (*storage.Customer, error) {
	customer := new(storage.Customer)
	if err := e.db.NewSelect().Model(customer).Where("id = ?", customerID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return customer, nil
}
