package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// Tier is the ordered loyalty level. Progression is monotonic upward only.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

var tierRank = map[Tier]int{
	TierBronze:   0,
	TierSilver:   1,
	TierGold:     2,
	TierPlatinum: 3,
}

// Rank returns the ordinal of the tier; unknown tiers rank as bronze.
func (t Tier) Rank() int {
	return tierRank[t]
}

// AtLeast reports whether t is the same or a higher tier than other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderDelivered  OrderStatus = "delivered"
	OrderReturned   OrderStatus = "returned"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID              string    `bun:"id,pk"`
	Name            string    `bun:"name,notnull"`
	Email           string    `bun:"email"`
	Tier            Tier      `bun:"tier,notnull,default:'bronze'"`
	LifetimeSpend   float64   `bun:"lifetime_spend,notnull,default:0"`
	Region          string    `bun:"region"`
	DeliveryAddress string    `bun:"delivery_address"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name,notnull"`
	Category      string    `bun:"category"`
	Brand         string    `bun:"brand"`
	UnitPrice     float64   `bun:"unit_price,notnull"`
	StockQuantity int       `bun:"stock_quantity,notnull,default:0"`
	InStock       bool      `bun:"in_stock,notnull,default:true"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string      `bun:"id,pk"`
	CustomerID    string      `bun:"customer_id,notnull"`
	Status        OrderStatus `bun:"status,notnull,default:'pending'"`
	PaymentMethod string      `bun:"payment_method,notnull"`
	Subtotal      float64     `bun:"subtotal,notnull"`
	TierDiscount  float64     `bun:"tier_discount,notnull,default:0"`
	DeliveryFee   float64     `bun:"delivery_fee,notnull,default:0"`
	Total         float64     `bun:"total,notnull"`
	DeliveryDate  time.Time   `bun:"delivery_date,notnull"`
	CreatedAt     time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID        string  `bun:"id,pk"`
	OrderID   string  `bun:"order_id,notnull"`
	ProductID string  `bun:"product_id,notnull"`
	Name      string  `bun:"name,notnull"`
	UnitPrice float64 `bun:"unit_price,notnull"`
	Quantity  int     `bun:"quantity,notnull"`
	Subtotal  float64 `bun:"subtotal,notnull"`
}

// forwardStatus encodes the forward-only order lifecycle. Returned is
// reachable from any non-terminal state.
var forwardStatus = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderReturned},
	OrderProcessing: {OrderDelivered, OrderReturned},
	OrderDelivered:  {},
	OrderReturned:   {},
}

// CanTransition reports whether an order status change is legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range forwardStatus[from] {
		if next == to {
			return true
		}
	}
	return false
}
