package storage

import (
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

// NewDB opens a Postgres-backed bun.DB from config.
func NewDB(cfg Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	return bun.NewDB(sqldb, pgdialect.New())
}

// SchemaDescription is the closed schema handed to the NL-to-SQL oracle.
// Column names here must track the bun models above.
const SchemaDescription = `
customers(id text pk, name text, email text, tier text in {bronze,silver,gold,platinum},
  lifetime_spend numeric, region text, delivery_address text, created_at timestamptz, updated_at timestamptz)
products(id text pk, name text, category text, brand text, unit_price numeric,
  stock_quantity int, in_stock bool, created_at timestamptz)
orders(id text pk, customer_id text fk->customers.id, status text in {pending,processing,delivered,returned},
  payment_method text, subtotal numeric, tier_discount numeric, delivery_fee numeric, total numeric,
  delivery_date timestamptz, created_at timestamptz, updated_at timestamptz)
order_items(id text pk, order_id text fk->orders.id, product_id text fk->products.id,
  name text, unit_price numeric, quantity int, subtotal numeric)
`
