package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

/* ------------------------------ fake driver ------------------------------ */

type fakeConn struct {
	mu       sync.Mutex
	failures int
	failWith error
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare unsupported") }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("tx unsupported") }

func (c *fakeConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures != 0 {
		if c.failures > 0 {
			c.failures--
		}
		return nil, c.failWith
	}
	return &fakeRows{}, nil
}

type fakeRows struct{ done bool }

func (r *fakeRows) Columns() []string { return []string{"name", "unit_price"} }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = []byte("Infinix Hot 40")
	dest[1] = int64(180000)
	return nil
}

type fakeConnector struct{ conn *fakeConn }

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return nil, errors.New("open unsupported") }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newTestExecutor(t *testing.T, conn *fakeConn, opts ...ExecutorOption) *Executor {
	t.Helper()
	sqldb := sql.OpenDB(&fakeConnector{conn: conn})
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	e, err := NewExecutor(db, opts...)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

/* --------------------------------- tests --------------------------------- */

func TestExecuteRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{failures: 2, failWith: timeoutError{}}
	e := newTestExecutor(t, conn, WithMaxRetries(3))

	rows, retries, err := e.Execute(context.Background(), contractx.ResolvedQuery{
		SQL: "SELECT name, unit_price FROM products LIMIT 1",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	// Byte columns come back as strings.
	if rows[0]["name"] != "Infinix Hot 40" {
		t.Fatalf("name = %v (%T)", rows[0]["name"], rows[0]["name"])
	}
	if rows[0]["unit_price"] != int64(180000) {
		t.Fatalf("unit_price = %v", rows[0]["unit_price"])
	}
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{failures: -1, failWith: timeoutError{}}
	e := newTestExecutor(t, conn, WithMaxRetries(1))

	_, retries, err := e.Execute(context.Background(), contractx.ResolvedQuery{SQL: "SELECT 1"})
	if !errors.Is(err, contractx.ErrServiceDegraded) {
		t.Fatalf("err = %v, want ErrServiceDegraded", err)
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2 attempts spent", retries)
	}
}

func TestExecuteDoesNotRetryLogicErrors(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{failures: -1, failWith: errors.New(`syntax error at or near "SELEC"`)}
	e := newTestExecutor(t, conn, WithMaxRetries(3))

	_, retries, err := e.Execute(context.Background(), contractx.ResolvedQuery{SQL: "SELEC 1"})
	if !errors.Is(err, contractx.ErrQueryInvalid) {
		t.Fatalf("err = %v, want ErrQueryInvalid", err)
	}
	if retries != 0 {
		t.Fatalf("retries = %d, want 0 for permanent failure", retries)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"net timeout", timeoutError{}, true},
		{"wrapped net timeout", fmt.Errorf("query: %w", timeoutError{}), true},
		{"bad conn", driver.ErrBadConn, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"conn done", sql.ErrConnDone, true},
		{"deadline", context.DeadlineExceeded, true},
		{"taxonomy transient", fmt.Errorf("%w: dial tcp", contractx.ErrQueryTransient), true},
		{"syntax error", errors.New("syntax error"), false},
		{"constraint violation", errors.New(`duplicate key value violates unique constraint "orders_pkey"`), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
