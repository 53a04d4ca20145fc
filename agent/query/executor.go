package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 200 * time.Millisecond
)

// Executor runs resolved queries against the transactional store. Reads only:
// transient failures retry with exponential backoff up to a fixed bound,
// logic/syntax failures return immediately so the caller can fall back once.
type Executor struct {
	db         *bun.DB
	maxRetries uint64
}

type ExecutorOption func(*Executor)

func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = uint64(n)
		}
	}
}

func NewExecutor(db *bun.DB, opts ...ExecutorOption) (*Executor, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	e := &Executor{db: db, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Execute returns the rows plus how many retries were spent. The error, when
// set, is classified as ErrServiceDegraded (transient budget exhausted) or
// ErrQueryInvalid (bad query, eligible for one template fallback).
func (e *Executor) Execute(ctx context.Context, q contractx.ResolvedQuery) ([]map[string]any, int, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), e.maxRetries),
		ctx,
	)

	var (
		rows    []map[string]any
		retries int
	)
	operation := func() error {
		result, err := e.queryRows(ctx, q)
		if err == nil {
			rows = result
			return nil
		}
		if isTransient(err) {
			retries++
			log.Warn().Err(err).Int("retry", retries).Msg("transient query failure")
			return fmt.Errorf("%w: %w", contractx.ErrQueryTransient, err)
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if isTransient(err) {
			return nil, retries, fmt.Errorf("%w: %v", contractx.ErrServiceDegraded, err)
		}
		return nil, retries, fmt.Errorf("%w: %v", contractx.ErrQueryInvalid, err)
	}
	return rows, retries, nil
}

func (e *Executor) queryRows(ctx context.Context, q contractx.ResolvedQuery) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// isTransient classifies connection-level failures as retryable. Postgres
// error classes: 08 connection exception, 53 insufficient resources, 57
// operator intervention, 40001 serialization failure.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, contractx.ErrQueryTransient) {
		return true
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		switch {
		case strings.HasPrefix(code, "08"),
			strings.HasPrefix(code, "53"),
			strings.HasPrefix(code, "57"),
			code == "40001":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	b.MaxInterval = 2 * time.Second
	return b
}
