// Package engine implements the record-storage and mutation core: per-kind
// value stores, the append-only changelog, reverse-relation maintenance, the
// access gate, and the transactional write coordinator and read projector
// built on top of them.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ticketcore/pkg/domain"
)

// Dialect names the SQL flavor the store speaks.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// queryer abstracts *sql.DB and *sql.Tx so read helpers run inside or
// outside a transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store wraps the opened database handle with its dialect. All mutation runs
// through runInTx; reads go straight to the handle and never block writers.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an opened handle. The schema is expected to be applied by
// the persistence adapter that opened it.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL flavor the store was opened with.
func (s *Store) Dialect() Dialect { return s.dialect }

// runInTx executes fn within a transaction. Any error rolls back the whole
// mutation; nothing inside the engine suspends mid-transaction.
func (s *Store) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Timestamps persist as integral microseconds so both dialects share one
// column type. Zero means "not set" (templates).

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// classifyWrite maps substrate rejections of uniqueness or foreign-key rules
// to ConstraintViolation; anything else keeps its wrapped shape.
func classifyWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") || strings.Contains(msg, "sqlstate 23") {
		return domain.ConstraintViolation{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
