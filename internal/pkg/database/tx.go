package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultBackoff = 20 * time.Millisecond

// Transactor runs all-or-nothing units of work and retries the ones that
// lose a write conflict, up to a fixed number of attempts.
type Transactor struct {
	db       *gorm.DB
	attempts int
	backoff  time.Duration
}

// NewTransactor returns a Transactor making at most attempts tries per unit of work.
func NewTransactor(db *gorm.DB, attempts int) *Transactor {
	if attempts < 1 {
		attempts = 1
	}
	return &Transactor{db: db, attempts: attempts, backoff: defaultBackoff}
}

// DB returns the handle for reads that do not need a transaction.
func (t *Transactor) DB() *gorm.DB {
	return t.db
}

// Run executes fn in a transaction. fn may be invoked more than once, so it
// must not carry state between invocations other than through tx.
func (t *Transactor) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		err := t.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err
		slog.WarnContext(ctx, "unit of work lost a write conflict", "attempt", attempt, "max_attempts", t.attempts, "error", err)

		if attempt == t.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrTransientConflict, t.attempts, lastErr)
}

// ForUpdate adds a row lock to q on dialects that support SELECT ... FOR UPDATE.
// SQLite already serializes writers, so it is left untouched there.
func ForUpdate(q *gorm.DB) *gorm.DB {
	if q.Dialector.Name() == "mysql" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}
