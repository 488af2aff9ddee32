package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx. Repositories
// run against whichever the ambient context carries.
type Querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

type txKey struct{}

// TxManager opens REPEATABLE READ transactions and threads them through the
// context so repositories join the ambient transaction transparently.
type TxManager struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *sqlx.DB, logger *logrus.Logger) *TxManager {
	return &TxManager{
		db:     db,
		logger: logger,
	}
}

// WithinTx runs fn inside a transaction. A nested call re-uses the outer
// transaction; commit and rollback stay with the outermost caller.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.WithError(rbErr).Error("Failed to rollback after panic")
			}
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QuerierFrom returns the transaction carried by ctx, or db when none is
// active.
func QuerierFrom(ctx context.Context, db *sqlx.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an ambient transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}

// isSerializationFailure matches the Postgres serialization_failure (40001)
// and deadlock_detected (40P01) classes. Under REPEATABLE READ a lost write
// race aborts with 40001 instead of matching zero rows, so a CAS update can
// lose without ever reporting an affected-row count.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
