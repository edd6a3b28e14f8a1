package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// TransactionManager runs units of work against the credential store
// atomically.
type TransactionManager struct {
	db      *sql.DB
	timeout time.Duration
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db, timeout: 10 * time.Second}
}

// Execute runs fn within a serializable transaction, rolling back on error
// or panic.
func (tm *TransactionManager) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	tx, err := tm.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  false,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", errors.ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", errors.ErrTransactionFailed, err)
	}

	return nil
}
