package sqldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quiz-session-service/internal/domain"
	"github.com/uptrace/bun"
)

// runInTx executes fn inside one transaction. The transaction commits when fn
// returns nil and is rolled back on error or panic; the connection is released
// on every path.
func runInTx(ctx context.Context, db *bun.DB, op string, fn func(ctx context.Context, tx bun.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConnectionFailure, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "op", op, "err", rbErr)
		}
		slog.Warn("transaction rolled back", "op", op, "err", err)
		if errors.Is(err, domain.ErrTransactionFailure) || errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransactionFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w: %w", op, domain.ErrTransactionFailure, err)
	}
	return nil
}

// readErr wraps a failed read so callers can tell it apart from "not found".
func readErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// affected converts an update/delete result to the found/not-found signal.
func affected(op string, res interface{ RowsAffected() (int64, error) }, err error) (bool, error) {
	if err != nil {
		return false, readErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, readErr(op, err)
	}
	return n > 0, nil
}
