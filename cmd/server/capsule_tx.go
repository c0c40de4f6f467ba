package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	capsulesvc "kairos/internal/capsule/service"
	capsulestore "kairos/internal/capsule/store"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/platform/sentinel"
	txcontext "kairos/pkg/platform/tx"
)

// capsulePostgresTx runs capsule units of work in one SQL transaction. The
// store locks the capsule row on read, so concurrent writers to one capsule
// queue on the row lock.
type capsulePostgresTx struct {
	db      *sql.DB
	store   *capsulestore.PostgresStore
	timeout time.Duration
}

func newCapsulePostgresTx(db *sql.DB, store *capsulestore.PostgresStore, timeout time.Duration) *capsulePostgresTx {
	return &capsulePostgresTx{db: db, store: store, timeout: timeout}
}

func (t *capsulePostgresTx) RunInTx(ctx context.Context, _ id.CapsuleID, fn func(ctx context.Context, store capsulesvc.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = capsulesvc.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return txFailure(ctx, "begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return txFailure(ctx, "commit", err)
	}
	return nil
}

func txFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "transaction aborted: "+op+" timed out")
	}
	return fmt.Errorf("%s capsule tx: %w: %w", op, sentinel.ErrUnavailable, err)
}
