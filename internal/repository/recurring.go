package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/shopspring/decimal"
)

// lockTimeout bounds the wait on row locks during materialization so a
// stuck lock surfaces as a transient, retryable failure.
const lockTimeout = "5s"

// DueRecurringTransactions scans the recurring population and returns
// the transactions eligible for materialization: active recurring
// transactions never processed before, or whose next due date has
// arrived. Read-only.
func (r *Repository) DueRecurringTransactions(ctx context.Context, now time.Time) ([]models.DueTransaction, error) {
	query := `
		SELECT id, user_id
		FROM finance.transactions
		WHERE is_recurring
		  AND status = 'COMPLETED'
		  AND (last_processed IS NULL OR next_due_date <= $1)`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due transactions: %w", err)
	}
	defer rows.Close()

	var due []models.DueTransaction
	for rows.Next() {
		var d models.DueTransaction
		if err := rows.Scan(&d.TransactionID, &d.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan due transaction: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// RecurringTransaction loads a recurring transaction under its owner.
func (r *Repository) RecurringTransaction(ctx context.Context, txnID, userID string) (*models.Transaction, error) {
	return r.TransactionByID(ctx, txnID, userID)
}

// MaterializeRecurring turns one due recurring transaction into a ledger
// entry as a single atomic unit: it inserts the derived transaction,
// applies balanceChange to the owning account, and advances the source's
// schedule. The source row is locked and its due-ness re-checked inside
// the transaction, so a concurrent or re-delivered materialization of
// the same transaction gets ErrNotDue instead of double-applying.
func (r *Repository) MaterializeRecurring(ctx context.Context, sourceID string, derived *models.Transaction, balanceChange decimal.Decimal, processedAt, nextDue time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockTimeout)); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var isRecurring bool
	var status models.TransactionStatus
	var lastProcessed, nextDueDate sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT is_recurring, status, last_processed, next_due_date
		FROM finance.transactions
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, sourceID, derived.UserID).
		Scan(&isRecurring, &status, &lastProcessed, &nextDueDate)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock source transaction: %w", err)
	}

	due := isRecurring && status == models.TransactionStatusCompleted &&
		(!lastProcessed.Valid || (nextDueDate.Valid && !nextDueDate.Time.After(processedAt)))
	if !due {
		return ErrNotDue
	}

	if err := adjustBalance(ctx, tx, derived.AccountID, derived.UserID, balanceChange); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, derived); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE finance.transactions
		SET last_processed = $1, next_due_date = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`, processedAt, nextDue, sourceID); err != nil {
		return fmt.Errorf("failed to advance schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit materialization: %w", err)
	}
	return nil
}
