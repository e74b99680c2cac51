// Package recurring implements the recurring-transaction engine: the due
// selector, the transaction materializer and the batch dispatcher that
// fans due transactions out to throttled, retryable workers.
package recurring

import (
	"context"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/shopspring/decimal"
)

// Ledger is the slice of the store the recurring engine depends on.
// Implemented by *repository.Repository; tests substitute an in-memory
// store. Lookups return repository.ErrNotFound for missing rows, and
// MaterializeRecurring returns repository.ErrNotDue when the source is
// no longer due under its row lock.
type Ledger interface {
	DueRecurringTransactions(ctx context.Context, now time.Time) ([]models.DueTransaction, error)
	RecurringTransaction(ctx context.Context, txnID, userID string) (*models.Transaction, error)
	MaterializeRecurring(ctx context.Context, sourceID string, derived *models.Transaction, balanceChange decimal.Decimal, processedAt, nextDue time.Time) error
}

// IsDue reports whether the recurring transaction is eligible for
// materialization at the given instant: never processed, or its next due
// date has arrived.
func IsDue(txn *models.Transaction, now time.Time) bool {
	if !txn.IsRecurring || txn.Status != models.TransactionStatusCompleted {
		return false
	}
	if txn.LastProcessed == nil {
		return true
	}
	return txn.NextDueDate != nil && !txn.NextDueDate.After(now)
}
