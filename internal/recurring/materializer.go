package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/avezhov/finance-service/internal/recurrence"
	"github.com/avezhov/finance-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Materializer turns due recurring transactions into concrete ledger
// entries. Safe under duplicate delivery: the due re-check (here and
// again under the store's row lock) makes a second invocation for an
// already-processed transaction a silent no-op.
type Materializer struct {
	store Ledger
	log   *logrus.Logger
	now   func() time.Time
}

// NewMaterializer initializes a new materializer
func NewMaterializer(store Ledger, log *logrus.Logger) *Materializer {
	return &Materializer{store: store, log: log, now: time.Now}
}

// Materialize processes one due recurring transaction: it creates a
// derived non-recurring transaction dated now, applies its balance
// effect to the owning account and advances the source's schedule, all
// as one atomic store unit. Missing or no-longer-due transactions are
// skips, not errors, so a batch never fails on them; any returned error
// is transient and safe to retry.
func (m *Materializer) Materialize(ctx context.Context, txnID, userID string) error {
	if txnID == "" || userID == "" {
		m.log.Warnf("Skipping materialization with missing identifiers: txn=%q user=%q", txnID, userID)
		return nil
	}

	txn, err := m.store.RecurringTransaction(ctx, txnID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		m.log.Warnf("Recurring transaction %s not found for user %s, skipping", txnID, userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load recurring transaction: %w", err)
	}

	now := m.now()
	if !IsDue(txn, now) {
		m.log.Debugf("Recurring transaction %s is not due, skipping", txnID)
		return nil
	}

	if txn.RecurringInterval == nil {
		m.log.Errorf("Recurring transaction %s has no interval, skipping", txnID)
		return nil
	}
	nextDue, err := recurrence.NextOccurrence(now, *txn.RecurringInterval)
	if err != nil {
		// Contract violation by whoever wrote the row; not retryable.
		m.log.Errorf("Recurring transaction %s: %v, skipping", txnID, err)
		return nil
	}

	derived := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      txn.UserID,
		AccountID:   txn.AccountID,
		Type:        txn.Type,
		Amount:      txn.Amount,
		Date:        now,
		Category:    txn.Category,
		Description: txn.Description + " (recurring)",
		Status:      models.TransactionStatusCompleted,
		IsRecurring: false,
	}

	err = m.store.MaterializeRecurring(ctx, txn.ID, derived, derived.BalanceEffect(), now, nextDue)
	if errors.Is(err, repository.ErrNotDue) || errors.Is(err, repository.ErrNotFound) {
		m.log.Debugf("Recurring transaction %s already handled elsewhere, skipping", txnID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to materialize transaction %s: %w", txnID, err)
	}

	m.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"derived_id":     derived.ID,
		"user_id":        userID,
		"amount":         txn.Amount.String(),
		"type":           txn.Type,
		"next_due_date":  nextDue.Format("2006-01-02"),
	}).Info("Materialized recurring transaction")
	return nil
}
