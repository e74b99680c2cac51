package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Selector finds recurring transactions eligible for materialization.
type Selector struct {
	store Ledger
	log   *logrus.Logger
}

// NewSelector initializes a new selector
func NewSelector(store Ledger, log *logrus.Logger) *Selector {
	return &Selector{store: store, log: log}
}

// DueTransactions returns the currently due recurring transactions. It
// is a full scan of the recurring population and has no side effects.
func (s *Selector) DueTransactions(ctx context.Context, now time.Time) ([]models.DueTransaction, error) {
	due, err := s.store.DueRecurringTransactions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due transactions: %w", err)
	}
	s.log.Infof("Selected %d due recurring transactions", len(due))
	return due, nil
}
