// Package alerts implements the periodic budget alert sweep.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// alertThreshold is the budget usage percentage at which an alert fires.
var alertThreshold = decimal.NewFromInt(80)

// Store is the slice of the ledger store the monitor reads and writes.
type Store interface {
	BudgetsWithDefaultAccount(ctx context.Context) ([]models.BudgetWithAccount, error)
	MonthExpenses(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error)
	SetBudgetLastAlert(ctx context.Context, budgetID string, at time.Time) error
}

// Notifier sends budget alert notifications.
type Notifier interface {
	SendBudgetAlert(to, username, accountName string, percentageUsed decimal.Decimal, budgetAmount, totalExpenses decimal.Decimal) error
}

// Monitor compares each user's current-month expenses on their default
// account against their budget ceiling and sends at most one alert per
// user per calendar month.
type Monitor struct {
	store    Store
	notifier Notifier
	log      *logrus.Logger
}

// NewMonitor initializes a new budget alert monitor
func NewMonitor(store Store, notifier Notifier, log *logrus.Logger) *Monitor {
	return &Monitor{store: store, notifier: notifier, log: log}
}

// Run performs one sweep over all budgets. Per-budget failures are
// logged and skipped so one user's problem never blocks the sweep.
func (m *Monitor) Run(ctx context.Context, now time.Time) error {
	budgets, err := m.store.BudgetsWithDefaultAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to load budgets: %w", err)
	}

	for _, b := range budgets {
		if err := m.check(ctx, b, now); err != nil {
			m.log.Errorf("Budget check failed for user %s: %v", b.Budget.UserID, err)
		}
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, b models.BudgetWithAccount, now time.Time) error {
	if b.DefaultAccount == nil {
		m.log.Debugf("User %s has no default account, skipping budget check", b.Budget.UserID)
		return nil
	}
	if !b.Budget.Amount.IsPositive() {
		m.log.Warnf("User %s has a non-positive budget, skipping", b.Budget.UserID)
		return nil
	}

	from, to := monthBounds(now)
	expenses, err := m.store.MonthExpenses(ctx, b.DefaultAccount.ID, from, to)
	if err != nil {
		return fmt.Errorf("failed to sum month expenses: %w", err)
	}

	percentageUsed := expenses.Div(b.Budget.Amount).Mul(decimal.NewFromInt(100))
	if percentageUsed.LessThan(alertThreshold) {
		return nil
	}
	if !shouldAlert(b.Budget.LastAlertSent, now) {
		m.log.Debugf("Budget alert for user %s already sent this month", b.Budget.UserID)
		return nil
	}

	// On send failure the alert timestamp is left untouched so the next
	// sweep retries; delivery reliability beyond that is the sender's
	// concern.
	if err := m.notifier.SendBudgetAlert(
		b.User.Email, b.User.Name, b.DefaultAccount.Name,
		percentageUsed, b.Budget.Amount, expenses); err != nil {
		return fmt.Errorf("failed to send budget alert: %w", err)
	}
	if err := m.store.SetBudgetLastAlert(ctx, b.Budget.ID, now); err != nil {
		return fmt.Errorf("failed to record alert time: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"user_id":         b.Budget.UserID,
		"account_id":      b.DefaultAccount.ID,
		"percentage_used": percentageUsed.StringFixed(1),
	}).Info("Sent budget alert")
	return nil
}

// shouldAlert reports whether an alert may fire now: never alerted, or
// last alerted in a strictly earlier calendar month.
func shouldAlert(lastAlertSent *time.Time, now time.Time) bool {
	if lastAlertSent == nil {
		return true
	}
	return lastAlertSent.Year() != now.Year() || lastAlertSent.Month() != now.Month()
}

// monthBounds returns [first of month, first of next month).
func monthBounds(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 1, 0)
}
