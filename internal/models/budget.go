package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a per-user monthly spending ceiling. At most one exists per
// user; writes use upsert semantics.
type Budget struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	LastAlertSent *time.Time      `json:"last_alert_sent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BudgetWithAccount is a budget joined with its owner and the owner's
// default account, as consumed by the budget alert sweep. DefaultAccount
// is nil when the user has no default account.
type BudgetWithAccount struct {
	Budget         Budget
	User           User
	DefaultAccount *Account
}
