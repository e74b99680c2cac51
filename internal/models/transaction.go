package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// TransactionStatus is the processing status of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
)

// RecurringInterval is the cadence of a recurring transaction.
type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

// Transaction represents a financial transaction. Amount is always
// non-negative; the sign of its balance effect is implied by Type.
// RecurringInterval, LastProcessed and NextDueDate are only set on
// recurring transactions.
type Transaction struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	AccountID         string             `json:"account_id"`
	Type              TransactionType    `json:"type"`
	Amount            decimal.Decimal    `json:"amount"`
	Date              time.Time          `json:"date"`
	Category          string             `json:"category"`
	Description       string             `json:"description"`
	Status            TransactionStatus  `json:"status"`
	IsRecurring       bool               `json:"is_recurring"`
	RecurringInterval *RecurringInterval `json:"recurring_interval,omitempty"`
	LastProcessed     *time.Time         `json:"last_processed,omitempty"`
	NextDueDate       *time.Time         `json:"next_due_date,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// BalanceEffect returns the signed change this transaction applies to its
// account's balance.
func (t *Transaction) BalanceEffect() decimal.Decimal {
	if t.Type == TransactionTypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// DueTransaction identifies one due recurring transaction selected for
// materialization.
type DueTransaction struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
}
