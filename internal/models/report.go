package models

import "github.com/shopspring/decimal"

// MonthlyStats aggregates one user's transactions over a calendar month.
type MonthlyStats struct {
	TotalIncome      decimal.Decimal            `json:"total_income"`
	TotalExpense     decimal.Decimal            `json:"total_expense"`
	ByCategory       map[string]decimal.Decimal `json:"by_category"`
	TransactionCount int                        `json:"transaction_count"`
}

// NewMonthlyStats returns zeroed stats with an initialized category map.
func NewMonthlyStats() MonthlyStats {
	return MonthlyStats{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		ByCategory:   map[string]decimal.Decimal{},
	}
}
