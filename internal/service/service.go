package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/avezhov/finance-service/internal/recurrence"
	"github.com/avezhov/finance-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Store is the data access surface the service depends on. Implemented
// by *repository.Repository.
type Store interface {
	AccountsByUser(ctx context.Context, userID string) ([]models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	SetDefaultAccount(ctx context.Context, accountID, userID string) error
	AccountByID(ctx context.Context, accountID, userID string) (*models.Account, error)

	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateTransaction(ctx context.Context, txn *models.Transaction, balanceDelta decimal.Decimal) error
	DeleteTransactions(ctx context.Context, userID string, ids []string, balanceDeltas map[string]decimal.Decimal) error
	TransactionByID(ctx context.Context, txnID, userID string) (*models.Transaction, error)
	TransactionsByIDs(ctx context.Context, userID string, ids []string) ([]models.Transaction, error)
	TransactionsByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error)

	UpsertBudget(ctx context.Context, budget *models.Budget) error
	BudgetByUser(ctx context.Context, userID string) (*models.Budget, error)
	MonthExpenses(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error)
}

// Service handles business logic
type Service struct {
	store Store
	log   *logrus.Logger
}

// NewService initializes a new service
func NewService(store Store, log *logrus.Logger) *Service {
	return &Service{store: store, log: log}
}

// AccountInput carries account creation parameters.
type AccountInput struct {
	Name      string             `json:"name"`
	Type      models.AccountType `json:"type"`
	Balance   decimal.Decimal    `json:"balance"`
	IsDefault bool               `json:"is_default"`
}

// CreateAccount creates an account for the user. The user's first
// account always becomes the default; an explicit default displaces any
// previous one.
func (s *Service) CreateAccount(ctx context.Context, userID string, input AccountInput) (*models.Account, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("account name is required")
	}
	if input.Type != models.AccountTypeCurrent && input.Type != models.AccountTypeSavings {
		return nil, fmt.Errorf("invalid account type %q", input.Type)
	}

	existing, err := s.store.AccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      input.Name,
		Type:      input.Type,
		Balance:   input.Balance,
		IsDefault: input.IsDefault || len(existing) == 0,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.log.Infof("Account created for user %s: %s", userID, account.Name)
	return account, nil
}

// Accounts lists the user's accounts.
func (s *Service) Accounts(ctx context.Context, userID string) ([]models.Account, error) {
	return s.store.AccountsByUser(ctx, userID)
}

// AccountWithTransactions returns an account and its transactions.
func (s *Service) AccountWithTransactions(ctx context.Context, accountID, userID string) (*models.Account, []models.Transaction, error) {
	account, err := s.store.AccountByID(ctx, accountID, userID)
	if err != nil {
		return nil, nil, err
	}
	txns, err := s.store.TransactionsByAccount(ctx, accountID, userID)
	if err != nil {
		return nil, nil, err
	}
	return account, txns, nil
}

// SetDefaultAccount makes the account the user's single default.
func (s *Service) SetDefaultAccount(ctx context.Context, accountID, userID string) error {
	return s.store.SetDefaultAccount(ctx, accountID, userID)
}

// TransactionInput carries transaction creation/update parameters.
type TransactionInput struct {
	AccountID         string                    `json:"account_id"`
	Type              models.TransactionType    `json:"type"`
	Amount            decimal.Decimal           `json:"amount"`
	Date              time.Time                 `json:"date"`
	Category          string                    `json:"category"`
	Description       string                    `json:"description"`
	IsRecurring       bool                      `json:"is_recurring"`
	RecurringInterval *models.RecurringInterval `json:"recurring_interval,omitempty"`
}

func (in *TransactionInput) validate() error {
	if in.Type != models.TransactionTypeIncome && in.Type != models.TransactionTypeExpense {
		return fmt.Errorf("invalid transaction type %q", in.Type)
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative")
	}
	if in.IsRecurring && in.RecurringInterval == nil {
		return fmt.Errorf("recurring transactions require an interval")
	}
	if !in.IsRecurring && in.RecurringInterval != nil {
		return fmt.Errorf("interval is only valid on recurring transactions")
	}
	return nil
}

// nextDueDate computes the next due date for a recurring input, one
// interval after ref.
func (in *TransactionInput) nextDueDate(ref time.Time) (*time.Time, error) {
	if !in.IsRecurring {
		return nil, nil
	}
	next, err := recurrence.NextOccurrence(ref, *in.RecurringInterval)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// AddTransaction records a transaction and applies its balance effect to
// the owning account atomically. Recurring inputs get their first next
// due date from the recurrence calculator.
func (s *Service) AddTransaction(ctx context.Context, userID string, input TransactionInput) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.AccountByID(ctx, input.AccountID, userID); err != nil {
		return nil, err
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}

	nextDue, err := input.nextDueDate(input.Date)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:                uuid.New().String(),
		UserID:            userID,
		AccountID:         input.AccountID,
		Type:              input.Type,
		Amount:            input.Amount,
		Date:              input.Date,
		Category:          input.Category,
		Description:       input.Description,
		Status:            models.TransactionStatusCompleted,
		IsRecurring:       input.IsRecurring,
		RecurringInterval: input.RecurringInterval,
		NextDueDate:       nextDue,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	s.log.Infof("Transaction created for user %s: %s %s", userID, txn.Type, txn.Amount)
	return txn, nil
}

// Transaction retrieves one transaction of the user.
func (s *Service) Transaction(ctx context.Context, txnID, userID string) (*models.Transaction, error) {
	return s.store.TransactionByID(ctx, txnID, userID)
}

// EditTransaction rewrites a transaction and applies the net balance
// delta (new effect minus old effect) to the account atomically.
func (s *Service) EditTransaction(ctx context.Context, userID, txnID string, input TransactionInput) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.TransactionByID(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}
	if input.AccountID != "" && input.AccountID != existing.AccountID {
		return nil, fmt.Errorf("transaction cannot move to another account")
	}

	updated := *existing
	updated.Type = input.Type
	updated.Amount = input.Amount
	if !input.Date.IsZero() {
		updated.Date = input.Date
	}
	updated.Category = input.Category
	updated.Description = input.Description
	updated.IsRecurring = input.IsRecurring
	updated.RecurringInterval = input.RecurringInterval

	// The schedule follows the date the transaction ends up with, which
	// stays the stored one when the input omits a date.
	nextDue, err := input.nextDueDate(updated.Date)
	if err != nil {
		return nil, err
	}
	updated.NextDueDate = nextDue

	delta := updated.BalanceEffect().Sub(existing.BalanceEffect())
	if err := s.store.UpdateTransaction(ctx, &updated, delta); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTransactions removes the user's transactions and reverses their
// balance effect per account in one atomic unit.
func (s *Service) DeleteTransactions(ctx context.Context, userID string, ids []string) error {
	txns, err := s.store.TransactionsByIDs(ctx, userID, ids)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}

	deltas := map[string]decimal.Decimal{}
	deleteIDs := make([]string, 0, len(txns))
	for _, txn := range txns {
		deltas[txn.AccountID] = deltas[txn.AccountID].Sub(txn.BalanceEffect())
		deleteIDs = append(deleteIDs, txn.ID)
	}

	if err := s.store.DeleteTransactions(ctx, userID, deleteIDs, deltas); err != nil {
		return err
	}
	s.log.Infof("Deleted %d transactions for user %s", len(deleteIDs), userID)
	return nil
}

// UpsertBudget creates or replaces the user's single budget ceiling.
func (s *Service) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (*models.Budget, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("budget amount must be positive")
	}

	budget := &models.Budget{
		ID:     uuid.New().String(),
		UserID: userID,
		Amount: amount,
	}
	if err := s.store.UpsertBudget(ctx, budget); err != nil {
		return nil, err
	}
	return budget, nil
}

// CurrentBudget returns the user's budget (nil if none is set) and the
// account's expense total for the current calendar month.
func (s *Service) CurrentBudget(ctx context.Context, userID, accountID string) (*models.Budget, decimal.Decimal, error) {
	budget, err := s.store.BudgetByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, decimal.Zero, err
	}

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	expenses, err := s.store.MonthExpenses(ctx, accountID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, decimal.Zero, err
	}
	return budget, expenses, nil
}
