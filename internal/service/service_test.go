package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/avezhov/finance-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fakeStore records calls and serves canned data; balance arithmetic is
// asserted on the deltas the service hands to the store.
type fakeStore struct {
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction

	createdAccounts []*models.Account
	createdTxns     []*models.Transaction
	updatedTxn      *models.Transaction
	updatedDelta    decimal.Decimal
	deletedIDs      []string
	deletedDeltas   map[string]decimal.Decimal
	upsertedBudget  *models.Budget
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     map[string]*models.Account{},
		transactions: map[string]*models.Transaction{},
	}
}

func (s *fakeStore) AccountsByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.createdAccounts = append(s.createdAccounts, account)
	s.accounts[account.ID] = account
	return nil
}

func (s *fakeStore) SetDefaultAccount(ctx context.Context, accountID, userID string) error {
	if a, ok := s.accounts[accountID]; !ok || a.UserID != userID {
		return repository.ErrNotFound
	}
	for _, a := range s.accounts {
		if a.UserID == userID {
			a.IsDefault = a.ID == accountID
		}
	}
	return nil
}

func (s *fakeStore) AccountByID(ctx context.Context, accountID, userID string) (*models.Account, error) {
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	s.createdTxns = append(s.createdTxns, txn)
	s.transactions[txn.ID] = txn
	return nil
}

func (s *fakeStore) UpdateTransaction(ctx context.Context, txn *models.Transaction, balanceDelta decimal.Decimal) error {
	s.updatedTxn = txn
	s.updatedDelta = balanceDelta
	s.transactions[txn.ID] = txn
	return nil
}

func (s *fakeStore) DeleteTransactions(ctx context.Context, userID string, ids []string, balanceDeltas map[string]decimal.Decimal) error {
	s.deletedIDs = ids
	s.deletedDeltas = balanceDeltas
	return nil
}

func (s *fakeStore) TransactionByID(ctx context.Context, txnID, userID string) (*models.Transaction, error) {
	txn, ok := s.transactions[txnID]
	if !ok || txn.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return txn, nil
}

func (s *fakeStore) TransactionsByIDs(ctx context.Context, userID string, ids []string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, id := range ids {
		if txn, ok := s.transactions[id]; ok && txn.UserID == userID {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (s *fakeStore) TransactionsByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, txn := range s.transactions {
		if txn.AccountID == accountID && txn.UserID == userID {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertBudget(ctx context.Context, budget *models.Budget) error {
	s.upsertedBudget = budget
	return nil
}

func (s *fakeStore) BudgetByUser(ctx context.Context, userID string) (*models.Budget, error) {
	if s.upsertedBudget == nil || s.upsertedBudget.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return s.upsertedBudget, nil
}

func (s *fakeStore) MonthExpenses(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newService(store *fakeStore) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(store, log)
}

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAccountFirstAccountBecomesDefault(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newService(store)

	account, err := svc.CreateAccount(context.Background(), "user-1", AccountInput{
		Name: "Checking", Type: models.AccountTypeCurrent, Balance: mustDecimal("100.00"),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !account.IsDefault {
		t.Fatal("first account must be the default even when not requested")
	}

	second, err := svc.CreateAccount(context.Background(), "user-1", AccountInput{
		Name: "Savings", Type: models.AccountTypeSavings,
	})
	if err != nil {
		t.Fatalf("create second account: %v", err)
	}
	if second.IsDefault {
		t.Fatal("second account must not be default unless requested")
	}
}

func TestCreateAccountValidation(t *testing.T) {
	t.Parallel()

	svc := newService(newFakeStore())

	if _, err := svc.CreateAccount(context.Background(), "user-1", AccountInput{Type: models.AccountTypeCurrent}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := svc.CreateAccount(context.Background(), "user-1", AccountInput{Name: "X", Type: "CHECKING"}); err == nil {
		t.Fatal("expected error for unknown account type")
	}
}

func seedAccount(store *fakeStore) *models.Account {
	account := &models.Account{
		ID:      "acc-1",
		UserID:  "user-1",
		Name:    "Checking",
		Type:    models.AccountTypeCurrent,
		Balance: mustDecimal("1000.00"),
	}
	store.accounts[account.ID] = account
	return account
}

func TestAddTransactionSetsInitialNextDueDate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	svc := newService(store)

	interval := models.IntervalMonthly
	date := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)
	txn, err := svc.AddTransaction(context.Background(), "user-1", TransactionInput{
		AccountID:         "acc-1",
		Type:              models.TransactionTypeExpense,
		Amount:            mustDecimal("50.00"),
		Date:              date,
		Category:          "housing",
		Description:       "Rent",
		IsRecurring:       true,
		RecurringInterval: &interval,
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	want := time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC)
	if txn.NextDueDate == nil || !txn.NextDueDate.Equal(want) {
		t.Fatalf("next due date = %v, want %s", txn.NextDueDate, want)
	}
	if txn.Status != models.TransactionStatusCompleted {
		t.Fatalf("status = %s", txn.Status)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	svc := newService(store)
	interval := models.IntervalWeekly

	cases := []struct {
		name  string
		input TransactionInput
	}{
		{"bad type", TransactionInput{AccountID: "acc-1", Type: "TRANSFER", Amount: mustDecimal("1")}},
		{"negative amount", TransactionInput{AccountID: "acc-1", Type: models.TransactionTypeExpense, Amount: mustDecimal("-1")}},
		{"recurring without interval", TransactionInput{AccountID: "acc-1", Type: models.TransactionTypeExpense, Amount: mustDecimal("1"), IsRecurring: true}},
		{"interval without recurring", TransactionInput{AccountID: "acc-1", Type: models.TransactionTypeExpense, Amount: mustDecimal("1"), RecurringInterval: &interval}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddTransaction(context.Background(), "user-1", tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if _, err := svc.AddTransaction(context.Background(), "user-1", TransactionInput{
		AccountID: "acc-missing", Type: models.TransactionTypeExpense, Amount: mustDecimal("1"),
	}); err == nil {
		t.Fatal("expected error for unknown account")
	}
	if len(store.createdTxns) != 0 {
		t.Fatalf("no transactions should have been created, got %d", len(store.createdTxns))
	}
}

func TestEditTransactionAppliesNetBalanceDelta(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	store.transactions["txn-1"] = &models.Transaction{
		ID:        "txn-1",
		UserID:    "user-1",
		AccountID: "acc-1",
		Type:      models.TransactionTypeExpense,
		Amount:    mustDecimal("50.00"),
		Date:      time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Status:    models.TransactionStatusCompleted,
	}
	svc := newService(store)

	_, err := svc.EditTransaction(context.Background(), "user-1", "txn-1", TransactionInput{
		AccountID: "acc-1",
		Type:      models.TransactionTypeExpense,
		Amount:    mustDecimal("80.00"),
	})
	if err != nil {
		t.Fatalf("edit transaction: %v", err)
	}

	// Old effect -50, new effect -80: the account must move by -30.
	if want := mustDecimal("-30.00"); !store.updatedDelta.Equal(want) {
		t.Fatalf("balance delta = %s, want %s", store.updatedDelta, want)
	}
}

func TestEditTransactionTypeFlipReversesEffect(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	store.transactions["txn-1"] = &models.Transaction{
		ID:        "txn-1",
		UserID:    "user-1",
		AccountID: "acc-1",
		Type:      models.TransactionTypeExpense,
		Amount:    mustDecimal("50.00"),
		Status:    models.TransactionStatusCompleted,
	}
	svc := newService(store)

	_, err := svc.EditTransaction(context.Background(), "user-1", "txn-1", TransactionInput{
		AccountID: "acc-1",
		Type:      models.TransactionTypeIncome,
		Amount:    mustDecimal("50.00"),
	})
	if err != nil {
		t.Fatalf("edit transaction: %v", err)
	}
	// -(-50) + 50 = +100
	if want := mustDecimal("100.00"); !store.updatedDelta.Equal(want) {
		t.Fatalf("balance delta = %s, want %s", store.updatedDelta, want)
	}
}

func TestEditRecurringTransactionWithoutDateKeepsSchedule(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	interval := models.IntervalMonthly
	date := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	store.transactions["txn-1"] = &models.Transaction{
		ID:                "txn-1",
		UserID:            "user-1",
		AccountID:         "acc-1",
		Type:              models.TransactionTypeExpense,
		Amount:            mustDecimal("50.00"),
		Date:              date,
		Status:            models.TransactionStatusCompleted,
		IsRecurring:       true,
		RecurringInterval: &interval,
	}
	svc := newService(store)

	// The input omits the date; the stored date must survive and the
	// schedule must be derived from it, not from the zero time.
	updated, err := svc.EditTransaction(context.Background(), "user-1", "txn-1", TransactionInput{
		AccountID:         "acc-1",
		Type:              models.TransactionTypeExpense,
		Amount:            mustDecimal("60.00"),
		Category:          "housing",
		Description:       "Rent",
		IsRecurring:       true,
		RecurringInterval: &interval,
	})
	if err != nil {
		t.Fatalf("edit transaction: %v", err)
	}

	if !updated.Date.Equal(date) {
		t.Fatalf("date = %s, want %s", updated.Date, date)
	}
	want := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)
	if updated.NextDueDate == nil || !updated.NextDueDate.Equal(want) {
		t.Fatalf("next due date = %v, want %s", updated.NextDueDate, want)
	}
}

func TestEditTransactionRejectsAccountMove(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	store.transactions["txn-1"] = &models.Transaction{
		ID:        "txn-1",
		UserID:    "user-1",
		AccountID: "acc-1",
		Type:      models.TransactionTypeExpense,
		Amount:    mustDecimal("50.00"),
		Status:    models.TransactionStatusCompleted,
	}
	svc := newService(store)

	_, err := svc.EditTransaction(context.Background(), "user-1", "txn-1", TransactionInput{
		AccountID: "acc-2",
		Type:      models.TransactionTypeExpense,
		Amount:    mustDecimal("50.00"),
	})
	if err == nil {
		t.Fatal("expected error when the input names a different account")
	}
	if store.updatedTxn != nil {
		t.Fatalf("transaction updated despite rejected account move: %+v", store.updatedTxn)
	}
}

func TestDeleteTransactionsReversesBalancePerAccount(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	store.transactions["txn-1"] = &models.Transaction{
		ID: "txn-1", UserID: "user-1", AccountID: "acc-1",
		Type: models.TransactionTypeExpense, Amount: mustDecimal("50.00"),
	}
	store.transactions["txn-2"] = &models.Transaction{
		ID: "txn-2", UserID: "user-1", AccountID: "acc-1",
		Type: models.TransactionTypeIncome, Amount: mustDecimal("20.00"),
	}
	store.transactions["txn-other"] = &models.Transaction{
		ID: "txn-other", UserID: "someone-else", AccountID: "acc-9",
		Type: models.TransactionTypeExpense, Amount: mustDecimal("99.00"),
	}
	svc := newService(store)

	err := svc.DeleteTransactions(context.Background(), "user-1", []string{"txn-1", "txn-2", "txn-other"})
	if err != nil {
		t.Fatalf("delete transactions: %v", err)
	}

	if len(store.deletedIDs) != 2 {
		t.Fatalf("deleted ids = %v, foreign transaction must be excluded", store.deletedIDs)
	}
	// Deleting a 50 expense restores +50; deleting a 20 income removes -20.
	if want := mustDecimal("30.00"); !store.deletedDeltas["acc-1"].Equal(want) {
		t.Fatalf("delta for acc-1 = %s, want %s", store.deletedDeltas["acc-1"], want)
	}
}

func TestUpsertBudgetRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	svc := newService(newFakeStore())
	if _, err := svc.UpsertBudget(context.Background(), "user-1", mustDecimal("0")); err == nil {
		t.Fatal("expected error for zero budget")
	}
	if _, err := svc.UpsertBudget(context.Background(), "user-1", mustDecimal("-10")); err == nil {
		t.Fatal("expected error for negative budget")
	}
}

func TestCurrentBudgetWithoutBudgetSet(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedAccount(store)
	svc := newService(store)

	budget, expenses, err := svc.CurrentBudget(context.Background(), "user-1", "acc-1")
	if err != nil {
		t.Fatalf("current budget: %v", err)
	}
	if budget != nil {
		t.Fatalf("expected nil budget, got %+v", budget)
	}
	if !expenses.Equal(decimal.Zero) {
		t.Fatalf("expenses = %s", expenses)
	}
}
