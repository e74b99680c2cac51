package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an entity does not exist under the
	// given owner.
	ErrNotFound = errors.New("not found")
	// ErrNotDue is returned when a recurring transaction is no longer due
	// at materialization time (another worker already advanced it).
	ErrNotDue = errors.New("transaction not due")
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `
		SELECT id, email, name, created_at
		FROM finance.users
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateAccount creates a new account. When the account is flagged as
// default, prior defaults of the same user are cleared in the same
// database transaction so at most one default exists per user.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if account.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE finance.accounts
			SET is_default = FALSE, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = $1 AND is_default`, account.UserID); err != nil {
			return fmt.Errorf("failed to clear default accounts: %w", err)
		}
	}

	query := `
		INSERT INTO finance.accounts (id, user_id, name, type, balance, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		account.ID, account.UserID, account.Name, account.Type, account.Balance, account.IsDefault).
		Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account creation: %w", err)
	}
	return nil
}

// SetDefaultAccount marks the account as the user's default and clears
// the flag on every other account of the user atomically.
func (r *Repository) SetDefaultAccount(ctx context.Context, accountID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE finance.accounts
		SET is_default = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND is_default`, userID); err != nil {
		return fmt.Errorf("failed to clear default accounts: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE finance.accounts
		SET is_default = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to set default account: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check default account update: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default account change: %w", err)
	}
	return nil
}

// AccountsByUser returns all accounts owned by the user.
func (r *Repository) AccountsByUser(ctx context.Context, userID string) ([]models.Account, error) {
	query := `
		SELECT id, user_id, name, type, balance, is_default, created_at, updated_at
		FROM finance.accounts
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AccountByID retrieves an account owned by the user.
func (r *Repository) AccountByID(ctx context.Context, accountID, userID string) (*models.Account, error) {
	a := &models.Account{}
	query := `
		SELECT id, user_id, name, type, balance, is_default, created_at, updated_at
		FROM finance.accounts
		WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, accountID, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

// CreateTransaction inserts a transaction and applies its balance effect
// to the owning account in one database transaction.
func (r *Repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := adjustBalance(ctx, tx, txn.AccountID, txn.UserID, txn.BalanceEffect()); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction creation: %w", err)
	}
	return nil
}

// UpdateTransaction rewrites a transaction's mutable fields and applies
// the net balance delta to the owning account atomically.
func (r *Repository) UpdateTransaction(ctx context.Context, txn *models.Transaction, balanceDelta decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if !balanceDelta.IsZero() {
		if err := adjustBalance(ctx, tx, txn.AccountID, txn.UserID, balanceDelta); err != nil {
			return err
		}
	}

	query := `
		UPDATE finance.transactions
		SET type = $1, amount = $2, date = $3, category = $4, description = $5,
		    is_recurring = $6, recurring_interval = $7, next_due_date = $8,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $9 AND user_id = $10
		RETURNING updated_at`
	err = tx.QueryRowContext(ctx, query,
		txn.Type, txn.Amount, txn.Date, txn.Category, txn.Description,
		txn.IsRecurring, intervalValue(txn.RecurringInterval), nullTime(txn.NextDueDate),
		txn.ID, txn.UserID).
		Scan(&txn.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction update: %w", err)
	}
	return nil
}

// DeleteTransactions removes the given transactions of the user and
// reverses their balance effect per account, all in one database
// transaction.
func (r *Repository) DeleteTransactions(ctx context.Context, userID string, ids []string, balanceDeltas map[string]decimal.Decimal) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM finance.transactions
		WHERE id = ANY($1) AND user_id = $2`, pq.Array(ids), userID); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}

	for accountID, delta := range balanceDeltas {
		if err := adjustBalance(ctx, tx, accountID, userID, delta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction deletion: %w", err)
	}
	return nil
}

// TransactionByID retrieves a transaction owned by the user.
func (r *Repository) TransactionByID(ctx context.Context, txnID, userID string) (*models.Transaction, error) {
	query := transactionSelect + ` WHERE id = $1 AND user_id = $2`
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, txnID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return txn, nil
}

// TransactionsByIDs returns the user's transactions among the given ids.
func (r *Repository) TransactionsByIDs(ctx context.Context, userID string, ids []string) ([]models.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := transactionSelect + ` WHERE id = ANY($1) AND user_id = $2`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// TransactionsByAccount returns the account's transactions, newest first.
func (r *Repository) TransactionsByAccount(ctx context.Context, accountID, userID string) ([]models.Transaction, error) {
	query := transactionSelect + `
		WHERE account_id = $1 AND user_id = $2
		ORDER BY date DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// UpsertBudget creates the user's budget or updates its amount in place.
func (r *Repository) UpsertBudget(ctx context.Context, budget *models.Budget) error {
	query := `
		INSERT INTO finance.budgets (id, user_id, amount, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, budget.ID, budget.UserID, budget.Amount).
		Scan(&budget.ID, &budget.CreatedAt, &budget.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert budget: %w", err)
	}
	return nil
}

// BudgetByUser retrieves the user's budget.
func (r *Repository) BudgetByUser(ctx context.Context, userID string) (*models.Budget, error) {
	b := &models.Budget{}
	var lastAlert sql.NullTime
	query := `
		SELECT id, user_id, amount, last_alert_sent, created_at, updated_at
		FROM finance.budgets
		WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&b.ID, &b.UserID, &b.Amount, &lastAlert, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find budget: %w", err)
	}
	if lastAlert.Valid {
		b.LastAlertSent = &lastAlert.Time
	}
	return b, nil
}

// SetBudgetLastAlert records when the last budget alert was sent.
func (r *Repository) SetBudgetLastAlert(ctx context.Context, budgetID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE finance.budgets
		SET last_alert_sent = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2`, at, budgetID)
	if err != nil {
		return fmt.Errorf("failed to set last alert time: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check last alert update: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BudgetsWithDefaultAccount returns every budget joined with its user and
// the user's default account, for the budget alert sweep.
func (r *Repository) BudgetsWithDefaultAccount(ctx context.Context) ([]models.BudgetWithAccount, error) {
	query := `
		SELECT b.id, b.user_id, b.amount, b.last_alert_sent, b.created_at, b.updated_at,
		       u.id, u.email, u.name, u.created_at,
		       a.id, a.name, a.type, a.balance
		FROM finance.budgets b
		JOIN finance.users u ON u.id = b.user_id
		LEFT JOIN finance.accounts a ON a.user_id = b.user_id AND a.is_default`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var result []models.BudgetWithAccount
	for rows.Next() {
		var bwa models.BudgetWithAccount
		var lastAlert sql.NullTime
		var accID, accName, accType sql.NullString
		var accBalance decimal.NullDecimal
		err := rows.Scan(
			&bwa.Budget.ID, &bwa.Budget.UserID, &bwa.Budget.Amount, &lastAlert, &bwa.Budget.CreatedAt, &bwa.Budget.UpdatedAt,
			&bwa.User.ID, &bwa.User.Email, &bwa.User.Name, &bwa.User.CreatedAt,
			&accID, &accName, &accType, &accBalance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		if lastAlert.Valid {
			bwa.Budget.LastAlertSent = &lastAlert.Time
		}
		if accID.Valid {
			bwa.DefaultAccount = &models.Account{
				ID:        accID.String,
				UserID:    bwa.Budget.UserID,
				Name:      accName.String,
				Type:      models.AccountType(accType.String),
				Balance:   accBalance.Decimal,
				IsDefault: true,
			}
		}
		result = append(result, bwa)
	}
	return result, rows.Err()
}

// MonthExpenses sums the account's EXPENSE transactions dated within
// [from, to).
func (r *Repository) MonthExpenses(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	query := `
		SELECT SUM(amount)
		FROM finance.transactions
		WHERE account_id = $1 AND type = 'EXPENSE' AND date >= $2 AND date < $3`
	if err := r.db.QueryRowContext(ctx, query, accountID, from, to).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum month expenses: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// MonthlyStats aggregates the user's transactions dated within [from, to)
// into income/expense totals and per-category expense totals.
func (r *Repository) MonthlyStats(ctx context.Context, userID string, from, to time.Time) (models.MonthlyStats, error) {
	stats := models.NewMonthlyStats()
	query := `
		SELECT type, category, amount
		FROM finance.transactions
		WHERE user_id = $1 AND date >= $2 AND date < $3`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return stats, fmt.Errorf("failed to query monthly stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var txnType models.TransactionType
		var category string
		var amount decimal.Decimal
		if err := rows.Scan(&txnType, &category, &amount); err != nil {
			return stats, fmt.Errorf("failed to scan monthly stats row: %w", err)
		}
		stats.TransactionCount++
		if txnType == models.TransactionTypeExpense {
			stats.TotalExpense = stats.TotalExpense.Add(amount)
			stats.ByCategory[category] = stats.ByCategory[category].Add(amount)
		} else {
			stats.TotalIncome = stats.TotalIncome.Add(amount)
		}
	}
	return stats, rows.Err()
}

const transactionSelect = `
	SELECT id, user_id, account_id, type, amount, date, category, description,
	       status, is_recurring, recurring_interval, last_processed, next_due_date,
	       created_at, updated_at
	FROM finance.transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var interval sql.NullString
	var lastProcessed, nextDue sql.NullTime
	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.AccountID, &txn.Type, &txn.Amount, &txn.Date,
		&txn.Category, &txn.Description, &txn.Status, &txn.IsRecurring,
		&interval, &lastProcessed, &nextDue, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if interval.Valid {
		v := models.RecurringInterval(interval.String)
		txn.RecurringInterval = &v
	}
	if lastProcessed.Valid {
		txn.LastProcessed = &lastProcessed.Time
	}
	if nextDue.Valid {
		txn.NextDueDate = &nextDue.Time
	}
	return txn, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	query := `
		INSERT INTO finance.transactions
			(id, user_id, account_id, type, amount, date, category, description,
			 status, is_recurring, recurring_interval, last_processed, next_due_date,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	err := tx.QueryRowContext(ctx, query,
		txn.ID, txn.UserID, txn.AccountID, txn.Type, txn.Amount, txn.Date,
		txn.Category, txn.Description, txn.Status, txn.IsRecurring,
		intervalValue(txn.RecurringInterval), nullTime(txn.LastProcessed), nullTime(txn.NextDueDate)).
		Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// adjustBalance applies a signed delta to the account's balance. The row
// update takes a row-level lock, serializing concurrent balance changes
// on the same account.
func adjustBalance(ctx context.Context, tx *sql.Tx, accountID, userID string, delta decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE finance.accounts
		SET balance = balance + $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND user_id = $3`, delta, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check balance update: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func intervalValue(interval *models.RecurringInterval) any {
	if interval == nil {
		return nil
	}
	return string(*interval)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
