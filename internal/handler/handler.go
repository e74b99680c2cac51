package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avezhov/finance-service/internal/middleware"
	"github.com/avezhov/finance-service/internal/models"
	"github.com/avezhov/finance-service/internal/repository"
	"github.com/avezhov/finance-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// CreateAccount handles account creation
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var input service.AccountInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// ListAccounts returns the user's accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount returns one account with its transactions
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	account, txns, err := h.svc.AccountWithTransactions(r.Context(), accountID, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":      account,
		"transactions": txns,
	})
}

// SetDefaultAccount marks an account as the user's default
func (h *Handler) SetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	if err := h.svc.SetDefaultAccount(r.Context(), accountID, middleware.UserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTransaction records a new transaction
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var input service.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := h.svc.AddTransaction(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// GetTransaction returns one transaction
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Transaction(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// UpdateTransaction rewrites a transaction
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var input service.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := h.svc.EditTransaction(r.Context(), middleware.UserID(r.Context()), mux.Vars(r)["id"], input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// BulkDeleteTransactions removes a set of transactions
func (h *Handler) BulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var input struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteTransactions(r.Context(), middleware.UserID(r.Context()), input.IDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBudget returns the user's budget and current-month expenses
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	budget, expenses, err := h.svc.CurrentBudget(r.Context(), middleware.UserID(r.Context()), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"budget":           budget,
		"current_expenses": expenses,
	})
}

// UpsertBudget creates or updates the user's budget
func (h *Handler) UpsertBudget(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	budget, err := h.svc.UpsertBudget(r.Context(), middleware.UserID(r.Context()), input.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}
