package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bizbooks/backend/internal/models"
)

// TransactionService is the HTTP surface over the ledger. Mutations never
// touch balances here; they delegate to the ledger service, which owns the
// atomic write path.
type TransactionService struct {
	db        *sql.DB
	guard     *AccessGuard
	ledger    *LedgerService
	validator *ValidationHelper
}

// CreateTransactionRequest represents the transaction creation payload
// @Description Transaction creation request structure
type CreateTransactionRequest struct {
	AccountID   string          `json:"accountId" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=INCOME EXPENSE TRANSFER"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description" validate:"max=500"`
	Category    string          `json:"category" validate:"max=120"`
	Reconciled  bool            `json:"reconciled"`
}

func NewTransactionService(db *sql.DB, guard *AccessGuard, ledger *LedgerService) *TransactionService {
	return &TransactionService{
		db:        db,
		guard:     guard,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// CreateTransaction records a new transaction
// @Summary Create transaction
// @Description Record a transaction; the account balance is adjusted atomically
// @Tags transactions
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param transaction body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /businesses/{businessId}/transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	var req CreateTransactionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := ts.ledger.RecordTransaction(r.Context(), businessID, userID, RecordTransactionInput{
		AccountID:   req.AccountID,
		Type:        models.TransactionType(strings.ToUpper(req.Type)),
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		Date:        req.Date,
		Description: req.Description,
		Category:    req.Category,
		Reconciled:  req.Reconciled,
	})
	if err != nil {
		SendServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

// UpdateTransaction amends an existing transaction
// @Summary Update transaction
// @Description Amend a transaction; the balance difference is applied atomically
// @Tags transactions
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param txId path string true "Transaction ID"
// @Param changes body models.TransactionChangeset true "Transaction changes"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /businesses/{businessId}/transactions/{txId} [put]
func (ts *TransactionService) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	txID := chi.URLParam(r, "txId")

	var changes models.TransactionChangeset
	if err := DecodeJSONBody(w, r, &changes); err != nil {
		SendServiceError(w, err)
		return
	}

	tx, err := ts.ledger.AmendTransaction(r.Context(), businessID, userID, txID, changes)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

// DeleteTransaction reverses and removes a transaction
// @Summary Delete transaction
// @Description Delete a transaction; its balance effect is reversed atomically
// @Tags transactions
// @Produce json
// @Param businessId path string true "Business ID"
// @Param txId path string true "Transaction ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId}/transactions/{txId} [delete]
func (ts *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	txID := chi.URLParam(r, "txId")

	if err := ts.ledger.ReverseTransaction(r.Context(), businessID, userID, txID); err != nil {
		SendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTransaction retrieves a specific transaction
// @Summary Get transaction by ID
// @Description Retrieve a transaction by its ID
// @Tags transactions
// @Produce json
// @Param businessId path string true "Business ID"
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId}/transactions/{txId} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	txID := chi.URLParam(r, "txId")

	if _, err := ts.guard.Authorize(r.Context(), userID, businessID, OpTransactionRead); err != nil {
		SendServiceError(w, err)
		return
	}

	var t models.Transaction
	err := ts.db.QueryRowContext(r.Context(), `
		SELECT id, business_id, account_id, type, amount, currency, date, description, category, reconciled, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND business_id = $2`,
		txID, businessID).Scan(
		&t.ID, &t.BusinessID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
		&t.Date, &t.Description, &t.Category, &t.Reconciled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TRANSACTION] Failed to fetch transaction %s: %v", txID, err)
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"transaction": t})
}

// ListTransactions retrieves transactions with optional filters
// @Summary List transactions
// @Description List transactions filtered by account, type, category and date range
// @Tags transactions
// @Produce json
// @Param businessId path string true "Business ID"
// @Param accountId query string false "Filter by account ID"
// @Param type query string false "Filter by transaction type"
// @Param category query string false "Filter by category"
// @Param startDate query string false "Start of date range (RFC 3339)"
// @Param endDate query string false "End of date range (RFC 3339)"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {object} object{transactions=[]models.Transaction,pagination=object}
// @Failure 403 {object} ErrorResponse
// @Router /businesses/{businessId}/transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	if _, err := ts.guard.Authorize(r.Context(), userID, businessID, OpTransactionRead); err != nil {
		SendServiceError(w, err)
		return
	}

	conditions := []string{"business_id = $1"}
	args := []any{businessID}

	if accountID := r.URL.Query().Get("accountId"); accountID != "" {
		args = append(args, accountID)
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if txType := r.URL.Query().Get("type"); txType != "" {
		args = append(args, strings.ToUpper(txType))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if category := r.URL.Query().Get("category"); category != "" {
		args = append(args, category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if startDate := r.URL.Query().Get("startDate"); startDate != "" {
		parsed, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			SendErrorResponse(w, "Invalid startDate", http.StatusBadRequest, nil)
			return
		}
		args = append(args, parsed)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}
	if endDate := r.URL.Query().Get("endDate"); endDate != "" {
		parsed, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			SendErrorResponse(w, "Invalid endDate", http.StatusBadRequest, nil)
			return
		}
		args = append(args, parsed)
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)))
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := ts.db.QueryRowContext(r.Context(),
		"SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&total); err != nil {
		log.Printf("[TRANSACTION] Failed to count transactions for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, business_id, account_id, type, amount, currency, date, description, category, reconciled, created_at, updated_at
		FROM transactions
		WHERE %s
		ORDER BY date DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := ts.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to list transactions for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
			&t.Date, &t.Description, &t.Category, &t.Reconciled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, t)
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"pagination": map[string]int{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}
