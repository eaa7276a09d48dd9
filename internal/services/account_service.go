package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bizbooks/backend/internal/audit"
	"github.com/bizbooks/backend/internal/events"
	"github.com/bizbooks/backend/internal/models"
)

// AccountService owns account metadata. Balances are excluded from its
// update path entirely; every balance change goes through the ledger
// service.
type AccountService struct {
	db        *sql.DB
	guard     *AccessGuard
	ledger    *LedgerService
	events    events.Publisher
	audit     *audit.AuditLogger
	validator *ValidationHelper
}

// CreateAccountRequest represents the account creation payload
// @Description Account creation request structure
type CreateAccountRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Type        string `json:"type" validate:"required"`
	Number      string `json:"number" validate:"max=34"`
	Institution string `json:"institution" validate:"max=120"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// UpdateAccountRequest represents the account update payload. There is no
// balance field here on purpose.
// @Description Account update request structure
type UpdateAccountRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Number      *string `json:"number,omitempty" validate:"omitempty,max=34"`
	Institution *string `json:"institution,omitempty" validate:"omitempty,max=120"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

func NewAccountService(db *sql.DB, guard *AccessGuard, ledger *LedgerService, publisher events.Publisher) *AccountService {
	return &AccountService{
		db:        db,
		guard:     guard,
		ledger:    ledger,
		events:    publisher,
		audit:     audit.NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateAccount creates a new ledger account
// @Summary Create account
// @Description Create a new account for a business; balance starts at zero
// @Tags accounts
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param account body CreateAccountRequest true "Account data"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	var req CreateAccountRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	accountType := models.AccountType(strings.ToUpper(req.Type))
	if !models.ValidAccountType(accountType) {
		SendErrorResponse(w, "Invalid account type", http.StatusBadRequest, nil)
		return
	}

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpAccountCreate); err != nil {
		SendServiceError(w, err)
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	now := time.Now()
	account := models.Account{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		Name:        req.Name,
		Type:        accountType,
		Number:      req.Number,
		Institution: req.Institution,
		Balance:     decimal.Zero,
		Currency:    currency,
		IsActive:    true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO accounts
		(id, business_id, name, type, number, institution, balance, currency, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID, account.BusinessID, account.Name, account.Type, account.Number,
		account.Institution, account.Balance, account.Currency, account.IsActive,
		account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to create account for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogMutation(models.ActionAccountCreated, businessID, account.ID, userID, decimal.Zero)
	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionAccountCreated,
		EntityID:   account.ID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	WriteJSON(w, http.StatusCreated, map[string]any{"account": account})
}

// ListAccounts lists the business's accounts
// @Summary List accounts
// @Description List accounts with optional type and active filters
// @Tags accounts
// @Produce json
// @Param businessId path string true "Business ID"
// @Param type query string false "Filter by account type"
// @Param isActive query bool false "Filter by active flag"
// @Success 200 {object} object{accounts=[]models.Account,count=int}
// @Failure 403 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpAccountRead); err != nil {
		SendServiceError(w, err)
		return
	}

	query := `
		SELECT id, business_id, name, type, number, institution, balance, currency, is_active, created_at, updated_at
		FROM accounts
		WHERE business_id = $1`
	args := []any{businessID}

	if accountType := r.URL.Query().Get("type"); accountType != "" {
		args = append(args, strings.ToUpper(accountType))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if isActive := r.URL.Query().Get("isActive"); isActive != "" {
		args = append(args, isActive == "true")
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list accounts for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Type, &a.Number, &a.Institution,
			&a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, a)
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount retrieves one account with its most recent transactions
// @Summary Get account
// @Description Retrieve an account by ID with recent transactions
// @Tags accounts
// @Produce json
// @Param businessId path string true "Business ID"
// @Param accountId path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts/{accountId} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	accountID := chi.URLParam(r, "accountId")

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpAccountRead); err != nil {
		SendServiceError(w, err)
		return
	}

	var a models.Account
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, business_id, name, type, number, institution, balance, currency, is_active, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND business_id = $2`,
		accountID, businessID).Scan(
		&a.ID, &a.BusinessID, &a.Name, &a.Type, &a.Number, &a.Institution,
		&a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to fetch account %s: %v", accountID, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	recent, err := s.recentTransactions(r, businessID, accountID, 20)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to fetch recent transactions for account %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"account":      a,
		"transactions": recent,
	})
}

// GetAccountBalance returns the current account balance
// @Summary Get account balance
// @Description Retrieve the current balance of an account
// @Tags accounts
// @Produce json
// @Param businessId path string true "Business ID"
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{accountId=string,balance=string}
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts/{accountId}/balance [get]
func (s *AccountService) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	accountID := chi.URLParam(r, "accountId")

	balance, err := s.ledger.GetBalance(r.Context(), businessID, userID, accountID)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"accountId": accountID,
		"balance":   balance,
	})
}

// UpdateAccount updates account metadata. Balance cannot be changed here:
// the request type has no balance field and a payload carrying one is
// rejected by the unknown-field check in the decoder.
// @Summary Update account
// @Description Update account metadata; direct balance writes are rejected
// @Tags accounts
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param accountId path string true "Account ID"
// @Param account body UpdateAccountRequest true "Account changes"
// @Success 200 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts/{accountId} [put]
func (s *AccountService) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	accountID := chi.URLParam(r, "accountId")

	var req UpdateAccountRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpAccountUpdate); err != nil {
		SendServiceError(w, err)
		return
	}

	var a models.Account
	err := s.db.QueryRowContext(r.Context(), `
		UPDATE accounts
		SET name = COALESCE($1, name),
		    number = COALESCE($2, number),
		    institution = COALESCE($3, institution),
		    is_active = COALESCE($4, is_active),
		    updated_at = $5
		WHERE id = $6 AND business_id = $7
		RETURNING id, business_id, name, type, number, institution, balance, currency, is_active, created_at, updated_at`,
		req.Name, req.Number, req.Institution, req.IsActive, time.Now(), accountID, businessID).Scan(
		&a.ID, &a.BusinessID, &a.Name, &a.Type, &a.Number, &a.Institution,
		&a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to update account %s: %v", accountID, err)
			SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		}
		return
	}

	s.audit.LogMutation(models.ActionAccountUpdated, businessID, a.ID, userID, decimal.Zero)
	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionAccountUpdated,
		EntityID:   a.ID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	WriteJSON(w, http.StatusOK, map[string]any{"account": a})
}

// DeleteAccount removes an account that no transactions reference
// @Summary Delete account
// @Description Delete an account; fails with 409 while transactions reference it
// @Tags accounts
// @Produce json
// @Param businessId path string true "Business ID"
// @Param accountId path string true "Account ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /businesses/{businessId}/accounts/{accountId} [delete]
func (s *AccountService) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)
	accountID := chi.URLParam(r, "accountId")

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpAccountDelete); err != nil {
		SendServiceError(w, err)
		return
	}

	dbTx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var refs int
	err = dbTx.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND business_id = $2`,
		accountID, businessID).Scan(&refs)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to count references for account %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	if refs > 0 {
		SendErrorResponse(w, "Account has transactions and cannot be deleted", http.StatusConflict, nil)
		return
	}

	result, err := dbTx.ExecContext(r.Context(),
		`DELETE FROM accounts WHERE id = $1 AND business_id = $2`,
		accountID, businessID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to delete account %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[ACCOUNT] Failed to commit account delete %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogMutation(models.ActionAccountDeleted, businessID, accountID, userID, decimal.Zero)
	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionAccountDeleted,
		EntityID:   accountID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *AccountService) recentTransactions(r *http.Request, businessID, accountID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, business_id, account_id, type, amount, currency, date, description, category, reconciled, created_at, updated_at
		FROM transactions
		WHERE account_id = $1 AND business_id = $2
		ORDER BY date DESC
		LIMIT $3`,
		accountID, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
			&t.Date, &t.Description, &t.Category, &t.Reconciled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (s *AccountService) publish(event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(events.TopicBusinessEvents, event); err != nil {
		log.Printf("[ACCOUNT] Failed to publish %s event for %s: %v", event.Action, event.EntityID, err)
	}
}
