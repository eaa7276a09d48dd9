package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bizbooks/backend/internal/audit"
	"github.com/bizbooks/backend/internal/events"
	"github.com/bizbooks/backend/internal/models"
)

// LedgerService is the sole mutator of account balances. Every operation
// runs the entity write and the balance update in one database transaction:
// the account row is taken FOR UPDATE and the balance write carries an
// optimistic version check, so concurrent mutations of the same account
// serialize and a lost update surfaces as Conflict instead of corrupting the
// balance. Publishing the domain event happens after commit and never rolls
// the mutation back.
type LedgerService struct {
	db     *sql.DB
	guard  *AccessGuard
	events events.Publisher
	audit  *audit.AuditLogger
}

func NewLedgerService(db *sql.DB, guard *AccessGuard, publisher events.Publisher) *LedgerService {
	return &LedgerService{
		db:     db,
		guard:  guard,
		events: publisher,
		audit:  audit.NewAuditLogger(),
	}
}

// RecordTransactionInput carries the fields of a new transaction.
type RecordTransactionInput struct {
	AccountID   string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
	Description string
	Category    string
	Reconciled  bool
}

// RecordTransaction inserts a transaction and applies its signed delta to
// the account balance in one atomic unit of work. On any failure after
// validation neither write survives.
func (s *LedgerService) RecordTransaction(ctx context.Context, businessID, userID string, input RecordTransactionInput) (*models.Transaction, error) {
	if _, err := s.guard.Authorize(ctx, userID, businessID, OpTransactionCreate); err != nil {
		return nil, err
	}

	if !input.Amount.IsPositive() {
		return nil, invalidErr("amount must be positive")
	}
	if !models.ValidTransactionType(input.Type) {
		return nil, invalidErr("invalid transaction type: %s", input.Type)
	}
	if input.AccountID == "" {
		return nil, invalidErr("accountId is required")
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer dbTx.Rollback()

	account, err := s.lockAccount(ctx, dbTx, businessID, input.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, invalidErr("account is not active")
	}

	now := time.Now()
	tx := models.Transaction{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		AccountID:   account.ID,
		Type:        input.Type,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Date:        input.Date,
		Description: input.Description,
		Category:    input.Category,
		Reconciled:  input.Reconciled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tx.Currency == "" {
		tx.Currency = account.Currency
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}

	if err := s.insertTransaction(ctx, dbTx, &tx); err != nil {
		return nil, err
	}

	if err := s.applyDelta(ctx, dbTx, account, tx.Delta()); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		s.audit.LogError(models.ActionTransactionCreated, businessID, tx.ID, err)
		return nil, conflictErr("transaction could not be committed")
	}

	s.audit.LogMutation(models.ActionTransactionCreated, businessID, tx.ID, userID, tx.Amount)
	s.emit(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionTransactionCreated,
		EntityID:   tx.ID,
		UserID:     userID,
		Metadata: map[string]any{
			"accountId": tx.AccountID,
			"type":      tx.Type,
			"amount":    tx.Amount.String(),
		},
		OccurredAt: time.Now(),
	})

	return &tx, nil
}

// AmendTransaction merges a changeset onto an existing transaction and
// applies (newDelta - oldDelta) to the account balance. When the changeset
// moves the transaction to a different account, the old account receives
// -oldDelta and the new account +newDelta, both locked in ID order, still
// within the same unit of work.
func (s *LedgerService) AmendTransaction(ctx context.Context, businessID, userID, transactionID string, changes models.TransactionChangeset) (*models.Transaction, error) {
	if _, err := s.guard.Authorize(ctx, userID, businessID, OpTransactionUpdate); err != nil {
		return nil, err
	}

	if changes.IsEmpty() {
		return nil, invalidErr("no changes provided")
	}
	if changes.Amount != nil && !changes.Amount.IsPositive() {
		return nil, invalidErr("amount must be positive")
	}
	if changes.Type != nil && !models.ValidTransactionType(*changes.Type) {
		return nil, invalidErr("invalid transaction type: %s", *changes.Type)
	}
	if changes.AccountID != nil && *changes.AccountID == "" {
		return nil, invalidErr("accountId cannot be empty")
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer dbTx.Rollback()

	old, err := s.lockTransaction(ctx, dbTx, businessID, transactionID)
	if err != nil {
		return nil, err
	}

	merged := changes.Apply(*old)
	merged.UpdatedAt = time.Now()

	oldDelta := old.Delta()
	newDelta := merged.Delta()

	if merged.AccountID != old.AccountID {
		// Lock both accounts in consistent order to prevent deadlocks
		firstID, secondID := old.AccountID, merged.AccountID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		first, err := s.lockAccount(ctx, dbTx, businessID, firstID)
		if err != nil {
			return nil, err
		}
		second, err := s.lockAccount(ctx, dbTx, businessID, secondID)
		if err != nil {
			return nil, err
		}

		oldAccount, newAccount := first, second
		if first.ID != old.AccountID {
			oldAccount, newAccount = second, first
		}

		if !newAccount.IsActive {
			return nil, invalidErr("account is not active")
		}

		if err := s.applyDelta(ctx, dbTx, oldAccount, oldDelta.Neg()); err != nil {
			return nil, err
		}
		if err := s.applyDelta(ctx, dbTx, newAccount, newDelta); err != nil {
			return nil, err
		}
	} else {
		account, err := s.lockAccount(ctx, dbTx, businessID, old.AccountID)
		if err != nil {
			return nil, err
		}
		diff := newDelta.Sub(oldDelta)
		if !diff.IsZero() {
			if err := s.applyDelta(ctx, dbTx, account, diff); err != nil {
				return nil, err
			}
		}
	}

	if err := s.updateTransaction(ctx, dbTx, &merged); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		s.audit.LogError(models.ActionTransactionUpdated, businessID, transactionID, err)
		return nil, conflictErr("transaction could not be committed")
	}

	s.audit.LogMutation(models.ActionTransactionUpdated, businessID, merged.ID, userID, merged.Amount)
	s.emit(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionTransactionUpdated,
		EntityID:   merged.ID,
		UserID:     userID,
		Metadata:   map[string]any{"accountId": merged.AccountID},
		OccurredAt: time.Now(),
	})

	return &merged, nil
}

// ReverseTransaction applies -oldDelta to the owning account and deletes
// the transaction row atomically.
func (s *LedgerService) ReverseTransaction(ctx context.Context, businessID, userID, transactionID string) error {
	if _, err := s.guard.Authorize(ctx, userID, businessID, OpTransactionDelete); err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalErr("failed to begin transaction", err)
	}
	defer dbTx.Rollback()

	old, err := s.lockTransaction(ctx, dbTx, businessID, transactionID)
	if err != nil {
		return err
	}

	account, err := s.lockAccount(ctx, dbTx, businessID, old.AccountID)
	if err != nil {
		return err
	}

	if err := s.applyDelta(ctx, dbTx, account, old.Delta().Neg()); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND business_id = $2`,
		old.ID, businessID); err != nil {
		return internalErr("failed to delete transaction", err)
	}

	if err := dbTx.Commit(); err != nil {
		s.audit.LogError(models.ActionTransactionDeleted, businessID, transactionID, err)
		return conflictErr("transaction could not be committed")
	}

	s.audit.LogMutation(models.ActionTransactionDeleted, businessID, old.ID, userID, old.Amount)
	s.emit(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionTransactionDeleted,
		EntityID:   old.ID,
		UserID:     userID,
		Metadata:   map[string]any{"accountId": old.AccountID},
		OccurredAt: time.Now(),
	})

	return nil
}

// GetBalance returns the current balance of an account. Any membership role
// may read.
func (s *LedgerService) GetBalance(ctx context.Context, businessID, userID, accountID string) (decimal.Decimal, error) {
	if _, err := s.guard.Authorize(ctx, userID, businessID, OpAccountRead); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1 AND business_id = $2`,
		accountID, businessID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, notFoundErr("account not found")
		}
		return decimal.Zero, internalErr("failed to fetch balance", err)
	}
	return balance, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, dbTx *sql.Tx, businessID, accountID string) (*models.Account, error) {
	account := &models.Account{}
	err := dbTx.QueryRowContext(ctx, `
		SELECT id, business_id, name, type, balance, currency, is_active, version
		FROM accounts
		WHERE id = $1 AND business_id = $2
		FOR UPDATE`,
		accountID, businessID).Scan(
		&account.ID, &account.BusinessID, &account.Name, &account.Type,
		&account.Balance, &account.Currency, &account.IsActive, &account.Version)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFoundErr("account not found")
		}
		return nil, internalErr("failed to lock account", err)
	}
	return account, nil
}

func (s *LedgerService) lockTransaction(ctx context.Context, dbTx *sql.Tx, businessID, transactionID string) (*models.Transaction, error) {
	tx := &models.Transaction{}
	err := dbTx.QueryRowContext(ctx, `
		SELECT id, business_id, account_id, type, amount, currency, date, description, category, reconciled, created_at
		FROM transactions
		WHERE id = $1 AND business_id = $2
		FOR UPDATE`,
		transactionID, businessID).Scan(
		&tx.ID, &tx.BusinessID, &tx.AccountID, &tx.Type, &tx.Amount,
		&tx.Currency, &tx.Date, &tx.Description, &tx.Category, &tx.Reconciled, &tx.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFoundErr("transaction not found")
		}
		return nil, internalErr("failed to lock transaction", err)
	}
	return tx, nil
}

func (s *LedgerService) insertTransaction(ctx context.Context, dbTx *sql.Tx, tx *models.Transaction) error {
	_, err := dbTx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, business_id, account_id, type, amount, currency, date, description, category, reconciled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.BusinessID, tx.AccountID, tx.Type, tx.Amount, tx.Currency,
		tx.Date, tx.Description, tx.Category, tx.Reconciled, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return internalErr("failed to insert transaction", err)
	}
	return nil
}

func (s *LedgerService) updateTransaction(ctx context.Context, dbTx *sql.Tx, tx *models.Transaction) error {
	_, err := dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = $1, type = $2, amount = $3, currency = $4, date = $5,
		    description = $6, category = $7, reconciled = $8, updated_at = $9
		WHERE id = $10 AND business_id = $11`,
		tx.AccountID, tx.Type, tx.Amount, tx.Currency, tx.Date,
		tx.Description, tx.Category, tx.Reconciled, tx.UpdatedAt,
		tx.ID, tx.BusinessID)
	if err != nil {
		return internalErr("failed to update transaction", err)
	}
	return nil
}

func (s *LedgerService) applyDelta(ctx context.Context, dbTx *sql.Tx, account *models.Account, delta decimal.Decimal) error {
	newBalance := account.Balance.Add(delta)
	result, err := dbTx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), account.ID, account.Version)
	if err != nil {
		return internalErr("failed to update account balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return internalErr("failed to update account balance", err)
	}
	if rowsAffected == 0 {
		return conflictErr("account %s was modified concurrently", account.ID)
	}

	// Keep the in-memory copy current in case the same unit of work touches
	// this account again.
	account.Balance = newBalance
	account.Version++
	return nil
}

func (s *LedgerService) emit(event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(events.TopicBusinessEvents, event); err != nil {
		log.Printf("[LEDGER] Failed to publish %s event for %s: %v", event.Action, event.EntityID, err)
	}
}
