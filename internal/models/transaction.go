package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of transaction kinds
type TransactionType string

const (
	TransactionIncome   TransactionType = "INCOME"
	TransactionExpense  TransactionType = "EXPENSE"
	TransactionTransfer TransactionType = "TRANSFER"
)

// Transaction represents a monetary movement against an account. Amount is
// always positive; the signed balance effect comes from the type.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	BusinessID  string          `json:"businessId" db:"business_id"`
	AccountID   string          `json:"accountId" db:"account_id"`
	Type        TransactionType `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    string          `json:"currency" db:"currency"`
	Date        time.Time       `json:"date" db:"date"`
	Description string          `json:"description,omitempty" db:"description"`
	Category    string          `json:"category,omitempty" db:"category"`
	Reconciled  bool            `json:"reconciled" db:"reconciled"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Delta is the signed effect of the transaction on its account balance:
// +amount for income, -amount for expense and transfer-out.
func (t *Transaction) Delta() decimal.Decimal {
	return SignedDelta(t.Type, t.Amount)
}

// SignedDelta computes the balance effect for a type/amount pair.
func SignedDelta(txType TransactionType, amount decimal.Decimal) decimal.Decimal {
	if txType == TransactionIncome {
		return amount
	}
	return amount.Neg()
}

// ValidTransactionType reports whether t is one of the closed set.
func ValidTransactionType(t TransactionType) bool {
	return t == TransactionIncome || t == TransactionExpense || t == TransactionTransfer
}

// TransactionChangeset enumerates exactly the fields an amend may touch.
// The account balance is deliberately not representable here.
type TransactionChangeset struct {
	AccountID   *string          `json:"accountId,omitempty"`
	Type        *TransactionType `json:"type,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Reconciled  *bool            `json:"reconciled,omitempty"`
}

// IsEmpty reports whether the changeset carries no changes at all.
func (c *TransactionChangeset) IsEmpty() bool {
	return c.AccountID == nil && c.Type == nil && c.Amount == nil &&
		c.Date == nil && c.Description == nil && c.Category == nil && c.Reconciled == nil
}

// Apply merges the changeset onto a copy of tx and returns it.
func (c *TransactionChangeset) Apply(tx Transaction) Transaction {
	if c.AccountID != nil {
		tx.AccountID = *c.AccountID
	}
	if c.Type != nil {
		tx.Type = *c.Type
	}
	if c.Amount != nil {
		tx.Amount = *c.Amount
	}
	if c.Date != nil {
		tx.Date = *c.Date
	}
	if c.Description != nil {
		tx.Description = *c.Description
	}
	if c.Category != nil {
		tx.Category = *c.Category
	}
	if c.Reconciled != nil {
		tx.Reconciled = *c.Reconciled
	}
	return tx
}
