package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the closed set of account kinds
type AccountType string

const (
	AccountChecking   AccountType = "CHECKING"
	AccountSavings    AccountType = "SAVINGS"
	AccountCreditCard AccountType = "CREDIT_CARD"
	AccountCash       AccountType = "CASH"
	AccountAsset      AccountType = "ASSET"
	AccountLiability  AccountType = "LIABILITY"
	AccountEquity     AccountType = "EQUITY"
	AccountRevenue    AccountType = "REVENUE"
	AccountExpense    AccountType = "EXPENSE"
)

// Account represents a business ledger account. Balance is only ever
// written by the ledger service, never through the generic update path.
type Account struct {
	ID          string          `json:"id" db:"id"`
	BusinessID  string          `json:"businessId" db:"business_id"`
	Name        string          `json:"name" db:"name"`
	Type        AccountType     `json:"type" db:"type"`
	Number      string          `json:"number,omitempty" db:"number"`
	Institution string          `json:"institution,omitempty" db:"institution"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	Currency    string          `json:"currency" db:"currency"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	Version     int             `json:"-" db:"version"` // for optimistic locking
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// ValidAccountType reports whether t is one of the closed set.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountCash,
		AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}
