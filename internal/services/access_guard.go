package services

import (
	"context"
	"database/sql"

	"github.com/bizbooks/backend/internal/models"
)

// Operation names a guarded mutation or read, keyed into the capability table.
type Operation string

const (
	OpAccountRead       Operation = "account.read"
	OpAccountCreate     Operation = "account.create"
	OpAccountUpdate     Operation = "account.update"
	OpAccountDelete     Operation = "account.delete"
	OpTransactionRead   Operation = "transaction.read"
	OpTransactionCreate Operation = "transaction.create"
	OpTransactionUpdate Operation = "transaction.update"
	OpTransactionDelete Operation = "transaction.delete"
	OpBusinessUpdate    Operation = "business.update"
	OpBusinessDelete    Operation = "business.delete"
	OpMemberManage      Operation = "member.manage"
)

// capabilities is the single declarative table of operation -> allowed roles.
// Reads allow every membership role; a nil entry means the operation is
// unknown and always denied.
var capabilities = map[Operation][]models.Role{
	OpAccountRead:       {models.RoleOwner, models.RoleManager, models.RoleAccountant, models.RoleStaff},
	OpAccountCreate:     {models.RoleOwner, models.RoleManager, models.RoleAccountant},
	OpAccountUpdate:     {models.RoleOwner, models.RoleManager, models.RoleAccountant},
	OpAccountDelete:     {models.RoleOwner, models.RoleManager},
	OpTransactionRead:   {models.RoleOwner, models.RoleManager, models.RoleAccountant, models.RoleStaff},
	OpTransactionCreate: {models.RoleOwner, models.RoleManager, models.RoleAccountant},
	OpTransactionUpdate: {models.RoleOwner, models.RoleManager, models.RoleAccountant},
	OpTransactionDelete: {models.RoleOwner, models.RoleManager},
	OpBusinessUpdate:    {models.RoleOwner, models.RoleManager},
	OpBusinessDelete:    {models.RoleOwner},
	OpMemberManage:      {models.RoleOwner},
}

// RoleAllowed reports whether role may perform op.
func RoleAllowed(op Operation, role models.Role) bool {
	for _, allowed := range capabilities[op] {
		if allowed == role {
			return true
		}
	}
	return false
}

// AccessGuard resolves a caller's membership in a business and checks it
// against the capability table. Every service entry point goes through it.
type AccessGuard struct {
	db *sql.DB
}

func NewAccessGuard(db *sql.DB) *AccessGuard {
	return &AccessGuard{db: db}
}

// Membership looks up the caller's role within a business.
func (g *AccessGuard) Membership(ctx context.Context, userID, businessID string) (*models.Membership, error) {
	m := &models.Membership{}
	err := g.db.QueryRowContext(ctx, `
		SELECT id, user_id, business_id, role
		FROM memberships
		WHERE user_id = $1 AND business_id = $2`,
		userID, businessID).Scan(&m.ID, &m.UserID, &m.BusinessID, &m.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, forbiddenErr("access denied")
		}
		return nil, internalErr("membership lookup failed", err)
	}
	return m, nil
}

// Authorize returns the caller's membership if their role permits op,
// Forbidden otherwise.
func (g *AccessGuard) Authorize(ctx context.Context, userID, businessID string, op Operation) (*models.Membership, error) {
	m, err := g.Membership(ctx, userID, businessID)
	if err != nil {
		return nil, err
	}
	if !RoleAllowed(op, m.Role) {
		return nil, forbiddenErr("insufficient permissions")
	}
	return m, nil
}
