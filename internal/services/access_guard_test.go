package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/bizbooks/backend/internal/models"
)

func TestRoleAllowed(t *testing.T) {
	cases := []struct {
		name string
		op   Operation
		role models.Role
		want bool
	}{
		{"staff can read accounts", OpAccountRead, models.RoleStaff, true},
		{"staff can read transactions", OpTransactionRead, models.RoleStaff, true},
		{"staff cannot create transactions", OpTransactionCreate, models.RoleStaff, false},
		{"accountant can create transactions", OpTransactionCreate, models.RoleAccountant, true},
		{"accountant can amend transactions", OpTransactionUpdate, models.RoleAccountant, true},
		{"accountant cannot delete transactions", OpTransactionDelete, models.RoleAccountant, false},
		{"manager can delete transactions", OpTransactionDelete, models.RoleManager, true},
		{"manager can delete accounts", OpAccountDelete, models.RoleManager, true},
		{"accountant cannot delete accounts", OpAccountDelete, models.RoleAccountant, false},
		{"manager cannot delete the business", OpBusinessDelete, models.RoleManager, false},
		{"owner can delete the business", OpBusinessDelete, models.RoleOwner, true},
		{"owner manages members", OpMemberManage, models.RoleOwner, true},
		{"manager cannot manage members", OpMemberManage, models.RoleManager, false},
		{"unknown operation is denied", Operation("report.export"), models.RoleOwner, false},
		{"unknown role is denied", OpAccountRead, models.Role("INTERN"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RoleAllowed(tc.op, tc.role))
		})
	}
}

func TestAccessGuard_Authorize(t *testing.T) {
	t.Run("member with sufficient role passes", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		guard := NewAccessGuard(db)
		expectMembership(mock, models.RoleManager)

		m, err := guard.Authorize(context.Background(), testUserID, testBusinessID, OpAccountCreate)
		assert.NoError(t, err)
		assert.Equal(t, models.RoleManager, m.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member with insufficient role is forbidden", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		guard := NewAccessGuard(db)
		expectMembership(mock, models.RoleStaff)

		_, err = guard.Authorize(context.Background(), testUserID, testBusinessID, OpAccountCreate)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member is forbidden, not not-found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		guard := NewAccessGuard(db)
		mock.ExpectQuery("SELECT id, user_id, business_id, role FROM memberships").
			WithArgs(testUserID, testBusinessID).
			WillReturnError(sql.ErrNoRows)

		_, err = guard.Authorize(context.Background(), testUserID, testBusinessID, OpAccountRead)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
