package services

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/bizbooks/backend/internal/models"
)

func newTestAccountService(t *testing.T) (*AccountService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	guard := NewAccessGuard(db)
	ledger := NewLedgerService(db, guard, nil)
	service := NewAccountService(db, guard, ledger, nil)
	return service, mock, func() { db.Close() }
}

// scopedRequest builds a request carrying the authenticated user and the
// chi path parameters the handlers read.
func scopedRequest(method, target, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("businessId", testBusinessID)
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}

	ctx := context.WithValue(req.Context(), "userID", testUserID)
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func TestAccountService_CreateAccount(t *testing.T) {
	t.Run("successful creation starts at zero balance", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleAccountant)
		mock.ExpectExec("INSERT INTO accounts").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/accounts",
			`{"name": "Operating", "type": "checking", "currency": "usd"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateAccount(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"balance":"0"`)
		assert.Contains(t, rec.Body.String(), `"CHECKING"`)
		assert.Contains(t, rec.Body.String(), `"USD"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account type is rejected", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/accounts",
			`{"name": "Vault", "type": "CRYPTO"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateAccount(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("staff member is forbidden", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleStaff)

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/accounts",
			`{"name": "Operating", "type": "CHECKING"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateAccount(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/accounts",
			`{"type": "CHECKING"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateAccount(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Validation failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_UpdateAccount(t *testing.T) {
	t.Run("metadata update succeeds", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleManager)
		mock.ExpectQuery("UPDATE accounts SET name = COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "name", "type", "number", "institution", "balance", "currency", "is_active", "created_at", "updated_at"}).
				AddRow(testAccountID, testBusinessID, "Renamed", "CHECKING", "", "", "150", "USD", true, time.Now(), time.Now()))

		req := scopedRequest("PUT", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			`{"name": "Renamed"}`, map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.UpdateAccount(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Renamed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payload with a balance field is rejected", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		req := scopedRequest("PUT", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			`{"name": "Renamed", "balance": "9999"}`, map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.UpdateAccount(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account returns 404", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleOwner)
		mock.ExpectQuery("UPDATE accounts SET name = COALESCE").
			WillReturnError(sql.ErrNoRows)

		req := scopedRequest("PUT", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			`{"name": "Renamed"}`, map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.UpdateAccount(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_DeleteAccount(t *testing.T) {
	t.Run("referenced account returns conflict", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleOwner)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE account_id = \\$1 AND business_id = \\$2").
			WithArgs(testAccountID, testBusinessID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectRollback()

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			"", map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.DeleteAccount(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "cannot be deleted")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreferenced account is deleted", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleManager)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
			WithArgs(testAccountID, testBusinessID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("DELETE FROM accounts WHERE id = \\$1 AND business_id = \\$2").
			WithArgs(testAccountID, testBusinessID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			"", map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.DeleteAccount(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("accountant cannot delete", func(t *testing.T) {
		service, mock, closeDB := newTestAccountService(t)
		defer closeDB()

		expectMembership(mock, models.RoleAccountant)

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID,
			"", map[string]string{"accountId": testAccountID})
		rec := httptest.NewRecorder()
		service.DeleteAccount(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_GetAccountBalance(t *testing.T) {
	service, mock, closeDB := newTestAccountService(t)
	defer closeDB()

	expectMembership(mock, models.RoleStaff)
	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs(testAccountID, testBusinessID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("42.75"))

	req := scopedRequest("GET", "/api/v1/businesses/"+testBusinessID+"/accounts/"+testAccountID+"/balance",
		"", map[string]string{"accountId": testAccountID})
	rec := httptest.NewRecorder()
	service.GetAccountBalance(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "42.75")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_ListAccounts(t *testing.T) {
	service, mock, closeDB := newTestAccountService(t)
	defer closeDB()

	expectMembership(mock, models.RoleStaff)
	mock.ExpectQuery("SELECT id, business_id, name, type, number, institution, balance, currency, is_active, created_at, updated_at FROM accounts WHERE business_id = \\$1 AND type = \\$2").
		WithArgs(testBusinessID, "SAVINGS").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "name", "type", "number", "institution", "balance", "currency", "is_active", "created_at", "updated_at"}).
			AddRow(testAccountID, testBusinessID, "Reserve", "SAVINGS", "", "", "1000", "USD", true, time.Now(), time.Now()))

	req := scopedRequest("GET", "/api/v1/businesses/"+testBusinessID+"/accounts?type=savings", "", nil)
	rec := httptest.NewRecorder()
	service.ListAccounts(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "Reserve")
	assert.NoError(t, mock.ExpectationsWereMet())
}
