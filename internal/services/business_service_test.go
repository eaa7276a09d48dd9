package services

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/bizbooks/backend/internal/models"
)

func newTestBusinessService(t *testing.T) (*BusinessService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	service := NewBusinessService(db, NewAccessGuard(db), nil)
	return service, mock, func() { db.Close() }
}

func TestBusinessService_CreateBusiness(t *testing.T) {
	t.Run("business and owner membership commit together", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO businesses").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO memberships").
			WithArgs(sqlmock.AnyArg(), testUserID, sqlmock.AnyArg(), models.RoleOwner, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := scopedRequest("POST", "/api/v1/businesses", `{"name": "Oak Street Bakery"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateBusiness(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "Oak Street Bakery")
		assert.Contains(t, rec.Body.String(), `"USD"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("membership insert failure rolls the business back", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO businesses").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO memberships").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		req := scopedRequest("POST", "/api/v1/businesses", `{"name": "Oak Street Bakery"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateBusiness(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing name fails validation", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		req := scopedRequest("POST", "/api/v1/businesses", `{"currency": "EUR"}`, nil)
		rec := httptest.NewRecorder()
		service.CreateBusiness(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBusinessService_DeleteBusiness(t *testing.T) {
	t.Run("business with accounts returns conflict", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		expectMembership(mock, models.RoleOwner)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts WHERE business_id = \\$1").
			WithArgs(testBusinessID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID, "", nil)
		rec := httptest.NewRecorder()
		service.DeleteBusiness(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty business is removed with its memberships", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		expectMembership(mock, models.RoleOwner)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(testBusinessID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("DELETE FROM memberships WHERE business_id = \\$1").
			WithArgs(testBusinessID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM businesses WHERE id = \\$1").
			WithArgs(testBusinessID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID, "", nil)
		rec := httptest.NewRecorder()
		service.DeleteBusiness(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only the owner may delete", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		expectMembership(mock, models.RoleManager)

		req := scopedRequest("DELETE", "/api/v1/businesses/"+testBusinessID, "", nil)
		rec := httptest.NewRecorder()
		service.DeleteBusiness(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBusinessService_AddMember(t *testing.T) {
	t.Run("owner adds a member", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		memberID := "9a8b7c6d-0000-4000-8000-000000000099"

		expectMembership(mock, models.RoleOwner)
		mock.ExpectExec("INSERT INTO memberships").
			WithArgs(sqlmock.AnyArg(), memberID, testBusinessID, models.Role("ACCOUNTANT"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/members",
			`{"userId": "`+memberID+`", "role": "ACCOUNTANT"}`, nil)
		rec := httptest.NewRecorder()
		service.AddMember(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "ACCOUNTANT")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate membership returns conflict", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		expectMembership(mock, models.RoleOwner)
		mock.ExpectExec("INSERT INTO memberships").
			WillReturnError(sql.ErrConnDone)

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/members",
			`{"userId": "someone", "role": "STAFF"}`, nil)
		rec := httptest.NewRecorder()
		service.AddMember(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown role fails validation", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		req := scopedRequest("POST", "/api/v1/businesses/"+testBusinessID+"/members",
			`{"userId": "someone", "role": "ADMIN"}`, nil)
		rec := httptest.NewRecorder()
		service.AddMember(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBusinessService_GetBusiness(t *testing.T) {
	t.Run("member reads the business", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		expectMembership(mock, models.RoleStaff)
		mock.ExpectQuery("SELECT id, name, currency, created_at, updated_at FROM businesses WHERE id = \\$1").
			WithArgs(testBusinessID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "currency", "created_at", "updated_at"}).
				AddRow(testBusinessID, "Oak Street Bakery", "USD", time.Now(), time.Now()))

		req := scopedRequest("GET", "/api/v1/businesses/"+testBusinessID, "", nil)
		rec := httptest.NewRecorder()
		service.GetBusiness(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Oak Street Bakery")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		service, mock, closeDB := newTestBusinessService(t)
		defer closeDB()

		mock.ExpectQuery("SELECT id, user_id, business_id, role FROM memberships").
			WithArgs(testUserID, testBusinessID).
			WillReturnError(sql.ErrNoRows)

		req := scopedRequest("GET", "/api/v1/businesses/"+testBusinessID, "", nil)
		rec := httptest.NewRecorder()
		service.GetBusiness(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
