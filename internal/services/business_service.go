package services

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizbooks/backend/internal/events"
	"github.com/bizbooks/backend/internal/models"
)

// BusinessService manages tenants and their memberships.
type BusinessService struct {
	db        *sql.DB
	guard     *AccessGuard
	events    events.Publisher
	validator *ValidationHelper
}

// CreateBusinessRequest represents the business creation payload
// @Description Business creation request structure
type CreateBusinessRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=120"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// UpdateBusinessRequest represents the business update payload
// @Description Business update request structure
type UpdateBusinessRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Currency *string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// AddMemberRequest represents the member addition payload
// @Description Member addition request structure
type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=OWNER MANAGER ACCOUNTANT STAFF"`
}

func NewBusinessService(db *sql.DB, guard *AccessGuard, publisher events.Publisher) *BusinessService {
	return &BusinessService{
		db:        db,
		guard:     guard,
		events:    publisher,
		validator: NewValidationHelper(),
	}
}

// CreateBusiness creates a business with the caller as OWNER
// @Summary Create business
// @Description Create a business; the creator receives an OWNER membership
// @Tags businesses
// @Accept json
// @Produce json
// @Param business body CreateBusinessRequest true "Business data"
// @Success 201 {object} models.Business
// @Failure 400 {object} ErrorResponse
// @Router /businesses [post]
func (s *BusinessService) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)

	var req CreateBusinessRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	now := time.Now()
	business := models.Business{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The business row and the creator's OWNER membership commit together.
	dbTx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "Failed to create business", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(r.Context(),
		`INSERT INTO businesses (id, name, currency, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		business.ID, business.Name, business.Currency, business.CreatedAt, business.UpdatedAt)
	if err != nil {
		log.Printf("[BUSINESS] Failed to create business for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create business", http.StatusInternalServerError, nil)
		return
	}

	_, err = dbTx.ExecContext(r.Context(),
		`INSERT INTO memberships (id, user_id, business_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, business.ID, models.RoleOwner, now)
	if err != nil {
		log.Printf("[BUSINESS] Failed to create owner membership for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create business", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[BUSINESS] Failed to commit business creation: %v", err)
		SendErrorResponse(w, "Failed to create business", http.StatusInternalServerError, nil)
		return
	}

	s.publish(models.DomainEvent{
		BusinessID: business.ID,
		Action:     models.ActionBusinessCreated,
		EntityID:   business.ID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	WriteJSON(w, http.StatusCreated, map[string]any{"business": business})
}

// ListBusinesses lists the caller's businesses
// @Summary List businesses
// @Description List businesses the authenticated user belongs to
// @Tags businesses
// @Produce json
// @Success 200 {object} object{businesses=[]models.Business}
// @Router /businesses [get]
func (s *BusinessService) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT b.id, b.name, b.currency, b.created_at, b.updated_at, m.role
		FROM businesses b
		INNER JOIN memberships m ON m.business_id = b.id
		WHERE m.user_id = $1
		ORDER BY b.created_at DESC`,
		userID)
	if err != nil {
		log.Printf("[BUSINESS] Failed to list businesses for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch businesses", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type businessWithRole struct {
		models.Business
		Role models.Role `json:"role"`
	}

	businesses := []businessWithRole{}
	for rows.Next() {
		var b businessWithRole
		if err := rows.Scan(&b.ID, &b.Name, &b.Currency, &b.CreatedAt, &b.UpdatedAt, &b.Role); err != nil {
			SendErrorResponse(w, "Failed to fetch businesses", http.StatusInternalServerError, nil)
			return
		}
		businesses = append(businesses, b)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"businesses": businesses})
}

// GetBusiness retrieves one business
// @Summary Get business
// @Description Retrieve a business the caller belongs to
// @Tags businesses
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} models.Business
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId} [get]
func (s *BusinessService) GetBusiness(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	if _, err := s.guard.Membership(r.Context(), userID, businessID); err != nil {
		SendServiceError(w, err)
		return
	}

	var b models.Business
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, name, currency, created_at, updated_at FROM businesses WHERE id = $1`,
		businessID).Scan(&b.ID, &b.Name, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Business not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[BUSINESS] Failed to fetch business %s: %v", businessID, err)
			SendErrorResponse(w, "Failed to fetch business", http.StatusInternalServerError, nil)
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"business": b})
}

// UpdateBusiness updates business metadata
// @Summary Update business
// @Description Update business name or currency (OWNER or MANAGER)
// @Tags businesses
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param business body UpdateBusinessRequest true "Business changes"
// @Success 200 {object} models.Business
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /businesses/{businessId} [put]
func (s *BusinessService) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	var req UpdateBusinessRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpBusinessUpdate); err != nil {
		SendServiceError(w, err)
		return
	}

	if req.Currency != nil {
		upper := strings.ToUpper(*req.Currency)
		req.Currency = &upper
	}

	var b models.Business
	err := s.db.QueryRowContext(r.Context(), `
		UPDATE businesses
		SET name = COALESCE($1, name), currency = COALESCE($2, currency), updated_at = $3
		WHERE id = $4
		RETURNING id, name, currency, created_at, updated_at`,
		req.Name, req.Currency, time.Now(), businessID).Scan(
		&b.ID, &b.Name, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Business not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[BUSINESS] Failed to update business %s: %v", businessID, err)
			SendErrorResponse(w, "Failed to update business", http.StatusInternalServerError, nil)
		}
		return
	}

	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionBusinessUpdated,
		EntityID:   businessID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	WriteJSON(w, http.StatusOK, map[string]any{"business": b})
}

// DeleteBusiness removes a business
// @Summary Delete business
// @Description Delete a business and its memberships (OWNER only)
// @Tags businesses
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /businesses/{businessId} [delete]
func (s *BusinessService) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpBusinessDelete); err != nil {
		SendServiceError(w, err)
		return
	}

	dbTx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "Failed to delete business", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var accounts int
	if err := dbTx.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM accounts WHERE business_id = $1`, businessID).Scan(&accounts); err != nil {
		SendErrorResponse(w, "Failed to delete business", http.StatusInternalServerError, nil)
		return
	}
	if accounts > 0 {
		SendErrorResponse(w, "Business has accounts and cannot be deleted", http.StatusConflict, nil)
		return
	}

	if _, err := dbTx.ExecContext(r.Context(),
		`DELETE FROM memberships WHERE business_id = $1`, businessID); err != nil {
		log.Printf("[BUSINESS] Failed to delete memberships for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to delete business", http.StatusInternalServerError, nil)
		return
	}

	if _, err := dbTx.ExecContext(r.Context(),
		`DELETE FROM businesses WHERE id = $1`, businessID); err != nil {
		log.Printf("[BUSINESS] Failed to delete business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to delete business", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[BUSINESS] Failed to commit business delete %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to delete business", http.StatusInternalServerError, nil)
		return
	}

	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionBusinessDeleted,
		EntityID:   businessID,
		UserID:     userID,
		OccurredAt: time.Now(),
	})

	w.WriteHeader(http.StatusNoContent)
}

// AddMember adds a user to a business
// @Summary Add member
// @Description Add a user to the business with a role (OWNER only)
// @Tags businesses
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param member body AddMemberRequest true "Member data"
// @Success 201 {object} models.Membership
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /businesses/{businessId}/members [post]
func (s *BusinessService) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	var req AddMemberRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendServiceError(w, err)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := s.guard.Authorize(r.Context(), userID, businessID, OpMemberManage); err != nil {
		SendServiceError(w, err)
		return
	}

	membership := models.Membership{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		BusinessID: businessID,
		Role:       models.Role(req.Role),
		CreatedAt:  time.Now(),
	}

	_, err := s.db.ExecContext(r.Context(),
		`INSERT INTO memberships (id, user_id, business_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		membership.ID, membership.UserID, membership.BusinessID, membership.Role, membership.CreatedAt)
	if err != nil {
		log.Printf("[BUSINESS] Failed to add member %s to business %s: %v", req.UserID, businessID, err)
		SendErrorResponse(w, "User is already a member", http.StatusConflict, nil)
		return
	}

	s.publish(models.DomainEvent{
		BusinessID: businessID,
		Action:     models.ActionMemberAdded,
		EntityID:   membership.ID,
		UserID:     userID,
		Metadata:   map[string]any{"memberUserId": req.UserID, "role": req.Role},
		OccurredAt: time.Now(),
	})

	WriteJSON(w, http.StatusCreated, map[string]any{"membership": membership})
}

// ListMembers lists a business's memberships
// @Summary List members
// @Description List members of a business
// @Tags businesses
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} object{members=[]models.Membership}
// @Failure 403 {object} ErrorResponse
// @Router /businesses/{businessId}/members [get]
func (s *BusinessService) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, businessID := callerScope(r)

	if _, err := s.guard.Membership(r.Context(), userID, businessID); err != nil {
		SendServiceError(w, err)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT m.id, m.user_id, m.business_id, m.role, m.created_at, u.email, u.first_name, u.last_name
		FROM memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.business_id = $1
		ORDER BY m.created_at`,
		businessID)
	if err != nil {
		log.Printf("[BUSINESS] Failed to list members for business %s: %v", businessID, err)
		SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	type memberWithUser struct {
		models.Membership
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}

	members := []memberWithUser{}
	for rows.Next() {
		var m memberWithUser
		if err := rows.Scan(&m.ID, &m.UserID, &m.BusinessID, &m.Role, &m.CreatedAt,
			&m.Email, &m.FirstName, &m.LastName); err != nil {
			SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
			return
		}
		members = append(members, m)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *BusinessService) publish(event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(events.TopicBusinessEvents, event); err != nil {
		log.Printf("[BUSINESS] Failed to publish %s event for %s: %v", event.Action, event.EntityID, err)
	}
}
