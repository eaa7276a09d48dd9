package services

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// callerScope pulls the authenticated user ID (set by the auth middleware)
// and the business ID path parameter off the request.
func callerScope(r *http.Request) (userID, businessID string) {
	userID, _ = r.Context().Value("userID").(string)
	businessID = chi.URLParam(r, "businessId")
	return userID, businessID
}
