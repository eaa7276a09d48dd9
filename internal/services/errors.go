package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies service failures into the kinds callers may act on.
// Persistence-layer errors never leak past this package; anything
// unclassified is wrapped as KindInternal.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalid            // malformed input
	KindNotFound           // entity absent or outside the caller's business scope
	KindForbidden          // membership missing or role insufficient
	KindConflict           // blocked by references or a concurrent update
)

// ServiceError carries an error kind and a human-readable message.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches two service errors by kind so callers can test with errors.Is
// against the exported sentinels below.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalid   = &ServiceError{Kind: KindInvalid, Message: "invalid input"}
	ErrNotFound  = &ServiceError{Kind: KindNotFound, Message: "not found"}
	ErrForbidden = &ServiceError{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict  = &ServiceError{Kind: KindConflict, Message: "conflict"}
)

func invalidErr(format string, args ...any) error {
	return &ServiceError{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...any) error {
	return &ServiceError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbiddenErr(format string, args ...any) error {
	return &ServiceError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(format string, args ...any) error {
	return &ServiceError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func internalErr(message string, err error) error {
	return &ServiceError{Kind: KindInternal, Message: message, Err: err}
}

// HTTPStatus maps a service error to the response status. Unclassified
// errors map to 500.
func HTTPStatus(err error) int {
	var se *ServiceError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SendServiceError writes err as a JSON error response. Internal errors get
// a generic message so persistence details never reach the caller.
func SendServiceError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An internal error occurred"
	}
	SendErrorResponse(w, message, status, nil)
}
