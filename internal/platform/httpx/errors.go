// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Rule maps a domain error kind onto a problem response.
type Rule struct {
	Err    error
	Status int
	Title  string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// RespondErrorWith tries rules in order before falling back to RespondError.
// Rules are matched with errors.Is, so list refinements before their parents.
func RespondErrorWith(w http.ResponseWriter, err error, rules []Rule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return
		}
	}
	RespondError(w, err)
}

// Known reports whether err maps to a client-facing status through rules or
// the package sentinels.
func Known(err error, rules []Rule) bool {
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			return true
		}
	}
	for _, sentinel := range []error{ErrNotFound, ErrDuplicate, ErrValidation, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
