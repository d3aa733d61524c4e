// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("forbidden")
	ErrRateLimited = errors.New("too many requests")
	ErrUpstream    = errors.New("upstream service failed")
	ErrBadRequest  = errors.New("invalid request")
)

// FieldError carries per-field validation failures.
type FieldError struct {
	Message string
	Fields  map[string]string
}

func (e *FieldError) Error() string { return e.Message }

// Unwrap ties field errors to ErrValidation.
func (e *FieldError) Unwrap() error { return ErrValidation }

// StatusOf returns the HTTP status RespondError uses for err.
func StatusOf(err error) int {
	var fe *FieldError
	switch {
	case errors.As(err, &fe), errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	var fe *FieldError
	switch {
	case errors.As(err, &fe):
		JSON(w, status, ErrorBody{Error: fe.Message, Fields: fe.Fields})
	case errors.Is(err, ErrBadRequest):
		Error(w, status, "Invalid request")
	case errors.Is(err, ErrForbidden):
		Error(w, status, "Forbidden")
	case errors.Is(err, ErrRateLimited):
		Error(w, status, "Too many requests. Please try again later.")
	case status == http.StatusInternalServerError:
		Error(w, status, http.StatusText(status))
	default:
		Error(w, status, err.Error())
	}
}
