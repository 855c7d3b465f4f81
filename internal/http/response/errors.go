// Package response renders the structured JSON error envelope shared by
// every handler.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/pkg/logger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes surfaced to clients.
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeDuplicateID     = "DUPLICATE_ID"
	CodeBorrowDenied    = "BORROW_DENIED"
	CodeRenewalDenied   = "RENEWAL_DENIED"
	CodeAlreadyReturned = "ALREADY_RETURNED"
	CodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	CodeInternalError   = "INTERNAL_ERROR"
)

func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteErrorWithDetails(w, statusCode, message, code, "")
}

func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

// FromError maps a domain error to its HTTP rendering. Unknown errors
// are reported as internal without leaking the underlying message.
func FromError(w http.ResponseWriter, err error) {
	var (
		ve  *domain.ValidationError
		nfe *domain.NotFoundError
		are *domain.AlreadyReturnedError
		ce  *domain.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		BadRequest(w, ve.Error())
	case errors.As(err, &nfe):
		NotFound(w, nfe.Error())
	case errors.As(err, &are):
		WriteError(w, http.StatusConflict, are.Error(), CodeAlreadyReturned)
	case errors.As(err, &ce):
		Conflict(w, ce.Error())
	default:
		logger.Error("Unhandled error in handler", "error", err)
		InternalError(w, "internal server error")
	}
}
