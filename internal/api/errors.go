package api

import (
	"errors"
	"net/http"
)

// Stable categorical error codes returned to clients. These are part of the
// API contract: clients branch on Code, not on Message.
const (
	CodeBadRequest         = "bad-request"
	CodeUnauthenticated    = "unauthenticated"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not-found"
	CodeConflict           = "conflict"
	CodeResourceExhausted  = "resource-exhausted"
	CodeFailedPrecondition = "failed-precondition"
	CodeInternal           = "internal"
)

type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest         = &AppError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: "bad request"}
	ErrUnauthenticated    = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthenticated, Message: "authentication required"}
	ErrNotFound           = &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "not found"}
	ErrConflict           = &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: "conflict"}
	ErrInternalServer     = &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error, please try again"}
	ErrInvalidCredentials = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthenticated, Message: "invalid email or password"}
	ErrEmailAlreadyExists = &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: "email already registered"}
	ErrInvalidToken       = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthenticated, Message: "invalid or expired token"}
)

func NewValidationError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

// NewResourceExhaustedError reports a consumed allowance. The message is
// user-facing and must state the configured limit.
func NewResourceExhaustedError(msg string) *AppError {
	return &AppError{Status: http.StatusTooManyRequests, Code: CodeResourceExhausted, Message: msg}
}

// NewFailedPreconditionError reports a downstream-service misconfiguration,
// distinct from both quota and internal failures.
func NewFailedPreconditionError(msg string) *AppError {
	return &AppError{Status: http.StatusBadGateway, Code: CodeFailedPrecondition, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONAppError(w, appErr)
		return
	}
	JSONAppError(w, ErrInternalServer)
}
