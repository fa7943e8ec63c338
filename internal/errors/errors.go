package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a business error carrying a stable code and a user-facing message.
type AppError struct {
	Code    int    // error code
	Message string // message safe to show to the client
	Err     error  // underlying cause, optional
}

// Error implements error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap supports errors.Unwrap.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError.
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap returns a copy of e carrying err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage returns a copy of e with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// Is reports whether err is an AppError with the same code as target.
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode returns the code of err, or CodeServerError for foreign errors.
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage returns the client-facing message of err.
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrServerError.Message
}

// HTTPStatus maps err to the HTTP status the API responds with.
func HTTPStatus(err error) int {
	return statusForCode(GetCode(err))
}

func statusForCode(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParams:
		return http.StatusBadRequest
	case CodeTokenInvalid, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeNotParticipant:
		return http.StatusForbidden
	case CodeUserNotFound, CodeConversationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ============== error codes ==============

const (
	CodeSuccess = 0

	// auth 10000-10999
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004

	// user 11000-11999
	CodeUserNotFound  = 11001
	CodeInvalidParams = 11002

	// chat 13000-13999
	CodeConversationNotFound = 13001
	CodeNotParticipant       = 13002
	CodeAccessDenied         = 13003

	// system 50000-50999
	CodeServerError = 50001
	CodeDBError     = 50002
)

// ============== predefined errors ==============

var (
	ErrTokenInvalid = NewError(CodeTokenInvalid, "token is invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "token has expired")
)

var (
	ErrUserNotFound  = NewError(CodeUserNotFound, "user not found")
	ErrInvalidParams = NewError(CodeInvalidParams, "invalid parameters")
)

// Capability errors. They are never partially applied.
var (
	ErrConversationNotFound = NewError(CodeConversationNotFound, "conversation not found")
	ErrNotParticipant       = NewError(CodeNotParticipant, "not a participant of this conversation")
	ErrAccessDenied         = NewError(CodeAccessDenied, "you cannot message this user")
)

var (
	ErrServerError = NewError(CodeServerError, "internal server error")
	ErrDBError     = NewError(CodeDBError, "database error")
)
