package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"chronos-api/internal/models"
)

// AppError is the error body returned by the HTTP API
type AppError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(status int, code, message string, details ...interface{}) *AppError {
	var detail interface{}
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: detail,
	}
}

func NewValidationError(message string, details ...interface{}) *AppError {
	return NewAppError(http.StatusBadRequest, "VALIDATION_ERROR", message, details...)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func NewConflictError(message string) *AppError {
	return NewAppError(http.StatusConflict, "TRANSACTION_CONFLICT", message)
}

func NewInternalError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func NewTooManyRequestsError(message string) *AppError {
	return NewAppError(http.StatusTooManyRequests, "RATE_LIMITED", message)
}

var (
	ErrTokenInvalid  = NewUnauthorizedError("Invalid token")
	ErrMissingAuth   = NewUnauthorizedError("Authorization required")
	ErrTooManyCalls  = NewTooManyRequestsError("Too many requests")
	ErrInternalError = NewInternalError("Internal server error")
)

// FromDomain maps a ledger error to its HTTP representation. Unknown errors
// become a generic 500 so internal details never reach the client.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var notFound *models.NotFoundError
	if stderrors.As(err, &notFound) {
		return NewAppError(http.StatusNotFound, "NOT_FOUND", notFound.Error(), map[string]string{
			"recurso": notFound.Recurso,
			"id":      notFound.ID,
		})
	}

	var funds *models.InsufficientFundsError
	if stderrors.As(err, &funds) {
		return NewAppError(http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds", map[string]string{
			"bancoId":    funds.BancoID,
			"disponible": funds.Disponible.String(),
			"requerido":  funds.Requerido.String(),
		})
	}

	var validation *models.ValidationError
	if stderrors.As(err, &validation) {
		if validation.Field == "" {
			return NewValidationError(validation.Message)
		}
		return NewValidationError(validation.Message, map[string]string{"field": validation.Field})
	}

	switch {
	case stderrors.Is(err, models.ErrNotFound):
		return NewAppError(http.StatusNotFound, "NOT_FOUND", err.Error())
	case stderrors.Is(err, models.ErrInsufficientFunds):
		return NewAppError(http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
	case stderrors.Is(err, models.ErrValidation):
		return NewValidationError(err.Error())
	case stderrors.Is(err, models.ErrTransactionConflict):
		return NewConflictError("The operation conflicted with a concurrent update, retry it")
	}
	return ErrInternalError
}
