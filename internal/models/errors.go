package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is matched by every NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds is matched by every InsufficientFundsError
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrValidation is matched by every ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrTransactionConflict reports a write conflict that outlived the retry budget
	ErrTransactionConflict = errors.New("transaction conflict")
)

// NotFoundError reports a referenced banco or movimiento that does not exist
type NotFoundError struct {
	Recurso string
	ID      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Recurso, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewBancoNotFound returns a NotFoundError for a banco
func NewBancoNotFound(id string) error {
	return &NotFoundError{Recurso: "banco", ID: id}
}

// NewMovimientoNotFound returns a NotFoundError for a movimiento
func NewMovimientoNotFound(id string) error {
	return &NotFoundError{Recurso: "movimiento", ID: id}
}

// InsufficientFundsError is raised when a debit exceeds the capital of a banco
type InsufficientFundsError struct {
	BancoID    string
	Disponible decimal.Decimal
	Requerido  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in banco %q: available %s, required %s",
		e.BancoID, e.Disponible.StringFixed(2), e.Requerido.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// ValidationError reports malformed input or a malformed stored document
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for the given field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
