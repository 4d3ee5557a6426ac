package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperrors "chronos-api/pkg/errors"
)

// CreateBancoRequest opens a new account
type CreateBancoRequest struct {
	ID     string `json:"id" binding:"omitempty,max=64"`
	Nombre string `json:"nombre" binding:"omitempty,max=120"`
	Moneda string `json:"moneda" binding:"omitempty,len=3"`
	// Accepted and ignored: accounts always open at zero.
	CapitalActual *decimal.Decimal `json:"capitalActual"`
}

// MovimientoRequest records an income or an expense
type MovimientoRequest struct {
	Monto      *decimal.Decimal `json:"monto" binding:"required"`
	Concepto   string           `json:"concepto" binding:"required,max=280"`
	Fecha      *time.Time       `json:"fecha"`
	Referencia string           `json:"referencia" binding:"omitempty,max=120"`
}

// UpdateMovimientoRequest overwrites the given fields of a movement
type UpdateMovimientoRequest struct {
	Monto      *decimal.Decimal `json:"monto"`
	Concepto   *string          `json:"concepto" binding:"omitempty,max=280"`
	Fecha      *time.Time       `json:"fecha"`
	Referencia *string          `json:"referencia" binding:"omitempty,max=120"`
}

// TransferenciaRequest moves money between two accounts
type TransferenciaRequest struct {
	OrigenID  string           `json:"origenId" binding:"required"`
	DestinoID string           `json:"destinoId" binding:"required"`
	Monto     *decimal.Decimal `json:"monto" binding:"required"`
	Concepto  string           `json:"concepto" binding:"required,max=280"`
}

// ReconcileRequest limits a reconciliation run to one account
type ReconcileRequest struct {
	BancoID string `json:"bancoId"`
}

// ErrorResponse wraps every error body
type ErrorResponse struct {
	Error *apperrors.AppError `json:"error"`
}

func respondError(ctx *gin.Context, err error) {
	appErr := apperrors.FromDomain(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = ctx.Error(err)
	}
	ctx.JSON(appErr.Status, ErrorResponse{Error: appErr})
}

// bindJSON decodes the request body into dest, answering 400 on failure
func bindJSON(ctx *gin.Context, dest interface{}) bool {
	err := ctx.ShouldBindJSON(dest)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &fieldErrs) && len(fieldErrs) > 0:
		fe := fieldErrs[0]
		respondError(ctx, apperrors.NewValidationError("Invalid request", map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		}))
	case errors.As(err, &maxBytes):
		respondError(ctx, apperrors.NewAppError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large"))
	case errors.Is(err, io.EOF):
		respondError(ctx, apperrors.NewValidationError("Request body required"))
	default:
		respondError(ctx, apperrors.NewValidationError("Invalid request format", err.Error()))
	}
	return false
}
