package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Transferencia requests moving monto from OrigenID to DestinoID
type Transferencia struct {
	OrigenID       string          `json:"origenId" validate:"required"`
	DestinoID      string          `json:"destinoId" validate:"required"`
	Monto          decimal.Decimal `json:"monto"`
	Concepto       string          `json:"concepto" validate:"required,max=280"`
	IdempotencyKey string          `json:"-"`
}

// Normalize trims free text fields
func (t *Transferencia) Normalize() {
	t.OrigenID = strings.TrimSpace(t.OrigenID)
	t.DestinoID = strings.TrimSpace(t.DestinoID)
	t.Concepto = strings.TrimSpace(t.Concepto)
}

// Validate checks the invariants that tags cannot express
func (t *Transferencia) Validate() error {
	if t.OrigenID == t.DestinoID {
		return NewValidationError("destinoId", "must differ from origenId")
	}
	if !t.Monto.IsPositive() {
		return NewValidationError("monto", "must be greater than zero")
	}
	return nil
}

// Huella is a sha256 of the fields that define the transfer. Two requests
// with the same huella move the same money.
func (t *Transferencia) Huella() string {
	data, _ := json.Marshal(struct {
		OrigenID  string `json:"origenId"`
		DestinoID string `json:"destinoId"`
		Monto     string `json:"monto"`
		Concepto  string `json:"concepto"`
	}{t.OrigenID, t.DestinoID, t.Monto.String(), t.Concepto})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ResultadoTransferencia identifies the two movements a transfer produced
type ResultadoTransferencia struct {
	TransferenciaID string `json:"transferenciaId"`
	SalidaID        string `json:"salidaId"`
	EntradaID       string `json:"entradaId"`
}

// RegistroIdempotencia is what an idempotency key remembers: the huella of
// the request that first used it and the result that request produced.
type RegistroIdempotencia struct {
	Huella    string                  `json:"huella"`
	Resultado *ResultadoTransferencia `json:"resultado"`
}
