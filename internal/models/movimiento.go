package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TipoMovimiento discriminates income from expense entries
type TipoMovimiento string

const (
	TipoIngreso TipoMovimiento = "INGRESO"
	TipoGasto   TipoMovimiento = "GASTO"
)

// Valid reports whether t is a known movement kind
func (t TipoMovimiento) Valid() bool {
	return t == TipoIngreso || t == TipoGasto
}

// ParseTipoMovimiento accepts the canonical names and the lower case
// collection style aliases ("ingresos", "gastos").
func ParseTipoMovimiento(s string) (TipoMovimiento, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INGRESO", "INGRESOS":
		return TipoIngreso, nil
	case "GASTO", "GASTOS":
		return TipoGasto, nil
	}
	return "", NewValidationError("tipo", "must be INGRESO or GASTO")
}

// Movimiento is an income or expense entry in the movement log of a banco
type Movimiento struct {
	ID              string          `json:"id"`
	BancoID         string          `json:"bancoId"`
	Tipo            TipoMovimiento  `json:"tipo"`
	Monto           decimal.Decimal `json:"monto"`
	Concepto        string          `json:"concepto"`
	Fecha           time.Time       `json:"fecha"`
	Referencia      string          `json:"referencia,omitempty"`
	TransferenciaID string          `json:"transferenciaId,omitempty"`
	ContraparteID   string          `json:"contraparteId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Magnitude returns the absolute amount. Legacy expense rows may carry a
// negative monto.
func (m *Movimiento) Magnitude() decimal.Decimal {
	return m.Monto.Abs()
}

// Effect returns the signed change this movement applies to capital
func (m *Movimiento) Effect() decimal.Decimal {
	if m.Tipo == TipoGasto {
		return m.Magnitude().Neg()
	}
	return m.Magnitude()
}

// IsTransferLeg reports whether the movement was produced by a transfer
func (m *Movimiento) IsTransferLeg() bool {
	return m.TransferenciaID != ""
}

// NuevoMovimiento is the input to CrearIngreso and CrearGasto
type NuevoMovimiento struct {
	BancoID    string          `json:"bancoId" validate:"required"`
	Monto      decimal.Decimal `json:"monto"`
	Concepto   string          `json:"concepto" validate:"required,max=280"`
	Fecha      *time.Time      `json:"fecha,omitempty"`
	Referencia string          `json:"referencia,omitempty" validate:"max=120"`
}

// Normalize trims free text fields
func (n *NuevoMovimiento) Normalize() {
	n.BancoID = strings.TrimSpace(n.BancoID)
	n.Concepto = strings.TrimSpace(n.Concepto)
	n.Referencia = strings.TrimSpace(n.Referencia)
}

// CambiosMovimiento carries the fields an update may overwrite. Nil fields
// are left untouched.
type CambiosMovimiento struct {
	Monto      *decimal.Decimal `json:"monto,omitempty"`
	Concepto   *string          `json:"concepto,omitempty"`
	Fecha      *time.Time       `json:"fecha,omitempty"`
	Referencia *string          `json:"referencia,omitempty"`
}

// Empty reports whether no field would change
func (c CambiosMovimiento) Empty() bool {
	return c.Monto == nil && c.Concepto == nil && c.Fecha == nil && c.Referencia == nil
}

// OrdenarPorFecha sorts movements newest first, breaking ties by creation time
func OrdenarPorFecha(movimientos []*Movimiento) {
	sort.SliceStable(movimientos, func(i, j int) bool {
		if !movimientos[i].Fecha.Equal(movimientos[j].Fecha) {
			return movimientos[i].Fecha.After(movimientos[j].Fecha)
		}
		return movimientos[i].CreatedAt.After(movimientos[j].CreatedAt)
	})
}
