package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Banco is a named bank or vault account holding a running capital
type Banco struct {
	ID            string          `json:"id"`
	Nombre        string          `json:"nombre"`
	CapitalActual decimal.Decimal `json:"capitalActual"`
	Moneda        string          `json:"moneda,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasSufficientCapital checks whether the banco can cover a debit of amount
func (b *Banco) HasSufficientCapital(amount decimal.Decimal) bool {
	return b.CapitalActual.GreaterThanOrEqual(amount)
}

// NuevoBanco holds the caller supplied fields for a new account. Capital is
// accepted only to be ignored: accounts always open at zero.
type NuevoBanco struct {
	ID      string           `json:"id,omitempty" validate:"omitempty,max=64"`
	Nombre  string           `json:"nombre" validate:"omitempty,max=120"`
	Moneda  string           `json:"moneda,omitempty" validate:"omitempty,len=3,alpha"`
	Capital *decimal.Decimal `json:"capitalActual,omitempty"`
}

var bancoNames = map[string]string{
	"bovedaMonte": "Bóveda Monte",
	"bovedaUsa":   "Bóveda USA",
	"utilidades":  "Utilidades",
	"fleteSur":    "Flete Sur",
	"azteca":      "Azteca",
	"leftie":      "Leftie",
	"profit":      "Profit",
}

// BancoName resolves the display name of a well-known banco id. Unknown ids
// are returned unchanged.
func BancoName(id string) string {
	if name, ok := bancoNames[id]; ok {
		return name
	}
	return id
}

// KnownBancoIDs lists the ids of the well-known bancos
func KnownBancoIDs() []string {
	ids := make([]string, 0, len(bancoNames))
	for id := range bancoNames {
		ids = append(ids, id)
	}
	return ids
}

// Normalize trims the free text fields of the request
func (n *NuevoBanco) Normalize() {
	n.ID = strings.TrimSpace(n.ID)
	n.Nombre = strings.TrimSpace(n.Nombre)
	n.Moneda = strings.ToUpper(strings.TrimSpace(n.Moneda))
}
