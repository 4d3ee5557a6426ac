package models

import "github.com/shopspring/decimal"

// Totales aggregates the movement log of a banco
type Totales struct {
	TotalIngresos    decimal.Decimal `json:"totalIngresos"`
	TotalGastos      decimal.Decimal `json:"totalGastos"`
	Balance          decimal.Decimal `json:"balance"`
	CantidadIngresos int             `json:"cantidadIngresos"`
	CantidadGastos   int             `json:"cantidadGastos"`
}

// CalcularTotales partitions movements by kind and sums their magnitudes
func CalcularTotales(movimientos []*Movimiento) Totales {
	totales := Totales{
		TotalIngresos: decimal.Zero,
		TotalGastos:   decimal.Zero,
	}

	for _, m := range movimientos {
		switch m.Tipo {
		case TipoIngreso:
			totales.TotalIngresos = totales.TotalIngresos.Add(m.Magnitude())
			totales.CantidadIngresos++
		case TipoGasto:
			totales.TotalGastos = totales.TotalGastos.Add(m.Magnitude())
			totales.CantidadGastos++
		}
	}

	totales.Balance = totales.TotalIngresos.Sub(totales.TotalGastos)
	return totales
}
