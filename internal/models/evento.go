package models

import "time"

// Routing keys of the ledger events
const (
	EventoBancoCreado             = "banco.creado"
	EventoMovimientoCreado        = "movimiento.creado"
	EventoMovimientoActualizado   = "movimiento.actualizado"
	EventoMovimientoEliminado     = "movimiento.eliminado"
	EventoTransferenciaCompletada = "transferencia.completada"
	EventoDiscrepancia            = "reconciliacion.discrepancia"
)

// EventoLedger is published after a ledger mutation commits
type EventoLedger struct {
	ID            string      `json:"id"`
	Tipo          string      `json:"tipo"`
	BancoID       string      `json:"bancoId,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	OcurridoEn    time.Time   `json:"ocurridoEn"`
	Datos         interface{} `json:"datos,omitempty"`
}
