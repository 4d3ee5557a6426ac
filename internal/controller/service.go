package controller

import (
	"context"

	"github.com/shopspring/decimal"

	"chronos-api/internal/engine"
	"chronos-api/internal/models"
	"chronos-api/internal/realtime"
)

// LedgerService is the part of the ledger engine the HTTP layer uses
type LedgerService interface {
	GetBanco(ctx context.Context, id string) (*models.Banco, error)
	GetTodosBancos(ctx context.Context) ([]*models.Banco, error)
	GetSaldoTotalBancos(ctx context.Context) (decimal.Decimal, error)
	GetBancoName(id string) string
	CreateCuentaBancaria(ctx context.Context, req models.NuevoBanco) (*models.Banco, error)

	CrearIngreso(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error)
	CrearGasto(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error)
	CrearTransferencia(ctx context.Context, req models.Transferencia) (*models.ResultadoTransferencia, error)
	CalcularTotalesBanco(ctx context.Context, bancoID string) (*models.Totales, error)
	ListMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error)
	UpdateMovimiento(ctx context.Context, id string, cambios models.CambiosMovimiento) (*models.Movimiento, error)
	DeleteMovimiento(ctx context.Context, id string) error

	SubscribeToIngresos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error)
	SubscribeToGastos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error)

	Reconcile(ctx context.Context) (*engine.ReconciliationReport, error)
	ReconcileBanco(ctx context.Context, bancoID string) (*engine.ReconciliationResult, error)
}

var _ LedgerService = (*engine.LedgerEngine)(nil)
