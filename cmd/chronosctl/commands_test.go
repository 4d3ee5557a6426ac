package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos-api/internal/app"
	"chronos-api/internal/config"
	"chronos-api/internal/models"
)

func memoryOpener(t *testing.T) opener {
	t.Helper()
	return func(ctx context.Context, _ bool) (*app.App, error) {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		cfg := &config.Config{
			Database: config.DatabaseConfig{Backend: app.BackendMemory},
			Ledger: config.LedgerConfig{
				MaxRetries:       1,
				OperationTimeout: 5 * time.Second,
				IdempotencyTTL:   time.Hour,
				DefaultCurrency:  "MXN",
			},
			Reconciliation: config.ReconciliationConfig{Parallelism: 2},
			Cache:          config.CacheConfig{TTL: time.Minute, LocalSize: 10},
		}
		return app.New(ctx, cfg, logger, "test")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, memoryOpener(t))
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBancosList(t *testing.T) {
	out, err := execute(t, "bancos", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "NOMBRE")
	assert.Contains(t, out, "profit")
	assert.Contains(t, out, "Bóveda Monte")
}

func TestBancosListJSON(t *testing.T) {
	out, err := execute(t, "--json", "bancos", "list")
	require.NoError(t, err)

	var bancos []*models.Banco
	require.NoError(t, json.Unmarshal([]byte(out), &bancos))
	assert.Len(t, bancos, len(models.KnownBancoIDs()))
}

func TestBancosCreate(t *testing.T) {
	out, err := execute(t, "bancos", "create", "--id", "caja", "--nombre", "Caja Chica")
	require.NoError(t, err)
	assert.Equal(t, "created banco caja (Caja Chica)\n", out)
}

func TestSaldo(t *testing.T) {
	out, err := execute(t, "saldo")
	require.NoError(t, err)
	assert.Equal(t, "0.00\n", out)
}

func TestIngreso(t *testing.T) {
	out, err := execute(t, "ingreso", "profit", "--monto", "150.5", "--concepto", "venta")
	require.NoError(t, err)
	assert.Equal(t, "recorded INGRESO 150.50 on profit\n", out)
}

func TestGastoInsufficientFunds(t *testing.T) {
	_, err := execute(t, "gasto", "profit", "--monto", "10", "--concepto", "renta")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestIngresoInvalidAmount(t *testing.T) {
	_, err := execute(t, "ingreso", "profit", "--monto", "abc", "--concepto", "venta")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestIngresoMissingFlag(t *testing.T) {
	_, err := execute(t, "ingreso", "profit", "--monto", "10")
	assert.Error(t, err)
}

func TestTransferirInsufficientFunds(t *testing.T) {
	_, err := execute(t, "transferir", "--origen", "profit", "--destino", "azteca", "--monto", "10", "--concepto", "x")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestTotales(t *testing.T) {
	out, err := execute(t, "--json", "totales", "profit")
	require.NoError(t, err)

	var totales models.Totales
	require.NoError(t, json.Unmarshal([]byte(out), &totales))
	assert.True(t, totales.Balance.IsZero())
	assert.Zero(t, totales.CantidadIngresos)
}

func TestMovimientosInvalidTipo(t *testing.T) {
	_, err := execute(t, "movimientos", "profit", "--tipo", "otro")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestReconcile(t *testing.T) {
	out, err := execute(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "azteca")
}

func TestReconcileUnknownBanco(t *testing.T) {
	_, err := execute(t, "reconcile", "--banco", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
