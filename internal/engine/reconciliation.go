package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"chronos-api/internal/models"
)

// Reconciliation statuses
const (
	ReconciliationOK          = "ok"
	ReconciliationDiscrepancy = "discrepancia"
	ReconciliationError       = "error"
)

// ReconciliationResult compares the stored capital of a banco with the
// capital its movement log implies
type ReconciliationResult struct {
	BancoID           string          `json:"bancoId"`
	CapitalRegistrado decimal.Decimal `json:"capitalRegistrado"`
	CapitalCalculado  decimal.Decimal `json:"capitalCalculado"`
	Diferencia        decimal.Decimal `json:"diferencia"`
	Movimientos       int             `json:"movimientos"`
	Status            string          `json:"status"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	CheckedAt         time.Time       `json:"checkedAt"`
}

// ReconciliationReport summarizes a reconciliation run over every banco
type ReconciliationReport struct {
	TotalBancos    int                     `json:"totalBancos"`
	Discrepancias  int                     `json:"discrepancias"`
	Errores        int                     `json:"errores"`
	Resultados     []*ReconciliationResult `json:"resultados"`
	Inicio         time.Time               `json:"inicio"`
	Fin            time.Time               `json:"fin"`
	ProcessingTime time.Duration           `json:"processingTime"`
}

// ReconcileBanco recomputes the capital of one banco from its movements. The
// capital and the movements are read in one transaction so in-flight writes
// cannot produce a false discrepancy. Nothing is modified.
func (e *LedgerEngine) ReconcileBanco(ctx context.Context, bancoID string) (*ReconciliationResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	result := &ReconciliationResult{BancoID: bancoID, CheckedAt: e.now().UTC()}

	var banco *models.Banco
	var movimientos []*models.Movimiento
	err := e.runTx(ctx, "reconciliacion", func(ctx context.Context) error {
		var err error
		if banco, err = e.store.Bancos().GetByID(ctx, bancoID); err != nil {
			return err
		}
		movimientos, err = e.store.Movimientos().ListByBanco(ctx, bancoID, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile banco %q: %w", bancoID, err)
	}

	calculado := decimal.Zero
	for _, m := range movimientos {
		calculado = calculado.Add(m.Effect())
	}

	result.CapitalRegistrado = banco.CapitalActual
	result.CapitalCalculado = calculado
	result.Diferencia = banco.CapitalActual.Sub(calculado)
	result.Movimientos = len(movimientos)
	result.Status = ReconciliationOK
	if !result.Diferencia.IsZero() {
		result.Status = ReconciliationDiscrepancy
	}
	return result, nil
}

// Reconcile checks every banco with bounded parallelism. Per-banco failures
// are reported in the result list; only failing to list bancos aborts the run.
func (e *LedgerEngine) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{Inicio: e.now().UTC()}

	bancos, err := e.store.Bancos().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bancos for reconciliation: %w", err)
	}

	report.TotalBancos = len(bancos)
	report.Resultados = make([]*ReconciliationResult, len(bancos))

	g, gctx := errgroup.WithContext(ctx)
	if e.reconcileCfg.Parallelism > 0 {
		g.SetLimit(e.reconcileCfg.Parallelism)
	}
	for i, banco := range bancos {
		i, bancoID := i, banco.ID
		g.Go(func() error {
			result, err := e.ReconcileBanco(gctx, bancoID)
			if err != nil {
				result = &ReconciliationResult{
					BancoID:      bancoID,
					Status:       ReconciliationError,
					ErrorMessage: err.Error(),
					CheckedAt:    e.now().UTC(),
				}
			}
			report.Resultados[i] = result
			return nil
		})
	}
	_ = g.Wait()

	for _, result := range report.Resultados {
		switch result.Status {
		case ReconciliationDiscrepancy:
			report.Discrepancias++
			e.logger.WithFields(logrus.Fields{
				"banco_id":           result.BancoID,
				"capital_registrado": result.CapitalRegistrado.String(),
				"capital_calculado":  result.CapitalCalculado.String(),
				"diferencia":         result.Diferencia.String(),
			}).Warn("Capital discrepancy found")
			e.publish(ctx, &models.EventoLedger{
				Tipo:    models.EventoDiscrepancia,
				BancoID: result.BancoID,
				Datos:   result,
			})
		case ReconciliationError:
			report.Errores++
			e.logger.WithField("banco_id", result.BancoID).Error(result.ErrorMessage)
		}
	}

	report.Fin = e.now().UTC()
	report.ProcessingTime = report.Fin.Sub(report.Inicio)
	e.metrics.SetDiscrepancies(report.Discrepancias)

	e.logger.WithFields(logrus.Fields{
		"total_bancos":  report.TotalBancos,
		"discrepancias": report.Discrepancias,
		"errores":       report.Errores,
	}).Info("Reconciliation finished")
	return report, nil
}
