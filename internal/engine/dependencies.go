package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"chronos-api/internal/models"
)

// BancoCache keeps the account list between writes. Every InvalidateBancos
// moves the version forward, and SetBancos stores nothing when the version it
// is given is no longer current, so a list read before a commit can never be
// cached after that commit's invalidation.
type BancoCache interface {
	GetBancos(ctx context.Context) ([]*models.Banco, bool, error)
	BancosVersion(ctx context.Context) (int64, error)
	SetBancos(ctx context.Context, version int64, bancos []*models.Banco) error
	InvalidateBancos(ctx context.Context) error
}

// EventPublisher delivers committed ledger events to other services
type EventPublisher interface {
	Publish(ctx context.Context, evento *models.EventoLedger) error
}

// Recorder receives operational measurements from the engine
type Recorder interface {
	ObserveOperation(operation, status string, duration time.Duration)
	ObserveTransfer(monto decimal.Decimal)
	IncConflict(operation string)
	SetDiscrepancies(count int)
}

type noopCache struct{}

func (noopCache) GetBancos(context.Context) ([]*models.Banco, bool, error) { return nil, false, nil }
func (noopCache) BancosVersion(context.Context) (int64, error)             { return 0, nil }
func (noopCache) SetBancos(context.Context, int64, []*models.Banco) error  { return nil }
func (noopCache) InvalidateBancos(context.Context) error                   { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *models.EventoLedger) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}
func (noopRecorder) ObserveTransfer(decimal.Decimal)                {}
func (noopRecorder) IncConflict(string)                             {}
func (noopRecorder) SetDiscrepancies(int)                           {}
