package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"chronos-api/internal/models"
)

// BancoRepository persists accounts
type BancoRepository interface {
	// Create inserts a new banco. A duplicate id is a ValidationError.
	Create(ctx context.Context, banco *models.Banco) error
	// GetByID returns a NotFoundError when the banco does not exist.
	GetByID(ctx context.Context, id string) (*models.Banco, error)
	List(ctx context.Context) ([]*models.Banco, error)
	// AdjustCapital adds delta to the capital of a banco. A negative delta is
	// applied only while the capital covers it, otherwise the call fails with
	// an InsufficientFundsError and nothing changes.
	AdjustCapital(ctx context.Context, id string, delta decimal.Decimal, at time.Time) error
}

// MovimientoRepository persists the movement log
type MovimientoRepository interface {
	// Create inserts a movement and assigns its id.
	Create(ctx context.Context, movimiento *models.Movimiento) error
	GetByID(ctx context.Context, id string) (*models.Movimiento, error)
	// ListByBanco returns the movements of a banco, newest first. An empty
	// tipo returns both kinds.
	ListByBanco(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error)
	Update(ctx context.Context, movimiento *models.Movimiento) error
	Delete(ctx context.Context, id string) error
}

// ChangeFeed delivers a signal every time watched documents change. Signals
// coalesce: a slow reader sees one pending signal, never a backlog.
type ChangeFeed interface {
	Changes() <-chan struct{}
	// Err reports why Changes was closed, nil after a clean Close.
	Err() error
	Close() error
}

// Watcher opens change feeds on the account store and the movement log
type Watcher interface {
	WatchMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) (ChangeFeed, error)
	WatchBanco(ctx context.Context, bancoID string) (ChangeFeed, error)
}

// Store is the document store the ledger engine runs against. Repository
// calls made with the context handed to fn join the transaction.
type Store interface {
	Watcher
	Bancos() BancoRepository
	Movimientos() MovimientoRepository
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}
