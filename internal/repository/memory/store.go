// Package memory implements the ledger store in process memory. Transactions
// are serialized and applied to a staged copy of the data, so a failed
// transaction leaves no trace and readers only ever see committed state.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chronos-api/internal/models"
	"chronos-api/internal/repository"
)

type state struct {
	bancos      map[string]models.Banco
	movimientos map[string]models.Movimiento
}

func newState() *state {
	return &state{
		bancos:      make(map[string]models.Banco),
		movimientos: make(map[string]models.Movimiento),
	}
}

func (s *state) clone() *state {
	c := &state{
		bancos:      make(map[string]models.Banco, len(s.bancos)),
		movimientos: make(map[string]models.Movimiento, len(s.movimientos)),
	}
	for k, v := range s.bancos {
		c.bancos[k] = v
	}
	for k, v := range s.movimientos {
		c.movimientos[k] = v
	}
	return c
}

type txKey struct{}

type transaction struct {
	state   *state
	changes []change
}

type change struct {
	bancoID string
	tipo    models.TipoMovimiento
}

// Store is an in-memory repository.Store
type Store struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *state

	feedsMu sync.Mutex
	feeds   map[*feed]struct{}
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		state: newState(),
		feeds: make(map[*feed]struct{}),
	}
}

func (s *Store) Bancos() repository.BancoRepository { return &bancoRepository{store: s} }

func (s *Store) Movimientos() repository.MovimientoRepository {
	return &movimientoRepository{store: s}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTransaction runs fn against a staged copy of the data and publishes it
// when fn succeeds. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*transaction); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	tx := &transaction{state: s.state.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()

	s.notify(tx.changes)
	return nil
}

// Seed loads documents as-is, bypassing every ledger rule. It exists to
// build fixtures, including inconsistent ones.
func (s *Store) Seed(bancos []*models.Banco, movimientos []*models.Movimiento) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	var changes []change
	for _, b := range bancos {
		s.state.bancos[b.ID] = *b
		changes = append(changes, change{bancoID: b.ID})
	}
	for _, m := range movimientos {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.state.movimientos[m.ID] = *m
		changes = append(changes, change{bancoID: m.BancoID, tipo: m.Tipo})
	}
	s.mu.Unlock()

	s.notify(changes)
}

// read runs fn on the transaction state bound to ctx, or on committed state
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx, ok := ctx.Value(txKey{}).(*transaction); ok {
		return fn(tx.state)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write runs fn inside the transaction bound to ctx, opening one if needed
func (s *Store) write(ctx context.Context, fn func(tx *transaction) error) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*transaction))
	})
}

type bancoRepository struct {
	store *Store
}

func (r *bancoRepository) Create(ctx context.Context, banco *models.Banco) error {
	return r.store.write(ctx, func(tx *transaction) error {
		if _, exists := tx.state.bancos[banco.ID]; exists {
			return models.NewValidationError("id", fmt.Sprintf("banco %q already exists", banco.ID))
		}
		tx.state.bancos[banco.ID] = *banco
		tx.changes = append(tx.changes, change{bancoID: banco.ID})
		return nil
	})
}

func (r *bancoRepository) GetByID(ctx context.Context, id string) (*models.Banco, error) {
	var banco models.Banco
	err := r.store.read(ctx, func(st *state) error {
		b, ok := st.bancos[id]
		if !ok {
			return models.NewBancoNotFound(id)
		}
		banco = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &banco, nil
}

func (r *bancoRepository) List(ctx context.Context) ([]*models.Banco, error) {
	var bancos []*models.Banco
	err := r.store.read(ctx, func(st *state) error {
		bancos = make([]*models.Banco, 0, len(st.bancos))
		for _, b := range st.bancos {
			b := b
			bancos = append(bancos, &b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortBancos(bancos)
	return bancos, nil
}

func (r *bancoRepository) AdjustCapital(ctx context.Context, id string, delta decimal.Decimal, at time.Time) error {
	return r.store.write(ctx, func(tx *transaction) error {
		banco, ok := tx.state.bancos[id]
		if !ok {
			return models.NewBancoNotFound(id)
		}

		next := banco.CapitalActual.Add(delta)
		if delta.IsNegative() && next.IsNegative() {
			return &models.InsufficientFundsError{
				BancoID:    id,
				Disponible: banco.CapitalActual,
				Requerido:  delta.Neg(),
			}
		}

		banco.CapitalActual = next
		banco.UpdatedAt = at
		tx.state.bancos[id] = banco
		tx.changes = append(tx.changes, change{bancoID: id})
		return nil
	})
}

type movimientoRepository struct {
	store *Store
}

func (r *movimientoRepository) Create(ctx context.Context, movimiento *models.Movimiento) error {
	return r.store.write(ctx, func(tx *transaction) error {
		movimiento.ID = uuid.NewString()
		tx.state.movimientos[movimiento.ID] = *movimiento
		tx.changes = append(tx.changes, change{bancoID: movimiento.BancoID, tipo: movimiento.Tipo})
		return nil
	})
}

func (r *movimientoRepository) GetByID(ctx context.Context, id string) (*models.Movimiento, error) {
	var movimiento models.Movimiento
	err := r.store.read(ctx, func(st *state) error {
		m, ok := st.movimientos[id]
		if !ok {
			return models.NewMovimientoNotFound(id)
		}
		movimiento = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &movimiento, nil
}

func (r *movimientoRepository) ListByBanco(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error) {
	var movimientos []*models.Movimiento
	err := r.store.read(ctx, func(st *state) error {
		for _, m := range st.movimientos {
			if m.BancoID != bancoID || (tipo != "" && m.Tipo != tipo) {
				continue
			}
			m := m
			movimientos = append(movimientos, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	models.OrdenarPorFecha(movimientos)
	return movimientos, nil
}

func (r *movimientoRepository) Update(ctx context.Context, movimiento *models.Movimiento) error {
	return r.store.write(ctx, func(tx *transaction) error {
		current, ok := tx.state.movimientos[movimiento.ID]
		if !ok {
			return models.NewMovimientoNotFound(movimiento.ID)
		}

		current.Monto = movimiento.Monto
		current.Concepto = movimiento.Concepto
		current.Fecha = movimiento.Fecha
		current.Referencia = movimiento.Referencia
		current.UpdatedAt = movimiento.UpdatedAt
		tx.state.movimientos[movimiento.ID] = current
		tx.changes = append(tx.changes, change{bancoID: current.BancoID, tipo: current.Tipo})
		return nil
	})
}

func (r *movimientoRepository) Delete(ctx context.Context, id string) error {
	return r.store.write(ctx, func(tx *transaction) error {
		current, ok := tx.state.movimientos[id]
		if !ok {
			return models.NewMovimientoNotFound(id)
		}
		delete(tx.state.movimientos, id)
		tx.changes = append(tx.changes, change{bancoID: current.BancoID, tipo: current.Tipo})
		return nil
	})
}
