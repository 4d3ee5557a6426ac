// Package realtime turns store change feeds into snapshot callbacks.
//
// Every subscription owns one dispatch goroutine: callbacks for a given
// subscription never run concurrently and always receive the full current
// state. Callbacks must not block; a slow callback delays later snapshots of
// its own subscription, and intermediate changes are coalesced.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
	"chronos-api/internal/repository"
)

// Unsubscribe releases a subscription. It is safe to call more than once and
// from inside the subscription's own callback.
type Unsubscribe func()

// Hub tracks the active subscriptions of the process
type Hub struct {
	store  repository.Store
	logger *logrus.Logger

	mu     sync.Mutex
	nextID uint64
	active map[uint64]*subscription
}

type subscription struct {
	id     uint64
	cancel context.CancelFunc
	feed   repository.ChangeFeed
	once   sync.Once
}

// NewHub creates a hub reading snapshots from store
func NewHub(store repository.Store, logger *logrus.Logger) *Hub {
	return &Hub{
		store:  store,
		logger: logger,
		active: make(map[uint64]*subscription),
	}
}

// SubscribeMovimientos delivers the movements of bancoID of the given kind
// (both kinds when tipo is empty), newest first, now and after every change.
func (h *Hub) SubscribeMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento, callback func([]*models.Movimiento)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	feed, err := h.store.WatchMovimientos(subCtx, bancoID, tipo)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch movimientos of %q: %w", bancoID, err)
	}

	log := h.logger.WithFields(logrus.Fields{"banco_id": bancoID, "tipo": tipo})
	snapshot := func() {
		movimientos, err := h.store.Movimientos().ListByBanco(subCtx, bancoID, tipo)
		if err != nil {
			if subCtx.Err() == nil {
				log.WithError(err).Error("Failed to load movimientos snapshot")
			}
			return
		}
		if subCtx.Err() == nil {
			callback(movimientos)
		}
	}

	return h.start(subCtx, cancel, feed, snapshot, log), nil
}

// SubscribeBanco delivers the current state of bancoID now and after every
// change to it.
func (h *Hub) SubscribeBanco(ctx context.Context, bancoID string, callback func(*models.Banco)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	feed, err := h.store.WatchBanco(subCtx, bancoID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch banco %q: %w", bancoID, err)
	}

	log := h.logger.WithField("banco_id", bancoID)
	snapshot := func() {
		banco, err := h.store.Bancos().GetByID(subCtx, bancoID)
		if err != nil {
			if subCtx.Err() == nil {
				log.WithError(err).Error("Failed to load banco snapshot")
			}
			return
		}
		if subCtx.Err() == nil {
			callback(banco)
		}
	}

	return h.start(subCtx, cancel, feed, snapshot, log), nil
}

func (h *Hub) start(ctx context.Context, cancel context.CancelFunc, feed repository.ChangeFeed, snapshot func(), log *logrus.Entry) Unsubscribe {
	h.mu.Lock()
	h.nextID++
	sub := &subscription{id: h.nextID, cancel: cancel, feed: feed}
	h.active[sub.id] = sub
	h.mu.Unlock()

	go func() {
		defer h.release(sub)

		snapshot()
		for range feed.Changes() {
			if ctx.Err() != nil {
				return
			}
			snapshot()
		}

		if err := feed.Err(); err != nil {
			log.WithError(err).Error("Change feed terminated")
		}
	}()

	return func() { h.release(sub) }
}

func (h *Hub) release(sub *subscription) {
	sub.once.Do(func() {
		sub.cancel()
		if err := sub.feed.Close(); err != nil {
			h.logger.WithError(err).Warn("Failed to close change feed")
		}

		h.mu.Lock()
		delete(h.active, sub.id)
		h.mu.Unlock()
	})
}

// Active returns the number of live subscriptions
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Close releases every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.active))
	for _, sub := range h.active {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.release(sub)
	}
}
