package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
)

// IdempotencyStore records transfer results by client supplied key
type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string) (*models.RegistroIdempotencia, bool, error)
	SaveRecord(ctx context.Context, key string, record *models.RegistroIdempotencia, ttl time.Duration) error
	// Acquire marks key as in flight; false means another request holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const inFlightTTL = 30 * time.Second

// IdempotencyManager makes transfers safe to retry under the same key
type IdempotencyManager struct {
	store  IdempotencyStore
	ttl    time.Duration
	logger *logrus.Logger
}

// NewIdempotencyManager creates a manager keeping results for ttl
func NewIdempotencyManager(store IdempotencyStore, ttl time.Duration, logger *logrus.Logger) *IdempotencyManager {
	return &IdempotencyManager{store: store, ttl: ttl, logger: logger}
}

// Process returns the stored result for key, or runs operation and stores
// what it returns. huella identifies the request: replaying a key with a
// different request is a ValidationError. The boolean reports a replayed
// result.
func (m *IdempotencyManager) Process(ctx context.Context, key, huella string, operation func() (*models.ResultadoTransferencia, error)) (*models.ResultadoTransferencia, bool, error) {
	if record, ok, err := m.store.GetRecord(ctx, key); err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency record: %w", err)
	} else if ok {
		return replay(key, huella, record)
	}

	acquired, err := m.store.Acquire(ctx, key, inFlightTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}
	if !acquired {
		return nil, false, fmt.Errorf("%w: request with idempotency key %q is in progress", models.ErrTransactionConflict, key)
	}

	// Double check: the holder may have finished between the read and Acquire.
	if record, ok, err := m.store.GetRecord(ctx, key); err == nil && ok {
		m.release(ctx, key)
		return replay(key, huella, record)
	}

	result, err := operation()
	if err != nil {
		m.release(ctx, key)
		return nil, false, err
	}

	record := &models.RegistroIdempotencia{Huella: huella, Resultado: result}
	if err := m.store.SaveRecord(ctx, key, record, m.ttl); err != nil {
		m.logger.WithError(err).WithField("idempotency_key", key).Error("Failed to store idempotent result")
	}
	m.release(ctx, key)
	return result, false, nil
}

func replay(key, huella string, record *models.RegistroIdempotencia) (*models.ResultadoTransferencia, bool, error) {
	if record.Huella != huella || record.Resultado == nil {
		return nil, false, models.NewValidationError("idempotencyKey",
			fmt.Sprintf("key %q was already used for a different transfer", key))
	}
	return record.Resultado, true, nil
}

func (m *IdempotencyManager) release(ctx context.Context, key string) {
	if err := m.store.Release(ctx, key); err != nil {
		m.logger.WithError(err).WithField("idempotency_key", key).Warn("Failed to release idempotency key")
	}
}
