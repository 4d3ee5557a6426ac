package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/config"
	"chronos-api/internal/models"
	"chronos-api/internal/realtime"
	"chronos-api/internal/repository"
)

// LedgerEngine moves money between bancos. Every mutation is a single store
// transaction that updates capital together with the movement log.
type LedgerEngine struct {
	store         repository.Store
	cache         BancoCache
	events        EventPublisher
	metrics       Recorder
	idempotency   *IdempotencyManager
	subscriptions *realtime.Hub
	validate      *validator.Validate
	cfg           config.LedgerConfig
	reconcileCfg  config.ReconciliationConfig
	logger        *logrus.Logger
	now           func() time.Time
}

// Option customizes a LedgerEngine
type Option func(*LedgerEngine)

// WithCache serves the account list from cache between writes
func WithCache(cache BancoCache) Option {
	return func(e *LedgerEngine) { e.cache = cache }
}

// WithEventPublisher publishes an event after every committed mutation
func WithEventPublisher(publisher EventPublisher) Option {
	return func(e *LedgerEngine) { e.events = publisher }
}

// WithRecorder reports operation metrics
func WithRecorder(recorder Recorder) Option {
	return func(e *LedgerEngine) { e.metrics = recorder }
}

// WithIdempotencyStore enables idempotency keys on transfers
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(e *LedgerEngine) {
		e.idempotency = NewIdempotencyManager(store, e.cfg.IdempotencyTTL, e.logger)
	}
}

// WithReconciliation sets the parallelism of reconciliation runs
func WithReconciliation(cfg config.ReconciliationConfig) Option {
	return func(e *LedgerEngine) { e.reconcileCfg = cfg }
}

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *LedgerEngine) { e.now = now }
}

// NewLedgerEngine creates an engine over store
func NewLedgerEngine(store repository.Store, cfg config.LedgerConfig, logger *logrus.Logger, opts ...Option) *LedgerEngine {
	e := &LedgerEngine{
		store:         store,
		cache:         noopCache{},
		events:        noopPublisher{},
		metrics:       noopRecorder{},
		subscriptions: realtime.NewHub(store, logger),
		validate:      newValidator(),
		cfg:           cfg,
		reconcileCfg:  config.ReconciliationConfig{Parallelism: 4},
		logger:        logger,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// GetBanco returns the banco with the given id, or nil when it does not exist
func (e *LedgerEngine) GetBanco(ctx context.Context, id string) (*models.Banco, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	banco, err := e.store.Bancos().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return banco, nil
}

// GetTodosBancos returns every banco
func (e *LedgerEngine) GetTodosBancos(ctx context.Context) ([]*models.Banco, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if bancos, ok, err := e.cache.GetBancos(ctx); err != nil {
		e.logger.WithError(err).Warn("Failed to read bancos from cache")
	} else if ok {
		return bancos, nil
	}

	version, versionErr := e.cache.BancosVersion(ctx)
	bancos, err := e.store.Bancos().List(ctx)
	if err != nil {
		return nil, err
	}

	if versionErr != nil {
		e.logger.WithError(versionErr).Warn("Failed to read bancos cache version")
	} else if err := e.cache.SetBancos(ctx, version, bancos); err != nil {
		e.logger.WithError(err).Warn("Failed to cache bancos")
	}
	return bancos, nil
}

// GetSaldoTotalBancos sums the capital of every banco
func (e *LedgerEngine) GetSaldoTotalBancos(ctx context.Context) (decimal.Decimal, error) {
	bancos, err := e.GetTodosBancos(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, b := range bancos {
		total = total.Add(b.CapitalActual)
	}
	return total, nil
}

// GetBancoName resolves the display name of a well-known banco id
func (e *LedgerEngine) GetBancoName(id string) string {
	return models.BancoName(id)
}

// CreateCuentaBancaria opens a new banco. Capital always starts at zero,
// whatever the request carries.
func (e *LedgerEngine) CreateCuentaBancaria(ctx context.Context, req models.NuevoBanco) (*models.Banco, error) {
	start := time.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req.Normalize()
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}

	if req.Capital != nil && !req.Capital.IsZero() {
		e.logger.WithFields(logrus.Fields{
			"banco_id": req.ID,
			"capital":  req.Capital.String(),
		}).Warn("Ignoring initial capital of new banco")
	}

	now := e.now().UTC()
	banco := &models.Banco{
		ID:            req.ID,
		Nombre:        req.Nombre,
		CapitalActual: decimal.Zero,
		Moneda:        req.Moneda,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if banco.ID == "" {
		banco.ID = uuid.NewString()
	}
	if banco.Nombre == "" {
		banco.Nombre = models.BancoName(banco.ID)
	}
	if banco.Moneda == "" {
		banco.Moneda = e.cfg.DefaultCurrency
	}

	err := e.runTx(ctx, "create_banco", func(ctx context.Context) error {
		return e.store.Bancos().Create(ctx, banco)
	})
	e.observe("create_banco", start, err)
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, &models.EventoLedger{
		Tipo:    models.EventoBancoCreado,
		BancoID: banco.ID,
		Datos:   banco,
	})

	e.logger.WithField("banco_id", banco.ID).Info("Banco created")
	return banco, nil
}

// CrearIngreso records an income and credits the banco in one transaction
func (e *LedgerEngine) CrearIngreso(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error) {
	return e.crearMovimiento(ctx, models.TipoIngreso, req)
}

// CrearGasto records an expense and debits the banco in one transaction. It
// fails with an InsufficientFundsError when the capital does not cover it.
func (e *LedgerEngine) CrearGasto(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error) {
	return e.crearMovimiento(ctx, models.TipoGasto, req)
}

func (e *LedgerEngine) crearMovimiento(ctx context.Context, tipo models.TipoMovimiento, req models.NuevoMovimiento) (*models.Movimiento, error) {
	operation := "crear_" + strings.ToLower(string(tipo))
	start := time.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req.Normalize()
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Monto.IsPositive() {
		return nil, models.NewValidationError("monto", "must be greater than zero")
	}

	now := e.now().UTC()
	movimiento := &models.Movimiento{
		BancoID:    req.BancoID,
		Tipo:       tipo,
		Monto:      req.Monto,
		Concepto:   req.Concepto,
		Fecha:      now,
		Referencia: req.Referencia,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Fecha != nil {
		movimiento.Fecha = req.Fecha.UTC()
	}

	err := e.runTx(ctx, operation, func(ctx context.Context) error {
		movimiento.ID = ""

		banco, err := e.store.Bancos().GetByID(ctx, req.BancoID)
		if err != nil {
			return err
		}

		if tipo == models.TipoGasto && !banco.HasSufficientCapital(req.Monto) {
			return &models.InsufficientFundsError{
				BancoID:    banco.ID,
				Disponible: banco.CapitalActual,
				Requerido:  req.Monto,
			}
		}

		if err := e.store.Bancos().AdjustCapital(ctx, banco.ID, movimiento.Effect(), now); err != nil {
			return err
		}
		return e.store.Movimientos().Create(ctx, movimiento)
	})
	e.observe(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	e.afterCommit(ctx, &models.EventoLedger{
		Tipo:    models.EventoMovimientoCreado,
		BancoID: movimiento.BancoID,
		Datos:   movimiento,
	})
	return movimiento, nil
}

// CrearTransferencia moves money between two bancos. The origin capital is
// read and checked inside the same transaction that debits it, so concurrent
// transfers can never overdraw the origin.
func (e *LedgerEngine) CrearTransferencia(ctx context.Context, req models.Transferencia) (*models.ResultadoTransferencia, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req.Normalize()
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" || e.idempotency == nil {
		return e.transferir(ctx, req)
	}

	result, replayed, err := e.idempotency.Process(ctx, req.IdempotencyKey, req.Huella(), func() (*models.ResultadoTransferencia, error) {
		return e.transferir(ctx, req)
	})
	if replayed {
		e.logger.WithFields(logrus.Fields{
			"idempotency_key":  req.IdempotencyKey,
			"transferencia_id": result.TransferenciaID,
		}).Info("Replaying transfer result for idempotency key")
	}
	return result, err
}

func (e *LedgerEngine) transferir(ctx context.Context, req models.Transferencia) (*models.ResultadoTransferencia, error) {
	start := time.Now()
	now := e.now().UTC()
	transferenciaID := uuid.NewString()

	var salida, entrada *models.Movimiento
	err := e.runTx(ctx, "transferencia", func(ctx context.Context) error {
		origen, err := e.store.Bancos().GetByID(ctx, req.OrigenID)
		if err != nil {
			return err
		}

		if !origen.HasSufficientCapital(req.Monto) {
			return &models.InsufficientFundsError{
				BancoID:    origen.ID,
				Disponible: origen.CapitalActual,
				Requerido:  req.Monto,
			}
		}

		if _, err := e.store.Bancos().GetByID(ctx, req.DestinoID); err != nil {
			return err
		}

		if err := e.store.Bancos().AdjustCapital(ctx, req.OrigenID, req.Monto.Neg(), now); err != nil {
			return err
		}
		if err := e.store.Bancos().AdjustCapital(ctx, req.DestinoID, req.Monto, now); err != nil {
			return err
		}

		salida = &models.Movimiento{
			BancoID:         req.OrigenID,
			Tipo:            models.TipoGasto,
			Monto:           req.Monto,
			Concepto:        req.Concepto,
			Fecha:           now,
			Referencia:      transferenciaID,
			TransferenciaID: transferenciaID,
			ContraparteID:   req.DestinoID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.store.Movimientos().Create(ctx, salida); err != nil {
			return err
		}

		entrada = &models.Movimiento{
			BancoID:         req.DestinoID,
			Tipo:            models.TipoIngreso,
			Monto:           req.Monto,
			Concepto:        req.Concepto,
			Fecha:           now,
			Referencia:      transferenciaID,
			TransferenciaID: transferenciaID,
			ContraparteID:   req.OrigenID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return e.store.Movimientos().Create(ctx, entrada)
	})
	e.observe("transferencia", start, err)
	if err != nil {
		return nil, fmt.Errorf("transferencia: %w", err)
	}

	result := &models.ResultadoTransferencia{
		TransferenciaID: transferenciaID,
		SalidaID:        salida.ID,
		EntradaID:       entrada.ID,
	}

	e.metrics.ObserveTransfer(req.Monto)
	e.afterCommit(ctx, &models.EventoLedger{
		Tipo:          models.EventoTransferenciaCompletada,
		BancoID:       req.OrigenID,
		CorrelationID: transferenciaID,
		Datos: map[string]interface{}{
			"origenId":  req.OrigenID,
			"destinoId": req.DestinoID,
			"monto":     req.Monto,
			"concepto":  req.Concepto,
			"salidaId":  result.SalidaID,
			"entradaId": result.EntradaID,
		},
	})

	e.logger.WithFields(logrus.Fields{
		"transferencia_id": transferenciaID,
		"origen_id":        req.OrigenID,
		"destino_id":       req.DestinoID,
		"monto":            req.Monto.String(),
	}).Info("Transfer committed")
	return result, nil
}

// CalcularTotalesBanco aggregates the movement log of a banco. A banco
// without movements yields all-zero totals.
func (e *LedgerEngine) CalcularTotalesBanco(ctx context.Context, bancoID string) (*models.Totales, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	movimientos, err := e.store.Movimientos().ListByBanco(ctx, bancoID, "")
	if err != nil {
		return nil, err
	}

	totales := models.CalcularTotales(movimientos)
	return &totales, nil
}

// ListMovimientos returns the movements of a banco, newest first
func (e *LedgerEngine) ListMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if tipo != "" && !tipo.Valid() {
		return nil, models.NewValidationError("tipo", "must be INGRESO or GASTO")
	}
	return e.store.Movimientos().ListByBanco(ctx, bancoID, tipo)
}

// UpdateMovimiento overwrites fields of a movement and moves the capital of
// its banco by the difference, in one transaction.
func (e *LedgerEngine) UpdateMovimiento(ctx context.Context, id string, cambios models.CambiosMovimiento) (*models.Movimiento, error) {
	start := time.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if cambios.Empty() {
		return nil, models.NewValidationError("", "no fields to update")
	}
	if cambios.Monto != nil && !cambios.Monto.IsPositive() {
		return nil, models.NewValidationError("monto", "must be greater than zero")
	}
	if cambios.Concepto != nil && strings.TrimSpace(*cambios.Concepto) == "" {
		return nil, models.NewValidationError("concepto", "cannot be empty")
	}

	var updated *models.Movimiento
	err := e.runTx(ctx, "update_movimiento", func(ctx context.Context) error {
		current, err := e.store.Movimientos().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.IsTransferLeg() {
			return models.NewValidationError("id", "transfer movements cannot be edited")
		}

		next := *current
		if cambios.Monto != nil {
			next.Monto = *cambios.Monto
		}
		if cambios.Concepto != nil {
			next.Concepto = strings.TrimSpace(*cambios.Concepto)
		}
		if cambios.Fecha != nil {
			next.Fecha = cambios.Fecha.UTC()
		}
		if cambios.Referencia != nil {
			next.Referencia = strings.TrimSpace(*cambios.Referencia)
		}
		next.UpdatedAt = e.now().UTC()

		if delta := next.Effect().Sub(current.Effect()); !delta.IsZero() {
			if err := e.store.Bancos().AdjustCapital(ctx, current.BancoID, delta, next.UpdatedAt); err != nil {
				return err
			}
		}

		if err := e.store.Movimientos().Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	e.observe("update_movimiento", start, err)
	if err != nil {
		return nil, fmt.Errorf("update movimiento: %w", err)
	}

	e.afterCommit(ctx, &models.EventoLedger{
		Tipo:    models.EventoMovimientoActualizado,
		BancoID: updated.BancoID,
		Datos:   updated,
	})
	return updated, nil
}

// DeleteMovimiento removes a movement and reverts its effect on capital in
// one transaction.
func (e *LedgerEngine) DeleteMovimiento(ctx context.Context, id string) error {
	start := time.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var deleted *models.Movimiento
	err := e.runTx(ctx, "delete_movimiento", func(ctx context.Context) error {
		current, err := e.store.Movimientos().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.IsTransferLeg() {
			return models.NewValidationError("id", "transfer movements cannot be deleted individually")
		}

		if err := e.store.Bancos().AdjustCapital(ctx, current.BancoID, current.Effect().Neg(), e.now().UTC()); err != nil {
			return err
		}
		if err := e.store.Movimientos().Delete(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	e.observe("delete_movimiento", start, err)
	if err != nil {
		return fmt.Errorf("delete movimiento: %w", err)
	}

	e.afterCommit(ctx, &models.EventoLedger{
		Tipo:    models.EventoMovimientoEliminado,
		BancoID: deleted.BancoID,
		Datos:   deleted,
	})
	return nil
}

// SubscribeToIngresos calls callback with the full income list of bancoID
// now and after every change. The returned function must be called to
// release the subscription.
func (e *LedgerEngine) SubscribeToIngresos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error) {
	return e.subscriptions.SubscribeMovimientos(ctx, bancoID, models.TipoIngreso, callback)
}

// SubscribeToGastos is the expense counterpart of SubscribeToIngresos
func (e *LedgerEngine) SubscribeToGastos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error) {
	return e.subscriptions.SubscribeMovimientos(ctx, bancoID, models.TipoGasto, callback)
}

// SubscribeToBanco calls callback with the banco now and after every change
func (e *LedgerEngine) SubscribeToBanco(ctx context.Context, bancoID string, callback func(*models.Banco)) (realtime.Unsubscribe, error) {
	return e.subscriptions.SubscribeBanco(ctx, bancoID, callback)
}

// ActiveSubscriptions returns the number of live subscriptions
func (e *LedgerEngine) ActiveSubscriptions() int {
	return e.subscriptions.Active()
}

// Close releases every subscription
func (e *LedgerEngine) Close() {
	e.subscriptions.Close()
}

// Ping checks the store is reachable
func (e *LedgerEngine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// runTx runs fn in a store transaction, retrying write conflicts up to the
// configured number of times.
func (e *LedgerEngine) runTx(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.metrics.IncConflict(operation)
			e.logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
			}).Warn("Transaction conflict, retrying")

			select {
			case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = e.store.WithTransaction(ctx, fn)
		if !errors.Is(err, models.ErrTransactionConflict) {
			return err
		}
	}
	return err
}

func (e *LedgerEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

func (e *LedgerEngine) validateStruct(s interface{}) error {
	err := e.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return models.NewValidationError(fe.Field(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()))
	}
	return models.NewValidationError("", err.Error())
}

// afterCommit invalidates cached reads and publishes the event. Failures are
// logged: the mutation is already durable.
func (e *LedgerEngine) afterCommit(ctx context.Context, evento *models.EventoLedger) {
	if err := e.cache.InvalidateBancos(ctx); err != nil {
		e.logger.WithError(err).Warn("Failed to invalidate bancos cache")
	}
	e.publish(ctx, evento)
}

func (e *LedgerEngine) publish(ctx context.Context, evento *models.EventoLedger) {
	evento.ID = uuid.NewString()
	evento.OcurridoEn = e.now().UTC()
	if err := e.events.Publish(ctx, evento); err != nil {
		e.logger.WithError(err).WithField("evento", evento.Tipo).Error("Failed to publish ledger event")
	}
}

func (e *LedgerEngine) observe(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInsufficientFunds):
		status = "insufficient_funds"
	case errors.Is(err, models.ErrNotFound):
		status = "not_found"
	case errors.Is(err, models.ErrValidation):
		status = "validation_error"
	case errors.Is(err, models.ErrTransactionConflict):
		status = "conflict"
	default:
		status = "error"
	}
	e.metrics.ObserveOperation(operation, status, time.Since(start))
}
