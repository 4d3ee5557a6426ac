package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chronos-api/internal/engine"
	"chronos-api/internal/models"
	"chronos-api/internal/realtime"
)

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBanco(ctx context.Context, id string) (*models.Banco, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Banco), args.Error(1)
}

func (m *MockLedgerService) GetTodosBancos(ctx context.Context) ([]*models.Banco, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Banco), args.Error(1)
}

func (m *MockLedgerService) GetSaldoTotalBancos(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedgerService) GetBancoName(id string) string {
	return m.Called(id).String(0)
}

func (m *MockLedgerService) CreateCuentaBancaria(ctx context.Context, req models.NuevoBanco) (*models.Banco, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Banco), args.Error(1)
}

func (m *MockLedgerService) CrearIngreso(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Movimiento), args.Error(1)
}

func (m *MockLedgerService) CrearGasto(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Movimiento), args.Error(1)
}

func (m *MockLedgerService) CrearTransferencia(ctx context.Context, req models.Transferencia) (*models.ResultadoTransferencia, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResultadoTransferencia), args.Error(1)
}

func (m *MockLedgerService) CalcularTotalesBanco(ctx context.Context, bancoID string) (*models.Totales, error) {
	args := m.Called(ctx, bancoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Totales), args.Error(1)
}

func (m *MockLedgerService) ListMovimientos(ctx context.Context, bancoID string, tipo models.TipoMovimiento) ([]*models.Movimiento, error) {
	args := m.Called(ctx, bancoID, tipo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Movimiento), args.Error(1)
}

func (m *MockLedgerService) UpdateMovimiento(ctx context.Context, id string, cambios models.CambiosMovimiento) (*models.Movimiento, error) {
	args := m.Called(ctx, id, cambios)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Movimiento), args.Error(1)
}

func (m *MockLedgerService) DeleteMovimiento(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedgerService) SubscribeToIngresos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error) {
	args := m.Called(ctx, bancoID, callback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(realtime.Unsubscribe), args.Error(1)
}

func (m *MockLedgerService) SubscribeToGastos(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error) {
	args := m.Called(ctx, bancoID, callback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(realtime.Unsubscribe), args.Error(1)
}

func (m *MockLedgerService) Reconcile(ctx context.Context) (*engine.ReconciliationReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.ReconciliationReport), args.Error(1)
}

func (m *MockLedgerService) ReconcileBanco(ctx context.Context, bancoID string) (*engine.ReconciliationResult, error) {
	args := m.Called(ctx, bancoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.ReconciliationResult), args.Error(1)
}

func newTestRouter(service LedgerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	bancos := NewBancoController(service, logger)
	admin := NewAdminController(service, logger)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/bancos", bancos.ListBancos)
	v1.POST("/bancos", bancos.CreateBanco)
	v1.GET("/bancos/saldo-total", bancos.GetSaldoTotal)
	v1.GET("/bancos/:id", bancos.GetBanco)
	v1.GET("/bancos/:id/nombre", bancos.GetBancoName)
	v1.GET("/bancos/:id/totales", bancos.GetTotales)
	v1.GET("/bancos/:id/movimientos", bancos.ListMovimientos)
	v1.POST("/bancos/:id/ingresos", bancos.CrearIngreso)
	v1.POST("/bancos/:id/gastos", bancos.CrearGasto)
	v1.PUT("/movimientos/:id", bancos.UpdateMovimiento)
	v1.DELETE("/movimientos/:id", bancos.DeleteMovimiento)
	v1.POST("/transferencias", bancos.CrearTransferencia)
	v1.POST("/admin/reconciliacion", admin.Reconcile)
	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGetBanco(t *testing.T) {
	service := new(MockLedgerService)
	service.On("GetBanco", mock.Anything, "profit").Return(&models.Banco{ID: "profit", Nombre: "Profit", CapitalActual: decimal.NewFromInt(150)}, nil)
	service.On("GetBanco", mock.Anything, "ghost").Return(nil, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodGet, "/api/v1/bancos/profit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var banco models.Banco
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &banco))
	assert.True(t, banco.CapitalActual.Equal(decimal.NewFromInt(150)))

	w = doRequest(router, http.MethodGet, "/api/v1/bancos/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestListBancosAndSaldoTotal(t *testing.T) {
	service := new(MockLedgerService)
	service.On("GetTodosBancos", mock.Anything).Return([]*models.Banco{{ID: "a"}, {ID: "b"}}, nil)
	service.On("GetSaldoTotalBancos", mock.Anything).Return(decimal.RequireFromString("1450.50"), nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodGet, "/api/v1/bancos", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":2`)

	w = doRequest(router, http.MethodGet, "/api/v1/bancos/saldo-total", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"saldoTotal":"1450.5"}`, w.Body.String())
}

func TestGetBancoName(t *testing.T) {
	service := new(MockLedgerService)
	service.On("GetBancoName", "profit").Return("Profit")
	router := newTestRouter(service)

	w := doRequest(router, http.MethodGet, "/api/v1/bancos/profit/nombre", nil)
	assert.JSONEq(t, `{"id":"profit","nombre":"Profit"}`, w.Body.String())
}

func TestCreateBanco(t *testing.T) {
	service := new(MockLedgerService)
	service.On("CreateCuentaBancaria", mock.Anything, mock.MatchedBy(func(req models.NuevoBanco) bool {
		return req.ID == "profit" && req.Capital != nil && req.Capital.Equal(decimal.NewFromInt(999))
	})).Return(&models.Banco{ID: "profit", CapitalActual: decimal.Zero}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPost, "/api/v1/bancos", map[string]interface{}{"id": "profit", "capitalActual": 999})
	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestCrearIngreso(t *testing.T) {
	service := new(MockLedgerService)
	service.On("CrearIngreso", mock.Anything, mock.MatchedBy(func(req models.NuevoMovimiento) bool {
		return req.BancoID == "profit" && req.Monto.Equal(decimal.RequireFromString("10.25")) && req.Concepto == "Venta"
	})).Return(&models.Movimiento{ID: "m1", BancoID: "profit", Tipo: models.TipoIngreso}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPost, "/api/v1/bancos/profit/ingresos", map[string]interface{}{"monto": "10.25", "concepto": "Venta"})
	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestCrearMovimientoRequestValidation(t *testing.T) {
	router := newTestRouter(new(MockLedgerService))

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing monto", map[string]interface{}{"concepto": "Venta"}},
		{"missing concepto", map[string]interface{}{"monto": 10}},
		{"bad monto", map[string]interface{}{"monto": "diez", "concepto": "Venta"}},
		{"no body", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/v1/bancos/profit/gastos", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		})
	}
}

func TestCrearGastoInsufficientFunds(t *testing.T) {
	service := new(MockLedgerService)
	service.On("CrearGasto", mock.Anything, mock.Anything).Return(nil, &models.InsufficientFundsError{
		BancoID: "profit", Disponible: decimal.NewFromInt(5), Requerido: decimal.NewFromInt(10),
	})
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPost, "/api/v1/bancos/profit/gastos", map[string]interface{}{"monto": 10, "concepto": "Renta"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(t, w))
}

func TestCrearTransferencia(t *testing.T) {
	service := new(MockLedgerService)
	service.On("CrearTransferencia", mock.Anything, mock.MatchedBy(func(req models.Transferencia) bool {
		return req.OrigenID == "profit" && req.DestinoID == "azteca" && req.Monto.Equal(decimal.NewFromInt(50)) &&
			req.Concepto == "Pago" && req.IdempotencyKey == "key-1"
	})).Return(&models.ResultadoTransferencia{TransferenciaID: "t1", SalidaID: "s1", EntradaID: "e1"}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPost, "/api/v1/transferencias",
		map[string]interface{}{"origenId": "profit", "destinoId": "azteca", "monto": 50, "concepto": "Pago"},
		"Idempotency-Key", "key-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"transferenciaId":"t1","salidaId":"s1","entradaId":"e1"}`, w.Body.String())
	service.AssertExpectations(t)
}

func TestCrearTransferenciaErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", models.NewBancoNotFound("ghost"), http.StatusNotFound, "NOT_FOUND"},
		{"same account", models.NewValidationError("destinoId", "must differ from origenId"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", models.ErrTransactionConflict, http.StatusConflict, "TRANSACTION_CONFLICT"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockLedgerService)
			service.On("CrearTransferencia", mock.Anything, mock.Anything).Return(nil, tt.err)
			router := newTestRouter(service)

			w := doRequest(router, http.MethodPost, "/api/v1/transferencias",
				map[string]interface{}{"origenId": "a", "destinoId": "b", "monto": 1, "concepto": "x"})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestListMovimientosTipoFilter(t *testing.T) {
	service := new(MockLedgerService)
	service.On("ListMovimientos", mock.Anything, "profit", models.TipoGasto).Return([]*models.Movimiento{{ID: "m1"}}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodGet, "/api/v1/bancos/profit/movimientos?tipo=gastos", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/bancos/profit/movimientos?tipo=otro", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	service.AssertExpectations(t)
}

func TestUpdateAndDeleteMovimiento(t *testing.T) {
	service := new(MockLedgerService)
	service.On("UpdateMovimiento", mock.Anything, "m1", mock.MatchedBy(func(c models.CambiosMovimiento) bool {
		return c.Monto != nil && c.Monto.Equal(decimal.NewFromInt(75)) && c.Concepto == nil
	})).Return(&models.Movimiento{ID: "m1"}, nil)
	service.On("DeleteMovimiento", mock.Anything, "m1").Return(nil)
	service.On("DeleteMovimiento", mock.Anything, "m2").Return(models.NewMovimientoNotFound("m2"))
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPut, "/api/v1/movimientos/m1", map[string]interface{}{"monto": 75})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/movimientos/m1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/movimientos/m2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	service.AssertExpectations(t)
}

func TestGetTotales(t *testing.T) {
	service := new(MockLedgerService)
	service.On("CalcularTotalesBanco", mock.Anything, "profit").Return(&models.Totales{
		TotalIngresos:    decimal.NewFromInt(1800),
		TotalGastos:      decimal.NewFromInt(350),
		Balance:          decimal.NewFromInt(1450),
		CantidadIngresos: 3,
		CantidadGastos:   2,
	}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodGet, "/api/v1/bancos/profit/totales", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var totales models.Totales
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totales))
	assert.True(t, totales.Balance.Equal(decimal.NewFromInt(1450)))
	assert.Equal(t, 2, totales.CantidadGastos)
}

func TestAdminReconcile(t *testing.T) {
	service := new(MockLedgerService)
	service.On("Reconcile", mock.Anything).Return(&engine.ReconciliationReport{TotalBancos: 3}, nil)
	service.On("ReconcileBanco", mock.Anything, "profit").Return(&engine.ReconciliationResult{BancoID: "profit", Status: engine.ReconciliationOK}, nil)
	router := newTestRouter(service)

	w := doRequest(router, http.MethodPost, "/api/v1/admin/reconciliacion", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalBancos":3`)

	w = doRequest(router, http.MethodPost, "/api/v1/admin/reconciliacion", map[string]string{"bancoId": "profit"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	service.AssertExpectations(t)
}
