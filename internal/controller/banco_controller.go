package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
	apperrors "chronos-api/pkg/errors"
)

// BancoController serves the account, movement and transfer routes
type BancoController struct {
	service LedgerService
	logger  *logrus.Logger
}

func NewBancoController(service LedgerService, logger *logrus.Logger) *BancoController {
	return &BancoController{service: service, logger: logger}
}

// @Summary List bancos
// @Tags bancos
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/bancos [get]
func (c *BancoController) ListBancos(ctx *gin.Context) {
	bancos, err := c.service.GetTodosBancos(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"bancos": bancos,
		"total":  len(bancos),
	})
}

// @Summary Create banco
// @Description Opens an account. Capital always starts at zero.
// @Tags bancos
// @Accept json
// @Produce json
// @Param request body CreateBancoRequest true "Banco"
// @Success 201 {object} models.Banco
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/bancos [post]
func (c *BancoController) CreateBanco(ctx *gin.Context) {
	var req CreateBancoRequest
	if !bindJSON(ctx, &req) {
		return
	}

	banco, err := c.service.CreateCuentaBancaria(ctx.Request.Context(), models.NuevoBanco{
		ID:      req.ID,
		Nombre:  req.Nombre,
		Moneda:  req.Moneda,
		Capital: req.CapitalActual,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, banco)
}

// @Summary Total capital
// @Tags bancos
// @Produce json
// @Router /api/v1/bancos/saldo-total [get]
func (c *BancoController) GetSaldoTotal(ctx *gin.Context) {
	total, err := c.service.GetSaldoTotalBancos(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"saldoTotal": total})
}

// @Summary Get banco
// @Tags bancos
// @Produce json
// @Param id path string true "Banco ID"
// @Success 200 {object} models.Banco
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/bancos/{id} [get]
func (c *BancoController) GetBanco(ctx *gin.Context) {
	id := ctx.Param("id")
	banco, err := c.service.GetBanco(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if banco == nil {
		respondError(ctx, models.NewBancoNotFound(id))
		return
	}

	ctx.JSON(http.StatusOK, banco)
}

// GetBancoName resolves the display name of an id. It never fails: unknown
// ids are echoed back.
func (c *BancoController) GetBancoName(ctx *gin.Context) {
	id := ctx.Param("id")
	ctx.JSON(http.StatusOK, gin.H{
		"id":     id,
		"nombre": c.service.GetBancoName(id),
	})
}

// @Summary Banco totals
// @Tags bancos
// @Produce json
// @Param id path string true "Banco ID"
// @Success 200 {object} models.Totales
// @Router /api/v1/bancos/{id}/totales [get]
func (c *BancoController) GetTotales(ctx *gin.Context) {
	totales, err := c.service.CalcularTotalesBanco(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, totales)
}

// @Summary List movimientos
// @Tags movimientos
// @Produce json
// @Param id path string true "Banco ID"
// @Param tipo query string false "INGRESO or GASTO"
// @Router /api/v1/bancos/{id}/movimientos [get]
func (c *BancoController) ListMovimientos(ctx *gin.Context) {
	var tipo models.TipoMovimiento
	if raw := ctx.Query("tipo"); raw != "" {
		parsed, err := models.ParseTipoMovimiento(raw)
		if err != nil {
			respondError(ctx, err)
			return
		}
		tipo = parsed
	}

	movimientos, err := c.service.ListMovimientos(ctx.Request.Context(), ctx.Param("id"), tipo)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"movimientos": movimientos,
		"total":       len(movimientos),
	})
}

// @Summary Record income
// @Tags movimientos
// @Accept json
// @Produce json
// @Param id path string true "Banco ID"
// @Param request body MovimientoRequest true "Ingreso"
// @Success 201 {object} models.Movimiento
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/bancos/{id}/ingresos [post]
func (c *BancoController) CrearIngreso(ctx *gin.Context) {
	c.crearMovimiento(ctx, c.service.CrearIngreso)
}

// @Summary Record expense
// @Tags movimientos
// @Accept json
// @Produce json
// @Param id path string true "Banco ID"
// @Param request body MovimientoRequest true "Gasto"
// @Success 201 {object} models.Movimiento
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/bancos/{id}/gastos [post]
func (c *BancoController) CrearGasto(ctx *gin.Context) {
	c.crearMovimiento(ctx, c.service.CrearGasto)
}

func (c *BancoController) crearMovimiento(ctx *gin.Context, create func(ctx context.Context, req models.NuevoMovimiento) (*models.Movimiento, error)) {
	var req MovimientoRequest
	if !bindJSON(ctx, &req) {
		return
	}

	movimiento, err := create(ctx.Request.Context(), models.NuevoMovimiento{
		BancoID:    ctx.Param("id"),
		Monto:      *req.Monto,
		Concepto:   req.Concepto,
		Fecha:      req.Fecha,
		Referencia: req.Referencia,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, movimiento)
}

// @Summary Update movimiento
// @Tags movimientos
// @Accept json
// @Produce json
// @Param id path string true "Movimiento ID"
// @Router /api/v1/movimientos/{id} [put]
func (c *BancoController) UpdateMovimiento(ctx *gin.Context) {
	var req UpdateMovimientoRequest
	if !bindJSON(ctx, &req) {
		return
	}

	movimiento, err := c.service.UpdateMovimiento(ctx.Request.Context(), ctx.Param("id"), models.CambiosMovimiento{
		Monto:      req.Monto,
		Concepto:   req.Concepto,
		Fecha:      req.Fecha,
		Referencia: req.Referencia,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, movimiento)
}

// @Summary Delete movimiento
// @Tags movimientos
// @Param id path string true "Movimiento ID"
// @Success 204
// @Router /api/v1/movimientos/{id} [delete]
func (c *BancoController) DeleteMovimiento(ctx *gin.Context) {
	if err := c.service.DeleteMovimiento(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// @Summary Transfer between bancos
// @Tags transferencias
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Makes retries safe"
// @Param request body TransferenciaRequest true "Transferencia"
// @Success 201 {object} models.ResultadoTransferencia
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/transferencias [post]
func (c *BancoController) CrearTransferencia(ctx *gin.Context) {
	var req TransferenciaRequest
	if !bindJSON(ctx, &req) {
		return
	}

	idempotencyKey := ctx.GetHeader("Idempotency-Key")
	if len(idempotencyKey) > 128 {
		respondError(ctx, apperrors.NewValidationError("Idempotency-Key too long"))
		return
	}

	result, err := c.service.CrearTransferencia(ctx.Request.Context(), models.Transferencia{
		OrigenID:       req.OrigenID,
		DestinoID:      req.DestinoID,
		Monto:          *req.Monto,
		Concepto:       req.Concepto,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, result)
}
