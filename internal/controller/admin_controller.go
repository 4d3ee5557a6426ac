package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "chronos-api/pkg/errors"
)

// AdminController serves operator routes
type AdminController struct {
	service LedgerService
	logger  *logrus.Logger
}

func NewAdminController(service LedgerService, logger *logrus.Logger) *AdminController {
	return &AdminController{service: service, logger: logger}
}

// @Summary Reconcile capital
// @Description Recomputes capital from movements for one banco or all of them. Nothing is modified.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body ReconcileRequest false "Limit to one banco"
// @Security InternalAPI
// @Router /api/v1/admin/reconciliacion [post]
func (c *AdminController) Reconcile(ctx *gin.Context) {
	var req ReconcileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(ctx, apperrors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	c.logger.WithFields(logrus.Fields{
		"banco_id": req.BancoID,
		"username": ctx.GetString("username"),
	}).Info("Reconciliation requested")

	if req.BancoID != "" {
		result, err := c.service.ReconcileBanco(ctx.Request.Context(), req.BancoID)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, result)
		return
	}

	report, err := c.service.Reconcile(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}
