package controller

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"chronos-api/internal/monitoring"
)

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// HealthController serves liveness, readiness and version
type HealthController struct {
	checker *monitoring.HealthChecker
	build   BuildInfo
}

func NewHealthController(checker *monitoring.HealthChecker, build BuildInfo) *HealthController {
	return &HealthController{checker: checker, build: build}
}

// Health reports the status of every dependency. It answers 200 unless a
// critical dependency is down.
func (c *HealthController) Health(ctx *gin.Context) {
	status := c.checker.Check(ctx.Request.Context())
	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, status)
}

// Ready answers 200 once critical dependencies are reachable
func (c *HealthController) Ready(ctx *gin.Context) {
	status := c.checker.Check(ctx.Request.Context())
	if status.Status == monitoring.StatusUnhealthy {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "components": status.Components})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ready": true})
}

func (c *HealthController) Version(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"service":   "chronos-api",
		"version":   c.build.Version,
		"commit":    c.build.Commit,
		"buildTime": c.build.BuildTime,
		"goVersion": runtime.Version(),
	})
}
