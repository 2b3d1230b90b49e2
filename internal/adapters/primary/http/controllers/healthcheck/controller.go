package healthcheckController

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// Pinger хранилище, без которого сервис не готов принимать запросы
type Pinger interface {
	Ping(ctx context.Context) error
}

// NetworkHealthSource состояние наблюдателей
type NetworkHealthSource interface {
	Snapshot() []domain.NetworkHealth
}

type HealthCheckController struct {
	db      Pinger
	network NetworkHealthSource
	auth    []gin.HandlerFunc
	log     *slog.Logger
}

func New(db Pinger, network NetworkHealthSource, log *slog.Logger, auth ...gin.HandlerFunc) *HealthCheckController {
	return &HealthCheckController{
		db:      db,
		network: network,
		auth:    auth,
		log:     log,
	}
}

func (c *HealthCheckController) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", c.health)
	r.GET("/ready", c.ready)
	r.GET("/api/v1/networks/health", append(c.auth, c.networks)...)
}

// health всегда 200
func (c *HealthCheckController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "payments",
	})
}

// ready пингует хранилище
func (c *HealthCheckController) ready(ctx *gin.Context) {
	if err := c.db.Ping(ctx.Request.Context()); err != nil {
		c.log.Error("storage not ready", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "storage unavailable",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// networks состояние наблюдателей; degraded не делает сервис неготовым
func (c *HealthCheckController) networks(ctx *gin.Context) {
	snapshot := []domain.NetworkHealth{}
	if c.network != nil {
		snapshot = c.network.Snapshot()
	}

	degraded := 0
	for _, item := range snapshot {
		if item.Degraded {
			degraded++
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"networks": snapshot,
		"degraded": degraded,
	})
}
