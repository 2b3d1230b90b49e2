package fulfillment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/apierror"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
)

// Controller хуки сервиса доставки: paid -> fulfilling -> completed
type Controller struct {
	Coordinator usecase.ISettlementCoordinator
	Auth        []gin.HandlerFunc
	Log         *slog.Logger
}

func New(coordinator usecase.ISettlementCoordinator, log *slog.Logger, auth ...gin.HandlerFunc) *Controller {
	return &Controller{
		Coordinator: coordinator,
		Auth:        auth,
		Log:         log,
	}
}

func (c *Controller) RegisterRoutes(router *gin.Engine) {
	orders := router.Group("/api/v1/orders", c.Auth...)
	{
		orders.POST("/:order_id/fulfilling", c.hook(c.Coordinator.MarkFulfilling))
		orders.POST("/:order_id/completed", c.hook(c.Coordinator.MarkCompleted))
	}
}

func (c *Controller) hook(mark func(ctx context.Context, orderID string) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		orderID := ctx.Param("order_id")

		if err := mark(ctx.Request.Context(), orderID); err != nil {
			apierror.Write(ctx, err, c.Log)
			return
		}

		state, err := c.Coordinator.GetState(ctx.Request.Context(), orderID)
		if err != nil {
			apierror.Write(ctx, err, c.Log)
			return
		}

		ctx.JSON(http.StatusOK, state)
	}
}
