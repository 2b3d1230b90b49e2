package payment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/apierror"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
)

type Controller struct {
	PaymentService usecase.IPaymentUseCase
	Auth           []gin.HandlerFunc
	Log            *slog.Logger
}

func New(paymentService usecase.IPaymentUseCase, log *slog.Logger, auth ...gin.HandlerFunc) *Controller {
	return &Controller{
		PaymentService: paymentService,
		Auth:           auth,
		Log:            log,
	}
}

func (c *Controller) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1", c.Auth...)
	{
		api.POST("/payment-requests", c.create)
		api.GET("/payment-requests/:id", c.get)
		api.GET("/orders/:order_id/payment", c.getOrderPayment)
		api.POST("/orders/:order_id/cancel-payment", c.cancel)
		api.GET("/unmatched-transfers", c.listUnmatched)
	}
}

func (c *Controller) create(ctx *gin.Context) {
	var body CreatePaymentRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		c.Log.Warn("failed to bind payment request", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	network, err := domain.ParseNetwork(body.Network)
	if err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	req, err := c.PaymentService.CreatePaymentRequest(ctx.Request.Context(), usecase.CreatePaymentRequest{
		OrderID:        body.OrderID,
		Amount:         body.Amount,
		Network:        network,
		CustomerChatID: body.CustomerChatID,
	})
	if err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	ctx.JSON(http.StatusCreated, toResponse(req))
}

func (c *Controller) get(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment request id"})
		return
	}

	req, err := c.PaymentService.GetPaymentRequest(ctx.Request.Context(), id)
	if err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	ctx.JSON(http.StatusOK, toResponse(req))
}

func (c *Controller) getOrderPayment(ctx *gin.Context) {
	orderID := ctx.Param("order_id")

	payment, err := c.PaymentService.GetOrderPayment(ctx.Request.Context(), orderID)
	if err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	resp := OrderPaymentResponse{
		OrderID: orderID,
		Request: toResponse(payment.Request),
	}
	if payment.Settlement != nil {
		resp.State = payment.Settlement.State
	}
	ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) cancel(ctx *gin.Context) {
	orderID := ctx.Param("order_id")

	if err := c.PaymentService.CancelPaymentRequest(ctx.Request.Context(), orderID); err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

func (c *Controller) listUnmatched(ctx *gin.Context) {
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	transfers, err := c.PaymentService.ListUnmatched(ctx.Request.Context(), limit)
	if err != nil {
		apierror.Write(ctx, err, c.Log)
		return
	}

	ctx.JSON(http.StatusOK, UnmatchedListResponse{
		Count:     len(transfers),
		Transfers: transfers,
	})
}
