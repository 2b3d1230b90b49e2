package sbp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
)

const (
	signatureHeader = "X-Signature"
	maxCallbackSize = 64 << 10
)

// Controller push-уведомления шлюза СБП. Без верной подписи callback не доходит до сопоставления.
type Controller struct {
	Gateway   payment.IPaymentGateway
	Processor observer.TransferProcessor
	Log       *slog.Logger
	now       func() time.Time
}

func New(gateway payment.IPaymentGateway, processor observer.TransferProcessor, log *slog.Logger) *Controller {
	return &Controller{
		Gateway:   gateway,
		Processor: processor,
		Log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *Controller) RegisterRoutes(router *gin.Engine) {
	router.POST("/callbacks/sbp", c.callback)
}

func (c *Controller) callback(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxCallbackSize))
	if err != nil {
		c.Log.Warn("failed to read sbp callback body", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if !c.Gateway.VerifyCallback(body, ctx.GetHeader(signatureHeader)) {
		c.Log.Warn("sbp callback rejected",
			"error", domain.ErrInvalidCallbackSignature,
			"client_ip", ctx.ClientIP(),
			"body_size", len(body),
		)
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrInvalidCallbackSignature.Error()})
		return
	}

	status, err := c.Gateway.ParseCallback(body)
	if err != nil {
		c.Log.Warn("failed to parse sbp callback", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	transfer, ok := status.ToObservedTransfer(c.now())
	if !ok {
		c.Log.Info("sbp callback without payment, ignored",
			"gateway_order_id", status.OrderID,
			"status", status.Status,
		)
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if transfer.Recipient == "" {
		transfer.Recipient = c.Gateway.MerchantID()
	}

	_, err = c.Processor.Process(ctx.Request.Context(), transfer)
	switch {
	case domain.IsSettledOutcome(err), errors.Is(err, domain.ErrTransferInFlight):
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	default:
		// шлюз повторит callback, опрос статуса тоже подхватит оплату
		c.Log.Error("failed to process sbp callback",
			"error", err,
			"gateway_order_id", status.OrderID,
			"transaction_id", status.TransactionID,
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
	}
}
