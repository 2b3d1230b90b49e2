package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"

	kafkaPorts "github.com/kpizzy812/TMAMARKET/internal/ports/kafka"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
)

const (
	actionHeader = "action"

	ActionCreatePaymentRequest = "create_payment_request"
	ActionCancelPaymentRequest = "cancel_payment_request"
)

// OrderCommandsHandler команды сервиса заказов: создать или отменить заявку на оплату
type OrderCommandsHandler struct {
	PaymentUseCase usecase.IPaymentUseCase
	Log            *slog.Logger
}

func NewOrderCommandsHandler(paymentUseCase usecase.IPaymentUseCase, log *slog.Logger) kafkaPorts.MessageHandler {
	return &OrderCommandsHandler{
		PaymentUseCase: paymentUseCase,
		Log:            log,
	}
}

// OrderCommandMessage тело команды, key сообщения = order_id
type OrderCommandMessage struct {
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Network        string          `json:"network"`
	CustomerChatID *int64          `json:"customer_chat_id,omitempty"`
}

func (h *OrderCommandsHandler) HandleMessage(ctx context.Context, key string, value []byte, headers map[string]string) error {
	var cmd OrderCommandMessage
	if err := json.Unmarshal(value, &cmd); err != nil {
		h.Log.Warn("malformed order command", "error", err, "key", key)
		return domain.WrapBusinessError(fmt.Errorf("failed to unmarshal order command: %w", err))
	}
	if cmd.OrderID == "" {
		cmd.OrderID = key
	}

	action := headers[actionHeader]

	h.Log.Debug("processing order command",
		"action", action,
		"order_id", cmd.OrderID,
	)

	switch action {
	case ActionCreatePaymentRequest:
		network, err := domain.ParseNetwork(cmd.Network)
		if err != nil {
			h.Log.Warn("order command with unsupported network", "order_id", cmd.OrderID, "network", cmd.Network)
			return domain.WrapBusinessError(err)
		}

		req, err := h.PaymentUseCase.CreatePaymentRequest(ctx, usecase.CreatePaymentRequest{
			OrderID:        cmd.OrderID,
			Amount:         cmd.Amount,
			Network:        network,
			CustomerChatID: cmd.CustomerChatID,
		})
		if err != nil {
			return h.classify(err)
		}

		h.Log.Info("payment request created from order command",
			"order_id", cmd.OrderID,
			"payment_request_id", req.ID,
			"reference", req.Reference,
		)
		return nil

	case ActionCancelPaymentRequest:
		if err := h.PaymentUseCase.CancelPaymentRequest(ctx, cmd.OrderID); err != nil {
			return h.classify(err)
		}
		return nil

	default:
		h.Log.Warn("unknown order command action", "action", action, "order_id", cmd.OrderID)
		return domain.WrapBusinessError(fmt.Errorf("unknown action %q", action))
	}
}

// classify ошибки валидации и состояния заказа не лечатся повтором
func (h *OrderCommandsHandler) classify(err error) error {
	switch {
	case domain.IsBusinessError(err),
		errors.Is(err, domain.ErrDuplicateActiveRequest),
		errors.Is(err, domain.ErrOrderClosed),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNetworkDisabled),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConcurrentStateConflict):
		return domain.WrapBusinessError(err)
	default:
		return err
	}
}
