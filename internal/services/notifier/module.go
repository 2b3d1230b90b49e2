package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	"github.com/kpizzy812/TMAMARKET/internal/ports/telegram"
)

// Service уведомления об оплате в Telegram: покупателю и в админский чат
type Service struct {
	client      telegram.IClient
	adminChatID int64
	log         *slog.Logger
}

func New(client telegram.IClient, adminChatID int64, log *slog.Logger) service.INotificationService {
	return &Service{
		client:      client,
		adminChatID: adminChatID,
		log:         log,
	}
}

func (s *Service) NotifyPaid(ctx context.Context, req *domain.PaymentRequest, record *domain.SettlementRecord) error {
	var customer strings.Builder
	customer.WriteString("✅ Оплата получена\n\n")
	customer.WriteString(fmt.Sprintf("Заказ: %s\n", req.OrderID))
	customer.WriteString(fmt.Sprintf("Платёж: %s\n", req.Reference))
	customer.WriteString(fmt.Sprintf("Сумма: %s %s\n", record.SettledAmount.String(), req.Network.Currency()))
	if url := req.Network.ExplorerTxURL(record.ExternalTxID); url != "" {
		customer.WriteString(fmt.Sprintf("Транзакция: <a href=\"%s\">открыть</a>\n", url))
	}

	admin := fmt.Sprintf("💰 Оплачен заказ %s\n%s %s %s\ntx: %s",
		req.OrderID,
		req.Network,
		record.SettledAmount.String(),
		req.Network.Currency(),
		record.ExternalTxID,
	)

	return s.send(ctx, req, customer.String(), admin)
}

func (s *Service) NotifyExpired(ctx context.Context, req *domain.PaymentRequest) error {
	customer := fmt.Sprintf("⌛ Время на оплату заказа %s истекло.\nЕсли вы уже отправили платёж, напишите в поддержку и укажите номер %s.",
		req.OrderID,
		req.Reference,
	)
	admin := fmt.Sprintf("⌛ Истекла заявка %s (заказ %s, %s %s)",
		req.Reference,
		req.OrderID,
		req.ExpectedAmount.String(),
		req.Network.Currency(),
	)

	return s.send(ctx, req, customer, admin)
}

func (s *Service) send(ctx context.Context, req *domain.PaymentRequest, customerText, adminText string) error {
	var errs []error

	if req.CustomerChatID != nil {
		if err := s.client.Send(ctx, telegram.Message{ChatID: *req.CustomerChatID, Text: customerText, HTML: true}); err != nil {
			errs = append(errs, fmt.Errorf("customer: %w", err))
		}
	}

	if s.adminChatID != 0 {
		if err := s.client.Send(ctx, telegram.Message{ChatID: s.adminChatID, Text: adminText}); err != nil {
			errs = append(errs, fmt.Errorf("admin: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to deliver notification for order %s: %w", req.OrderID, errors.Join(errs...))
	}

	s.log.Debug("notification delivered", "order_id", req.OrderID, "payment_request_id", req.ID)
	return nil
}
