package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	paymentPort "github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
	"github.com/shopspring/decimal"
)

const (
	defaultWindow          = 30 * time.Minute
	defaultSaltingAttempts = 20
	defaultUnmatchedLimit  = 100
	maxUnmatchedLimit      = 1000
)

// NetworkSettings параметры приёма оплаты в одной сети
type NetworkSettings struct {
	Collector string // основной адрес сборщика, для СБП id мерчанта
	Min       decimal.Decimal
	Max       decimal.Decimal // ноль - без ограничения
}

type Config struct {
	Window          time.Duration
	UniqueAmount    bool // добавлять случайные центы к сумме, чтобы различать переводы на общий адрес
	SaltingAttempts int
	// Networks только включённые сети
	Networks map[domain.Network]NetworkSettings
}

// Service реестр заявок на оплату
type Service struct {
	Requests    repository.IPaymentRequestRepo
	Orders      repository.IOrderSettlementRepo
	Unmatched   repository.IUnmatchedTransferRepo
	Tx          repository.ITxManager
	Gateway     paymentPort.IPaymentGateway // nil если СБП выключен
	Coordinator usecase.ISettlementCoordinator
	Log         *slog.Logger

	cfg   Config
	now   func() time.Time
	cents func() int64
}

func New(
	requests repository.IPaymentRequestRepo,
	orders repository.IOrderSettlementRepo,
	unmatched repository.IUnmatchedTransferRepo,
	tx repository.ITxManager,
	gateway paymentPort.IPaymentGateway,
	coordinator usecase.ISettlementCoordinator,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.SaltingAttempts <= 0 {
		cfg.SaltingAttempts = defaultSaltingAttempts
	}
	return &Service{
		Requests:    requests,
		Orders:      orders,
		Unmatched:   unmatched,
		Tx:          tx,
		Gateway:     gateway,
		Coordinator: coordinator,
		Log:         log,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		cents:       func() int64 { return rand.Int63n(99) + 1 },
	}
}

var _ usecase.IPaymentUseCase = (*Service)(nil)

func (s *Service) CreatePaymentRequest(ctx context.Context, in usecase.CreatePaymentRequest) (*domain.PaymentRequest, error) {
	settings, err := s.settings(in.Network)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(in.Network, in.Amount, settings); err != nil {
		return nil, err
	}

	if _, err := s.Requests.GetPendingByOrder(ctx, in.OrderID); err == nil {
		return nil, domain.WrapBusinessError(fmt.Errorf("order %s: %w", in.OrderID, domain.ErrDuplicateActiveRequest))
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	order, err := s.Orders.Get(ctx, in.OrderID)
	switch {
	case err == nil && order.State != domain.OrderStateAwaitingPayment:
		return nil, domain.WrapBusinessError(fmt.Errorf("order %s is %s: %w", in.OrderID, order.State, domain.ErrOrderClosed))
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	expected := in.Amount
	if s.cfg.UniqueAmount && in.Network.IsBlockchain() {
		expected, err = s.uniqueAmount(ctx, in.Network, settings.Collector, in.Amount)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	req := &domain.PaymentRequest{
		ID:               uuid.New(),
		Reference:        domain.NewPaymentReference(now),
		OrderID:          in.OrderID,
		Network:          in.Network,
		ExpectedAmount:   expected,
		BaseAmount:       in.Amount,
		CollectorAddress: settings.Collector,
		CustomerChatID:   in.CustomerChatID,
		Status:           domain.PaymentRequestStatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.Window),
		UpdatedAt:        now,
	}

	if in.Network == domain.NetworkSBP {
		if err := s.registerAtGateway(ctx, req); err != nil {
			return nil, err
		}
	}

	err = s.Tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		if _, err := repos.Orders.Open(ctx, req.OrderID, req.ID); err != nil {
			return err
		}
		return repos.Requests.Create(ctx, req)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateActiveRequest) || errors.Is(err, domain.ErrOrderClosed) {
			s.Log.Warn("payment request rejected",
				"order_id", in.OrderID,
				"network", in.Network,
				"error", err,
			)
			return nil, domain.WrapBusinessError(err)
		}
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}

	s.Log.Info("payment request created",
		"payment_request_id", req.ID,
		"reference", req.Reference,
		"order_id", req.OrderID,
		"network", req.Network,
		"expected_amount", req.ExpectedAmount,
		"expires_at", req.ExpiresAt,
	)

	return req, nil
}

// CancelPaymentRequest отмена pending заявки заказа, CAS pending -> cancelled
func (s *Service) CancelPaymentRequest(ctx context.Context, orderID string) error {
	req, err := s.Requests.GetPendingByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WrapBusinessError(fmt.Errorf("pending payment request for order %s: %w", orderID, err))
		}
		return err
	}

	ok, err := s.Requests.Transition(ctx, req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel payment request: %w", err)
	}
	if !ok {
		s.Log.Warn("payment request left pending before cancellation",
			"payment_request_id", req.ID,
			"order_id", orderID,
		)
		return domain.WrapBusinessError(fmt.Errorf("request %s: %w", req.ID, domain.ErrConcurrentStateConflict))
	}
	req.Status = domain.PaymentRequestStatusCancelled

	s.Log.Info("payment request cancelled",
		"payment_request_id", req.ID,
		"order_id", orderID,
	)

	if s.Coordinator != nil {
		if err := s.Coordinator.OnPaymentCancelled(ctx, req); err != nil {
			// заявка уже отменена, заказ довезёт sweeper
			s.Log.Error("failed to notify coordinator about cancellation",
				"error", err,
				"order_id", orderID,
			)
		}
	}
	return nil
}

func (s *Service) GetPaymentRequest(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	return s.Requests.GetByID(ctx, id)
}

// GetOrderPayment последняя заявка заказа и состояние оплаты
func (s *Service) GetOrderPayment(ctx context.Context, orderID string) (*usecase.OrderPayment, error) {
	req, err := s.Requests.GetLatestByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.Orders.Get(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return &usecase.OrderPayment{
		Request:    req,
		Settlement: settlement,
	}, nil
}

func (s *Service) ListUnmatched(ctx context.Context, limit int) ([]*domain.UnmatchedTransfer, error) {
	if limit <= 0 {
		limit = defaultUnmatchedLimit
	}
	if limit > maxUnmatchedLimit {
		limit = maxUnmatchedLimit
	}
	return s.Unmatched.ListUnresolved(ctx, limit)
}

func (s *Service) settings(network domain.Network) (NetworkSettings, error) {
	if !network.IsValid() {
		return NetworkSettings{}, domain.WrapBusinessError(fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, network))
	}
	settings, ok := s.cfg.Networks[network]
	if !ok {
		return NetworkSettings{}, domain.WrapBusinessError(fmt.Errorf("%w: %s", domain.ErrNetworkDisabled, network))
	}
	return settings, nil
}

func validateAmount(network domain.Network, amount decimal.Decimal, settings NetworkSettings) error {
	if !amount.IsPositive() {
		return domain.WrapBusinessError(fmt.Errorf("%w: must be positive", domain.ErrInvalidAmount))
	}
	if !amount.Equal(amount.Truncate(network.Precision())) {
		return domain.WrapBusinessError(fmt.Errorf("%w: at most %d decimal places for %s", domain.ErrInvalidAmount, network.Precision(), network))
	}
	if amount.LessThan(settings.Min) {
		return domain.WrapBusinessError(fmt.Errorf("%w: minimum is %s %s", domain.ErrInvalidAmount, settings.Min, network.Currency()))
	}
	if settings.Max.IsPositive() && amount.GreaterThan(settings.Max) {
		return domain.WrapBusinessError(fmt.Errorf("%w: maximum is %s %s", domain.ErrInvalidAmount, settings.Max, network.Currency()))
	}
	return nil
}

// uniqueAmount base + 0.01..0.99, не совпадающая с другой pending заявкой на тот же адрес
func (s *Service) uniqueAmount(ctx context.Context, network domain.Network, collector string, base decimal.Decimal) (decimal.Decimal, error) {
	for attempt := 0; attempt < s.cfg.SaltingAttempts; attempt++ {
		candidate := base.Add(decimal.New(s.cents(), -2))
		taken, err := s.Requests.ExistsPendingAmount(ctx, network, collector, candidate)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to check pending amount: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	s.Log.Warn("no free unique amount left",
		"network", network,
		"base_amount", base,
		"attempts", s.cfg.SaltingAttempts,
	)
	return decimal.Zero, fmt.Errorf("no free unique amount for %s %s after %d attempts", base, network.Currency(), s.cfg.SaltingAttempts)
}

func (s *Service) registerAtGateway(ctx context.Context, req *domain.PaymentRequest) error {
	if s.Gateway == nil {
		return domain.WrapBusinessError(fmt.Errorf("%w: %s", domain.ErrNetworkDisabled, domain.NetworkSBP))
	}

	order, err := s.Gateway.RegisterOrder(ctx, paymentPort.RegisterOrderRequest{
		Reference:   req.Reference,
		Amount:      req.ExpectedAmount,
		Description: "Оплата заказа " + req.OrderID,
	})
	if err != nil {
		s.Log.Error("failed to register order at sbp gateway",
			"error", err,
			"order_id", req.OrderID,
			"reference", req.Reference,
		)
		return fmt.Errorf("failed to register sbp order: %w", err)
	}

	req.GatewayReference = &order.OrderID
	if order.PaymentURL != "" {
		req.GatewayPaymentURL = &order.PaymentURL
	}
	if order.QRPayload != "" {
		req.GatewayQRPayload = &order.QRPayload
	}
	if req.CollectorAddress == "" {
		req.CollectorAddress = s.Gateway.MerchantID()
	}
	return nil
}
