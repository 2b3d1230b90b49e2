package observer

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
)

const defaultCheckInterval = 60 * time.Second

// GatewaySource источник для СБП: опрашивает статусы открытых заявок в шлюзе.
// Курсора у шлюза нет, checkpoint всегда 0.
type GatewaySource struct {
	requests      repository.IPaymentRequestRepo
	gateway       payment.IPaymentGateway
	checkInterval time.Duration
	log           *slog.Logger
	now           func() time.Time

	mu     sync.Mutex
	checks map[uuid.UUID]*gatewayCheck
}

type gatewayCheck struct {
	attempts    int
	lastCheckAt time.Time
	lastStatus  domain.GatewayStatus
}

var _ observer.Source = (*GatewaySource)(nil)

func NewGatewaySource(
	requests repository.IPaymentRequestRepo,
	gateway payment.IPaymentGateway,
	checkInterval time.Duration,
	log *slog.Logger,
) *GatewaySource {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &GatewaySource{
		requests:      requests,
		gateway:       gateway,
		checkInterval: checkInterval,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
		checks:        make(map[uuid.UUID]*gatewayCheck),
	}
}

func (s *GatewaySource) Network() domain.Network {
	return domain.NetworkSBP
}

// Fetch спрашивает шлюз о каждой открытой заявке не чаще checkInterval.
// Недоступность шлюза возвращается ошибкой, чтобы сработал backoff.
func (s *GatewaySource) Fetch(ctx context.Context, since uint64) (*observer.Batch, error) {
	active, err := s.requests.ListActive(ctx, domain.NetworkSBP)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due := s.due(active, now)

	transfers := make([]domain.ObservedTransfer, 0)
	for _, req := range due {
		status, err := s.gateway.GetOrderStatus(ctx, *req.GatewayReference)
		if err != nil {
			if domain.IsTransientSourceError(err) {
				return nil, err
			}
			s.log.Warn("failed to check sbp order status",
				"error", err,
				"payment_request_id", req.ID,
				"gateway_reference", *req.GatewayReference,
			)
			continue
		}

		s.remember(req.ID, status.Status)

		switch status.Status {
		case domain.GatewayStatusFailed, domain.GatewayStatusCancelled:
			s.log.Info("sbp order was not paid at gateway",
				"payment_request_id", req.ID,
				"order_id", req.OrderID,
				"gateway_status", status.Status,
			)
			continue
		}

		t, ok := status.ToObservedTransfer(now)
		if !ok {
			continue
		}
		t.GatewayReference = *req.GatewayReference
		if t.Recipient == "" {
			t.Recipient = s.gateway.MerchantID()
		}
		transfers = append(transfers, t)
	}

	return &observer.Batch{Transfers: transfers, Next: since}, nil
}

// due заявки, которые пора проверить; забывает заявки, которые больше не pending
func (s *GatewaySource) due(active []*domain.PaymentRequest, now time.Time) []*domain.PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := make(map[uuid.UUID]struct{}, len(active))
	out := make([]*domain.PaymentRequest, 0, len(active))

	for _, req := range active {
		if req.GatewayReference == nil || *req.GatewayReference == "" {
			continue
		}
		alive[req.ID] = struct{}{}

		check, ok := s.checks[req.ID]
		if !ok {
			check = &gatewayCheck{}
			s.checks[req.ID] = check
		}
		if !check.lastCheckAt.IsZero() && now.Sub(check.lastCheckAt) < s.checkInterval {
			continue
		}

		check.attempts++
		check.lastCheckAt = now
		out = append(out, req)
	}

	for id := range s.checks {
		if _, ok := alive[id]; !ok {
			delete(s.checks, id)
		}
	}
	return out
}

func (s *GatewaySource) remember(id uuid.UUID, status domain.GatewayStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if check, ok := s.checks[id]; ok {
		check.lastStatus = status
	}
}

// Attempts сколько раз заявка проверялась в шлюзе
func (s *GatewaySource) Attempts(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if check, ok := s.checks[id]; ok {
		return check.attempts
	}
	return 0
}
