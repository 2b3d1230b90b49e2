package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/shopspring/decimal"
)

// Store in-memory хранилище для локального запуска и тестов.
// Все операции под одним мьютексом, транзакция держит его целиком и откатывается по журналу.
type Store struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]domain.PaymentRequest
	ledger      map[string]domain.SettlementRecord
	unmatched   map[string]domain.UnmatchedTransfer
	checkpoints map[domain.Network]domain.Checkpoint
	orders      map[string]domain.OrderSettlement
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		requests:    make(map[uuid.UUID]domain.PaymentRequest),
		ledger:      make(map[string]domain.SettlementRecord),
		unmatched:   make(map[string]domain.UnmatchedTransfer),
		checkpoints: make(map[domain.Network]domain.Checkpoint),
		orders:      make(map[string]domain.OrderSettlement),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет часы, нужно тестам
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// view доступ к хранилищу; undo != nil только внутри транзакции, мьютекс тогда уже захвачен
type view struct {
	s    *Store
	undo *[]func()
}

func (v view) run(fn func()) {
	if v.undo == nil {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	fn()
}

func (v view) journal(fn func()) {
	if v.undo != nil {
		*v.undo = append(*v.undo, fn)
	}
}

func (s *Store) Requests() ports.IPaymentRequestRepo     { return &requestRepo{view{s: s}} }
func (s *Store) Ledger() ports.ISettlementLedger         { return &ledgerRepo{view{s: s}} }
func (s *Store) Unmatched() ports.IUnmatchedTransferRepo { return &unmatchedRepo{view{s: s}} }
func (s *Store) Orders() ports.IOrderSettlementRepo      { return &orderRepo{view{s: s}} }
func (s *Store) Checkpoints() ports.ICheckpointRepo      { return &checkpointRepo{view{s: s}} }
func (s *Store) TxManager() ports.ITxManager             { return &txManager{s: s} }
func (s *Store) Ping(ctx context.Context) error          { return ctx.Err() }

type txManager struct {
	s *Store
}

func (m *txManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.TxRepositories) error) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var undo []func()
	v := view{s: m.s, undo: &undo}
	repos := ports.TxRepositories{
		Requests:  &requestRepo{v},
		Ledger:    &ledgerRepo{v},
		Unmatched: &unmatchedRepo{v},
		Orders:    &orderRepo{v},
	}

	err := fn(ctx, repos)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

// requestRepo

type requestRepo struct{ view }

func (r *requestRepo) Create(_ context.Context, req *domain.PaymentRequest) error {
	var err error
	r.run(func() {
		if _, ok := r.s.requests[req.ID]; ok {
			err = fmt.Errorf("payment request %s already exists", req.ID)
			return
		}
		for _, existing := range r.s.requests {
			if existing.OrderID == req.OrderID && existing.Status == domain.PaymentRequestStatusPending {
				err = domain.ErrDuplicateActiveRequest
				return
			}
			if req.GatewayReference != nil && existing.GatewayReference != nil &&
				*existing.GatewayReference == *req.GatewayReference {
				err = fmt.Errorf("gateway reference %s already used", *req.GatewayReference)
				return
			}
		}
		r.s.requests[req.ID] = *req
		id := req.ID
		r.journal(func() { delete(r.s.requests, id) })
	})
	return err
}

func (r *requestRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	var (
		out *domain.PaymentRequest
		err error
	)
	r.run(func() {
		req, ok := r.s.requests[id]
		if !ok {
			err = fmt.Errorf("payment request %s: %w", id, domain.ErrNotFound)
			return
		}
		out = &req
	})
	return out, err
}

func (r *requestRepo) GetPendingByOrder(_ context.Context, orderID string) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.run(func() {
		for _, req := range r.s.requests {
			if req.OrderID == orderID && req.Status == domain.PaymentRequestStatusPending {
				req := req
				out = &req
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("pending payment request for order %s: %w", orderID, domain.ErrNotFound)
	}
	return out, nil
}

func (r *requestRepo) GetLatestByOrder(_ context.Context, orderID string) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.run(func() {
		for _, req := range r.s.requests {
			if req.OrderID != orderID {
				continue
			}
			if out == nil || req.CreatedAt.After(out.CreatedAt) {
				req := req
				out = &req
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("payment request for order %s: %w", orderID, domain.ErrNotFound)
	}
	return out, nil
}

func (r *requestRepo) filter(match func(domain.PaymentRequest) bool) []*domain.PaymentRequest {
	var out []*domain.PaymentRequest
	r.run(func() {
		for _, req := range r.s.requests {
			if match(req) {
				req := req
				out = append(out, &req)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *requestRepo) ListActive(_ context.Context, network domain.Network) ([]*domain.PaymentRequest, error) {
	return r.filter(func(req domain.PaymentRequest) bool {
		return req.Network == network && req.Status == domain.PaymentRequestStatusPending
	}), nil
}

func (r *requestRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.PaymentRequest, error) {
	out := r.filter(func(req domain.PaymentRequest) bool {
		return req.Status == domain.PaymentRequestStatusPending && req.IsExpiredAt(now)
	})
	return truncate(out, limit), nil
}

func (r *requestRepo) ListAwaitingCoordination(_ context.Context, before time.Time, limit int) ([]*domain.PaymentRequest, error) {
	var out []*domain.PaymentRequest
	r.run(func() {
		for _, order := range r.s.orders {
			if order.State != domain.OrderStateAwaitingPayment || order.PaymentRequestID == nil {
				continue
			}
			req, ok := r.s.requests[*order.PaymentRequestID]
			if !ok || req.Status == domain.PaymentRequestStatusPending || !req.UpdatedAt.Before(before) {
				continue
			}
			out = append(out, &req)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return truncate(out, limit), nil
}

func (r *requestRepo) ExistsPendingAmount(_ context.Context, network domain.Network, collector string, amount decimal.Decimal) (bool, error) {
	found := r.filter(func(req domain.PaymentRequest) bool {
		return req.Network == network &&
			req.Status == domain.PaymentRequestStatusPending &&
			req.CollectorAddress == collector &&
			req.ExpectedAmount.Equal(amount)
	})
	return len(found) > 0, nil
}

func (r *requestRepo) Transition(_ context.Context, id uuid.UUID, from, to domain.PaymentRequestStatus) (bool, error) {
	if !domain.CanTransitionRequest(from, to) {
		return false, nil
	}
	return r.swap(id, from, func(req *domain.PaymentRequest) {
		req.Status = to
	}), nil
}

func (r *requestRepo) MarkMatched(_ context.Context, id uuid.UUID, externalTxID string) (bool, error) {
	return r.swap(id, domain.PaymentRequestStatusPending, func(req *domain.PaymentRequest) {
		req.Status = domain.PaymentRequestStatusMatched
		txID := externalTxID
		req.MatchedTransferID = &txID
	}), nil
}

func (r *requestRepo) swap(id uuid.UUID, from domain.PaymentRequestStatus, apply func(*domain.PaymentRequest)) bool {
	swapped := false
	r.run(func() {
		req, ok := r.s.requests[id]
		if !ok || req.Status != from {
			return
		}
		prev := req
		apply(&req)
		req.UpdatedAt = r.s.now()
		r.s.requests[id] = req
		r.journal(func() { r.s.requests[id] = prev })
		swapped = true
	})
	return swapped
}

// ledgerRepo

type ledgerRepo struct{ view }

func (r *ledgerRepo) Exists(_ context.Context, externalTxID string) (bool, error) {
	var ok bool
	r.run(func() {
		_, ok = r.s.ledger[externalTxID]
	})
	return ok, nil
}

func (r *ledgerRepo) TryInsert(_ context.Context, record *domain.SettlementRecord) (bool, error) {
	inserted := false
	var err error
	r.run(func() {
		if _, ok := r.s.ledger[record.ExternalTxID]; ok {
			return
		}
		for _, existing := range r.s.ledger {
			if existing.PaymentRequestID == record.PaymentRequestID {
				err = fmt.Errorf("payment request %s already settled by %s: %w", record.PaymentRequestID, existing.ExternalTxID, domain.ErrConcurrentStateConflict)
				return
			}
		}
		r.s.ledger[record.ExternalTxID] = *record
		key := record.ExternalTxID
		r.journal(func() { delete(r.s.ledger, key) })
		inserted = true
	})
	return inserted, err
}

func (r *ledgerRepo) GetByRequestID(_ context.Context, requestID uuid.UUID) (*domain.SettlementRecord, error) {
	var out *domain.SettlementRecord
	r.run(func() {
		for _, rec := range r.s.ledger {
			if rec.PaymentRequestID == requestID {
				rec := rec
				out = &rec
				return
			}
		}
	})
	if out == nil {
		return nil, fmt.Errorf("settlement for request %s: %w", requestID, domain.ErrNotFound)
	}
	return out, nil
}

// unmatchedRepo

type unmatchedRepo struct{ view }

func unmatchedKey(network domain.Network, externalTxID string) string {
	return string(network) + "|" + externalTxID
}

func (r *unmatchedRepo) Record(_ context.Context, transfer domain.ObservedTransfer, reason domain.UnmatchedReason) error {
	r.run(func() {
		key := unmatchedKey(transfer.Network, transfer.ExternalTxID)
		now := r.s.now()
		prev, existed := r.s.unmatched[key]

		if existed {
			if prev.ResolvedAt != nil {
				return
			}
			next := prev
			next.LastSeenAt = now
			next.SeenCount++
			next.Reason = reason
			r.s.unmatched[key] = next
			r.journal(func() { r.s.unmatched[key] = prev })
			return
		}

		r.s.unmatched[key] = domain.UnmatchedTransfer{
			Network:      transfer.Network,
			ExternalTxID: transfer.ExternalTxID,
			Amount:       transfer.Amount,
			Sender:       transfer.Sender,
			Recipient:    transfer.Recipient,
			Reason:       reason,
			ObservedAt:   transfer.ObservedAt,
			FirstSeenAt:  now,
			LastSeenAt:   now,
			SeenCount:    1,
		}
		r.journal(func() { delete(r.s.unmatched, key) })
	})
	return nil
}

func (r *unmatchedRepo) Resolve(_ context.Context, network domain.Network, externalTxID string, requestID uuid.UUID) error {
	r.run(func() {
		key := unmatchedKey(network, externalTxID)
		prev, ok := r.s.unmatched[key]
		if !ok || prev.ResolvedAt != nil {
			return
		}
		next := prev
		now := r.s.now()
		id := requestID
		next.ResolvedAt = &now
		next.ResolvedRequestID = &id
		r.s.unmatched[key] = next
		r.journal(func() { r.s.unmatched[key] = prev })
	})
	return nil
}

func (r *unmatchedRepo) ListUnresolved(_ context.Context, limit int) ([]*domain.UnmatchedTransfer, error) {
	var out []*domain.UnmatchedTransfer
	r.run(func() {
		for _, t := range r.s.unmatched {
			if t.ResolvedAt == nil {
				t := t
				out = append(out, &t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return truncate(out, limit), nil
}

// orderRepo

type orderRepo struct{ view }

func (r *orderRepo) Open(_ context.Context, orderID string, requestID uuid.UUID) (*domain.OrderSettlement, error) {
	var (
		out *domain.OrderSettlement
		err error
	)
	r.run(func() {
		now := r.s.now()
		id := requestID
		prev, existed := r.s.orders[orderID]

		if existed && prev.State != domain.OrderStateAwaitingPayment {
			err = domain.ErrOrderClosed
			return
		}

		next := domain.OrderSettlement{
			OrderID:          orderID,
			State:            domain.OrderStateAwaitingPayment,
			PaymentRequestID: &id,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if existed {
			next.CreatedAt = prev.CreatedAt
			r.journal(func() { r.s.orders[orderID] = prev })
		} else {
			r.journal(func() { delete(r.s.orders, orderID) })
		}
		r.s.orders[orderID] = next
		out = &next
	})
	return out, err
}

func (r *orderRepo) Get(_ context.Context, orderID string) (*domain.OrderSettlement, error) {
	var out *domain.OrderSettlement
	r.run(func() {
		if order, ok := r.s.orders[orderID]; ok {
			out = &order
		}
	})
	if out == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return out, nil
}

func (r *orderRepo) Transition(_ context.Context, orderID string, from, to domain.OrderPaymentState) (bool, error) {
	if !domain.CanTransitionOrder(from, to) {
		return false, nil
	}
	swapped := false
	r.run(func() {
		prev, ok := r.s.orders[orderID]
		if !ok || prev.State != from {
			return
		}
		next := prev
		next.State = to
		next.UpdatedAt = r.s.now()
		r.s.orders[orderID] = next
		r.journal(func() { r.s.orders[orderID] = prev })
		swapped = true
	})
	return swapped, nil
}

// checkpointRepo

type checkpointRepo struct{ view }

func (r *checkpointRepo) Get(_ context.Context, network domain.Network) (*domain.Checkpoint, error) {
	out := &domain.Checkpoint{Network: network}
	r.run(func() {
		if cp, ok := r.s.checkpoints[network]; ok {
			*out = cp
		}
	})
	return out, nil
}

func (r *checkpointRepo) Save(_ context.Context, cp *domain.Checkpoint) (bool, error) {
	saved := false
	r.run(func() {
		current, ok := r.s.checkpoints[cp.Network]
		if (!ok && cp.Version != 0) || (ok && current.Version != cp.Version) {
			return
		}
		next := domain.Checkpoint{
			Network:   cp.Network,
			Cursor:    cp.Cursor,
			Version:   cp.Version + 1,
			UpdatedAt: r.s.now(),
		}
		r.s.checkpoints[cp.Network] = next
		saved = true
	})
	if saved {
		cp.Version++
	}
	return saved, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
