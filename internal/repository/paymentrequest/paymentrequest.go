package paymentRequestRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/pg"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/shopspring/decimal"
)

const pendingOrderConstraint = "ux_payment_requests_order_pending"

type paymentRequestColumns struct {
	TableName         string
	ID                string
	Reference         string
	OrderID           string
	Network           string
	ExpectedAmount    string
	BaseAmount        string
	Collector         string
	GatewayReference  string
	GatewayPaymentURL string
	GatewayQRPayload  string
	CustomerChatID    string
	Status            string
	MatchedTransferID string
	CreatedAt         string
	ExpiresAt         string
	UpdatedAt         string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns paymentRequestColumns
}

// New создаёт репозиторий заявок, db может быть как подключением, так и транзакцией
func New(db persistence.Persistence, log *slog.Logger) ports.IPaymentRequestRepo {
	cols := paymentRequestColumns{
		TableName:         "payment_requests",
		ID:                "id",
		Reference:         "reference",
		OrderID:           "order_id",
		Network:           "network",
		ExpectedAmount:    "expected_amount",
		BaseAmount:        "base_amount",
		Collector:         "collector",
		GatewayReference:  "gateway_reference",
		GatewayPaymentURL: "gateway_payment_url",
		GatewayQRPayload:  "gateway_qr_payload",
		CustomerChatID:    "customer_chat_id",
		Status:            "status",
		MatchedTransferID: "matched_transfer_id",
		CreatedAt:         "created_at",
		ExpiresAt:         "expires_at",
		UpdatedAt:         "updated_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (16 полей)
func (r *Repository) allColumns() string {
	return r.prefixedColumns("")
}

func (r *Repository) prefixedColumns(prefix string) string {
	cols := []string{
		r.columns.ID,
		r.columns.Reference,
		r.columns.OrderID,
		r.columns.Network,
		r.columns.ExpectedAmount,
		r.columns.BaseAmount,
		r.columns.Collector,
		r.columns.GatewayReference,
		r.columns.GatewayPaymentURL,
		r.columns.GatewayQRPayload,
		r.columns.CustomerChatID,
		r.columns.Status,
		r.columns.MatchedTransferID,
		r.columns.CreatedAt,
		r.columns.ExpiresAt,
		r.columns.UpdatedAt,
	}

	result := ""
	for i, col := range cols {
		if i > 0 {
			result += ", "
		}
		result += prefix + col
	}
	return result
}

// Create сохраняет новую заявку
func (r *Repository) Create(ctx context.Context, req *domain.PaymentRequest) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.columns.TableName,
		r.allColumns(),
	)

	err := r.db.Exec(ctx, query,
		req.ID,
		req.Reference,
		req.OrderID,
		string(req.Network),
		req.ExpectedAmount,
		req.BaseAmount,
		req.CollectorAddress,
		req.GatewayReference,
		req.GatewayPaymentURL,
		req.GatewayQRPayload,
		req.CustomerChatID,
		string(req.Status),
		req.MatchedTransferID,
		req.CreatedAt,
		req.ExpiresAt,
		req.UpdatedAt,
	)
	if err != nil {
		if pg.IsUniqueViolation(err, pendingOrderConstraint) {
			r.Log.Warn("order already has a pending payment request",
				"order_id", req.OrderID,
				"network", req.Network,
			)
			return domain.ErrDuplicateActiveRequest
		}
		r.Log.Error("failed to create payment request",
			"error", err,
			"payment_request_id", req.ID,
			"order_id", req.OrderID,
		)
		return fmt.Errorf("failed to create payment request: %w", err)
	}

	r.Log.Debug("payment request created successfully",
		"payment_request_id", req.ID,
		"order_id", req.OrderID,
		"network", req.Network,
		"amount", req.ExpectedAmount,
	)
	return nil
}

// GetByID получает заявку по ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID,
	)

	return r.getOne(ctx, query, "payment_request_id", id)
}

// GetPendingByOrder активная заявка заказа
func (r *Repository) GetPendingByOrder(ctx context.Context, orderID string) (*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.OrderID,
		r.columns.Status,
	)

	return r.getOne(ctx, query, "order_id", orderID, string(domain.PaymentRequestStatusPending))
}

// GetLatestByOrder последняя заявка заказа в любом статусе
func (r *Repository) GetLatestByOrder(ctx context.Context, orderID string) (*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s DESC LIMIT 1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.OrderID,
		r.columns.CreatedAt,
	)

	return r.getOne(ctx, query, "order_id", orderID)
}

func (r *Repository) getOne(ctx context.Context, query string, logKey string, args ...interface{}) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest

	err := r.db.Get(ctx, &req, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("payment request not found", logKey, args[0])
			return nil, fmt.Errorf("payment request %v: %w", args[0], domain.ErrNotFound)
		}
		r.Log.Error("failed to get payment request",
			"error", err,
			logKey, args[0],
		)
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}

	return &req, nil
}

// ListActive pending заявки сети в порядке создания
func (r *Repository) ListActive(ctx context.Context, network domain.Network) ([]*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2 ORDER BY %s ASC, %s ASC`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Network,
		r.columns.Status,
		r.columns.CreatedAt,
		r.columns.ID,
	)

	var requests []*domain.PaymentRequest
	if err := r.db.Select(ctx, &requests, query, string(network), string(domain.PaymentRequestStatusPending)); err != nil {
		r.Log.Error("failed to list active payment requests",
			"error", err,
			"network", network,
		)
		return nil, fmt.Errorf("failed to list active payment requests: %w", err)
	}

	return requests, nil
}

// ListExpired pending заявки, у которых окно истекло
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s < $2 ORDER BY %s ASC LIMIT $3`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Status,
		r.columns.ExpiresAt,
		r.columns.ExpiresAt,
	)

	var requests []*domain.PaymentRequest
	if err := r.db.Select(ctx, &requests, query, string(domain.PaymentRequestStatusPending), now, limit); err != nil {
		r.Log.Error("failed to list expired payment requests", "error", err)
		return nil, fmt.Errorf("failed to list expired payment requests: %w", err)
	}

	return requests, nil
}

// ListAwaitingCoordination заявки, дошедшие до терминального статуса, при этом заказ ещё ждёт оплату
func (r *Repository) ListAwaitingCoordination(ctx context.Context, before time.Time, limit int) ([]*domain.PaymentRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s pr
		JOIN order_settlements os ON os.payment_request_id = pr.%s
		WHERE os.state = $1 AND pr.%s <> $2 AND pr.%s < $3
		ORDER BY pr.%s ASC
		LIMIT $4`,
		r.prefixedColumns("pr."),
		r.columns.TableName,
		r.columns.ID,
		r.columns.Status,
		r.columns.UpdatedAt,
		r.columns.UpdatedAt,
	)

	var requests []*domain.PaymentRequest
	err := r.db.Select(ctx, &requests, query,
		string(domain.OrderStateAwaitingPayment),
		string(domain.PaymentRequestStatusPending),
		before,
		limit,
	)
	if err != nil {
		r.Log.Error("failed to list requests awaiting coordination", "error", err)
		return nil, fmt.Errorf("failed to list requests awaiting coordination: %w", err)
	}

	return requests, nil
}

// ExistsPendingAmount есть ли pending заявка с такой суммой на тот же адрес
func (r *Repository) ExistsPendingAmount(ctx context.Context, network domain.Network, collector string, amount decimal.Decimal) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2 AND %s = $3 AND %s = $4)`,
		r.columns.TableName,
		r.columns.Network,
		r.columns.Collector,
		r.columns.ExpectedAmount,
		r.columns.Status,
	)

	var exists bool
	if err := r.db.Get(ctx, &exists, query, string(network), collector, amount, string(domain.PaymentRequestStatusPending)); err != nil {
		r.Log.Error("failed to check pending amount",
			"error", err,
			"network", network,
			"amount", amount,
		)
		return false, fmt.Errorf("failed to check pending amount: %w", err)
	}

	return exists, nil
}

// Transition compare-and-swap статуса
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentRequestStatus) (bool, error) {
	if !domain.CanTransitionRequest(from, to) {
		r.Log.Warn("payment request transition is not allowed",
			"payment_request_id", id,
			"from", from,
			"to", to,
		)
		return false, nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2 AND %s = $3`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.UpdatedAt,
		r.columns.ID,
		r.columns.Status,
	)

	rows, err := r.db.ExecWithResult(ctx, query, string(to), id, string(from))
	if err != nil {
		r.Log.Error("failed to transition payment request",
			"error", err,
			"payment_request_id", id,
			"from", from,
			"to", to,
		)
		return false, fmt.Errorf("failed to transition payment request: %w", err)
	}

	return rows == 1, nil
}

// MarkMatched CAS pending -> matched
func (r *Repository) MarkMatched(ctx context.Context, id uuid.UUID, externalTxID string) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2, %s = NOW() WHERE %s = $3 AND %s = $4`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.MatchedTransferID,
		r.columns.UpdatedAt,
		r.columns.ID,
		r.columns.Status,
	)

	rows, err := r.db.ExecWithResult(ctx, query,
		string(domain.PaymentRequestStatusMatched),
		externalTxID,
		id,
		string(domain.PaymentRequestStatusPending),
	)
	if err != nil {
		r.Log.Error("failed to mark payment request matched",
			"error", err,
			"payment_request_id", id,
			"external_tx_id", externalTxID,
		)
		return false, fmt.Errorf("failed to mark payment request matched: %w", err)
	}

	return rows == 1, nil
}
