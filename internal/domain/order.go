package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaymentState состояние оплаты заказа
type OrderPaymentState string

const (
	OrderStateAwaitingPayment OrderPaymentState = "awaiting_payment"
	OrderStatePaid            OrderPaymentState = "paid"
	OrderStateFulfilling      OrderPaymentState = "fulfilling"
	OrderStateCompleted       OrderPaymentState = "completed"
	OrderStateExpired         OrderPaymentState = "expired"
	OrderStateCancelled       OrderPaymentState = "cancelled"
)

// orderTransitions допустимые переходы автомата
var orderTransitions = map[OrderPaymentState][]OrderPaymentState{
	OrderStateAwaitingPayment: {OrderStatePaid, OrderStateExpired, OrderStateCancelled},
	OrderStatePaid:            {OrderStateFulfilling},
	OrderStateFulfilling:      {OrderStateCompleted},
}

// CanTransitionOrder проверяет переход from -> to
func CanTransitionOrder(from, to OrderPaymentState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal completed, expired и cancelled конечные
func (s OrderPaymentState) IsTerminal() bool {
	return s == OrderStateCompleted || s == OrderStateExpired || s == OrderStateCancelled
}

// OrderSettlement состояние оплаты одного заказа
type OrderSettlement struct {
	OrderID          string            `json:"order_id" db:"order_id"`
	State            OrderPaymentState `json:"state" db:"state"`
	PaymentRequestID *uuid.UUID        `json:"payment_request_id,omitempty" db:"payment_request_id"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}
