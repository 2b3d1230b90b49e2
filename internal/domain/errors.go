package domain

import (
	"errors"
	"fmt"
)

// BusinessError ошибка бизнес-логики, которая уже залогирована в UseCase
type BusinessError struct {
	Err error
}

func (e *BusinessError) Error() string {
	return e.Err.Error()
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func WrapBusinessError(err error) error {
	if err == nil {
		return nil
	}
	return &BusinessError{Err: err}
}

func IsBusinessError(err error) bool {
	var businessErr *BusinessError
	return errors.As(err, &businessErr)
}

var (
	// ErrDuplicateActiveRequest у заказа уже есть заявка в статусе pending
	ErrDuplicateActiveRequest = errors.New("order already has an active payment request")
	// ErrDuplicateTransfer перевод уже есть в леджере, повтор игнорируется
	ErrDuplicateTransfer = errors.New("transfer already settled")
	// ErrTransferInFlight этот же перевод прямо сейчас обрабатывает другой воркер
	ErrTransferInFlight = errors.New("transfer is being processed concurrently")
	// ErrNoMatchingRequest нет подходящей заявки, перевод сохранён для ручной сверки
	ErrNoMatchingRequest = errors.New("no matching payment request")
	// ErrConcurrentStateConflict CAS не прошёл, состояние уже изменил кто-то другой
	ErrConcurrentStateConflict = errors.New("concurrent state conflict")
	// ErrInvalidCallbackSignature подпись callback шлюза не сошлась
	ErrInvalidCallbackSignature = errors.New("invalid callback signature")

	ErrNotFound           = errors.New("not found")
	ErrOrderClosed        = errors.New("order payment is already closed")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrNetworkDisabled    = errors.New("network is not enabled")
)

// TransientSourceError временная ошибка внешнего источника (RPC, API шлюза), повторяется с backoff
type TransientSourceError struct {
	Network Network
	Op      string
	Err     error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Network, e.Op, e.Err)
}

func (e *TransientSourceError) Unwrap() error {
	return e.Err
}

func NewTransientSourceError(network Network, op string, err error) error {
	return &TransientSourceError{Network: network, Op: op, Err: err}
}

func IsTransientSourceError(err error) bool {
	var transient *TransientSourceError
	return errors.As(err, &transient)
}

// IsSettledOutcome ошибки, после которых перевод считается обработанным:
// повтор, отсутствие заявки (сохранён как unmatched) и проигранная гонка
func IsSettledOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, ErrDuplicateTransfer) ||
		errors.Is(err, ErrNoMatchingRequest) ||
		errors.Is(err, ErrConcurrentStateConflict)
}
