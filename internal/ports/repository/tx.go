package repository

import "context"

// TxRepositories репозитории, привязанные к одной транзакции
type TxRepositories struct {
	Requests  IPaymentRequestRepo
	Ledger    ISettlementLedger
	Unmatched IUnmatchedTransferRepo
	Orders    IOrderSettlementRepo
}

// ITxManager выполняет fn атомарно: ошибка из fn откатывает все изменения
type ITxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
