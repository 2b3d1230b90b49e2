package ton

// jettonTransfersResponse ответ /jetton/transfers
type jettonTransfersResponse struct {
	JettonTransfers []jettonTransfer `json:"jetton_transfers"`
}

type jettonTransfer struct {
	QueryID            string `json:"query_id"`
	Source             string `json:"source"`
	Destination        string `json:"destination"`
	Amount             string `json:"amount"`
	SourceWallet       string `json:"source_wallet"`
	JettonMaster       string `json:"jetton_master"`
	TransactionHash    string `json:"transaction_hash"`
	TransactionLT      string `json:"transaction_lt"`
	TransactionNow     int64  `json:"transaction_now"`
	TransactionAborted bool   `json:"transaction_aborted"`
}

type errorResponse struct {
	Error string `json:"error"`
}
