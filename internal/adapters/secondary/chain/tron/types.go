package tron

// trc20TransfersResponse ответ /v1/accounts/{address}/transactions/trc20
type trc20TransfersResponse struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Meta    pageMeta        `json:"meta"`
}

type pageMeta struct {
	Fingerprint string `json:"fingerprint,omitempty"`
}

type trc20Transfer struct {
	TransactionID  string    `json:"transaction_id"`
	TokenInfo      tokenInfo `json:"token_info"`
	BlockTimestamp uint64    `json:"block_timestamp"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Type           string    `json:"type"`
	Value          string    `json:"value"`
}

type tokenInfo struct {
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// nowBlockResponse ответ /wallet/getnowblock
type nowBlockResponse struct {
	BlockHeader struct {
		RawData struct {
			Number    uint64 `json:"number"`
			Timestamp int64  `json:"timestamp"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

// transactionInfoResponse ответ /wallet/gettransactioninfobyid, пустой объект если транзакция ещё не в блоке
type transactionInfoResponse struct {
	ID             string `json:"id"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockTimeStamp int64  `json:"blockTimeStamp"`
	Receipt        struct {
		Result string `json:"result"`
	} `json:"receipt"`
}
