package tron

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
)

const (
	defaultDecimals = 6
	receiptSuccess  = "SUCCESS"
	blockCacheLimit = 10_000

	// maxTimestampPages страниц с одним block_timestamp, после которых курсор сдвигается через него
	maxTimestampPages = 50
)

var (
	errNotIncluded = errors.New("transaction is not in a block yet")
	errReverted    = errors.New("transaction reverted")
)

var _ observer.Source = (*Client)(nil)

// Client наблюдатель USDT TRC-20 через TronGrid
type Client struct {
	cfg        *Config
	http       *resty.Client
	collectors []string
	Log        *slog.Logger

	// blocks номер блока уже найденных транзакций, чтобы не спрашивать повторно
	blocks map[string]uint64
	now    func() time.Time
}

func NewClient(cfg *Config, collectors []string, log *slog.Logger) *Client {
	client := chain.NewRestyClient(cfg.BaseURL, cfg.RequestTimeout, cfg.SkipSSL).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("TRON-PRO-API-KEY", cfg.APIKey)
	}

	return &Client{
		cfg:        cfg,
		http:       client,
		collectors: collectors,
		Log:        log,
		blocks:     make(map[string]uint64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Network() domain.Network {
	return domain.NetworkTRC20
}

// Fetch входящие переводы с block_timestamp >= since (мс).
// Next минимальная позиция, до которой все сборщики прочитаны полностью.
func (c *Client) Fetch(ctx context.Context, since uint64) (*observer.Batch, error) {
	var transfers []domain.ObservedTransfer
	next := uint64(math.MaxUint64)
	maxSeen := since

	for _, collector := range c.collectors {
		page, full, err := c.listTransfers(ctx, collector, since)
		if err != nil {
			return nil, domain.NewTransientSourceError(domain.NetworkTRC20, "list_transfers", err)
		}

		for _, item := range page {
			if item.BlockTimestamp > maxSeen {
				maxSeen = item.BlockTimestamp
			}
		}
		// последняя страница заполнена целиком: дальше этого timestamp сборщик ещё не дочитан
		if full && len(page) > 0 {
			last := page[len(page)-1].BlockTimestamp
			if last == page[0].BlockTimestamp {
				c.Log.Warn("too many trc20 transfers in one block timestamp, cursor moved past it",
					"collector", collector,
					"block_timestamp", last,
					"transfers", len(page),
				)
				last++
			}
			if last < next {
				next = last
			}
		}

		for _, item := range page {
			transfer, ok, err := c.toTransfer(item)
			if err != nil {
				c.Log.Warn("skipping malformed trc20 transfer",
					"error", err,
					"tx_id", item.TransactionID,
				)
				continue
			}
			if ok {
				transfers = append(transfers, transfer)
			}
		}
	}

	if next == math.MaxUint64 {
		next = maxSeen
	}

	if len(transfers) > 0 {
		head, err := c.headBlock(ctx)
		if err != nil {
			return nil, domain.NewTransientSourceError(domain.NetworkTRC20, "head_block", err)
		}

		confirmed := transfers[:0]
		for _, transfer := range transfers {
			block, err := c.blockOf(ctx, transfer.ExternalTxID)
			switch {
			case errors.Is(err, errReverted):
				continue
			case errors.Is(err, errNotIncluded):
				// подтверждений 0, наблюдатель вернётся к нему позже
			case err != nil:
				return nil, domain.NewTransientSourceError(domain.NetworkTRC20, "transaction_info", err)
			case head >= block:
				transfer.Confirmations = head - block + 1
			}
			confirmed = append(confirmed, transfer)
		}
		transfers = confirmed
	}

	sort.SliceStable(transfers, func(i, j int) bool { return transfers[i].Cursor < transfers[j].Cursor })

	return &observer.Batch{Transfers: transfers, Next: next}, nil
}

func (c *Client) toTransfer(item trc20Transfer) (domain.ObservedTransfer, bool, error) {
	if item.Type != "" && item.Type != "Transfer" {
		return domain.ObservedTransfer{}, false, nil
	}
	if item.TokenInfo.Address != "" && item.TokenInfo.Address != c.cfg.Contract {
		return domain.ObservedTransfer{}, false, nil
	}

	decimals := item.TokenInfo.Decimals
	if decimals == 0 {
		decimals = defaultDecimals
	}

	amount, err := chain.ParseUnits(item.Value, decimals)
	if err != nil {
		return domain.ObservedTransfer{}, false, fmt.Errorf("parse value %q: %w", item.Value, err)
	}

	recipient, err := Canonical(item.To)
	if err != nil {
		return domain.ObservedTransfer{}, false, err
	}

	return domain.ObservedTransfer{
		Network:      domain.NetworkTRC20,
		ExternalTxID: item.TransactionID,
		Amount:       amount,
		Sender:       item.From,
		Recipient:    recipient,
		ObservedAt:   c.now(),
		OccurredAt:   time.UnixMilli(int64(item.BlockTimestamp)).UTC(),
		Cursor:       item.BlockTimestamp,
	}, true, nil
}

// listTransfers переводы сборщика с block_timestamp >= since.
// Пока все прочитанные записи в одном timestamp и страница полная, идёт дальше по fingerprint,
// иначе курсор не сдвинулся бы. full - последняя страница заполнена целиком.
func (c *Client) listTransfers(ctx context.Context, collector string, since uint64) ([]trc20Transfer, bool, error) {
	var (
		items       []trc20Transfer
		fingerprint string
	)
	for pages := 0; ; pages++ {
		result, err := c.listPage(ctx, collector, since, fingerprint)
		if err != nil {
			return nil, false, err
		}
		items = append(items, result.Data...)

		full := len(result.Data) >= c.cfg.PageLimit
		if !full {
			return items, false, nil
		}
		sameTimestamp := items[0].BlockTimestamp == items[len(items)-1].BlockTimestamp
		if !sameTimestamp || result.Meta.Fingerprint == "" || pages+1 >= maxTimestampPages {
			return items, true, nil
		}
		fingerprint = result.Meta.Fingerprint
	}
}

func (c *Client) listPage(ctx context.Context, collector string, since uint64, fingerprint string) (*trc20TransfersResponse, error) {
	var result trc20TransfersResponse

	req := c.http.R().
		SetContext(ctx).
		SetPathParam("address", collector).
		SetQueryParams(map[string]string{
			"only_to":          "true",
			"contract_address": c.cfg.Contract,
			"min_timestamp":    strconv.FormatUint(since, 10),
			"order_by":         "block_timestamp,asc",
			"limit":            strconv.Itoa(c.cfg.PageLimit),
		}).
		SetResult(&result)
	if fingerprint != "" {
		req.SetQueryParam("fingerprint", fingerprint)
	}

	resp, err := req.Get("/v1/accounts/{address}/transactions/trc20")
	if err != nil {
		return nil, fmt.Errorf("trongrid request failed: %w", err)
	}

	if resp.IsError() {
		c.Log.Debug("trongrid returned non-2xx status",
			"status_code", resp.StatusCode(),
			"body_preview", chain.TruncateString(resp.String(), 200),
		)
		return nil, fmt.Errorf("trongrid error [status=%d]: %s", resp.StatusCode(), chain.TruncateString(resp.String(), 500))
	}
	if !result.Success {
		return nil, fmt.Errorf("trongrid unsuccessful response: %s", result.Error)
	}

	return &result, nil
}

func (c *Client) headBlock(ctx context.Context) (uint64, error) {
	var result nowBlockResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{}).
		SetResult(&result).
		Post("/wallet/getnowblock")
	if err != nil {
		return 0, fmt.Errorf("getnowblock failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("getnowblock error [status=%d]: %s", resp.StatusCode(), chain.TruncateString(resp.String(), 500))
	}

	head := result.BlockHeader.RawData.Number
	if head == 0 {
		return 0, errors.New("getnowblock returned empty block header")
	}
	return head, nil
}

func (c *Client) blockOf(ctx context.Context, txID string) (uint64, error) {
	if block, ok := c.blocks[txID]; ok {
		return block, nil
	}

	var result transactionInfoResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"value": txID}).
		SetResult(&result).
		Post("/wallet/gettransactioninfobyid")
	if err != nil {
		return 0, fmt.Errorf("gettransactioninfobyid failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("gettransactioninfobyid error [status=%d]: %s", resp.StatusCode(), chain.TruncateString(resp.String(), 500))
	}

	if result.BlockNumber == 0 {
		return 0, errNotIncluded
	}
	if result.Receipt.Result != "" && result.Receipt.Result != receiptSuccess {
		c.Log.Warn("trc20 transaction reverted", "tx_id", txID, "result", result.Receipt.Result)
		return 0, errReverted
	}

	if len(c.blocks) >= blockCacheLimit {
		c.blocks = make(map[string]uint64)
	}
	c.blocks[txID] = result.BlockNumber

	return result.BlockNumber, nil
}
