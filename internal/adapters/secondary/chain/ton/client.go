package ton

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

// maxUtimePages страниц с одним transaction_now, после которых курсор сдвигается через него
const maxUtimePages = 50

var _ observer.Source = (*Client)(nil)

// Client наблюдатель USDT jetton через TonCenter v3
type Client struct {
	cfg        *Config
	http       *resty.Client
	collectors []string
	Log        *slog.Logger
	now        func() time.Time
}

func NewClient(cfg *Config, collectors []string, log *slog.Logger) *Client {
	client := chain.NewRestyClient(cfg.BaseURL, cfg.RequestTimeout, cfg.SkipSSL)
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &Client{
		cfg:        cfg,
		http:       client,
		collectors: collectors,
		Log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Network() domain.Network {
	return domain.NetworkTON
}

// Fetch входящие jetton-переводы с transaction_now >= since (unix, сек).
// Logical time упорядочен только внутри аккаунта, поэтому общий для всех сборщиков курсор идёт по времени.
func (c *Client) Fetch(ctx context.Context, since uint64) (*observer.Batch, error) {
	var transfers []domain.ObservedTransfer
	next := uint64(math.MaxUint64)
	maxSeen := since

	for _, collector := range c.collectors {
		page, full, err := c.listTransfers(ctx, collector, since)
		if err != nil {
			return nil, domain.NewTransientSourceError(domain.NetworkTON, "jetton_transfers", err)
		}

		for _, item := range page {
			transfer, err := c.toTransfer(item)
			if err != nil {
				c.Log.Warn("skipping malformed jetton transfer",
					"error", err,
					"tx_hash", item.TransactionHash,
				)
				continue
			}
			if transfer.Cursor > maxSeen {
				maxSeen = transfer.Cursor
			}
			if item.TransactionAborted {
				continue
			}
			transfers = append(transfers, transfer)
		}

		// последняя страница заполнена целиком: дальше этого времени сборщик ещё не дочитан
		if full && len(page) > 0 {
			last := utime(page[len(page)-1])
			if last == utime(page[0]) {
				c.Log.Warn("too many jetton transfers in one second, cursor moved past it",
					"collector", collector,
					"transaction_now", last,
					"transfers", len(page),
				)
				last++
			}
			if last < next {
				next = last
			}
		}
	}

	if next == math.MaxUint64 {
		next = maxSeen
	}

	sort.SliceStable(transfers, func(i, j int) bool { return transfers[i].Cursor < transfers[j].Cursor })

	return &observer.Batch{Transfers: transfers, Next: next}, nil
}

func (c *Client) toTransfer(item jettonTransfer) (domain.ObservedTransfer, error) {
	if item.TransactionNow <= 0 {
		return domain.ObservedTransfer{}, errors.New("transfer without transaction_now")
	}

	amount, err := chain.ParseUnits(item.Amount, c.cfg.JettonDecimals)
	if err != nil {
		return domain.ObservedTransfer{}, fmt.Errorf("parse amount %q: %w", item.Amount, err)
	}

	recipient, err := Canonical(item.Destination)
	if err != nil {
		return domain.ObservedTransfer{}, err
	}

	sender := item.Source
	if canonical, err := Canonical(item.Source); err == nil {
		sender = canonical
	}

	return domain.ObservedTransfer{
		Network:       domain.NetworkTON,
		ExternalTxID:  item.TransactionHash,
		Amount:        amount,
		Sender:        sender,
		Recipient:     recipient,
		ObservedAt:    c.now(),
		OccurredAt:    time.Unix(item.TransactionNow, 0).UTC(),
		Confirmations: 1,
		Cursor:        utime(item),
	}, nil
}

func utime(item jettonTransfer) uint64 {
	if item.TransactionNow < 0 {
		return 0
	}
	return uint64(item.TransactionNow)
}

// listTransfers переводы сборщика с transaction_now >= since.
// Пока все прочитанные записи в одной секунде и страница полная, идёт дальше по offset.
// full - последняя страница заполнена целиком.
func (c *Client) listTransfers(ctx context.Context, collector string, since uint64) ([]jettonTransfer, bool, error) {
	var items []jettonTransfer
	for pages := 0; ; pages++ {
		page, err := c.listPage(ctx, collector, since, len(items))
		if err != nil {
			return nil, false, err
		}
		items = append(items, page...)

		if len(page) < c.cfg.PageLimit {
			return items, false, nil
		}
		if utime(items[0]) != utime(items[len(items)-1]) || pages+1 >= maxUtimePages {
			return items, true, nil
		}
	}
}

func (c *Client) listPage(ctx context.Context, collector string, since uint64, offset int) ([]jettonTransfer, error) {
	var (
		result  jettonTransfersResponse
		failure errorResponse
	)

	params := map[string]string{
		"owner_address": collector,
		"direction":     "in",
		"jetton_master": c.cfg.JettonMaster,
		"limit":         strconv.Itoa(c.cfg.PageLimit),
		"sort":          "asc",
	}
	if since > 0 {
		params["start_utime"] = strconv.FormatUint(since, 10)
	}
	if offset > 0 {
		params["offset"] = strconv.Itoa(offset)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		SetError(&failure).
		Get("/jetton/transfers")
	if err != nil {
		return nil, fmt.Errorf("toncenter request failed: %w", err)
	}

	if resp.IsError() {
		c.Log.Debug("toncenter returned non-2xx status",
			"status_code", resp.StatusCode(),
			"error", failure.Error,
			"body_preview", chain.TruncateString(resp.String(), 200),
		)
		return nil, fmt.Errorf("toncenter error [status=%d]: %s", resp.StatusCode(), chain.TruncateString(resp.String(), 500))
	}

	return result.JettonTransfers, nil
}
