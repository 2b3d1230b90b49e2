package bsc

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	"github.com/shopspring/decimal"
)

// transferTopic keccak256("Transfer(address,address,uint256)")
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// LogFilterer часть ethclient.Client, нужная наблюдателю
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ observer.Source = (*Client)(nil)

// Client наблюдатель USDT BEP-20 по логам Transfer
type Client struct {
	cfg        *Config
	rpc        LogFilterer
	contract   common.Address
	collectors []common.Hash
	Log        *slog.Logger
	now        func() time.Time
}

// Dial подключается к RPC ноды BSC
func Dial(ctx context.Context, cfg *Config) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bsc rpc: %w", err)
	}
	return client, nil
}

func NewClient(cfg *Config, rpc LogFilterer, collectors []string, log *slog.Logger) *Client {
	topics := make([]common.Hash, 0, len(collectors))
	for _, collector := range collectors {
		topics = append(topics, common.HexToAddress(collector).Hash())
	}

	return &Client{
		cfg:        cfg,
		rpc:        rpc,
		contract:   common.HexToAddress(cfg.Contract),
		collectors: topics,
		Log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Network() domain.Network {
	return domain.NetworkBEP20
}

// Fetch логи Transfer на адреса сборщиков в диапазоне блоков [since, since+MaxBlockRange)
func (c *Client) Fetch(ctx context.Context, since uint64) (*observer.Batch, error) {
	head, err := c.withTimeout(ctx, func(ctx context.Context) (uint64, error) {
		return c.rpc.BlockNumber(ctx)
	})
	if err != nil {
		return nil, domain.NewTransientSourceError(domain.NetworkBEP20, "block_number", err)
	}

	from := since
	if from == 0 {
		if head > c.cfg.StartLookback {
			from = head - c.cfg.StartLookback
		}
	}
	if from > head {
		return &observer.Batch{Next: since}, nil
	}

	to := head
	if c.cfg.MaxBlockRange > 0 && from+c.cfg.MaxBlockRange-1 < head {
		to = from + c.cfg.MaxBlockRange - 1
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{transferTopic}, nil, c.collectors},
	}

	filterCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	logs, err := c.rpc.FilterLogs(filterCtx, query)
	cancel()
	if err != nil {
		return nil, domain.NewTransientSourceError(domain.NetworkBEP20, "filter_logs", err)
	}

	blockTimes := make(map[uint64]time.Time)
	transfers := make([]domain.ObservedTransfer, 0, len(logs))

	for _, lg := range logs {
		if lg.Removed {
			continue
		}

		transfer, err := c.decode(lg, head)
		if err != nil {
			c.Log.Warn("skipping malformed bep20 log",
				"error", err,
				"tx_hash", lg.TxHash.Hex(),
				"log_index", lg.Index,
			)
			continue
		}

		occurredAt, ok := blockTimes[lg.BlockNumber]
		if !ok {
			occurredAt, err = c.blockTime(ctx, lg.BlockNumber)
			if err != nil {
				return nil, domain.NewTransientSourceError(domain.NetworkBEP20, "header_by_number", err)
			}
			blockTimes[lg.BlockNumber] = occurredAt
		}
		transfer.OccurredAt = occurredAt

		transfers = append(transfers, transfer)
	}

	sort.SliceStable(transfers, func(i, j int) bool { return transfers[i].Cursor < transfers[j].Cursor })

	return &observer.Batch{Transfers: transfers, Next: to + 1}, nil
}

func (c *Client) decode(lg types.Log, head uint64) (domain.ObservedTransfer, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
		return domain.ObservedTransfer{}, fmt.Errorf("unexpected topics count %d", len(lg.Topics))
	}
	if len(lg.Data) != 32 {
		return domain.ObservedTransfer{}, fmt.Errorf("unexpected data length %d", len(lg.Data))
	}

	value := new(big.Int).SetBytes(lg.Data)
	amount := decimal.NewFromBigInt(value, -c.cfg.TokenDecimals).Truncate(domain.NetworkBEP20.Precision())

	var confirmations uint64
	if head >= lg.BlockNumber {
		confirmations = head - lg.BlockNumber + 1
	}

	return domain.ObservedTransfer{
		Network:       domain.NetworkBEP20,
		ExternalTxID:  fmt.Sprintf("%s:%d", lg.TxHash.Hex(), lg.Index),
		Amount:        amount,
		Sender:        common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		Recipient:     common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		ObservedAt:    c.now(),
		Confirmations: confirmations,
		Cursor:        lg.BlockNumber,
	}, nil
}

func (c *Client) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	headerCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	header, err := c.rpc.HeaderByNumber(headerCtx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func (c *Client) withTimeout(ctx context.Context, fn func(context.Context) (uint64, error)) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return fn(callCtx)
}
