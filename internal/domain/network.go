package domain

import (
	"fmt"
	"strings"
)

// Network сеть или шлюз, через который приходит оплата
type Network string

const (
	NetworkTRC20 Network = "TRC20" // USDT в сети Tron
	NetworkBEP20 Network = "BEP20" // USDT в сети BNB Smart Chain
	NetworkTON   Network = "TON"   // USDT jetton в сети TON
	NetworkSBP   Network = "SBP"   // банковский перевод через СБП
)

// AllNetworks возвращает все поддерживаемые сети
func AllNetworks() []Network {
	return []Network{NetworkTRC20, NetworkBEP20, NetworkTON, NetworkSBP}
}

// ParseNetwork разбирает название сети, принимает также старые имена способов оплаты (usdt_trc20, sbp)
func ParseNetwork(value string) (Network, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.TrimPrefix(normalized, "USDT_")

	network := Network(normalized)
	if !network.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, value)
	}
	return network, nil
}

func (n Network) IsValid() bool {
	switch n {
	case NetworkTRC20, NetworkBEP20, NetworkTON, NetworkSBP:
		return true
	default:
		return false
	}
}

// IsBlockchain true для сетей, где нужны подтверждения блоков
func (n Network) IsBlockchain() bool {
	return n == NetworkTRC20 || n == NetworkBEP20 || n == NetworkTON
}

// Currency валюта, в которой выставляется заявка
func (n Network) Currency() string {
	if n == NetworkSBP {
		return "RUB"
	}
	return "USDT"
}

// Precision количество знаков после запятой для expected_amount
func (n Network) Precision() int32 {
	if n == NetworkSBP {
		return 2
	}
	return 6
}

// ExplorerTxURL ссылка на транзакцию в обозревателе блоков, для СБП пустая строка
func (n Network) ExplorerTxURL(externalTxID string) string {
	if externalTxID == "" {
		return ""
	}

	switch n {
	case NetworkTRC20:
		return "https://tronscan.org/#/transaction/" + externalTxID
	case NetworkBEP20:
		// external_tx_id для BEP-20 имеет вид <hash>:<log_index>
		hash, _, _ := strings.Cut(externalTxID, ":")
		return "https://bscscan.com/tx/" + hash
	case NetworkTON:
		return "https://tonscan.org/tx/" + externalTxID
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}
