package bsc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Canonical адрес в checksum-виде EIP-55
func Canonical(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid evm address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
