package tron

import (
	"fmt"
	"strings"
)

const addressLength = 34

// Canonical base58 адрес Tron: T + 33 символа, регистр значим
func Canonical(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != addressLength || addr[0] != 'T' {
		return "", fmt.Errorf("invalid tron address %q", addr)
	}
	return addr, nil
}
