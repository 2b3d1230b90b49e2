package ton

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// Canonical raw-форма адреса (workchain:hex), принимает и user-friendly, и raw
func Canonical(addr string) (string, error) {
	addr = strings.TrimSpace(addr)

	if strings.Contains(addr, ":") {
		parsed, err := address.ParseRawAddr(addr)
		if err != nil {
			return "", fmt.Errorf("invalid ton address %q: %w", addr, err)
		}
		return parsed.StringRaw(), nil
	}

	parsed, err := address.ParseAddr(addr)
	if err != nil {
		return "", fmt.Errorf("invalid ton address %q: %w", addr, err)
	}
	return parsed.StringRaw(), nil
}
