package chain

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// ValidateAddress checks that addr is bech32 with the given human readable prefix and
// carries a 20 or 32 byte account.
func ValidateAddress(addr, prefix string) error {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid bech32 address %q: %w", addr, err)
	}
	if hrp != prefix {
		return fmt.Errorf("address %q has prefix %q, want %q", addr, hrp, prefix)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return fmt.Errorf("address %q: %w", addr, err)
	}
	if len(raw) != 20 && len(raw) != 32 {
		return fmt.Errorf("address %q has invalid length %d", addr, len(raw))
	}
	return nil
}

// EncodeAddress renders raw account bytes as a bech32 address with prefix.
func EncodeAddress(prefix string, raw []byte) (string, error) {
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}
