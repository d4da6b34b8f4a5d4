package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseQuantity parses a hex-encoded JSON-RPC quantity such as "0x1bc16d674ec80000".
// The 0x prefix is optional. Signs and empty digit strings are rejected.
func ParseQuantity(s string) (*big.Int, error) {
	digits := strings.TrimSpace(s)
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if digits == "" {
		return nil, fmt.Errorf("invalid hex quantity %q: no digits", s)
	}
	if i := strings.IndexFunc(digits, func(r rune) bool { return !isHexDigit(r) }); i >= 0 {
		return nil, fmt.Errorf("invalid hex quantity %q: unexpected character %q", s, digits[i])
	}

	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}

func isHexDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// ToDecimal converts a raw base-unit amount into token units without loss
func ToDecimal(rawBalance *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(rawBalance, -int32(decimals))
}

// HumanBalance converts raw balance to human-readable decimal string
func HumanBalance(rawBalance *big.Int, decimals uint8) string {
	if rawBalance.Sign() == 0 {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	intPart := new(big.Int).Div(rawBalance, divisor)
	remainder := new(big.Int).Mod(rawBalance, divisor)

	if remainder.Sign() == 0 {
		return intPart.String()
	}

	fracStr := fmt.Sprintf("%0*s", int(decimals), remainder.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return fmt.Sprintf("%s.%s", intPart.String(), fracStr)
}
