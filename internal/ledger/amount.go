package ledger

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for anything that is not a positive finite
// number.
var ErrInvalidAmount = errors.New("el monto debe ser un número positivo")

// ParseAmount reads a user-typed amount. Both "12.34" and "12,34" are
// accepted; signs, exponents and non-numeric input are rejected. The value
// is rounded half-up to cents and must stay above zero.
//
//	ParseAmount("500")    -> 500
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("0.004")  -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
