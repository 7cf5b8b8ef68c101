// Package units converts chain amounts between smallest units (satoshi, litoshi, wei)
// and standard units (BTC, LTC, ETH).
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wallet-insight/internal/types"
)

// GweiExponent is the power of ten between wei and Gwei
const GweiExponent = 9

// maxExponent bounds the scale of accepted values. Anything past it is far
// outside the float64 range and would make exact arithmetic unbounded.
const maxExponent = 400

var chainDecimals = map[types.ChainSymbol]int32{
	types.ChainBTC: 8,
	types.ChainLTC: 8,
	types.ChainETH: 18,
}

// Decimals returns the power-of-ten denominator exponent for a chain symbol
func Decimals(symbol types.ChainSymbol) (int32, bool) {
	exp, ok := chainDecimals[types.ParseChainSymbol(string(symbol))]
	return exp, ok
}

// Supported reports whether amounts of the chain can be converted
func Supported(symbol types.ChainSymbol) bool {
	_, ok := Decimals(symbol)
	return ok
}

// Parse coerces a provider numeric field. An empty value is zero.
// Values that do not fit a finite float64 are rejected.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", raw)
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, fmt.Errorf("not a finite number: %q", raw)
	}
	if f, err := strconv.ParseFloat(raw, 64); err != nil || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("not a finite number: %q", raw)
	}
	return d, nil
}

// ParseField parses a numeric field and degrades malformed input to zero with a diagnostic
func ParseField(raw types.NumericString, field string) (decimal.Decimal, []types.Diagnostic) {
	d, err := Parse(raw.String())
	if err != nil {
		return decimal.Zero, []types.Diagnostic{{
			Code:    types.DiagInvalidNumber,
			Field:   field,
			Message: err.Error(),
		}}
	}
	return d, nil
}

// ToStandard converts a smallest-unit amount to standard units.
// Malformed input yields 0; an unsupported symbol passes the value through unconverted.
func ToStandard(raw string, symbol types.ChainSymbol) (float64, []types.Diagnostic) {
	d, err := Parse(raw)
	if err != nil {
		return 0, []types.Diagnostic{{
			Code:    types.DiagInvalidNumber,
			Message: err.Error(),
		}}
	}
	return DecimalToStandard(d, symbol)
}

// DecimalToStandard converts an already parsed smallest-unit amount to standard units
func DecimalToStandard(amount decimal.Decimal, symbol types.ChainSymbol) (float64, []types.Diagnostic) {
	exp, ok := Decimals(symbol)
	if !ok {
		f, _ := amount.Float64()
		return f, []types.Diagnostic{{
			Code:    types.DiagUnsupportedCurrency,
			Message: fmt.Sprintf("no unit denominator for %q, value passed through", symbol),
		}}
	}
	f, _ := amount.Shift(-exp).Float64()
	return f, nil
}

// FromStandard converts a standard-unit amount to smallest units
func FromStandard(amount float64, symbol types.ChainSymbol) (decimal.Decimal, error) {
	exp, ok := Decimals(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", symbol)
	}
	return decimal.NewFromFloat(amount).Shift(exp).Round(0), nil
}

// WeiToGwei converts a wei amount to Gwei, keeping fractional Gwei exactly
func WeiToGwei(raw string) (decimal.Decimal, error) {
	d, err := Parse(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-GweiExponent), nil
}

// ShiftDecimals converts a raw token balance using the token's own decimals
func ShiftDecimals(raw string, decimals int) (float64, error) {
	d, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	f, _ := d.Shift(-int32(decimals)).Float64() // #nosec G115 - token decimals are small
	return f, nil
}
