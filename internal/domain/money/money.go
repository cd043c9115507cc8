// Package money converts between the fixed-point decimal strings used on the
// wire and the int64 minor-unit amounts stored in the ledger. Amounts never
// pass through floats.
package money

import (
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/traf3li/trustledger/internal/domain/errors"
)

// Scale returns the number of minor-unit digits for an ISO-4217 currency code
func Scale(currency string) (int32, error) {
	cur := gomoney.GetCurrency(currency)
	if cur == nil {
		return 0, errors.NewValidationError(fmt.Sprintf("unsupported currency code: %q", currency))
	}
	return int32(cur.Fraction), nil
}

// Parse converts a decimal string such as "15000.00" to minor units of the
// given currency. It rejects amounts with more precision than the currency
// carries, so "10.005" is invalid for SAR or USD.
func Parse(amount, currency string) (int64, error) {
	scale, err := Scale(currency)
	if err != nil {
		return 0, err
	}

	d, derr := decimal.NewFromString(amount)
	if derr != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid amount %q: must be a decimal string", amount))
	}

	shifted := d.Shift(scale)
	if !shifted.IsInteger() {
		return 0, errors.NewValidationError(
			fmt.Sprintf("amount %q has more precision than %s allows", amount, currency))
	}
	if !shifted.BigInt().IsInt64() {
		return 0, errors.NewValidationError(fmt.Sprintf("amount %q is out of range", amount))
	}

	return shifted.IntPart(), nil
}

// ParsePositive is Parse plus a strictly-positive check, used for
// deposit/withdrawal/transfer amounts.
func ParsePositive(amount, currency string) (int64, error) {
	units, err := Parse(amount, currency)
	if err != nil {
		return 0, err
	}
	if units <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("amount must be positive, got %q", amount))
	}
	return units, nil
}

// Format renders minor units as a fixed-point decimal string. Unknown
// currencies fall back to two decimal places; amounts are validated on the
// way in, so that path only occurs for hand-written test data.
func Format(units int64, currency string) string {
	scale, err := Scale(currency)
	if err != nil {
		scale = 2
	}
	return decimal.New(units, -scale).StringFixed(scale)
}
