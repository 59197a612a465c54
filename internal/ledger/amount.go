package ledger

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// amountPattern is the documented wire format for a monetary amount: up to
// 8 fractional digits, matching the DECIMAL(19,8) column precision.
var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,8})?$`)

// ParseAmount validates and parses a decimal-string amount: the regex bounds
// the wire format, decimal.Decimal carries the value.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Decimal{}, NewDomainError(KindInvalidAmount, "amount must match ^\\d+(\\.\\d{1,8})?$")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, WrapDomainError(KindInvalidAmount, "amount is not a valid decimal", err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, NewDomainError(KindInvalidAmount, "amount must be strictly positive")
	}
	return d, nil
}
