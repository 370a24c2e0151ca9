package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmountDigits is the largest number of significant digits every
	// store can hold exactly; Mongo's decimal128 carries 34
	MaxAmountDigits = 34

	maxAmountScale = 6176
)

// ValidateTransaction checks the income/expense consistency rule:
// amount >= 0 must carry no category, amount < 0 must carry a known category.
// Amounts beyond MaxAmountDigits significant digits are rejected.
// It has no side effects and does not touch storage.
func ValidateTransaction(amount decimal.Decimal, category *Category) error {
	if err := validatePrecision(amount); err != nil {
		return err
	}

	if amount.IsNegative() {
		if category == nil {
			return ErrMissingCategoryForExpense
		}
		if !category.Valid() {
			return &ValidationError{
				Reason:  ReasonUnknownCategory,
				Message: "unknown expense category " + string(*category),
			}
		}
		return nil
	}

	if category != nil {
		return ErrCategoryOnIncome
	}

	return nil
}

func validatePrecision(amount decimal.Decimal) error {
	digits, scale := significantDigits(amount)
	if digits > MaxAmountDigits || scale > maxAmountScale {
		return &ValidationError{
			Reason:  ReasonAmountTooPrecise,
			Message: fmt.Sprintf("amount has %d significant digits, at most %d are supported", digits, MaxAmountDigits),
		}
	}
	return nil
}

// significantDigits counts the digits of the canonical form of d without
// sign or leading zeros, and the digits after its decimal point
func significantDigits(d decimal.Decimal) (digits, scale int) {
	s := strings.TrimPrefix(d.String(), "-")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		scale = len(s) - i - 1
		s = s[:i] + s[i+1:]
	}
	return len(strings.TrimLeft(s, "0")), scale
}
