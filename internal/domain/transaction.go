package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category represents the expense category of a transaction
type Category string

const (
	CategoryGroceries   Category = "groceries"
	CategoryTaxi        Category = "taxi"
	CategoryElectronics Category = "electronics"
	CategoryRestaurant  Category = "restaurant"
	CategoryOther       Category = "other"
)

// Categories lists every valid expense category in display order
var Categories = []Category{
	CategoryGroceries,
	CategoryTaxi,
	CategoryElectronics,
	CategoryRestaurant,
	CategoryOther,
}

// Valid reports whether c belongs to the closed set of expense categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// DisplayName returns the human readable name of the category
func (c Category) DisplayName() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// ParseCategory converts a string into a Category, case-insensitively
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid category %q", s)
	}
	return c, nil
}

// TransactionType classifies a record as income or expense
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// TransactionRecord represents a persisted ledger entry.
// Expenses carry a negative Amount and a Category; income carries a
// non-negative Amount and no Category.
type TransactionRecord struct {
	ID        uuid.UUID
	Amount    decimal.Decimal // Signed, in BTC
	Category  *Category       // nil for income
	Timestamp time.Time
}

// Type returns the classification of the record derived from its amount sign
func (r *TransactionRecord) Type() TransactionType {
	if r.Amount.IsNegative() {
		return TransactionTypeExpense
	}
	return TransactionTypeIncome
}

// Validate ensures the record satisfies the income/expense category rule
func (r *TransactionRecord) Validate() error {
	return ValidateTransaction(r.Amount, r.Category)
}

// Clone returns a deep copy of the record
func (r *TransactionRecord) Clone() *TransactionRecord {
	out := *r
	if r.Category != nil {
		c := *r.Category
		out.Category = &c
	}
	return &out
}

// InputTransaction is the caller-supplied payload for a new ledger entry
type InputTransaction struct {
	Amount   decimal.Decimal
	Category *Category
}

// NewIncome builds an income input for the given amount
func NewIncome(amount decimal.Decimal) InputTransaction {
	return InputTransaction{Amount: amount}
}

// NewExpense builds an expense input. The magnitude is stored as a negative amount.
func NewExpense(magnitude decimal.Decimal, category Category) InputTransaction {
	return InputTransaction{
		Amount:   magnitude.Abs().Neg(),
		Category: &category,
	}
}
