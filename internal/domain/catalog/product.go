package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("catalog: product not found")
	ErrNameRequired     = errors.New("catalog: product name is required")
	ErrInvalidPrice     = errors.New("catalog: price must not be negative")
	ErrInvalidQuantity  = errors.New("catalog: quantity must not be negative")
	ErrCurrencyRequired = errors.New("catalog: price currency is required")
)

// DefaultCurrency is applied when a product is created without an explicit
// currency code.
const DefaultCurrency = "EUR"

type Product struct {
	ID              int64
	Name            string
	Description     string
	PriceAmount     decimal.Decimal
	PriceCurrency   string
	CurrentQuantity int
	CreatedAt       time.Time
}

func NewProduct(name, description string, price decimal.Decimal, currency string, initialQuantity int) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if initialQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, ErrCurrencyRequired
	}

	return &Product{
		Name:            name,
		Description:     description,
		PriceAmount:     price,
		PriceCurrency:   currency,
		CurrentQuantity: initialQuantity,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
