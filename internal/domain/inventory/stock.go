package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: stock entry not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

type Stock struct {
	ProductID int64
	Quantity  int
	UpdatedAt time.Time
}

func NewStock(productID int64, quantity int) (*Stock, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Stock{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
