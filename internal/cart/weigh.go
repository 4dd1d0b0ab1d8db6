package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
)

// WeighEntry is the open weight-entry sub-flow for a scanned weight-based
// product. It stays open across rejected inputs and closes only on a
// successful submit or an explicit cancel.
type WeighEntry struct {
	cart    *Cart
	product domain.Product
	open    bool
}

func (w *WeighEntry) Product() domain.Product {
	return w.product
}

func (w *WeighEntry) Open() bool {
	return w != nil && w.open
}

// Submit converts a grams input into a fractional kilogram quantity and
// appends it as a new line. Weighed lines are never merged: scanning the same
// product twice produces two lines, one per weighing event.
func (w *WeighEntry) Submit(gramsInput string) error {
	if !w.Open() {
		return apperr.New(apperr.CodeValidation, "weight entry is closed")
	}

	grams, err := decimal.NewFromString(strings.TrimSpace(gramsInput))
	if err != nil || !grams.IsPositive() {
		return apperr.New(apperr.CodeValidation, "invalid weight, enter a number greater than 0")
	}

	quantityKg := grams.Div(decimal.NewFromInt(1000))
	if quantityKg.GreaterThan(w.product.Stock) {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("insufficient stock for %s", w.product.SKU)).
			WithDetails(apperr.StockDetails{
				SKU:       w.product.SKU,
				Requested: quantityKg.String(),
				Available: w.product.Stock.String(),
			})
	}

	w.cart.items = append(w.cart.items, lineFromProduct(w.product, quantityKg))
	w.open = false
	return nil
}

func (w *WeighEntry) Cancel() {
	if w != nil {
		w.open = false
	}
}
