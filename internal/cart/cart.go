// Package cart maintains the authoritative in-memory list of items being
// sold. Stock values come from the most recent scan of each product; every
// quantity change is re-checked against them so a line can never exceed what
// the backend last reported as available.
package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/permissions"
)

// ProductLookup is the remote collaborator a scan resolves against. The
// backend client satisfies it.
type ProductLookup interface {
	ProductBySKU(ctx context.Context, sku string) (domain.Product, error)
}

// LineItem is one product within the in-progress sale. Quantity is a positive
// integer for unit-counted goods and a positive real (kilograms) for
// weight-based goods.
type LineItem struct {
	ProductID      int64           `json:"producto_id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"price"`
	PurchaseCost   decimal.Decimal `json:"purchase_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	StockUnit      string          `json:"stock_unit"`
	AvailableStock decimal.Decimal `json:"stock"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(li.Quantity)
}

// Margin is (price − purchase cost) × quantity, a reporting figure never
// shown to the customer.
func (li LineItem) Margin() decimal.Decimal {
	return li.UnitPrice.Sub(li.PurchaseCost).Mul(li.Quantity)
}

type Cart struct {
	lookup ProductLookup
	gate   *permissions.Gate
	items  []LineItem
}

func New(lookup ProductLookup, gate *permissions.Gate) *Cart {
	return &Cart{lookup: lookup, gate: gate}
}

func insufficientStock(item LineItem, requested decimal.Decimal) error {
	return apperr.New(apperr.CodeValidation, fmt.Sprintf("insufficient stock for %s", item.SKU)).
		WithDetails(apperr.StockDetails{
			SKU:       item.SKU,
			Requested: requested.String(),
			Available: item.AvailableStock.String(),
		})
}

// Scan resolves a SKU and folds it into the cart. Unit-counted products merge
// with an existing line (quantity +1, stock-checked); weight-based products
// return an open WeighEntry instead of touching the cart, because each
// weighing event becomes its own line.
func (c *Cart) Scan(ctx context.Context, sku string) (*WeighEntry, error) {
	if err := c.gate.Check(permissions.CanViewProducts); err != nil {
		return nil, err
	}

	product, err := c.lookup.ProductBySKU(ctx, sku)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("product with SKU %q not found", sku))
		}
		return nil, err
	}

	if !product.Stock.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("product %q is out of stock", sku))
	}

	if product.WeightBased() {
		return &WeighEntry{cart: c, product: product, open: true}, nil
	}

	one := decimal.NewFromInt(1)
	for i := range c.items {
		if c.items[i].SKU != product.SKU {
			continue
		}
		// Each scan fetches the product anew, so a restock or a sale on
		// another terminal is reflected before the ceiling check.
		c.items[i].AvailableStock = product.Stock
		next := c.items[i].Quantity.Add(one)
		if next.GreaterThan(c.items[i].AvailableStock) {
			return nil, insufficientStock(c.items[i], next)
		}
		c.items[i].Quantity = next
		return nil, nil
	}

	item := lineFromProduct(product, one)
	if one.GreaterThan(product.Stock) {
		return nil, insufficientStock(item, one)
	}
	c.items = append(c.items, item)
	return nil, nil
}

func lineFromProduct(product domain.Product, quantity decimal.Decimal) LineItem {
	return LineItem{
		ProductID:      product.ID,
		SKU:            product.SKU,
		Name:           product.Name,
		UnitPrice:      product.Price,
		PurchaseCost:   product.PurchasePrice,
		Quantity:       quantity,
		StockUnit:      product.StockUnit,
		AvailableStock: product.Stock,
	}
}

// Increment raises the line's quantity by one, subject to the last known stock.
// The cart is unchanged on rejection.
func (c *Cart) Increment(index int) error {
	if index < 0 || index >= len(c.items) {
		return apperr.New(apperr.CodeValidation, "no such line item")
	}
	next := c.items[index].Quantity.Add(decimal.NewFromInt(1))
	if next.GreaterThan(c.items[index].AvailableStock) {
		return insufficientStock(c.items[index], next)
	}
	c.items[index].Quantity = next
	return nil
}

// Decrement lowers the quantity by one; at one (or below, for weighed lines)
// the line is removed instead of reaching zero.
func (c *Cart) Decrement(index int) error {
	if index < 0 || index >= len(c.items) {
		return apperr.New(apperr.CodeValidation, "no such line item")
	}
	if c.items[index].Quantity.GreaterThan(decimal.NewFromInt(1)) {
		c.items[index].Quantity = c.items[index].Quantity.Sub(decimal.NewFromInt(1))
		return nil
	}
	return c.Remove(index)
}

func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.items) {
		return apperr.New(apperr.CodeValidation, "no such line item")
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return nil
}

func (c *Cart) Clear() {
	c.items = nil
}

// Total is always recomputed from the current items, never stored.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// TotalMargin sums the per-line margins for the post-sale summary.
func (c *Cart) TotalMargin() decimal.Decimal {
	margin := decimal.Zero
	for _, item := range c.items {
		margin = margin.Add(item.Margin())
	}
	return margin
}

func (c *Cart) Len() int {
	return len(c.items)
}

// Items returns a copy; mutations go through the cart's operations.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Restore replaces the cart contents, used when resuming a saved draft.
func (c *Cart) Restore(items []LineItem) {
	c.items = make([]LineItem, len(items))
	copy(c.items, items)
}
