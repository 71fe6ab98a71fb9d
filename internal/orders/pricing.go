package orders

import (
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/storefront/internal/domain"
)

// orderTotal computes sum(price * quantity) over the line items in exact
// decimal arithmetic and quantizes the result to 2 decimal places, rounding
// half away from zero (exact half cents round up).
func orderTotal(products map[int64]domain.Product, items []domain.LineItemRequest) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		price := products[item.ProductID].Price
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
