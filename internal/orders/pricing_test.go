package orders

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/storefront-labs/storefront/internal/domain"
)

func TestOrderTotal(t *testing.T) {
	products := map[int64]domain.Product{
		1: {ID: 1, Name: "Laptop", Price: decimal.RequireFromString("500.00")},
		2: {ID: 2, Name: "Headphones", Price: decimal.RequireFromString("150.00")},
		3: {ID: 3, Name: "Sticker", Price: decimal.RequireFromString("0.335")},
	}

	t.Run("sums price times quantity", func(t *testing.T) {
		items := []domain.LineItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		}

		total := orderTotal(products, items)

		if want := decimal.RequireFromString("1150.00"); !total.Equal(want) {
			t.Errorf("expected total %s, got %s", want, total)
		}
	})

	t.Run("duplicate product ids accumulate", func(t *testing.T) {
		items := []domain.LineItemRequest{
			{ProductID: 2, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		}

		total := orderTotal(products, items)

		if want := decimal.RequireFromString("450.00"); !total.Equal(want) {
			t.Errorf("expected total %s, got %s", want, total)
		}
	})

	t.Run("rounds half cents up", func(t *testing.T) {
		// 3 * 0.335 = 1.005, quantized half away from zero.
		items := []domain.LineItemRequest{
			{ProductID: 3, Quantity: 3},
		}

		total := orderTotal(products, items)

		if want := decimal.RequireFromString("1.01"); !total.Equal(want) {
			t.Errorf("expected total %s, got %s", want, total)
		}
	})

	t.Run("keeps two decimal places exact", func(t *testing.T) {
		items := []domain.LineItemRequest{
			{ProductID: 3, Quantity: 2},
		}

		total := orderTotal(products, items)

		if want := decimal.RequireFromString("0.67"); !total.Equal(want) {
			t.Errorf("expected total %s, got %s", want, total)
		}
	})
}
