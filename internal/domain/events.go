package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlacedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderPlacedEvent struct {
	EventID    string          `json:"event_id"`
	OrderID    int64           `json:"order_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []PlacedItem    `json:"items"`
	Timestamp  time.Time       `json:"timestamp"`
}
