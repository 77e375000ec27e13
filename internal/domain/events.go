package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderPlacedEvent struct {
	OrderID    string          `json:"order_id"`
	BuyerID    string          `json:"buyer_id"`
	BuyerEmail string          `json:"buyer_email,omitempty"`
	Items      []OrderItem     `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Timestamp  time.Time       `json:"timestamp"`
}

const EventOrderPlaced = "order.placed"

func (OrderPlacedEvent) EventType() string { return EventOrderPlaced }
