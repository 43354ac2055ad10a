package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the side of an order.
type OrderType string

// OrderSubtype selects the fill-trigger semantics of an order.
type OrderSubtype string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"

	OrderSubtypeMarket OrderSubtype = "market"
	OrderSubtypeLimit  OrderSubtype = "limit"
	OrderSubtypeStop   OrderSubtype = "stop"
)

// Order is a client order. It is created pending, then either executed once by a sweep
// or removed by cancellation. Executed orders are never mutated again.
type Order struct {
	ID          string          `gorm:"primaryKey;size:26" json:"id"`
	AccountID   string          `gorm:"size:26;not null;index" json:"account_id"`
	Type        OrderType       `gorm:"size:4;not null" json:"type"`
	Subtype     OrderSubtype    `gorm:"size:6;not null" json:"subtype"`
	Instrument  string          `gorm:"size:16;not null;index:idx_orders_pending,priority:2" json:"instrument"`
	Price       decimal.Decimal `gorm:"type:text;not null" json:"price"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Timestamp   time.Time       `gorm:"not null" json:"timestamp"`
	Executed    bool            `gorm:"not null;index:idx_orders_pending,priority:1" json:"executed"`
	Fee         decimal.Decimal `gorm:"type:text;not null" json:"fee"`
	CashHistory decimal.Decimal `gorm:"type:text" json:"cash_history"`
}

// IsBuy reports whether the order buys shares.
func (o *Order) IsBuy() bool {
	return o.Type == OrderTypeBuy
}

// IsPending reports whether the order can still be filled or cancelled.
func (o *Order) IsPending() bool {
	return !o.Executed
}

// Notional returns price × quantity.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// State returns "pending" or "executed".
func (o *Order) State() string {
	if o.Executed {
		return "executed"
	}
	return "pending"
}

// Validate checks type/subtype membership, price, quantity and fee.
func (o *Order) Validate() error {
	switch o.Type {
	case OrderTypeBuy, OrderTypeSell:
	default:
		return NewValidationError("type", "must be buy or sell")
	}
	switch o.Subtype {
	case OrderSubtypeMarket, OrderSubtypeLimit, OrderSubtypeStop:
	default:
		return NewValidationError("subtype", "must be market, limit or stop")
	}
	if strings.TrimSpace(o.Instrument) == "" {
		return NewValidationError("instrument", "is required")
	}
	if o.Price.IsNegative() {
		return NewValidationError("price", "must not be negative")
	}
	if o.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	if o.Fee.IsNegative() {
		return NewValidationError("fee", "must not be negative")
	}
	return nil
}

// NormalizeInstrument returns the canonical form of an instrument code.
func NormalizeInstrument(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Fill describes a settled order. It is published after the fill transaction commits.
type Fill struct {
	OrderID    string          `json:"order_id"`
	AccountID  string          `json:"account_id"`
	Instrument string          `json:"instrument"`
	Type       OrderType       `json:"type"`
	Subtype    OrderSubtype    `json:"subtype"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	CashDelta  decimal.Decimal `json:"cash_delta"`
	Cash       decimal.Decimal `json:"cash"`
	ExecutedAt time.Time       `json:"executed_at"`
}
