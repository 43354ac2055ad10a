package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a player's cash ledger. Orders reference it by AccountID; the list of
// owned orders is read from the order store in creation order.
type Account struct {
	ID        string          `gorm:"primaryKey;size:26" json:"id"`
	Email     string          `gorm:"size:254;not null;uniqueIndex" json:"email"`
	Nickname  string          `gorm:"size:64" json:"nickname"`
	Cash      decimal.Decimal `gorm:"type:text;not null" json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanAfford reports whether cash covers amount.
func (a *Account) CanAfford(amount decimal.Decimal) bool {
	return a.Cash.GreaterThanOrEqual(amount)
}

// Credit adds funds. Use a negative amount to debit.
func (a *Account) Credit(amount decimal.Decimal) {
	a.Cash = a.Cash.Add(amount)
}

// Reserve charges the brokerage fee and, for a pending buy, holds the full notional.
// The hold is corrected when the order fills.
func (a *Account) Reserve(o *Order) {
	a.Cash = a.Cash.Sub(o.Fee)
	if o.IsBuy() && o.IsPending() {
		a.Cash = a.Cash.Sub(o.Notional())
	}
}

// Refund returns the notional hold of a cancelled pending buy. The fee is kept.
func (a *Account) Refund(o *Order) {
	if o.IsBuy() && o.IsPending() {
		a.Cash = a.Cash.Add(o.Notional())
	}
}

// ApplyFill adjusts cash by quantity × unitDelta and stamps the result into the order.
func (a *Account) ApplyFill(o *Order, unitDelta decimal.Decimal) {
	a.Cash = a.Cash.Add(unitDelta.Mul(decimal.NewFromInt(o.Quantity)))
	o.CashHistory = a.Cash
}
