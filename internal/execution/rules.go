// Package execution holds the fill rules of pending orders against a market snapshot.
package execution

import (
	"stock_sim/internal/domain"

	"github.com/shopspring/decimal"
)

// Outcome is the result of evaluating one order against one quote.
type Outcome int

const (
	// Hold leaves the order pending; its trigger condition is not met.
	Hold Outcome = iota
	// Fill executes the order.
	Fill
	// Defer leaves a market buy pending because filling it would overdraw the account.
	Defer
)

func (o Outcome) String() string {
	switch o {
	case Fill:
		return "fill"
	case Defer:
		return "defer"
	default:
		return "hold"
	}
}

// Decision describes how an order settles.
type Decision struct {
	Outcome Outcome
	// Price is the execution price.
	Price decimal.Decimal
	// UnitDelta is the cash change per share. Buys were reserved at their order price,
	// so a buy's delta is the reservation minus the fill price.
	UnitDelta decimal.Decimal
}

// Filled reports whether the decision executes the order.
func (d Decision) Filled() bool {
	return d.Outcome == Fill
}

// CashDelta returns quantity × UnitDelta.
func (d Decision) CashDelta(o *domain.Order) decimal.Decimal {
	return d.UnitDelta.Mul(decimal.NewFromInt(o.Quantity))
}

// Decide evaluates o against q. cash is the account balance used for the market buy
// overdraft check.
//
//	market buy   cash + qty×(price−ask) ≥ 0   at ask          +qty×(price−ask)
//	market sell  always                       at bid          +qty×bid
//	limit buy    price ≥ ask                  at ask          +qty×(price−ask)
//	limit sell   price ≤ bid                  at bid          +qty×bid
//	stop buy     last ≥ price                 at order price  none
//	stop sell    last ≤ price                 at order price  +qty×price
func Decide(o *domain.Order, q domain.Quote, cash decimal.Decimal) Decision {
	switch o.Subtype {
	case domain.OrderSubtypeMarket:
		if o.IsBuy() {
			delta := o.Price.Sub(q.Ask)
			if cash.Add(delta.Mul(decimal.NewFromInt(o.Quantity))).IsNegative() {
				return Decision{Outcome: Defer}
			}
			return Decision{Outcome: Fill, Price: q.Ask, UnitDelta: delta}
		}
		return Decision{Outcome: Fill, Price: q.Bid, UnitDelta: q.Bid}

	case domain.OrderSubtypeLimit:
		if o.IsBuy() {
			if o.Price.GreaterThanOrEqual(q.Ask) {
				return Decision{Outcome: Fill, Price: q.Ask, UnitDelta: o.Price.Sub(q.Ask)}
			}
			return Decision{Outcome: Hold}
		}
		if o.Price.LessThanOrEqual(q.Bid) {
			return Decision{Outcome: Fill, Price: q.Bid, UnitDelta: q.Bid}
		}
		return Decision{Outcome: Hold}

	case domain.OrderSubtypeStop:
		if o.IsBuy() {
			if q.Last.GreaterThanOrEqual(o.Price) {
				return Decision{Outcome: Fill, Price: o.Price, UnitDelta: decimal.Zero}
			}
			return Decision{Outcome: Hold}
		}
		if q.Last.LessThanOrEqual(o.Price) {
			return Decision{Outcome: Fill, Price: o.Price, UnitDelta: o.Price}
		}
		return Decision{Outcome: Hold}
	}
	return Decision{Outcome: Hold}
}
