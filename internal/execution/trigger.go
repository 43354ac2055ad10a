package execution

import "stock_sim/internal/domain"

// Triggered reports whether the price condition of o holds for q, ignoring cash.
// Market orders are always triggered; a market buy may still be deferred by Decide.
func Triggered(o *domain.Order, q domain.Quote) bool {
	switch o.Subtype {
	case domain.OrderSubtypeMarket:
		return true
	case domain.OrderSubtypeLimit:
		if o.IsBuy() {
			return o.Price.GreaterThanOrEqual(q.Ask)
		}
		return o.Price.LessThanOrEqual(q.Bid)
	case domain.OrderSubtypeStop:
		if o.IsBuy() {
			return q.Last.GreaterThanOrEqual(o.Price)
		}
		return q.Last.LessThanOrEqual(o.Price)
	}
	return false
}
