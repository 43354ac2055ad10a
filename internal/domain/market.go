package domain

import "github.com/shopspring/decimal"

// Quote is the market snapshot of one instrument.
type Quote struct {
	Instrument string          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
}

// Spread returns ask - bid
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}
