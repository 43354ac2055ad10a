package depth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the synthetic order book of one instrument.
type Record struct {
	Instrument string
	Bids       *Side
	Asks       *Side
	MaxBid     decimal.Decimal
	MinAsk     decimal.Decimal
	UpdatedAt  time.Time
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Bids = r.Bids.Clone()
	c.Asks = r.Asks.Clone()
	return &c
}

type recordJSON struct {
	Instrument string          `json:"instrument"`
	Bids       json.RawMessage `json:"bids"`
	Asks       json.RawMessage `json:"asks"`
	MaxBid     decimal.Decimal `json:"max_bid"`
	MinAsk     decimal.Decimal `json:"min_ask"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// MarshalJSON encodes {instrument, bids, asks, max_bid, min_ask, updated_at}.
func (r *Record) MarshalJSON() ([]byte, error) {
	bids, err := r.Bids.MarshalJSON()
	if err != nil {
		return nil, err
	}
	asks, err := r.Asks.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		Instrument: r.Instrument,
		Bids:       bids,
		Asks:       asks,
		MaxBid:     r.MaxBid,
		MinAsk:     r.MinAsk,
		UpdatedAt:  r.UpdatedAt,
	})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode depth record: %w", err)
	}
	bids, err := DecodeSide(Bid, raw.Bids)
	if err != nil {
		return err
	}
	asks, err := DecodeSide(Ask, raw.Asks)
	if err != nil {
		return err
	}
	*r = Record{
		Instrument: raw.Instrument,
		Bids:       bids,
		Asks:       asks,
		MaxBid:     raw.MaxBid,
		MinAsk:     raw.MinAsk,
		UpdatedAt:  raw.UpdatedAt,
	}
	return nil
}

// Model creates and reconciles depth records.
type Model struct {
	gen *Generator
}

// NewModel creates a model drawing from gen.
func NewModel(gen *Generator) *Model {
	return &Model{gen: gen}
}

// New generates a fresh record around the given touch prices.
func (m *Model) New(instrument string, maxBid, minAsk, avgVolume decimal.Decimal) *Record {
	levels := m.gen.params.Levels
	maxBid = maxBid.Round(PricePlaces)
	minAsk = minAsk.Round(PricePlaces)
	return &Record{
		Instrument: instrument,
		Bids:       m.gen.Generate(Bid, maxBid, avgVolume, levels),
		Asks:       m.gen.Generate(Ask, minAsk, avgVolume, levels),
		MaxBid:     maxBid,
		MinAsk:     minAsk,
	}
}

// Update moves r to the new touch prices, side by side.
func (m *Model) Update(r *Record, newBid, newAsk, avgVolume decimal.Decimal) {
	newBid = newBid.Round(PricePlaces)
	newAsk = newAsk.Round(PricePlaces)

	r.Bids = m.reconcile(r.Bids, r.MaxBid, newBid, avgVolume)
	r.Asks = m.reconcile(r.Asks, r.MinAsk, newAsk, avgVolume)
	r.MaxBid = newBid
	r.MinAsk = newAsk
}

// reconcile returns a copy of side moved from the current boundary to boundary.
//
// An unchanged boundary keeps the side. A tightening (internal) move drops levels past
// the new boundary and backfills outward from the worst survivor. A loosening (external)
// move merges a fresh batch from the new boundary and keeps the best levels.
func (m *Model) reconcile(side *Side, current, boundary, avgVolume decimal.Decimal) *Side {
	levels := m.gen.params.Levels
	mean := MeanVolume(boundary, avgVolume)
	out := side.Clone()

	switch {
	case boundary.Equal(current):
	case side.kind.better(current, boundary):
		out.PruneBeyond(boundary)
		start := boundary
		if w, ok := out.Worst(); ok {
			start = side.kind.next(w.Price)
		}
		m.gen.extend(out, boundary, start, levels, mean)
	default:
		out.Merge(m.gen.Generate(side.kind, boundary, avgVolume, levels))
		out.TrimTo(levels)
	}

	if out.Len() < levels {
		start := boundary
		if w, ok := out.Worst(); ok {
			start = side.kind.next(w.Price)
		}
		m.gen.extend(out, boundary, start, levels, mean)
	}
	out.TrimTo(levels)
	out.EnsureBoundary(boundary)
	return out
}
