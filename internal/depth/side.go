package depth

import (
	"encoding/json"
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// Kind is the book side a depth mapping belongs to.
type Kind int

const (
	Bid Kind = iota + 1
	Ask
)

// Tick is the price increment between adjacent depth levels.
var Tick = decimal.New(1, -2)

// PricePlaces is the decimal precision of depth prices.
const PricePlaces = 2

// String returns "bid" or "ask".
func (k Kind) String() string {
	switch k {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// better reports whether a ranks ahead of b on this side.
func (k Kind) better(a, b decimal.Decimal) bool {
	if k == Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// next returns the price one tick further from the touch.
func (k Kind) next(p decimal.Decimal) decimal.Decimal {
	if k == Bid {
		return p.Sub(Tick)
	}
	return p.Add(Tick)
}

// Level is one price/volume pair of a depth side.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
}

func lessLevel(a, b Level) bool {
	return a.Price.LessThan(b.Price)
}

// Side is an ordered price→volume mapping. Prices are unique; the best price is the
// highest bid or the lowest ask.
type Side struct {
	kind Kind
	tree *btree.BTreeG[Level]
}

// NewSide creates an empty side.
func NewSide(kind Kind) *Side {
	return &Side{kind: kind, tree: btree.NewG(8, lessLevel)}
}

// Kind returns the book side.
func (s *Side) Kind() Kind {
	return s.kind
}

// Len returns the number of levels.
func (s *Side) Len() int {
	return s.tree.Len()
}

// Set stores volume at price, replacing any existing level at the same price.
func (s *Side) Set(price decimal.Decimal, volume int64) {
	s.tree.ReplaceOrInsert(Level{Price: price.Round(PricePlaces), Volume: volume})
}

// Get returns the volume at price.
func (s *Side) Get(price decimal.Decimal) (int64, bool) {
	l, ok := s.tree.Get(Level{Price: price})
	return l.Volume, ok
}

// Has reports whether price is a key.
func (s *Side) Has(price decimal.Decimal) bool {
	return s.tree.Has(Level{Price: price})
}

// Delete removes the level at price.
func (s *Side) Delete(price decimal.Decimal) {
	s.tree.Delete(Level{Price: price})
}

// Best returns the extremal level: max bid or min ask.
func (s *Side) Best() (Level, bool) {
	if s.kind == Bid {
		return s.tree.Max()
	}
	return s.tree.Min()
}

// Worst returns the level furthest from the touch.
func (s *Side) Worst() (Level, bool) {
	if s.kind == Bid {
		return s.tree.Min()
	}
	return s.tree.Max()
}

// Levels returns all levels ordered best first.
func (s *Side) Levels() []Level {
	out := make([]Level, 0, s.tree.Len())
	collect := func(l Level) bool {
		out = append(out, l)
		return true
	}
	if s.kind == Bid {
		s.tree.Descend(collect)
	} else {
		s.tree.Ascend(collect)
	}
	return out
}

// Clone returns an independent copy.
func (s *Side) Clone() *Side {
	return &Side{kind: s.kind, tree: s.tree.Clone()}
}

// PruneBeyond removes every level that ranks ahead of boundary.
func (s *Side) PruneBeyond(boundary decimal.Decimal) {
	for {
		best, ok := s.Best()
		if !ok || !s.kind.better(best.Price, boundary) {
			return
		}
		s.tree.Delete(best)
	}
}

// Merge copies every level of other into s. Levels of other win on equal prices.
func (s *Side) Merge(other *Side) {
	other.tree.Ascend(func(l Level) bool {
		s.tree.ReplaceOrInsert(l)
		return true
	})
}

// TrimTo drops the worst levels until at most n remain.
func (s *Side) TrimTo(n int) {
	for s.tree.Len() > n {
		w, _ := s.Worst()
		s.tree.Delete(w)
	}
}

// EnsureBoundary makes boundary a key. When it is missing, the worst level is moved to
// boundary keeping its volume, so the size is unchanged.
func (s *Side) EnsureBoundary(boundary decimal.Decimal) {
	if s.Has(boundary) {
		return
	}
	w, ok := s.Worst()
	if !ok {
		return
	}
	s.tree.Delete(w)
	s.Set(boundary, w.Volume)
}

// Equal reports whether both sides hold the same price→volume pairs.
func (s *Side) Equal(other *Side) bool {
	if s.kind != other.kind || s.Len() != other.Len() {
		return false
	}
	a, b := s.Levels(), other.Levels()
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || a[i].Volume != b[i].Volume {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the side as {"price": volume} with prices fixed to two places.
func (s *Side) MarshalJSON() ([]byte, error) {
	m := make(map[string]int64, s.Len())
	s.tree.Ascend(func(l Level) bool {
		m[l.Price.StringFixed(PricePlaces)] = l.Volume
		return true
	})
	return json.Marshal(m)
}

// DecodeSide parses a {"price": volume} mapping.
func DecodeSide(kind Kind, data []byte) (*Side, error) {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s side: %w", kind, err)
	}
	s := NewSide(kind)
	for k, v := range m {
		p, err := decimal.NewFromString(k)
		if err != nil {
			return nil, fmt.Errorf("decode %s price %q: %w", kind, k, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("decode %s volume at %s: negative", kind, k)
		}
		s.Set(p, v)
	}
	return s, nil
}
