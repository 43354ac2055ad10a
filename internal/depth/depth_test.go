package depth

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestModel(seed int64) *Model {
	return NewModel(NewGenerator(rand.New(rand.NewSource(seed)), DefaultParams()))
}

func assertSideShape(t *testing.T, s *Side, boundary decimal.Decimal, count int) {
	t.Helper()
	require.Equal(t, count, s.Len())
	assert.True(t, s.Has(boundary), "boundary %s missing", boundary)

	best, ok := s.Best()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(boundary), "best %s != boundary %s", best.Price, boundary)

	for _, l := range s.Levels() {
		assert.GreaterOrEqual(t, l.Volume, int64(0))
		assert.True(t, l.Price.Equal(l.Price.Round(PricePlaces)), "price %s not rounded", l.Price)
		if s.Kind() == Bid {
			assert.True(t, l.Price.LessThanOrEqual(boundary), "bid %s above %s", l.Price, boundary)
		} else {
			assert.True(t, l.Price.GreaterThanOrEqual(boundary), "ask %s below %s", l.Price, boundary)
		}
	}
}

func TestGenerate_Properties(t *testing.T) {
	boundaries := []string{"0.50", "9.99", "10.00", "29.99", "30.00", "153.27"}
	volumes := []string{"1", "1000", "2500000"}

	for seed := int64(1); seed <= 20; seed++ {
		gen := NewGenerator(rand.New(rand.NewSource(seed)), DefaultParams())
		for _, b := range boundaries {
			for _, v := range volumes {
				assertSideShape(t, gen.Generate(Bid, d(b), d(v), 10), d(b), 10)
				assertSideShape(t, gen.Generate(Ask, d(b), d(v), 10), d(b), 10)
			}
		}
	}
}

func TestGenerate_BidTenLevels(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(42)), DefaultParams())
	bids := gen.Generate(Bid, d("10.00"), d("1000"), 10)

	require.Equal(t, 10, bids.Len())
	for _, l := range bids.Levels() {
		assert.True(t, l.Price.LessThanOrEqual(d("10.00")))
	}

	levels := bids.Levels()
	for i := 1; i < len(levels); i++ {
		assert.True(t, levels[i].Price.LessThan(levels[i-1].Price), "bids must strictly decrease")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := NewGenerator(rand.New(rand.NewSource(7)), DefaultParams()).Generate(Ask, d("12.34"), d("50000"), 10)
	b := NewGenerator(rand.New(rand.NewSource(7)), DefaultParams()).Generate(Ask, d("12.34"), d("50000"), 10)
	assert.True(t, a.Equal(b))
}

func TestGenerate_BidFloor(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(3)), DefaultParams())
	bids := gen.Generate(Bid, d("0.05"), d("1000"), 10)

	// Only 0.05 down to 0.01 exist.
	assert.Equal(t, 5, bids.Len())
	for _, p := range []string{"0.05", "0.04", "0.03", "0.02", "0.01"} {
		assert.True(t, bids.Has(d(p)), "missing %s", p)
	}
}

func TestGenerate_TerminatesWithSaturatedSkipProbability(t *testing.T) {
	params := Params{Levels: 10, InitialSkipProb: 0.99, SkipProbStep: 0.5, MaxSkipProb: 0.999}
	gen := NewGenerator(rand.New(rand.NewSource(11)), params)

	asks := gen.Generate(Ask, d("5.00"), d("1000"), 10)
	assertSideShape(t, asks, d("5.00"), 10)
}

func TestMeanVolume(t *testing.T) {
	assert.InDelta(t, 1.0, MeanVolume(d("29.99"), d("1000")), 1e-9)
	assert.InDelta(t, 0.1, MeanVolume(d("30.00"), d("1000")), 1e-9)
}

func TestUpdate_InternalMove(t *testing.T) {
	m := newTestModel(1)
	rec := m.New("BHP", d("9.50"), d("9.60"), d("100000"))
	before := rec.Bids.Clone()

	m.Update(rec, d("9.30"), d("9.60"), d("100000"))

	assert.True(t, rec.MaxBid.Equal(d("9.30")))
	assertSideShape(t, rec.Bids, d("9.30"), 10)

	for _, l := range before.Levels() {
		if l.Price.GreaterThan(d("9.30")) {
			assert.False(t, rec.Bids.Has(l.Price), "level %s beyond boundary kept", l.Price)
			continue
		}
		v, ok := rec.Bids.Get(l.Price)
		require.True(t, ok, "retained level %s dropped", l.Price)
		assert.Equal(t, l.Volume, v, "retained level %s changed volume", l.Price)
	}
}

func TestUpdate_InternalMoveAsk(t *testing.T) {
	m := newTestModel(2)
	rec := m.New("BHP", d("9.50"), d("9.60"), d("100000"))

	m.Update(rec, d("9.50"), d("9.75"), d("100000"))

	assert.True(t, rec.MinAsk.Equal(d("9.75")))
	assertSideShape(t, rec.Asks, d("9.75"), 10)
}

func TestUpdate_ExternalMove(t *testing.T) {
	m := newTestModel(3)
	rec := m.New("BHP", d("9.50"), d("9.60"), d("100000"))

	m.Update(rec, d("9.80"), d("9.90"), d("100000"))

	assert.True(t, rec.MaxBid.Equal(d("9.80")))
	assert.True(t, rec.MinAsk.Equal(d("9.90")))
	assertSideShape(t, rec.Bids, d("9.80"), 10)
	assertSideShape(t, rec.Asks, d("9.90"), 10)
}

func TestUpdate_ExternalMoveAsk(t *testing.T) {
	m := newTestModel(4)
	rec := m.New("BHP", d("9.50"), d("9.60"), d("100000"))

	m.Update(rec, d("9.50"), d("9.52"), d("100000"))

	assert.True(t, rec.MinAsk.Equal(d("9.52")))
	assertSideShape(t, rec.Asks, d("9.52"), 10)
}

func TestUpdate_NoOp(t *testing.T) {
	m := newTestModel(5)
	rec := m.New("BHP", d("9.50"), d("9.60"), d("100000"))
	bids, asks := rec.Bids.Clone(), rec.Asks.Clone()

	m.Update(rec, d("9.50"), d("9.60"), d("100000"))

	assert.True(t, rec.Bids.Equal(bids))
	assert.True(t, rec.Asks.Equal(asks))
}

func TestUpdate_RepeatedMovesKeepShape(t *testing.T) {
	m := newTestModel(6)
	rng := rand.New(rand.NewSource(99))
	rec := m.New("CBA", d("100.00"), d("100.05"), d("2000000"))

	for i := 0; i < 200; i++ {
		bid := d("100.00").Add(decimal.New(int64(rng.Intn(200)-100), -2))
		ask := bid.Add(decimal.New(int64(rng.Intn(20)+1), -2))
		m.Update(rec, bid, ask, d("2000000"))

		assertSideShape(t, rec.Bids, bid, 10)
		assertSideShape(t, rec.Asks, ask, 10)
	}
}

func TestSide_EnsureBoundaryCarriesWorstVolume(t *testing.T) {
	s := NewSide(Bid)
	s.Set(d("9.00"), 5)
	s.Set(d("8.90"), 7)
	s.Set(d("8.50"), 11)

	s.EnsureBoundary(d("9.10"))

	assert.Equal(t, 3, s.Len())
	v, ok := s.Get(d("9.10"))
	require.True(t, ok)
	assert.Equal(t, int64(11), v)
	assert.False(t, s.Has(d("8.50")))
}

func TestSide_MergePrefersIncoming(t *testing.T) {
	s := NewSide(Ask)
	s.Set(d("1.00"), 1)
	s.Set(d("1.01"), 2)

	other := NewSide(Ask)
	other.Set(d("1.01"), 20)
	other.Set(d("0.99"), 30)

	s.Merge(other)
	v, _ := s.Get(d("1.01"))
	assert.Equal(t, int64(20), v)

	s.TrimTo(2)

	levels := s.Levels()
	require.Len(t, levels, 2)
	assert.True(t, levels[0].Price.Equal(d("0.99")))
	assert.Equal(t, int64(30), levels[0].Volume)
	assert.True(t, levels[1].Price.Equal(d("1.00")))
	assert.Equal(t, int64(1), levels[1].Volume)
}

func TestRecord_JSON(t *testing.T) {
	rec := newTestModel(8).New("NAB", d("25.10"), d("25.12"), d("40000"))

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "NAB", decoded.Instrument)
	assert.True(t, decoded.MaxBid.Equal(rec.MaxBid))
	assert.True(t, decoded.Bids.Equal(rec.Bids))
	assert.True(t, decoded.Asks.Equal(rec.Asks))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, string(raw["bids"]), `"25.10":`)
}

func TestDecodeSide_RejectsNegativeVolume(t *testing.T) {
	_, err := DecodeSide(Bid, []byte(`{"1.00": -1}`))
	assert.Error(t, err)
}
