package depth

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// Params tunes synthetic depth generation.
type Params struct {
	Levels          int     // levels per side
	InitialSkipProb float64 // chance of skipping a candidate price
	SkipProbStep    float64 // added per acceptance past the midpoint
	MaxSkipProb     float64 // cap that keeps the walk terminating
}

// DefaultParams returns the standard 10-level configuration.
func DefaultParams() Params {
	return Params{
		Levels:          10,
		InitialSkipProb: 0.20,
		SkipProbStep:    0.02,
		MaxSkipProb:     0.95,
	}
}

// lowPriceThreshold separates the two mean-volume regimes.
var lowPriceThreshold = decimal.NewFromInt(30)

// trialsPerLevel bounds the candidate prices examined per requested level. Past the
// budget every candidate is accepted.
const trialsPerLevel = 200

// Generator draws depth levels from an injected random source. It is not safe for
// concurrent use; create one per request.
type Generator struct {
	rng    *rand.Rand
	params Params
}

// NewGenerator creates a generator over rng.
func NewGenerator(rng *rand.Rand, params Params) *Generator {
	return &Generator{rng: rng, params: params}
}

// Params returns the generator configuration.
func (g *Generator) Params() Params {
	return g.params
}

// Generate walks away from boundary one tick at a time and returns exactly count levels.
// The boundary itself is always a level. A bid side never goes below one tick, so it holds
// fewer than count levels only when boundary < count ticks.
func (g *Generator) Generate(kind Kind, boundary, avgVolume decimal.Decimal, count int) *Side {
	side := NewSide(kind)
	boundary = boundary.Round(PricePlaces)
	g.extend(side, boundary, boundary, count, MeanVolume(boundary, avgVolume))
	return side
}

// MeanVolume returns the per-level mean volume: 0.01% of average volume, or 0.1% for
// instruments priced under 30.
func MeanVolume(boundary, avgVolume decimal.Decimal) float64 {
	ratio := 0.0001
	if boundary.LessThan(lowPriceThreshold) {
		ratio = 0.001
	}
	avg, _ := avgVolume.Float64()
	return avg * ratio
}

// extend adds levels walking outward from start until side holds target levels.
// start is always accepted; later candidates survive a skip trial.
func (g *Generator) extend(side *Side, boundary, start decimal.Decimal, target int, mean float64) {
	added := 0
	want := target - side.Len()
	if want <= 0 {
		return
	}
	p := g.params.InitialSkipProb
	budget := target * trialsPerLevel

	price := start
	for trial := 0; side.Len() < target; trial++ {
		if side.kind == Bid && price.LessThan(Tick) {
			g.fillGaps(side, boundary, target, mean)
			return
		}
		if side.Has(price) {
			price = side.kind.next(price)
			continue
		}

		draw := g.rng.Float64()
		if trial == 0 || draw > p || trial >= budget {
			side.Set(price, g.volume(mean))
			if added > want/2 {
				p = math.Min(p+g.params.SkipProbStep, g.params.MaxSkipProb)
			}
			added++
		}
		price = side.kind.next(price)
	}
}

// fillGaps fills unused bid ticks between boundary and the floor.
func (g *Generator) fillGaps(side *Side, boundary decimal.Decimal, target int, mean float64) {
	for price := boundary; side.Len() < target && !price.LessThan(Tick); price = price.Sub(Tick) {
		if !side.Has(price) {
			side.Set(price, g.volume(mean))
		}
	}
}

// volume draws |N(mean, 4·mean)| rounded to a whole unit.
func (g *Generator) volume(mean float64) int64 {
	v := g.rng.NormFloat64()*4*mean + mean
	return int64(math.Round(math.Abs(v)))
}
