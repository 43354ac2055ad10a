package depth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/pkg/keylock"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

// Repository persists depth records by instrument.
type Repository interface {
	// LoadDepth returns nil, nil when the instrument has no record yet.
	LoadDepth(ctx context.Context, instrument string) (*Record, error)
	SaveDepth(ctx context.Context, r *Record) error
}

// Notifier is called with a copy of every stored record.
type Notifier func(r *Record, created bool)

// Service serves depth requests. Requests for the same instrument are serialized; different
// instruments proceed in parallel.
type Service struct {
	repo   Repository
	params Params
	cache  *lru.Cache[string, *Record]
	locks  *keylock.Locker
	logger *slog.Logger
	notify Notifier
	now    func() time.Time

	seedMu sync.Mutex
	seeds  *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithSeed makes generation deterministic for a given request sequence.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seeds = rand.New(rand.NewSource(seed)) }
}

// WithCacheSize keeps up to n records in memory. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n <= 0 {
			s.cache = nil
			return
		}
		c, err := lru.New[string, *Record](n)
		if err == nil {
			s.cache = c
		}
	}
}

// WithNotifier registers fn for stored records.
func WithNotifier(fn Notifier) Option {
	return func(s *Service) { s.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a depth service.
func NewService(repo Repository, params Params, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		params: params,
		locks:  keylock.New(),
		logger: slog.Default(),
		now:    time.Now,
		seeds:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	WithCacheSize(256)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateDepth returns the depth record of instrument after moving it to the given touch
// prices. The first request for an instrument generates the record.
func (s *Service) GetOrCreateDepth(ctx context.Context, instrument string, maxBid, minAsk, avgVolume decimal.Decimal) (*Record, error) {
	instrument = domain.NormalizeInstrument(instrument)
	if err := validateRequest(instrument, maxBid, minAsk, avgVolume, s.params.Levels); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(instrument)
	defer unlock()

	current, err := s.load(ctx, instrument)
	if err != nil {
		return nil, err
	}

	model := NewModel(NewGenerator(s.nextRand(), s.params))
	var rec *Record
	created := current == nil
	if created {
		rec = model.New(instrument, maxBid, minAsk, avgVolume)
	} else {
		rec = current.Clone()
		model.Update(rec, maxBid, minAsk, avgVolume)
	}
	rec.UpdatedAt = s.now().UTC()

	if err := s.repo.SaveDepth(ctx, rec); err != nil {
		return nil, fmt.Errorf("save depth %s: %w", instrument, err)
	}
	if s.cache != nil {
		s.cache.Add(instrument, rec)
	}

	s.logger.Debug("depth updated",
		slog.String("instrument", instrument),
		slog.Bool("created", created),
		slog.String("max_bid", rec.MaxBid.StringFixed(PricePlaces)),
		slog.String("min_ask", rec.MinAsk.StringFixed(PricePlaces)),
	)
	if s.notify != nil {
		s.notify(rec.Clone(), created)
	}
	return rec.Clone(), nil
}

// GetDepth returns the stored record of instrument without changing it. Cloning a cached
// record touches its trees, so reads take the instrument lock as well.
func (s *Service) GetDepth(ctx context.Context, instrument string) (*Record, error) {
	instrument = domain.NormalizeInstrument(instrument)

	unlock := s.locks.Lock(instrument)
	defer unlock()

	rec, err := s.load(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &domain.ReferenceError{Kind: "depth", Ref: instrument}
	}
	return rec.Clone(), nil
}

func (s *Service) load(ctx context.Context, instrument string) (*Record, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(instrument); ok {
			return rec, nil
		}
	}
	rec, err := s.repo.LoadDepth(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("load depth %s: %w", instrument, err)
	}
	if rec != nil && s.cache != nil {
		s.cache.Add(instrument, rec)
	}
	return rec, nil
}

// nextRand derives an independent generator for one request.
func (s *Service) nextRand() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return rand.New(rand.NewSource(s.seeds.Int63()))
}

// validateRequest rejects bids too close to zero to hold levels distinct ticks.
func validateRequest(instrument string, maxBid, minAsk, avgVolume decimal.Decimal, levels int) error {
	if instrument == "" {
		return domain.NewValidationError("instrument", "must not be empty")
	}
	minBid := Tick.Mul(decimal.NewFromInt(int64(max(levels, 1))))
	if maxBid.Round(PricePlaces).LessThan(minBid) {
		return domain.NewValidationError("max_bid", "must be at least "+minBid.StringFixed(PricePlaces))
	}
	if !minAsk.Round(PricePlaces).IsPositive() {
		return domain.NewValidationError("min_ask", "must be at least "+Tick.String())
	}
	if !avgVolume.IsPositive() {
		return domain.NewValidationError("avg_volume", "must be positive")
	}
	return nil
}
