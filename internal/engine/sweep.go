package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"stock_sim/internal/domain"
	"stock_sim/internal/execution"
	"stock_sim/pkg/keylock"
)

// Recorder receives engine counters.
type Recorder interface {
	RecordSweep(elapsed time.Duration)
	RecordFill(subtype domain.OrderSubtype, typ domain.OrderType)
	RecordDeferral()
	RecordGatewayFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(time.Duration)                         {}
func (nopRecorder) RecordFill(domain.OrderSubtype, domain.OrderType) {}
func (nopRecorder) RecordDeferral()                                   {}
func (nopRecorder) RecordGatewayFailure()                             {}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Instruments int           `json:"instruments"`
	Evaluated   int           `json:"evaluated"`
	Filled      int           `json:"filled"`
	Deferred    int           `json:"deferred"`
	Failed      int           `json:"failed"`
	Fills       []domain.Fill `json:"fills"`
}

// Engine matches pending orders against a market snapshot and settles fills.
type Engine struct {
	store     domain.Store
	gateway   domain.MarketDataGateway
	publisher domain.FillPublisher
	window    *TradingWindow
	locks     *keylock.Locker
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher receives every committed fill.
func WithPublisher(p domain.FillPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithTradingWindow restricts unforced sweeps to w.
func WithTradingWindow(w *TradingWindow) Option {
	return func(e *Engine) { e.window = w }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over store and gateway.
func NewEngine(store domain.Store, gateway domain.MarketDataGateway, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		gateway: gateway,
		locks:   keylock.New(),
		metrics: nopRecorder{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunSweep performs one tick. Outside the trading window it returns ErrMarketClosed unless
// force is set. A gateway failure aborts the tick before any order is touched.
func (e *Engine) RunSweep(ctx context.Context, force bool) (*SweepReport, error) {
	started := e.now()
	if !force && e.window != nil && !e.window.IsOpen(started) {
		return nil, domain.ErrMarketClosed
	}

	codes, err := e.store.DistinctInstrumentsWithPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	sort.Strings(codes)

	report := &SweepReport{StartedAt: started.UTC(), Instruments: len(codes)}
	if len(codes) == 0 {
		e.finish(report, started)
		return report, nil
	}

	quotes, err := e.gateway.Quote(ctx, codes)
	if err != nil {
		e.metrics.RecordGatewayFailure()
		e.logger.Warn("Sweep aborted by market data failure",
			slog.Int("instruments", len(codes)),
			slog.Any("error", err),
		)
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = &domain.GatewayError{Op: "quote", Err: err}
		}
		return nil, err
	}

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		q, ok := quotes[code]
		if !ok {
			e.logger.Warn("No quote for instrument", slog.String("instrument", code))
			continue
		}
		e.sweepInstrument(ctx, code, q, report)
	}

	e.finish(report, started)
	return report, nil
}

func (e *Engine) finish(report *SweepReport, started time.Time) {
	report.Duration = e.now().Sub(started)
	e.metrics.RecordSweep(report.Duration)
	e.logger.Info("Sweep completed",
		slog.Int("instruments", report.Instruments),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("filled", report.Filled),
		slog.Int("deferred", report.Deferred),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)
}

// sweepInstrument evaluates the pending orders of one instrument. Instruments are locked so
// overlapping sweeps take turns.
func (e *Engine) sweepInstrument(ctx context.Context, code string, q domain.Quote, report *SweepReport) {
	unlock := e.locks.Lock(code)
	defer unlock()

	pending, err := e.store.PendingForInstrument(ctx, code)
	if err != nil {
		report.Failed++
		e.logger.Error("Failed to load pending orders",
			slog.String("instrument", code),
			slog.Any("error", err),
		)
		return
	}

	for _, o := range pending {
		report.Evaluated++
		if !execution.Triggered(o, q) {
			continue
		}

		fill, outcome, err := e.settle(ctx, o, q)
		switch {
		case errors.Is(err, domain.ErrOrderNotPending):
			e.logger.Debug("Order settled elsewhere", slog.String("order_id", o.ID))
		case err != nil:
			report.Failed++
			e.logger.Error("Fill failed",
				slog.String("order_id", o.ID),
				slog.String("instrument", code),
				slog.Any("error", err),
			)
		case outcome == execution.Defer:
			report.Deferred++
			e.metrics.RecordDeferral()
			e.logger.Debug("Market buy deferred",
				slog.String("order_id", o.ID),
				slog.String("ask", q.Ask.String()),
				slog.String("spread", q.Spread().String()),
			)
		case outcome == execution.Fill:
			report.Filled++
			report.Fills = append(report.Fills, *fill)
			e.metrics.RecordFill(fill.Subtype, fill.Type)
			e.logger.Debug("Order filled",
				slog.String("order_id", fill.OrderID),
				slog.String("instrument", code),
				slog.String("price", fill.Price.String()),
				slog.String("cash_delta", fill.CashDelta.String()),
			)
			e.publish(ctx, *fill)
		}
	}
}

// settle decides and applies one order in its own transaction. The account is re-read
// inside the transaction so the market buy overdraft check sees committed cash.
func (e *Engine) settle(ctx context.Context, o *domain.Order, q domain.Quote) (*domain.Fill, execution.Outcome, error) {
	var (
		fill    *domain.Fill
		outcome execution.Outcome
	)
	err := e.store.Atomic(ctx, func(tx domain.Store) error {
		acc, err := tx.GetAccount(ctx, o.AccountID)
		if err != nil {
			return err
		}

		dec := execution.Decide(o, q, acc.Cash)
		outcome = dec.Outcome
		if !dec.Filled() {
			return nil
		}

		filled := *o
		filled.Price = dec.Price
		filled.Timestamp = e.now().UTC()
		if err := tx.MarkExecuted(ctx, &filled); err != nil {
			return err
		}
		if err := tx.ApplyFill(ctx, acc, &filled, dec.UnitDelta); err != nil {
			return err
		}

		fill = &domain.Fill{
			OrderID:    filled.ID,
			AccountID:  filled.AccountID,
			Instrument: filled.Instrument,
			Type:       filled.Type,
			Subtype:    filled.Subtype,
			Quantity:   filled.Quantity,
			Price:      filled.Price,
			CashDelta:  dec.CashDelta(&filled),
			Cash:       acc.Cash,
			ExecutedAt: filled.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, execution.Hold, err
	}
	return fill, outcome, nil
}

// publish is best effort; the fill is already committed.
func (e *Engine) publish(ctx context.Context, f domain.Fill) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishFill(ctx, f); err != nil {
		e.logger.Warn("Fill not published",
			slog.String("order_id", f.OrderID),
			slog.Any("error", err),
		)
	}
}
