package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"stock_sim/internal/api"
	"stock_sim/internal/depth"
	"stock_sim/internal/domain"
	"stock_sim/internal/engine"
	"stock_sim/internal/event"
	"stock_sim/internal/infra"
	"stock_sim/internal/infra/storage"
	"stock_sim/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Logger    *slog.Logger
	Storage   *storage.Storage
	Metrics   *infra.Metrics
	Gateway   domain.MarketDataGateway
	Hub       *api.Hub
	Publisher *event.Fanout

	Depth     *depth.Service
	Trading   *service.TradingService
	Portfolio *service.PortfolioService
	Engine    *engine.Engine

	closers []io.Closer
}

// NewBootstrap creates a new Bootstrap instance. An empty configPath runs on defaults.
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads configuration and wires storage, services and the engine.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("Bootstrapping stocksim...", slog.String("version", cfg.App.Version))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	b.closers = append(b.closers, store)
	b.Logger.Info("Database initialized", slog.String("path", cfg.Storage.DBPath))

	var depthRepo depth.Repository = store
	if cfg.Storage.DepthBackend == "pebble" {
		pebbleStore, err := storage.NewPebbleDepthStore(cfg.Storage.PebbleDir)
		if err != nil {
			b.Close()
			return err
		}
		depthRepo = pebbleStore
		b.closers = append(b.closers, pebbleStore)

		codes, err := pebbleStore.Instruments()
		if err != nil {
			b.Close()
			return err
		}
		b.Logger.Info("Pebble depth store opened",
			slog.String("dir", cfg.Storage.PebbleDir),
			slog.Int("instruments", len(codes)),
		)
	}

	// 4. Observability and fan-out
	b.Metrics = infra.NewMetrics()
	b.Hub = api.NewHub(b.Metrics, b.Logger)
	b.Publisher = event.NewFanout(b.Logger, b.Hub)
	if len(cfg.Events.KafkaBrokers) > 0 {
		b.Publisher.Add(event.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		b.Logger.Info("Kafka fill publisher enabled",
			slog.Any("brokers", cfg.Events.KafkaBrokers),
			slog.String("topic", cfg.Events.KafkaTopic),
		)
	}
	b.closers = append(b.closers, b.Publisher)

	// 5. Market data
	b.Gateway = infra.NewQuoteGateway(cfg, b.Logger)

	// 6. Services
	depthOpts := []depth.Option{
		depth.WithCacheSize(cfg.Depth.CacheSize),
		depth.WithLogger(b.Logger),
		depth.WithNotifier(func(r *depth.Record, created bool) {
			b.Metrics.RecordDepthRequest(created)
			b.Hub.PublishDepth(r, created)
		}),
	}
	if cfg.Depth.Seed != 0 {
		depthOpts = append(depthOpts, depth.WithSeed(cfg.Depth.Seed))
	}
	b.Depth = depth.NewService(depthRepo, depth.Params{
		Levels:          cfg.Depth.Levels,
		InitialSkipProb: cfg.Depth.InitialSkipProb,
		SkipProbStep:    cfg.Depth.SkipProbStep,
		MaxSkipProb:     cfg.Depth.MaxSkipProb,
	}, depthOpts...)

	b.Trading = service.NewTradingService(store, cfg.Trading.InitialCash, cfg.Trading.BrokerageFee, b.Logger)
	b.Portfolio = service.NewPortfolioService(store, b.Gateway, b.Logger)

	// 7. Engine
	window, err := tradingWindow(cfg)
	if err != nil {
		b.Close()
		return err
	}
	b.Engine = engine.NewEngine(store, b.Gateway,
		engine.WithPublisher(b.Publisher),
		engine.WithTradingWindow(window),
		engine.WithRecorder(b.Metrics),
		engine.WithLogger(b.Logger),
	)

	b.Logger.Info("Bootstrap completed")
	return nil
}

func tradingWindow(cfg *infra.Config) (*engine.TradingWindow, error) {
	days, err := infra.ParseWeekdays(cfg.Trading.TradingDays)
	if err != nil {
		return nil, err
	}
	return engine.NewTradingWindow(cfg.Trading.Timezone, days, cfg.Trading.OpenHour, cfg.Trading.CloseHour)
}

// Serve runs the websocket hub, the sweep scheduler and the API server until ctx is
// cancelled or the server fails.
func (b *Bootstrap) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := api.NewServer(api.Services{
		Depth:     b.Depth,
		Trading:   b.Trading,
		Portfolio: b.Portfolio,
		Sweeper:   b.Engine,
	}, b.Hub,
		api.WithMetricsHandler(b.Metrics.Handler()),
		api.WithErrorRecorder(b.Metrics),
		api.WithAllowedOrigins(b.Config.API.AllowedOrigins),
		api.WithLogger(b.Logger),
	)

	scheduler := engine.NewScheduler(b.Engine, b.Config.SweepInterval(), b.Logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.Hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	err := server.Start(ctx, b.Config.API.Listen)
	if err != nil {
		err = fmt.Errorf("api server: %w", err)
	}

	b.Logger.Info("Shutting down gracefully...")
	cancel()
	wg.Wait()
	return err
}

// Close releases storage and publishers in reverse order of creation.
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
