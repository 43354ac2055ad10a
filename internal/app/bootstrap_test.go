package app

import (
	"context"
	"path/filepath"
	"testing"

	"stock_sim/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, mutate func(*infra.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := infra.Default()
	cfg.Storage.DBPath = filepath.Join(dir, "stocksim.db")
	cfg.Storage.PebbleDir = filepath.Join(dir, "depth")
	cfg.Logging.Dir = ""
	cfg.MarketData.Provider = "static"
	cfg.MarketData.Static = map[string]infra.StaticQuote{
		"BHP": {Bid: decimal.NewFromInt(10), Ask: decimal.NewFromInt(11), Last: decimal.NewFromInt(10)},
	}
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestBootstrap_Initialize(t *testing.T) {
	for _, backend := range []string{"sqlite", "pebble"} {
		t.Run(backend, func(t *testing.T) {
			path := writeConfig(t, func(c *infra.Config) { c.Storage.DepthBackend = backend })

			b := NewBootstrap(path)
			require.NoError(t, b.Initialize())
			defer b.Close()

			ctx := context.Background()
			rec, err := b.Depth.GetOrCreateDepth(ctx, "BHP", decimal.NewFromInt(10), decimal.NewFromInt(11), decimal.NewFromInt(500))
			require.NoError(t, err)
			assert.Equal(t, "BHP", rec.Instrument)
			assert.Equal(t, uint64(1), b.Metrics.Snapshot().DepthRequests)

			acc, err := b.Trading.CreateAccount(ctx, "boot@example.com", "")
			require.NoError(t, err)
			assert.True(t, acc.Cash.Equal(decimal.NewFromInt(50000)))

			report, err := b.Engine.RunSweep(ctx, true)
			require.NoError(t, err)
			assert.Equal(t, 0, report.Instruments)
		})
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	path := writeConfig(t, func(c *infra.Config) { c.Trading.TradingDays = []string{"someday"} })

	b := NewBootstrap(path)
	assert.Error(t, b.Initialize())
	assert.NoError(t, b.Close())
}

func TestBootstrap_ServeStopsOnCancel(t *testing.T) {
	path := writeConfig(t, func(c *infra.Config) { c.API.Listen = "127.0.0.1:0" })
	b := NewBootstrap(path)
	require.NoError(t, b.Initialize())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Serve(ctx))
}
