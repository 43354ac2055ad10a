package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"stock_sim/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := infra.Default()
	cfg.Storage.DBPath = filepath.Join(dir, "stocksim.db")
	cfg.Logging.Dir = ""
	cfg.Logging.Level = "error"
	cfg.MarketData.Provider = "static"
	path := filepath.Join(dir, "stocksim.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, err := run(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAccountAndOrderCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, "-c", cfg, "account", "create", "--email", "cli@example.com", "--nickname", "cli")
	require.NoError(t, err)
	var acc struct {
		ID   string `json:"id"`
		Cash string `json:"cash"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &acc))
	require.NotEmpty(t, acc.ID)

	out, err = run(t, "-c", cfg, "order", "submit",
		"--account", acc.ID, "--type", "buy", "--subtype", "limit",
		"--instrument", "bhp", "--price", "10", "--quantity", "10")
	require.NoError(t, err)
	var order struct {
		ID         string `json:"id"`
		Instrument string `json:"instrument"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, "BHP", order.Instrument)

	_, err = run(t, "-c", cfg, "order", "cancel", order.ID, "--account", acc.ID)
	require.NoError(t, err)

	_, err = run(t, "-c", cfg, "order", "cancel", order.ID)
	assert.Error(t, err)
}

func TestOrderSubmit_BadPrice(t *testing.T) {
	_, err := run(t, "-c", testConfig(t), "order", "submit",
		"--account", "x", "--type", "buy", "--instrument", "BHP", "--price", "ten", "--quantity", "1")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}
