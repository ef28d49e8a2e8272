package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSymbolsYAML = `
symbols:
  - symbol: btcusdt
    base_currency: BTC
    max_inventory_notional: 5000
    strategy:
      base_spread_pct: 0.002
      base_order_qty: 0.002
      layers:
        - offset_pct: 0
          size_multiplier: 1
        - offset_pct: 0.001
          size_multiplier: 2
    risk:
      pause_threshold_pct: 0.02
      max_daily_loss_pct: 0.05
`

func writeSymbolsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSymbols_Valid(t *testing.T) {
	symbols, err := LoadSymbols(writeSymbolsFile(t, validSymbolsYAML))
	require.NoError(t, err)
	require.Len(t, symbols, 1)

	sc := symbols[0]
	assert.Equal(t, "BTCUSDT", sc.Symbol, "symbol is uppercased")
	assert.Equal(t, "USDT", sc.QuoteCurrency, "quote currency defaults")
	assert.Equal(t, 1, sc.Leverage)
	assert.Equal(t, 0.2, sc.Strategy.SmoothingAlpha)
	assert.Equal(t, 14, sc.Strategy.ATRPeriod)
	assert.Len(t, sc.Strategy.Layers, 2)
	assert.Equal(t, 60, sc.Risk.PriceWindowSeconds)
	assert.Equal(t, 0.5, sc.Risk.ProfitLockFraction)
}

func TestLoadSymbols_SchemaRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing symbols key", `other: 1`},
		{"empty list", "symbols: []"},
		{"missing strategy", `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: 5000
`},
		{"zero base spread", `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: 5000
    strategy:
      base_spread_pct: 0
      base_order_qty: 0.002
`},
		{"negative notional", `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: -1
    strategy:
      base_spread_pct: 0.002
      base_order_qty: 0.002
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSymbols(writeSymbolsFile(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadSymbols_SemanticRejections(t *testing.T) {
	t.Run("duplicate symbol", func(t *testing.T) {
		_, err := LoadSymbols(writeSymbolsFile(t, `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: 5000
    strategy: {base_spread_pct: 0.002, base_order_qty: 0.002}
  - symbol: btcusdt
    max_inventory_notional: 4000
    strategy: {base_spread_pct: 0.003, base_order_qty: 0.001}
`))
		assert.ErrorContains(t, err, "duplicate symbol")
	})

	t.Run("layer offsets must increase", func(t *testing.T) {
		_, err := LoadSymbols(writeSymbolsFile(t, `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: 5000
    strategy:
      base_spread_pct: 0.002
      base_order_qty: 0.002
      layers:
        - {offset_pct: 0.002, size_multiplier: 1}
        - {offset_pct: 0.001, size_multiplier: 1}
`))
		assert.ErrorContains(t, err, "strictly increasing")
	})

	t.Run("dynamic spread needs reference volatility", func(t *testing.T) {
		_, err := LoadSymbols(writeSymbolsFile(t, `
symbols:
  - symbol: BTCUSDT
    max_inventory_notional: 5000
    strategy:
      base_spread_pct: 0.002
      base_order_qty: 0.002
      dynamic_spread: true
`))
		assert.ErrorContains(t, err, "reference_volatility")
	})
}

func TestSymbolConfig_Fingerprint(t *testing.T) {
	symbols, err := LoadSymbols(writeSymbolsFile(t, validSymbolsYAML))
	require.NoError(t, err)
	a := symbols[0]

	b := a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Strategy.BaseSpreadPct = 0.003
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestLoad_ConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_level: debug
venue:
  name: binance
  api_key: k
  api_secret: s
symbols:
  path: configs/symbols.yaml
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Engine.CycleIntervalMS)
	assert.Equal(t, 8, cfg.Engine.MaxOutstandingOrders)
	assert.Equal(t, ":9982", cfg.App.HTTPAddr)
	assert.Equal(t, "data/makerd-state.db", cfg.Store.StatePath)
}

func TestLoad_RequiresCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
venue:
  name: binance
symbols:
  path: configs/symbols.yaml
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ExpandsEnvCredentials(t *testing.T) {
	t.Setenv("MAKERD_TEST_KEY", "expanded-key")
	t.Setenv("MAKERD_TEST_SECRET", "expanded-secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
venue:
  name: binance
  api_key: ${MAKERD_TEST_KEY}
  api_secret: ${MAKERD_TEST_SECRET}
symbols:
  path: configs/symbols.yaml
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Venue.APIKey)
	assert.Equal(t, "expanded-secret", cfg.Venue.APISecret)
}
