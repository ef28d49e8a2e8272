package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymbolConfig 描述单个交易对的做市参数。
// A running controller never mutates its SymbolConfig; a changed fingerprint
// makes the dispatcher restart the controller instead.
type SymbolConfig struct {
	Symbol               string         `yaml:"symbol" json:"symbol"`
	BaseCurrency         string         `yaml:"base_currency" json:"base_currency"`
	QuoteCurrency        string         `yaml:"quote_currency" json:"quote_currency"`
	TickSize             float64        `yaml:"tick_size" json:"tick_size"`
	QtyStep              float64        `yaml:"qty_step" json:"qty_step"`
	MinOrderValue        float64        `yaml:"min_order_value" json:"min_order_value"`
	Leverage             int            `yaml:"leverage" json:"leverage"`
	MaxInventoryNotional float64        `yaml:"max_inventory_notional" json:"max_inventory_notional"`
	Strategy             StrategyConfig `yaml:"strategy" json:"strategy"`
	Risk                 RiskConfig     `yaml:"risk" json:"risk"`
}

type StrategyConfig struct {
	BaseSpreadPct       float64       `yaml:"base_spread_pct" json:"base_spread_pct"`
	MinProfitSpreadPct  float64       `yaml:"min_profit_spread_pct" json:"min_profit_spread_pct"`
	DynamicSpread       bool          `yaml:"dynamic_spread" json:"dynamic_spread"`
	MinSpreadPct        float64       `yaml:"min_spread_pct" json:"min_spread_pct"`
	MaxSpreadPct        float64       `yaml:"max_spread_pct" json:"max_spread_pct"`
	ReferenceVolatility float64       `yaml:"reference_volatility" json:"reference_volatility"`
	SkewRatio           float64       `yaml:"skew_ratio" json:"skew_ratio"`
	SkewIntensity       float64       `yaml:"skew_intensity" json:"skew_intensity"`
	BaseOrderQty        float64       `yaml:"base_order_qty" json:"base_order_qty"`
	Layers              []LayerConfig `yaml:"layers" json:"layers"`
	SmoothingAlpha      float64       `yaml:"smoothing_alpha" json:"smoothing_alpha"`
	ATRPeriod           int           `yaml:"atr_period" json:"atr_period"`
	CandleBucketSeconds int           `yaml:"candle_bucket_seconds" json:"candle_bucket_seconds"`
}

type LayerConfig struct {
	OffsetPct      float64 `yaml:"offset_pct" json:"offset_pct"`
	SizeMultiplier float64 `yaml:"size_multiplier" json:"size_multiplier"`
}

type RiskConfig struct {
	PriceWindowSeconds   int     `yaml:"price_window_seconds" json:"price_window_seconds"`
	PauseThresholdPct    float64 `yaml:"pause_threshold_pct" json:"pause_threshold_pct"`
	PauseDurationSeconds int     `yaml:"pause_duration_seconds" json:"pause_duration_seconds"`
	CoolDownSeconds      int     `yaml:"cool_down_seconds" json:"cool_down_seconds"`
	MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct"`

	BreakevenEnabled    bool    `yaml:"breakeven_enabled" json:"breakeven_enabled"`
	BreakevenTriggerATR float64 `yaml:"breakeven_trigger_atr" json:"breakeven_trigger_atr"`

	ProfitLockEnabled    bool    `yaml:"profit_lock_enabled" json:"profit_lock_enabled"`
	ProfitLockTriggerATR float64 `yaml:"profit_lock_trigger_atr" json:"profit_lock_trigger_atr"`
	ProfitLockFraction   float64 `yaml:"profit_lock_fraction" json:"profit_lock_fraction"`

	TrailEnabled  bool    `yaml:"trail_enabled" json:"trail_enabled"`
	TrailArmATR   float64 `yaml:"trail_arm_atr" json:"trail_arm_atr"`
	TrailMultiple float64 `yaml:"trail_multiple" json:"trail_multiple"`
}

type symbolsFile struct {
	Symbols []SymbolConfig `yaml:"symbols"`
}

// LoadSymbols parses and validates the per-symbol strategy file. The raw
// document is checked against the embedded JSON schema first so a bad edit is
// rejected wholesale instead of half-applying.
func LoadSymbols(path string) ([]SymbolConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading symbols file failed (%s): %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing symbols file failed: %w", err)
	}
	if err := validateSymbolsDocument(doc); err != nil {
		return nil, err
	}
	var file symbolsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decoding symbols file failed: %w", err)
	}
	seen := make(map[string]bool, len(file.Symbols))
	out := make([]SymbolConfig, 0, len(file.Symbols))
	for i := range file.Symbols {
		sc := file.Symbols[i]
		sc.applyDefaults()
		if err := sc.validate(); err != nil {
			return nil, fmt.Errorf("symbols[%d] (%s): %w", i, sc.Symbol, err)
		}
		if seen[sc.Symbol] {
			return nil, fmt.Errorf("duplicate symbol %s", sc.Symbol)
		}
		seen[sc.Symbol] = true
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("symbols file defines no symbols")
	}
	return out, nil
}

func (s *SymbolConfig) applyDefaults() {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	if s.QuoteCurrency == "" {
		s.QuoteCurrency = "USDT"
	}
	if s.Leverage <= 0 {
		s.Leverage = 1
	}
	st := &s.Strategy
	if st.SmoothingAlpha <= 0 || st.SmoothingAlpha > 1 {
		st.SmoothingAlpha = 0.2
	}
	if st.ATRPeriod <= 0 {
		st.ATRPeriod = 14
	}
	if st.CandleBucketSeconds <= 0 {
		st.CandleBucketSeconds = 60
	}
	if st.MinSpreadPct <= 0 {
		st.MinSpreadPct = st.BaseSpreadPct / 2
	}
	if st.MaxSpreadPct <= 0 {
		st.MaxSpreadPct = st.BaseSpreadPct * 5
	}
	if st.SkewRatio <= 0 {
		st.SkewRatio = 1
	}
	if len(st.Layers) == 0 {
		st.Layers = []LayerConfig{{OffsetPct: 0, SizeMultiplier: 1}}
	}
	rk := &s.Risk
	if rk.PriceWindowSeconds <= 0 {
		rk.PriceWindowSeconds = 60
	}
	if rk.PauseDurationSeconds <= 0 {
		rk.PauseDurationSeconds = 120
	}
	if rk.CoolDownSeconds <= 0 {
		rk.CoolDownSeconds = 60
	}
	if rk.ProfitLockFraction <= 0 || rk.ProfitLockFraction >= 1 {
		rk.ProfitLockFraction = 0.5
	}
	if rk.TrailMultiple <= 0 {
		rk.TrailMultiple = 2
	}
}

func (s *SymbolConfig) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if s.MaxInventoryNotional <= 0 {
		return fmt.Errorf("max_inventory_notional must be > 0")
	}
	st := s.Strategy
	if st.BaseSpreadPct <= 0 {
		return fmt.Errorf("strategy.base_spread_pct must be > 0")
	}
	if st.MinProfitSpreadPct < 0 {
		return fmt.Errorf("strategy.min_profit_spread_pct must be >= 0")
	}
	if st.BaseOrderQty <= 0 {
		return fmt.Errorf("strategy.base_order_qty must be > 0")
	}
	if st.DynamicSpread && st.ReferenceVolatility <= 0 {
		return fmt.Errorf("strategy.reference_volatility must be > 0 when dynamic_spread is on")
	}
	if st.MinSpreadPct > st.MaxSpreadPct {
		return fmt.Errorf("strategy.min_spread_pct must not exceed max_spread_pct")
	}
	prev := -1.0
	for i, l := range st.Layers {
		if l.OffsetPct < 0 {
			return fmt.Errorf("strategy.layers[%d].offset_pct must be >= 0", i)
		}
		if l.OffsetPct <= prev && i > 0 {
			return fmt.Errorf("strategy.layers must have strictly increasing offsets")
		}
		if l.SizeMultiplier <= 0 {
			return fmt.Errorf("strategy.layers[%d].size_multiplier must be > 0", i)
		}
		prev = l.OffsetPct
	}
	rk := s.Risk
	if rk.PauseThresholdPct < 0 || rk.MaxDailyLossPct < 0 {
		return fmt.Errorf("risk thresholds must be >= 0")
	}
	return nil
}

// Fingerprint 用于配置热更时判断控制器是否需要重启。
func (s SymbolConfig) Fingerprint() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
