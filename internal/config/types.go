package config

import "time"

// Config 是 makerd 的主配置载体。
type Config struct {
	App     AppConfig     `toml:"app"`
	Engine  EngineConfig  `toml:"engine"`
	Venue   VenueConfig   `toml:"venue"`
	Store   StoreConfig   `toml:"store"`
	Notify  NotifyConfig  `toml:"notify"`
	Symbols SymbolsConfig `toml:"symbols"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// EngineConfig carries the global quoting-loop settings shared by every
// symbol controller.
type EngineConfig struct {
	CycleIntervalMS               int     `toml:"cycle_interval_ms"`
	MarketDataStaleTimeoutSeconds int     `toml:"market_data_stale_timeout_seconds"`
	StaleOrderThresholdPct        float64 `toml:"stale_order_threshold_pct"`
	StaleOrderMaxAgeSeconds       int     `toml:"stale_order_max_age_seconds"`
	AmendMaxDriftPct              float64 `toml:"amend_max_drift_pct"`
	MaxOutstandingOrders          int     `toml:"max_outstanding_orders"`
	CancelMinIntervalMS           int     `toml:"cancel_min_interval_ms"`
	RetryMaxAttempts              int     `toml:"retry_max_attempts"`
	RetryBaseDelayMS              int     `toml:"retry_base_delay_ms"`
	CheckpointIntervalSeconds     int     `toml:"checkpoint_interval_seconds"`
	BalanceRefreshSeconds         int     `toml:"balance_refresh_seconds"`
	InboxSize                     int     `toml:"inbox_size"`
}

func (e EngineConfig) CycleInterval() time.Duration {
	return time.Duration(e.CycleIntervalMS) * time.Millisecond
}

func (e EngineConfig) MarketDataStaleTimeout() time.Duration {
	return time.Duration(e.MarketDataStaleTimeoutSeconds) * time.Second
}

func (e EngineConfig) StaleOrderMaxAge() time.Duration {
	return time.Duration(e.StaleOrderMaxAgeSeconds) * time.Second
}

func (e EngineConfig) CancelMinInterval() time.Duration {
	return time.Duration(e.CancelMinIntervalMS) * time.Millisecond
}

func (e EngineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(e.RetryBaseDelayMS) * time.Millisecond
}

func (e EngineConfig) CheckpointInterval() time.Duration {
	return time.Duration(e.CheckpointIntervalSeconds) * time.Second
}

// VenueConfig 描述交易所接入方式。
type VenueConfig struct {
	Name               string `toml:"name"`
	RESTBaseURL        string `toml:"rest_base_url"`
	APIKey             string `toml:"api_key"`
	APISecret          string `toml:"api_secret"`
	Testnet            bool   `toml:"testnet"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	UseAmend           bool   `toml:"use_amend"`
}

func (v VenueConfig) HTTPTimeout() time.Duration {
	return time.Duration(v.HTTPTimeoutSeconds) * time.Second
}

type StoreConfig struct {
	StatePath   string `toml:"state_path"`
	JournalPath string `toml:"journal_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// SymbolsConfig points at the hot-reloadable per-symbol strategy file.
type SymbolsConfig struct {
	Path string `toml:"path"`
}
