package config

// 默认值常量
const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = ":9982"
	defaultCycleIntervalMS     = 1000
	defaultStaleTimeoutSec     = 10
	defaultStaleOrderThreshold = 0.001
	defaultStaleOrderMaxAgeSec = 300
	defaultAmendMaxDriftPct    = 0.005
	defaultMaxOutstanding      = 8
	defaultCancelMinIntervalMS = 200
	defaultRetryMaxAttempts    = 4
	defaultRetryBaseDelayMS    = 250
	defaultCheckpointSec       = 30
	defaultBalanceRefreshSec   = 60
	defaultInboxSize           = 256
	defaultVenueName           = "binance"
	defaultVenueREST           = "https://fapi.binance.com"
	defaultVenueHTTPTimeout    = 15
	defaultStatePath           = "data/makerd-state.db"
	defaultJournalPath         = "data/makerd-journal.db"
	defaultSymbolsPath         = "configs/symbols.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Engine.applyDefaults()
	c.Venue.applyDefaults()
	c.Store.applyDefaults()
	c.Symbols.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (e *EngineConfig) applyDefaults() {
	if e.CycleIntervalMS <= 0 {
		e.CycleIntervalMS = defaultCycleIntervalMS
	}
	if e.MarketDataStaleTimeoutSeconds <= 0 {
		e.MarketDataStaleTimeoutSeconds = defaultStaleTimeoutSec
	}
	if e.StaleOrderThresholdPct <= 0 {
		e.StaleOrderThresholdPct = defaultStaleOrderThreshold
	}
	if e.StaleOrderMaxAgeSeconds <= 0 {
		e.StaleOrderMaxAgeSeconds = defaultStaleOrderMaxAgeSec
	}
	if e.AmendMaxDriftPct <= 0 {
		e.AmendMaxDriftPct = defaultAmendMaxDriftPct
	}
	if e.MaxOutstandingOrders <= 0 {
		e.MaxOutstandingOrders = defaultMaxOutstanding
	}
	if e.CancelMinIntervalMS <= 0 {
		e.CancelMinIntervalMS = defaultCancelMinIntervalMS
	}
	if e.RetryMaxAttempts <= 0 {
		e.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if e.RetryBaseDelayMS <= 0 {
		e.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if e.CheckpointIntervalSeconds <= 0 {
		e.CheckpointIntervalSeconds = defaultCheckpointSec
	}
	if e.BalanceRefreshSeconds <= 0 {
		e.BalanceRefreshSeconds = defaultBalanceRefreshSec
	}
	if e.InboxSize <= 0 {
		e.InboxSize = defaultInboxSize
	}
}

func (v *VenueConfig) applyDefaults() {
	if v.Name == "" {
		v.Name = defaultVenueName
	}
	if v.RESTBaseURL == "" {
		v.RESTBaseURL = defaultVenueREST
	}
	if v.HTTPTimeoutSeconds <= 0 {
		v.HTTPTimeoutSeconds = defaultVenueHTTPTimeout
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.StatePath == "" {
		s.StatePath = defaultStatePath
	}
	if s.JournalPath == "" {
		s.JournalPath = defaultJournalPath
	}
}

func (s *SymbolsConfig) applyDefaults() {
	if s.Path == "" {
		s.Path = defaultSymbolsPath
	}
}
