package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Venue.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.StaleOrderThresholdPct >= 1 {
		return fmt.Errorf("engine.stale_order_threshold_pct must be a fraction < 1")
	}
	if e.AmendMaxDriftPct >= 1 {
		return fmt.Errorf("engine.amend_max_drift_pct must be a fraction < 1")
	}
	if e.CycleIntervalMS < 100 {
		return fmt.Errorf("engine.cycle_interval_ms must be >= 100")
	}
	return nil
}

func (v *VenueConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(v.Name)) {
	case "binance":
	default:
		return fmt.Errorf("venue.name %q is not supported", v.Name)
	}
	if strings.TrimSpace(v.APIKey) == "" || strings.TrimSpace(v.APISecret) == "" {
		return fmt.Errorf("venue.api_key and venue.api_secret are required")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
