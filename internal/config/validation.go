package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Chart.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Analysis.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if strings.TrimSpace(d.DSN) == "" {
		return fmt.Errorf("database.dsn cannot be empty")
	}
	return nil
}

func (a *AIConfig) validate() error {
	switch a.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("ai.provider must be openai or anthropic, got %q", a.Provider)
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be within [0, 2]")
	}
	if a.MaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens must be > 0")
	}
	if a.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	return nil
}

func (c *ChartConfig) validate() error {
	switch c.Provider {
	case "chartimg", "local", "none":
	default:
		return fmt.Errorf("chart.provider must be chartimg, local or none, got %q", c.Provider)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("chart.width and chart.height must be > 0")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("chart.timeout_seconds must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.TimeoutSeconds <= 0 {
		return fmt.Errorf("market.timeout_seconds must be > 0")
	}
	if m.CacheTTLMinutes <= 0 {
		return fmt.Errorf("market.cache_ttl_minutes must be > 0")
	}
	if m.BreakerFailures < 0 {
		return fmt.Errorf("market.breaker_failures must be >= 0")
	}
	return nil
}

func (a *AnalysisConfig) validate() error {
	if a.PipScale <= 0 {
		return fmt.Errorf("analysis.pip_scale must be > 0")
	}
	for k, v := range a.PipScaleOverrides {
		if v <= 0 {
			return fmt.Errorf("analysis.pip_scale_overrides.%s must be > 0", k)
		}
	}
	if a.TrendWindow < 2 {
		return fmt.Errorf("analysis.trend_window must be >= 2")
	}
	if a.NearPips <= 0 || a.ApproachingPips <= a.NearPips {
		return fmt.Errorf("analysis.near_pips must be > 0 and < approaching_pips")
	}
	if a.ImbalanceRatio <= 0 || a.ImbalanceRatio >= 1 {
		return fmt.Errorf("analysis.imbalance_ratio must be within (0, 1)")
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.DefaultNextRunMinutes <= 0 || d.ParseRetryMinutes <= 0 || d.ErrorRetryMinutes <= 0 {
		return fmt.Errorf("decision retry/next-run minutes must be > 0")
	}
	if d.MaxTradesPerDay <= 0 {
		return fmt.Errorf("decision.max_trades_per_day must be > 0")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	for action, w := range s.Windows {
		if w.MinMinutes < 0 || w.MaxMinutes < 0 {
			return fmt.Errorf("scheduler.windows.%s minutes must be >= 0", action)
		}
		if w.MaxMinutes > 0 && w.MinMinutes > w.MaxMinutes {
			return fmt.Errorf("scheduler.windows.%s min_minutes exceeds max_minutes", action)
		}
	}
	return nil
}
