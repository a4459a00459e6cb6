package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":5000"
	defaultAppLogPath       = "data/logs/botcore.log"
	defaultAppLLMLogPath    = "data/logs/botcore-llm.log"
	defaultAppVersion       = "1.0.0"
	defaultDatabaseDSN      = "data/db/botcore.db"
	defaultDecisionLogPath  = "data/db/decisions.db"
	defaultAIProvider       = "openai"
	defaultAIModel          = "gpt-4o"
	defaultAIURL            = "https://api.openai.com/v1"
	defaultAITemperature    = 0.3
	defaultAIMaxTokens      = 4000
	defaultAITimeout        = 90
	defaultChartProvider    = "chartimg"
	defaultChartURL         = "https://api.chart-img.com/v1/tradingview/advanced-chart"
	defaultChartWidth       = 1200
	defaultChartHeight      = 800
	defaultChartTheme       = "dark"
	defaultChartPrefix      = "FX"
	defaultChartTimeout     = 10
	defaultRapidAPIHost     = "yahoo-finance166.p.rapidapi.com"
	defaultPerplexityModel  = "perplexity/sonar-pro"
	defaultOpenRouterURL    = "https://openrouter.ai/api/v1"
	defaultBinanceSymbol    = "BTCUSDT"
	defaultBinanceBaseURL   = "https://fapi.binance.com"
	defaultMarketTimeout    = 30
	defaultCacheTTLMinutes  = 240
	defaultBreakerFailures  = 3
	defaultBreakerCooldown  = 300
	defaultPipScale         = 10000
	defaultTrendWindow      = 10
	defaultNearPips         = 10
	defaultApproachingPips  = 20
	defaultImbalanceRatio   = 0.70
	defaultNextRunMinutes   = 15
	defaultParseRetryMin    = 5
	defaultErrorRetryMin    = 1
	defaultMaxTradesPerDay  = 10
)

// defaultRiskSymbols 对应 VIX、DXY、TNX、UST2YR、黄金、原油、SPX、NQ、BTC。
var defaultRiskSymbols = []string{"^VIX", "DX-Y.NYB", "^TNX", "^UST2YR", "GC=F", "CL=F", "^GSPC", "NQ=F", "BTC-USD"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Chart.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Analysis.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFmt, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
		stringFieldDefault("app.version", &a.Version, defaultAppVersion),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.dsn", &d.DSN, defaultDatabaseDSN),
		stringFieldDefault("database.decision_log_path", &d.DecisionLogPath, defaultDecisionLogPath),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.provider", &a.Provider, defaultAIProvider),
		stringFieldDefault("ai.model", &a.Model, defaultAIModel),
		stringFieldDefault("ai.api_url", &a.APIURL, defaultAIURL),
		intFieldDefault("ai.max_tokens", &a.MaxTokens, defaultAIMaxTokens),
		intFieldDefault("ai.timeout_seconds", &a.TimeoutSeconds, defaultAITimeout),
		floatFieldDefault("ai.temperature", &a.Temperature, defaultAITemperature),
	)
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if strings.TrimSpace(a.VisionModel) == "" {
		a.VisionModel = a.Model
	}
}

func (c *ChartConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("chart.provider", &c.Provider, defaultChartProvider),
		stringFieldDefault("chart.api_url", &c.APIURL, defaultChartURL),
		stringFieldDefault("chart.theme", &c.Theme, defaultChartTheme),
		stringFieldDefault("chart.symbol_prefix", &c.SymbolPrefix, defaultChartPrefix),
		intFieldDefault("chart.width", &c.Width, defaultChartWidth),
		intFieldDefault("chart.height", &c.Height, defaultChartHeight),
		intFieldDefault("chart.timeout_seconds", &c.TimeoutSeconds, defaultChartTimeout),
	)
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rapidapi_host", &m.RapidAPIHost, defaultRapidAPIHost),
		stringFieldDefault("market.perplexity_model", &m.PerplexityModel, defaultPerplexityModel),
		stringFieldDefault("market.openrouter_url", &m.OpenRouterURL, defaultOpenRouterURL),
		stringFieldDefault("market.binance_symbol", &m.BinanceSymbol, defaultBinanceSymbol),
		stringFieldDefault("market.binance_base_url", &m.BinanceBaseURL, defaultBinanceBaseURL),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("market.cache_ttl_minutes", &m.CacheTTLMinutes, defaultCacheTTLMinutes),
		intFieldDefault("market.breaker_failures", &m.BreakerFailures, defaultBreakerFailures),
		intFieldDefault("market.breaker_cooldown_seconds", &m.BreakerCooldownSeconds, defaultBreakerCooldown),
		fieldDefault{
			key:   "market.risk_symbols",
			need:  func() bool { return len(m.RiskSymbols) == 0 },
			apply: func() { m.RiskSymbols = append([]string(nil), defaultRiskSymbols...) },
		},
	)
}

func (a *AnalysisConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("analysis.pip_scale", &a.PipScale, defaultPipScale),
		intFieldDefault("analysis.trend_window", &a.TrendWindow, defaultTrendWindow),
		floatFieldDefault("analysis.near_pips", &a.NearPips, defaultNearPips),
		floatFieldDefault("analysis.approaching_pips", &a.ApproachingPips, defaultApproachingPips),
		floatFieldDefault("analysis.imbalance_ratio", &a.ImbalanceRatio, defaultImbalanceRatio),
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("decision.default_next_run_minutes", &d.DefaultNextRunMinutes, defaultNextRunMinutes),
		intFieldDefault("decision.parse_retry_minutes", &d.ParseRetryMinutes, defaultParseRetryMin),
		intFieldDefault("decision.error_retry_minutes", &d.ErrorRetryMinutes, defaultErrorRetryMin),
		intFieldDefault("decision.max_trades_per_day", &d.MaxTradesPerDay, defaultMaxTradesPerDay),
	)
}

// applyDefaults 为调度窗口补全原始 prompt 约定的区间（分钟）。
func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil || keys.isSet("scheduler.windows") {
		return
	}
	if len(s.Windows) > 0 {
		return
	}
	s.Windows = map[string]WindowConfig{
		"wait":    {MinMinutes: 15, MaxMinutes: 60},
		"watch":   {MinMinutes: 5, MaxMinutes: 15},
		"hotzone": {MinMinutes: 1, MaxMinutes: 5},
		"enter":   {MinMinutes: 1, MaxMinutes: 5},
		"manage":  {MinMinutes: 1, MaxMinutes: 15},
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
