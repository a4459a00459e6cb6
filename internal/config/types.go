package config

import (
	"strings"
	"time"
)

// Config 是 botcore 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Database  DatabaseConfig  `toml:"database"`
	AI        AIConfig        `toml:"ai"`
	Chart     ChartConfig     `toml:"chart"`
	Market    MarketConfig    `toml:"market"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Decision  DecisionConfig  `toml:"decision"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Prompts   PromptsConfig   `toml:"prompts"`

	// Secrets 只从环境变量读取，不参与 YAML 解码。
	Secrets Secrets `toml:"-"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogFmt   string `toml:"log_format"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
	Version  string `toml:"version"`
}

type DatabaseConfig struct {
	// DSN 以 postgres:// 开头时使用 Postgres，否则视为 SQLite 文件路径。
	DSN             string `toml:"dsn"`
	DecisionLogPath string `toml:"decision_log_path"`
}

type AIConfig struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	VisionModel    string  `toml:"vision_model"`
	APIURL         string  `toml:"api_url"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ChartConfig 控制图表截图来源：chartimg（远程）、local（echarts+chromedp）、none。
type ChartConfig struct {
	Provider       string `toml:"provider"`
	APIURL         string `toml:"api_url"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	Theme          string `toml:"theme"`
	SymbolPrefix   string `toml:"symbol_prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c ChartConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type MarketConfig struct {
	RapidAPIHost           string   `toml:"rapidapi_host"`
	RiskSymbols            []string `toml:"risk_symbols"`
	PerplexityModel        string   `toml:"perplexity_model"`
	OpenRouterURL          string   `toml:"openrouter_url"`
	BinanceSymbol          string   `toml:"binance_symbol"`
	BinanceBaseURL         string   `toml:"binance_base_url"`
	TimeoutSeconds         int      `toml:"timeout_seconds"`
	CacheTTLMinutes        int      `toml:"cache_ttl_minutes"`
	BreakerFailures        int      `toml:"breaker_failures"`
	BreakerCooldownSeconds int      `toml:"breaker_cooldown_seconds"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func (m MarketConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLMinutes) * time.Minute
}

func (m MarketConfig) BreakerCooldown() time.Duration {
	return time.Duration(m.BreakerCooldownSeconds) * time.Second
}

type AnalysisConfig struct {
	PipScale          float64            `toml:"pip_scale"`
	PipScaleOverrides map[string]float64 `toml:"pip_scale_overrides"`
	TrendWindow       int                `toml:"trend_window"`
	NearPips          float64            `toml:"near_pips"`
	ApproachingPips   float64            `toml:"approaching_pips"`
	ImbalanceRatio    float64            `toml:"imbalance_ratio"`
}

// PipScaleFor 返回品种对应的 pip 系数；overrides 的 key 按子串匹配（如 "JPY"）。
func (a AnalysisConfig) PipScaleFor(symbol string) float64 {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if v, ok := a.PipScaleOverrides[strings.ToLower(sym)]; ok && v > 0 {
		return v
	}
	for key, v := range a.PipScaleOverrides {
		if v > 0 && key != "" && strings.Contains(sym, strings.ToUpper(key)) {
			return v
		}
	}
	return a.PipScale
}

type DecisionConfig struct {
	DefaultNextRunMinutes int `toml:"default_next_run_minutes"`
	ParseRetryMinutes     int `toml:"parse_retry_minutes"`
	ErrorRetryMinutes     int `toml:"error_retry_minutes"`
	MaxTradesPerDay       int `toml:"max_trades_per_day"`
}

type SchedulerConfig struct {
	Windows map[string]WindowConfig `toml:"windows"`
}

type WindowConfig struct {
	MinMinutes int `toml:"min_minutes"`
	MaxMinutes int `toml:"max_minutes"`
}

type PromptsConfig struct {
	OverridePath string `toml:"override_path"`
}

// Secrets 由 caarlos0/env 从环境变量（及 .env）解析。
type Secrets struct {
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	AnthropicKey  string `env:"ANTHROPIC_API_KEY"`
	OpenRouterKey string `env:"OPENROUTER_API_KEY"`
	RapidAPIKey   string `env:"RAPIDAPI_KEY"`
	ChartImgKey   string `env:"CHART_IMG_API_KEY"`
	DatabaseURL   string `env:"DATABASE_URL"`
	HTTPAddr      string `env:"BOTCORE_HTTP_ADDR"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
