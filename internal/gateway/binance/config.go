package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	// Symbol 是用作风险情绪参考的永续合约，默认 BTCUSDT。
	Symbol string
	// RatioPeriod 是多空比统计周期（5m/15m/1h/...）。
	RatioPeriod string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.Symbol = strings.ToUpper(strings.TrimSpace(out.Symbol))
	if out.Symbol == "" {
		out.Symbol = "BTCUSDT"
	}
	out.RatioPeriod = strings.ToLower(strings.TrimSpace(out.RatioPeriod))
	if out.RatioPeriod == "" {
		out.RatioPeriod = "1h"
	}
	return out
}
