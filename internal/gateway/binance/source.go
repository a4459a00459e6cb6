package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
)

// Source 基于 go-binance SDK 读取永续合约的资金费率与多空比，
// 作为外汇决策的加密风险情绪参考。
type Source struct {
	cfg    Config
	client *futures.Client
}

// FundingPulse 是一次快照。
type FundingPulse struct {
	Symbol         string   `json:"symbol"`
	MarkPrice      float64  `json:"mark_price"`
	FundingRate    float64  `json:"funding_rate"`
	LongShortRatio *float64 `json:"long_short_ratio,omitempty"`
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

func (s *Source) Symbol() string { return s.cfg.Symbol }

// FundingPulse 读取标记价格与最新资金费率；多空比取不到时留空，不视为失败。
func (s *Source) FundingPulse(ctx context.Context) (FundingPulse, error) {
	if s == nil || s.client == nil {
		return FundingPulse{}, fmt.Errorf("binance source not initialized")
	}
	res, err := s.client.NewPremiumIndexService().Symbol(s.cfg.Symbol).Do(ctx)
	if err != nil {
		return FundingPulse{}, fmt.Errorf("premium index %s: %w", s.cfg.Symbol, err)
	}
	var entry *futures.PremiumIndex
	for _, item := range res {
		if item != nil && strings.EqualFold(item.Symbol, s.cfg.Symbol) {
			entry = item
			break
		}
	}
	if entry == nil {
		return FundingPulse{}, fmt.Errorf("funding rate not available for %s", s.cfg.Symbol)
	}
	out := FundingPulse{
		Symbol:      entry.Symbol,
		MarkPrice:   parseFloat(entry.MarkPrice),
		FundingRate: parseFloat(entry.LastFundingRate),
	}
	if ratio, ok := s.latestRatio(ctx); ok {
		out.LongShortRatio = &ratio
	}
	return out, nil
}

func (s *Source) latestRatio(ctx context.Context) (float64, bool) {
	raw, err := s.client.NewLongShortRatioService().
		Symbol(s.cfg.Symbol).
		Period(s.cfg.RatioPeriod).
		Limit(1).
		Do(ctx)
	if err != nil || len(raw) == 0 || raw[len(raw)-1] == nil {
		return 0, false
	}
	v := parseFloat(raw[len(raw)-1].LongShortRatio)
	return v, v > 0
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
