package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// riskLabels 为风险资产提供可读名称；未列出的代码直接用代码本身。
var riskLabels = map[string]string{
	"^VIX":     "VIX (Equity Volatility)",
	"DX-Y.NYB": "DXY (US Dollar Index)",
	"^TNX":     "US 10Y Treasury Yield",
	"^UST2YR":  "US 2Y Treasury Yield",
	"GC=F":     "Gold",
	"CL=F":     "Crude Oil",
	"^GSPC":    "S&P 500",
	"NQ=F":     "Nasdaq Futures",
	"BTC-USD":  "Bitcoin",
}

func RiskLabel(symbol string) string {
	if l, ok := riskLabels[symbol]; ok {
		return l
	}
	return symbol
}

type Asset struct {
	Price            *float64 `json:"price"`
	ChangePct        *float64 `json:"change_pct"`
	FiftyDayAvg      *float64 `json:"fifty_day_avg"`
	TwoHundredDayAvg *float64 `json:"two_hundred_day_avg"`
	FiftyTwoWeekHigh *float64 `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  *float64 `json:"fifty_two_week_low"`
}

type YahooConfig struct {
	Host    string
	APIKey  string
	Symbols []string
	Timeout time.Duration
	// BaseURL 覆盖 https://<Host>，测试用。
	BaseURL string
}

// YahooQuotes 通过 RapidAPI 的 Yahoo Finance 接口批量读取风险资产报价。
type YahooQuotes struct {
	cfg  YahooConfig
	http *http.Client
}

func NewYahooQuotes(cfg YahooConfig) (*YahooQuotes, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("rapidapi key is empty")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no risk symbols configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	return &YahooQuotes{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Quotes 返回 label -> 报价；接口未返回的代码被省略。
func (y *YahooQuotes) Quotes(ctx context.Context) (map[string]Asset, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(y.cfg.Symbols, ","))
	q.Set("fields", "quoteSummary")
	endpoint := strings.TrimRight(y.cfg.BaseURL, "/") + "/api/market/get-quote-v2?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", y.cfg.APIKey)
	req.Header.Set("x-rapidapi-host", y.cfg.Host)

	resp, err := y.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("rapidapi status=%d", resp.StatusCode)
	}
	return parseQuotes(body, y.cfg.Symbols)
}

func parseQuotes(body []byte, symbols []string) (map[string]Asset, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("rapidapi: invalid json")
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make(map[string]Asset)
	gjson.GetBytes(body, "quoteResponse.result").ForEach(func(_, item gjson.Result) bool {
		sym := item.Get("symbol").String()
		if !wanted[sym] {
			return true
		}
		summary := item.Get("quoteSummary.summaryDetail")
		out[RiskLabel(sym)] = Asset{
			Price:            number(item.Get("regularMarketPrice")),
			ChangePct:        number(item.Get("regularMarketChangePercent")),
			FiftyDayAvg:      number(summary.Get("fiftyDayAverage")),
			TwoHundredDayAvg: number(summary.Get("twoHundredDayAverage")),
			FiftyTwoWeekHigh: number(summary.Get("fiftyTwoWeekHigh")),
			FiftyTwoWeekLow:  number(summary.Get("fiftyTwoWeekLow")),
		}
		return true
	})
	return out, nil
}

// number 兼容 Yahoo 的两种形态：裸数字或 {"raw": 1.23, "fmt": "1.23"}。
func number(r gjson.Result) *float64 {
	if r.IsObject() {
		r = r.Get("raw")
	}
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}
