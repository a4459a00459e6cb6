package chartimg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"botcore/internal/market"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api.chart-img.com/v1/tradingview/advanced-chart"
	maxImageBytes  = 10 << 20
)

var ErrNoImage = errors.New("chart-img returned no image")

// intervalMap 把内部周期映射为 chart-img 的 interval 参数；未知周期按 60 处理。
var intervalMap = map[string]string{
	market.M1:  "1",
	market.M5:  "5",
	market.M15: "15",
	market.M30: "30",
	market.H1:  "60",
	market.H4:  "240",
	market.D1:  "D",
	market.W1:  "W",
}

func Interval(tf string) string {
	if v, ok := intervalMap[market.NormalizeTimeframe(tf)]; ok {
		return v
	}
	return "60"
}

type Config struct {
	BaseURL      string
	APIKey       string
	Width        int
	Height       int
	Theme        string
	SymbolPrefix string
	Timeout      time.Duration
}

// Client 调用 chart-img.com 渲染 TradingView 图表。
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("chart-img api key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Width <= 0 {
		cfg.Width = 1200
	}
	if cfg.Height <= 0 {
		cfg.Height = 800
	}
	if cfg.Theme == "" {
		cfg.Theme = "dark"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Client) Name() string { return "chartimg" }

// Symbol 为裸货币对加上交易所前缀，如 EURUSD -> FX:EURUSD。
func (c *Client) Symbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if c.cfg.SymbolPrefix == "" || strings.Contains(symbol, ":") {
		return symbol
	}
	return c.cfg.SymbolPrefix + ":" + symbol
}

// Render fetches one chart image. Candles are ignored: chart-img draws from
// its own feed.
func (c *Client) Render(ctx context.Context, symbol, timeframe string, _ market.Candles) ([]byte, error) {
	q := url.Values{}
	q.Set("symbol", c.Symbol(symbol))
	q.Set("interval", Interval(timeframe))
	q.Set("width", strconv.Itoa(c.cfg.Width))
	q.Set("height", strconv.Itoa(c.cfg.Height))
	q.Set("theme", c.cfg.Theme)
	q.Set("studies", "")
	endpoint := c.cfg.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", "chart-img.com")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	body, contentType, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("chart-img %s %s: %w", symbol, timeframe, err)
	}
	if strings.HasPrefix(contentType, "image/") {
		return body, nil
	}
	return c.imageFromJSON(ctx, body)
}

// imageFromJSON 处理 JSON 响应：image / url / data 字段可能是链接或 base64。
func (c *Client) imageFromJSON(ctx context.Context, body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNoImage
	}
	parsed := gjson.ParseBytes(body)
	var ref string
	for _, key := range []string{"image", "url", "data"} {
		if v := strings.TrimSpace(parsed.Get(key).String()); v != "" {
			ref = v
			break
		}
	}
	switch {
	case ref == "":
		return nil, ErrNoImage
	case strings.HasPrefix(ref, "data:"):
		_, payload, ok := strings.Cut(ref, ",")
		if !ok {
			return nil, ErrNoImage
		}
		return base64.StdEncoding.DecodeString(payload)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return c.download(ctx, ref)
	default:
		return base64.StdEncoding.DecodeString(ref)
	}
}

func (c *Client) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("download chart: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrNoImage
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, "", fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
	}
	return body, strings.ToLower(resp.Header.Get("Content-Type")), nil
}
