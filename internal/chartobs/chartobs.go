// Package chartobs turns rendered chart images into plain visual
// descriptions, one per timeframe, through a single vision call.
package chartobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"botcore/internal/gateway/provider"
	"botcore/internal/logger"
	"botcore/internal/market"
	"botcore/internal/metrics"
	"botcore/internal/pkg/jsonutil"

	"golang.org/x/sync/errgroup"
)

// ErrNoCharts 表示所有周期的截图都失败，区别于“分析没有发现”。
var ErrNoCharts = errors.New("no chart images could be fetched")

const (
	purpose            = "chart"
	defaultConcurrency = 4
	defaultMaxTokens   = 4000
)

// Renderer 生成单个周期的图表图片（PNG/JPEG 字节）。
type Renderer interface {
	Name() string
	Render(ctx context.Context, symbol, timeframe string, candles market.Candles) ([]byte, error)
}

// Observations 是一次 Describe 的结果。
type Observations struct {
	Symbol       string            `json:"symbol"`
	Descriptions map[string]string `json:"descriptions"`
	// Failed 记录截图失败的周期及原因，这些周期不会出现在 Descriptions 中。
	Failed map[string]string `json:"failed,omitempty"`
	// ParseError 非空时 Descriptions 的值是模型原始回复。
	ParseError string `json:"parse_error,omitempty"`
	Model      string `json:"model,omitempty"`
}

type Options struct {
	Renderer Renderer
	// Fallback 在主渲染器失败且请求自带 K 线时使用（本地 echarts 渲染）。
	Fallback    Renderer
	Model       provider.ModelProvider
	Instruction func() string

	RenderTimeout time.Duration
	CallTimeout   time.Duration
	MaxTokens     int
	Temperature   *float64
	Concurrency   int
	Metrics       *metrics.Recorder
}

type Client struct {
	opts Options
}

func New(opts Options) (*Client, error) {
	if opts.Renderer == nil && opts.Fallback == nil {
		return nil, fmt.Errorf("chartobs: renderer is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("chartobs: model is required")
	}
	if !opts.Model.SupportsVision() {
		return nil, fmt.Errorf("chartobs: model %s does not support images", opts.Model.ID())
	}
	if opts.Instruction == nil {
		return nil, fmt.Errorf("chartobs: instruction is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Client{opts: opts}, nil
}

type chart struct {
	timeframe string
	image     []byte
}

// Describe 并发截取每个周期的图表，再用一次视觉调用获取纯视觉描述。
// 全部截图失败返回 ErrNoCharts；模型回复无法解析时不报错，
// 而是把原始回复映射到每个已发送的周期并设置 ParseError。
func (c *Client) Describe(ctx context.Context, symbol string, timeframes []string, series market.Series) (Observations, error) {
	obs := Observations{Symbol: symbol, Model: c.opts.Model.ID()}
	tfs := market.SortTimeframes(market.NormalizeTimeframes(timeframes))
	if len(tfs) == 0 {
		return obs, fmt.Errorf("%w: no timeframes requested", ErrNoCharts)
	}

	charts, failed := c.fetchAll(ctx, symbol, tfs, series)
	if len(failed) > 0 {
		obs.Failed = failed
	}
	if len(charts) == 0 {
		return obs, fmt.Errorf("%w for %s %v", ErrNoCharts, symbol, tfs)
	}

	images := make([]provider.ImagePayload, 0, len(charts))
	sent := make([]string, 0, len(charts))
	for _, ch := range charts {
		images = append(images, provider.ImagePayload{
			DataURI:     dataURI(ch.image),
			Description: fmt.Sprintf("Chart for %s timeframe:", ch.timeframe),
		})
		sent = append(sent, ch.timeframe)
	}

	callCtx, cancel := withTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	start := time.Now()
	raw, err := c.opts.Model.Call(callCtx, provider.ChatPayload{
		System:      c.opts.Instruction(),
		User:        fmt.Sprintf("Symbol: %s\nTimeframes: %s\nDescribe each chart below.", symbol, strings.Join(sent, ", ")),
		Images:      images,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Purpose:     purpose,
	})
	c.opts.Metrics.ObserveLLM(purpose, time.Since(start), err)
	if err != nil {
		return obs, fmt.Errorf("chart vision call failed: %w", err)
	}

	desc, perr := ParseDescriptions(raw)
	if perr != nil {
		logger.Warnf("[chartobs] %s 视觉回复解析失败，使用原文: %v", symbol, perr)
		obs.ParseError = perr.Error()
		desc = make(map[string]string, len(sent))
		for _, tf := range sent {
			desc[tf] = raw
		}
	}
	obs.Descriptions = desc
	return obs, nil
}

func (c *Client) fetchAll(ctx context.Context, symbol string, tfs []string, series market.Series) ([]chart, map[string]string) {
	var (
		mu     sync.Mutex
		charts []chart
		failed = make(map[string]string)
	)
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, tf := range tfs {
		g.Go(func() error {
			img, err := c.fetchOne(ctx, symbol, tf, series[tf])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("[chartobs] %s %s 截图失败: %v", symbol, tf, err)
				failed[tf] = err.Error()
				return nil
			}
			charts = append(charts, chart{timeframe: tf, image: img})
			return nil
		})
	}
	_ = g.Wait()
	order := make(map[string]int, len(tfs))
	for i, tf := range tfs {
		order[tf] = i
	}
	sort.Slice(charts, func(i, j int) bool { return order[charts[i].timeframe] < order[charts[j].timeframe] })
	return charts, failed
}

func (c *Client) fetchOne(ctx context.Context, symbol, tf string, candles market.Candles) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	if c.opts.Renderer != nil {
		img, err = c.render(ctx, c.opts.Renderer, symbol, tf, candles)
		if err == nil {
			return img, nil
		}
	}
	if c.opts.Fallback == nil || len(candles) == 0 {
		if err == nil {
			err = fmt.Errorf("no candles for %s", tf)
		}
		return nil, err
	}
	primaryErr := err
	img, err = c.render(ctx, c.opts.Fallback, symbol, tf, candles)
	if err != nil && primaryErr != nil {
		return nil, fmt.Errorf("%v; %s: %w", primaryErr, c.opts.Fallback.Name(), err)
	}
	return img, err
}

func (c *Client) render(ctx context.Context, r Renderer, symbol, tf string, candles market.Candles) ([]byte, error) {
	rctx, cancel := withTimeout(ctx, c.opts.RenderTimeout)
	defer cancel()
	img, err := r.Render(rctx, symbol, tf, candles)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%s returned an empty image", r.Name())
	}
	return img, nil
}

// ParseDescriptions 解析 {timeframe: description} 对象；字符串值原样保留，
// 其他值重新编码为 JSON 文本。
func ParseDescriptions(raw string) (map[string]string, error) {
	body, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return nil, fmt.Errorf("no json object in response")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("decode descriptions: %w", err)
	}
	out := make(map[string]string, len(fields))
	for key, val := range fields {
		tf := market.NormalizeTimeframe(key)
		if tf == "" {
			continue
		}
		var s string
		if err := json.Unmarshal(val, &s); err == nil {
			out[tf] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, val); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out[tf] = buf.String()
	}
	return out, nil
}

func dataURI(img []byte) string {
	mime := http.DetectContentType(img)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
