package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"botcore/internal/market"
)

var ErrNoCandles = errors.New("no candles to render")

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEmaFast       = "#3b82f6"
	colorEmaMid        = "#fbbf24"
	colorEmaSlow       = "#f472b6"
	colorDIF           = "#22d3ee"
	colorDEA           = "#fb7185"

	defaultWidthPx  = 1200
	defaultHeightPx = 800
	macdShare       = 0.3
	renderTimeout   = 20 * time.Second
)

var emaPeriods = [3]int{20, 50, 200}

// Renderer 用 go-echarts 生成 HTML，再由 headless Chrome 截图为 PNG。
// 数据来自请求自带的 K 线，不依赖外部图表服务。
type Renderer struct {
	Width  int
	Height int
}

func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = defaultWidthPx
	}
	if height <= 0 {
		height = defaultHeightPx
	}
	return &Renderer{Width: width, Height: height}
}

func (r *Renderer) Name() string { return "local" }

// Render draws one timeframe: candles with EMA overlays and a MACD panel.
func (r *Renderer) Render(ctx context.Context, symbol, timeframe string, candles market.Candles) ([]byte, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, ErrNoCandles)
	}
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, fmt.Errorf("headless chrome unavailable: %w", err)
	}
	html, err := r.BuildHTML(symbol, timeframe, candles)
	if err != nil {
		return nil, err
	}
	return renderHTMLToPNG(ctx, html, r.Width, r.Height)
}

// BuildHTML 生成单周期图表页面（K 线 + EMA + MACD）。
func (r *Renderer) BuildHTML(symbol, timeframe string, candles market.Candles) ([]byte, error) {
	cs := candles.Ascending()
	if len(cs) == 0 {
		return nil, ErrNoCandles
	}
	klineHeight := int(float64(r.Height) * (1 - macdShare))
	macdHeight := r.Height - klineHeight

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	maxPrice, minPrice := cs.Range()
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(0.0001, math.Abs(maxPrice)*0.001)
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(r.Width, klineHeight)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s", strings.ToUpper(symbol), timeframe),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 5),
			Max:       round(maxPrice+padding, 5),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	xAxis := buildXAxis(cs)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(cs))

	ema := buildEMALine(cs)
	ema.SetXAxis(xAxis)
	kline.Overlap(ema)

	page.AddCharts(kline, buildMACDChart(timeframe, xAxis, cs, r.Width, macdHeight))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func initOpts(width, height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", width),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildXAxis(candles market.Candles) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		if c.Time.IsZero() {
			x[i] = fmt.Sprintf("#%d", i+1)
			continue
		}
		x[i] = c.Time.UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles market.Candles) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func buildEMALine(candles market.Candles) *charts.Line {
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	closes := candles.Closes()
	colors := [3]string{colorEmaFast, colorEmaMid, colorEmaSlow}
	for i, period := range emaPeriods {
		series := emaSeries(closes, period)
		line.AddSeries(fmt.Sprintf("EMA%d", period), toLineData(series, len(candles)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colors[i], Width: 2}))
	}
	return line
}

// emaSeries 样本不足时返回 nil，图上该线留空。
func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	out := talib.Ema(closes, period)
	// talib 在预热区间填 0。
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

func buildMACDChart(timeframe string, xAxis []string, candles market.Candles, width, height int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(width, height)),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("MACD %s", timeframe), Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	dif, dea, hist := calcMACDSeries(candles)
	histData := make([]opts.BarData, len(candles))
	offset := len(candles) - len(hist)
	for i := range histData {
		j := i - offset
		if j < 0 || j >= len(hist) || math.IsNaN(hist[j]) {
			histData[i] = opts.BarData{Value: nil}
			continue
		}
		color := colorBear
		if hist[j] >= 0 {
			color = colorBull
		}
		histData[i] = opts.BarData{Value: round(hist[j], 6), ItemStyle: &opts.ItemStyle{Color: color}}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("MACD Hist", histData)

	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineStyleOpts(opts.LineStyle{Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("DIF", toLineData(dif, len(candles)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDIF, Width: 2}))
	line.AddSeries("DEA", toLineData(dea, len(candles)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDEA, Width: 2}))
	bar.Overlap(line)
	return bar
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 6)}
		}
	}
	return line
}

func calcMACDSeries(candles market.Candles) (dif, dea, hist []float64) {
	const slow = 26
	if len(candles) < slow {
		return nil, nil, nil
	}
	return talib.Macd(candles.Closes(), 12, 26, 9)
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, renderTimeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
