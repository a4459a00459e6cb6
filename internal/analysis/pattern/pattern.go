package pattern

import (
	"time"

	"botcore/internal/market"
	"botcore/internal/store"
)

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Options 控制检测阈值；零值字段使用默认值。
type Options struct {
	// PipScale converts a price difference into pips (10000 for most FX
	// pairs, 100 for JPY quotes).
	PipScale        float64
	NearPips        float64
	ApproachingPips float64
	ImbalanceRatio  float64
	TrendWindow     int
	ATRPeriod       int
}

const (
	DefaultPipScale        = 10000
	DefaultNearPips        = 10
	DefaultApproachingPips = 20
	DefaultImbalanceRatio  = 0.70
	DefaultTrendWindow     = 10
	DefaultATRPeriod       = 14
)

func (o Options) withDefaults() Options {
	if o.PipScale <= 0 {
		o.PipScale = DefaultPipScale
	}
	if o.NearPips <= 0 {
		o.NearPips = DefaultNearPips
	}
	if o.ApproachingPips <= 0 {
		o.ApproachingPips = DefaultApproachingPips
	}
	if o.ImbalanceRatio <= 0 {
		o.ImbalanceRatio = DefaultImbalanceRatio
	}
	if o.TrendWindow < 2 {
		o.TrendWindow = DefaultTrendWindow
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = DefaultATRPeriod
	}
	return o
}

type Input struct {
	Series market.Series
	Levels []store.Level
	// CurrentPrice overrides the last close of the primary timeframe.
	CurrentPrice     *float64
	PrimaryTimeframe string
}

type FVG struct {
	Timeframe string     `json:"timeframe"`
	Type      Direction  `json:"type"`
	Zone      [2]float64 `json:"zone"`
	Time      time.Time  `json:"time"`
}

type SwingKind string

const (
	SwingHigh SwingKind = "swing_high"
	SwingLow  SwingKind = "swing_low"
)

type Swing struct {
	Kind  SwingKind `json:"kind"`
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

type BOS struct {
	Timeframe   string    `json:"timeframe"`
	Type        Direction `json:"type"`
	Price       float64   `json:"price"`
	BrokenLevel float64   `json:"broken_level"`
	Time        time.Time `json:"time"`
}

type Imbalance struct {
	Timeframe string    `json:"timeframe"`
	Type      Direction `json:"type"`
	BodyRatio float64   `json:"body_ratio"`
	Time      time.Time `json:"time"`
}

type InteractionStatus string

const (
	StatusNear        InteractionStatus = "near"
	StatusApproaching InteractionStatus = "approaching"
)

type LevelInteraction struct {
	Timeframe    string            `json:"timeframe,omitempty"`
	LevelType    store.LevelType   `json:"level_type"`
	LevelPrice   float64           `json:"level_price"`
	DistancePips float64           `json:"distance_pips"`
	Status       InteractionStatus `json:"status"`
}

// TimeframeSummary 是每个周期的概况（K 线数、最新价、区间）。
type TimeframeSummary struct {
	Candles     int     `json:"candle_count"`
	LatestPrice float64 `json:"latest_price"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
}

type PriceAction struct {
	PrimaryTimeframe string    `json:"primary_timeframe,omitempty"`
	Trend            Direction `json:"trend,omitempty"`
	CurrentPrice     *float64  `json:"current_price,omitempty"`
	FirstClose       float64   `json:"first_close,omitempty"`
	LastClose        float64   `json:"last_close,omitempty"`
	Window           int       `json:"window,omitempty"`
	RangeHigh        float64   `json:"range_high,omitempty"`
	RangeLow         float64   `json:"range_low,omitempty"`
	ATR              *float64  `json:"atr,omitempty"`
	Slope            float64   `json:"regression_slope,omitempty"`

	Timeframes map[string]TimeframeSummary `json:"timeframes,omitempty"`
}

type Result struct {
	FVGs              []FVG              `json:"fvgs"`
	BOSSignals        []BOS              `json:"bos_signals"`
	Imbalances        []Imbalance        `json:"imbalances"`
	LevelInteractions []LevelInteraction `json:"level_interactions"`
	PriceAction       PriceAction        `json:"price_action"`
}

// Empty reports whether nothing was detected and no price action exists.
func (r Result) Empty() bool {
	return len(r.FVGs) == 0 && len(r.BOSSignals) == 0 && len(r.Imbalances) == 0 &&
		len(r.LevelInteractions) == 0 && r.PriceAction.PrimaryTimeframe == ""
}

// Detect 对所有周期运行 FVG/BOS/失衡检测，并结合锁定价位计算价位交互。
// 纯函数：不做 I/O，输入顺序（新→旧或旧→新）均可。
func Detect(in Input, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{
		FVGs:              []FVG{},
		BOSSignals:        []BOS{},
		Imbalances:        []Imbalance{},
		LevelInteractions: []LevelInteraction{},
	}
	ascending := make(map[string]market.Candles, len(in.Series))
	for tf, cs := range in.Series {
		ascending[tf] = cs.Ascending()
	}
	for _, tf := range in.Series.Timeframes() {
		cs := ascending[tf]
		res.FVGs = append(res.FVGs, DetectFVGs(tf, cs)...)
		res.BOSSignals = append(res.BOSSignals, DetectBOS(tf, DetectSwings(cs))...)
		res.Imbalances = append(res.Imbalances, DetectImbalances(tf, cs, opts.ImbalanceRatio)...)
	}

	primary := choosePrimary(in.PrimaryTimeframe, ascending, in.Series.Timeframes())
	res.PriceAction = summarizePriceAction(primary, ascending, opts)
	price := in.CurrentPrice
	if price == nil {
		price = res.PriceAction.CurrentPrice
	} else {
		p := *price
		res.PriceAction.CurrentPrice = &p
	}
	if price != nil {
		res.LevelInteractions = LevelInteractions(*price, in.Levels, opts)
	}
	return res
}

// primaryPreference 是未指定主周期时的选择顺序。
var primaryPreference = []string{market.H1, market.M15, market.H4, market.M5, market.M30, market.M1, market.D1, market.W1}

func choosePrimary(requested string, series map[string]market.Candles, ordered []string) string {
	if tf := market.NormalizeTimeframe(requested); tf != "" && len(series[tf]) > 0 {
		return tf
	}
	for _, tf := range primaryPreference {
		if len(series[tf]) > 0 {
			return tf
		}
	}
	for _, tf := range ordered {
		if len(series[tf]) > 0 {
			return tf
		}
	}
	return ""
}
