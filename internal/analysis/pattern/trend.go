package pattern

import (
	"math"

	"botcore/internal/market"

	"github.com/markcheno/go-talib"
)

// TrendOf compares the first and last close of the most recent window
// candles: bullish iff last > first. Coarse on purpose.
func TrendOf(cs market.Candles, window int) (Direction, bool) {
	if window < 2 {
		window = DefaultTrendWindow
	}
	tail := cs.Tail(window)
	if len(tail) < 2 {
		return "", false
	}
	if tail[len(tail)-1].Close > tail[0].Close {
		return Bullish, true
	}
	return Bearish, true
}

func summarizePriceAction(primary string, series map[string]market.Candles, opts Options) PriceAction {
	pa := PriceAction{Timeframes: make(map[string]TimeframeSummary, len(series))}
	for tf, cs := range series {
		last, ok := cs.Last()
		if !ok {
			continue
		}
		hi, lo := cs.Range()
		pa.Timeframes[tf] = TimeframeSummary{Candles: len(cs), LatestPrice: last.Close, High: hi, Low: lo}
	}
	if len(pa.Timeframes) == 0 {
		pa.Timeframes = nil
	}
	cs := series[primary]
	last, ok := cs.Last()
	if !ok {
		return pa
	}
	pa.PrimaryTimeframe = primary
	price := last.Close
	pa.CurrentPrice = &price

	tail := cs.Tail(opts.TrendWindow)
	pa.Window = len(tail)
	pa.FirstClose = tail[0].Close
	pa.LastClose = tail[len(tail)-1].Close
	pa.RangeHigh, pa.RangeLow = tail.Range()
	if trend, ok := TrendOf(cs, opts.TrendWindow); ok {
		pa.Trend = trend
	}
	slope, _ := fitLine(tail.Closes())
	pa.Slope = roundTo(slope, 8)
	if atr, ok := latestATR(cs, opts.ATRPeriod); ok {
		pa.ATR = &atr
	}
	return pa
}

// latestATR 使用 talib 计算最近一根的 ATR；样本不足时返回 false。
func latestATR(cs market.Candles, period int) (float64, bool) {
	if len(cs) <= period {
		return 0, false
	}
	series := talib.Atr(cs.Highs(), cs.Lows(), cs.Closes(), period)
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return roundTo(v, 6), true
}

func fitLine(series []float64) (slope, intercept float64) {
	if len(series) == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(series))
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, series[len(series)-1]
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
