package pattern

import (
	"botcore/internal/market"

	"github.com/shopspring/decimal"
)

// DetectFVGs scans an ascending series with a 3-candle window. Touching
// wicks (prev.high == next.low) are not a gap.
func DetectFVGs(tf string, cs market.Candles) []FVG {
	if len(cs) < 3 {
		return nil
	}
	var out []FVG
	for i := 1; i < len(cs)-1; i++ {
		prev, curr, next := cs[i-1], cs[i], cs[i+1]
		switch {
		case prev.High < next.Low:
			out = append(out, FVG{Timeframe: tf, Type: Bullish, Zone: [2]float64{prev.High, next.Low}, Time: curr.Time})
		case prev.Low > next.High:
			out = append(out, FVG{Timeframe: tf, Type: Bearish, Zone: [2]float64{next.High, prev.Low}, Time: curr.Time})
		}
	}
	return out
}

// DetectSwings 返回按索引排列的摆动点；同一根 K 线可同时是高点和低点（先高后低）。
func DetectSwings(cs market.Candles) []Swing {
	if len(cs) < 3 {
		return nil
	}
	var out []Swing
	for i := 1; i < len(cs)-1; i++ {
		c := cs[i]
		if c.High > cs[i-1].High && c.High > cs[i+1].High {
			out = append(out, Swing{Kind: SwingHigh, Index: i, Price: c.High, Time: c.Time})
		}
		if c.Low < cs[i-1].Low && c.Low < cs[i+1].Low {
			out = append(out, Swing{Kind: SwingLow, Index: i, Price: c.Low, Time: c.Time})
		}
	}
	return out
}

// DetectBOS compares every swing with the nearest earlier swing of the same
// kind: a higher swing high is a bullish break, a lower swing low bearish.
func DetectBOS(tf string, swings []Swing) []BOS {
	var (
		out      []BOS
		lastHigh *Swing
		lastLow  *Swing
	)
	for i := range swings {
		s := swings[i]
		switch s.Kind {
		case SwingHigh:
			if lastHigh != nil && s.Price > lastHigh.Price {
				out = append(out, BOS{Timeframe: tf, Type: Bullish, Price: s.Price, BrokenLevel: lastHigh.Price, Time: s.Time})
			}
			lastHigh = &swings[i]
		case SwingLow:
			if lastLow != nil && s.Price < lastLow.Price {
				out = append(out, BOS{Timeframe: tf, Type: Bearish, Price: s.Price, BrokenLevel: lastLow.Price, Time: s.Time})
			}
			lastLow = &swings[i]
		}
	}
	return out
}

// DetectImbalances flags candles whose body/range ratio is strictly above
// the threshold. The ratio is computed in decimal so that quoted prices
// (e.g. a 0.7 body over a 1.0 range) sit exactly on the boundary.
func DetectImbalances(tf string, cs market.Candles, threshold float64) []Imbalance {
	limit := decimal.NewFromFloat(threshold)
	var out []Imbalance
	for _, c := range cs {
		high, low := decimal.NewFromFloat(c.High), decimal.NewFromFloat(c.Low)
		rng := high.Sub(low)
		if !rng.IsPositive() {
			continue
		}
		open, closePx := decimal.NewFromFloat(c.Open), decimal.NewFromFloat(c.Close)
		ratio := closePx.Sub(open).Abs().Div(rng)
		if !ratio.GreaterThan(limit) {
			continue
		}
		dir := Bullish
		if closePx.LessThan(open) {
			dir = Bearish
		}
		r, _ := ratio.Round(4).Float64()
		out = append(out, Imbalance{Timeframe: tf, Type: dir, BodyRatio: r, Time: c.Time})
	}
	return out
}
