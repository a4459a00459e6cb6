package pattern

import (
	"testing"
	"time"

	"botcore/internal/market"
	"botcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func hl(i int, high, low float64) market.Candle {
	mid := (high + low) / 2
	return market.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: mid, High: high, Low: low, Close: mid}
}

func TestDetectFVGs(t *testing.T) {
	t.Run("bullish gap between first and third candle", func(t *testing.T) {
		cs := market.Candles{hl(0, 1.10, 1.08), hl(1, 1.12, 1.11), hl(2, 1.14, 1.13)}
		got := DetectFVGs(market.H1, cs)
		require.Len(t, got, 1)
		assert.Equal(t, Bullish, got[0].Type)
		assert.Equal(t, [2]float64{1.10, 1.13}, got[0].Zone)
		assert.Equal(t, cs[1].Time, got[0].Time)
		assert.Equal(t, market.H1, got[0].Timeframe)
	})

	t.Run("bearish gap", func(t *testing.T) {
		cs := market.Candles{hl(0, 1.14, 1.13), hl(1, 1.12, 1.11), hl(2, 1.10, 1.08)}
		got := DetectFVGs(market.M15, cs)
		require.Len(t, got, 1)
		assert.Equal(t, Bearish, got[0].Type)
		assert.Equal(t, [2]float64{1.10, 1.13}, got[0].Zone)
	})

	t.Run("touching wicks are not a gap", func(t *testing.T) {
		up := market.Candles{hl(0, 1.10, 1.08), hl(1, 1.12, 1.09), hl(2, 1.14, 1.10)}
		down := market.Candles{hl(0, 1.14, 1.10), hl(1, 1.12, 1.09), hl(2, 1.10, 1.08)}
		assert.Empty(t, DetectFVGs(market.H1, up))
		assert.Empty(t, DetectFVGs(market.H1, down))
	})

	t.Run("fewer than three candles", func(t *testing.T) {
		assert.Empty(t, DetectFVGs(market.H1, market.Candles{hl(0, 1, 0.9), hl(1, 1.2, 1.1)}))
	})
}

func TestDetectAcceptsNewestFirst(t *testing.T) {
	asc := market.Candles{hl(0, 1.10, 1.08), hl(1, 1.12, 1.11), hl(2, 1.14, 1.13)}
	desc := market.Candles{asc[2], asc[1], asc[0]}

	a := Detect(Input{Series: market.Series{market.H1: asc}}, Options{})
	d := Detect(Input{Series: market.Series{market.H1: desc}}, Options{})
	assert.Equal(t, a.FVGs, d.FVGs)
	require.Len(t, d.FVGs, 1)
	assert.Equal(t, [2]float64{1.10, 1.13}, d.FVGs[0].Zone)
}

func TestDetectSwingsAndBOS(t *testing.T) {
	cs := market.Candles{
		hl(0, 1.0, 0.90),
		hl(1, 1.2, 0.95), // swing high 1.2
		hl(2, 1.1, 0.85), // swing low 0.85
		hl(3, 1.3, 0.95), // swing high 1.3 -> bullish BOS over 1.2
		hl(4, 1.1, 0.80), // swing low 0.80 -> bearish BOS under 0.85
		hl(5, 1.25, 0.9), // swing high 1.25 < 1.3, no BOS
		hl(6, 1.0, 0.95),
	}
	swings := DetectSwings(cs)
	require.Len(t, swings, 5)
	assert.Equal(t, SwingHigh, swings[0].Kind)
	assert.Equal(t, SwingLow, swings[1].Kind)

	bos := DetectBOS(market.H1, swings)
	require.Len(t, bos, 2)
	assert.Equal(t, Bullish, bos[0].Type)
	assert.Equal(t, 1.3, bos[0].Price)
	assert.Equal(t, 1.2, bos[0].BrokenLevel)
	assert.Equal(t, Bearish, bos[1].Type)
	assert.Equal(t, 0.80, bos[1].Price)
	assert.Equal(t, 0.85, bos[1].BrokenLevel)
}

func TestSwingCandleCanBeBoth(t *testing.T) {
	cs := market.Candles{hl(0, 1.1, 1.0), hl(1, 1.3, 0.9), hl(2, 1.2, 1.0)}
	swings := DetectSwings(cs)
	require.Len(t, swings, 2)
	assert.Equal(t, SwingHigh, swings[0].Kind)
	assert.Equal(t, SwingLow, swings[1].Kind)
	assert.Equal(t, 1, swings[1].Index)
}

func TestDetectImbalancesBoundary(t *testing.T) {
	mk := func(open, closePx, high, low float64) market.Candle {
		return market.Candle{Time: t0, Open: open, Close: closePx, High: high, Low: low}
	}
	t.Run("exactly 0.70 is not flagged", func(t *testing.T) {
		assert.Empty(t, DetectImbalances(market.H1, market.Candles{mk(1.0, 1.7, 2.0, 1.0)}, 0.70))
		assert.Empty(t, DetectImbalances(market.H1, market.Candles{mk(0, 7, 10, 0)}, 0.70))
	})
	t.Run("just above is flagged", func(t *testing.T) {
		got := DetectImbalances(market.H1, market.Candles{mk(0, 7.000001, 10, 0)}, 0.70)
		require.Len(t, got, 1)
		assert.Equal(t, Bullish, got[0].Type)
	})
	t.Run("bearish body", func(t *testing.T) {
		got := DetectImbalances(market.H1, market.Candles{mk(1.0950, 1.0870, 1.0960, 1.0860)}, 0.70)
		require.Len(t, got, 1)
		assert.Equal(t, Bearish, got[0].Type)
		assert.InDelta(t, 0.8, got[0].BodyRatio, 1e-9)
	})
	t.Run("zero range skipped", func(t *testing.T) {
		assert.Empty(t, DetectImbalances(market.H1, market.Candles{mk(1, 1, 1, 1)}, 0.70))
	})
}

func TestLevelInteractionsBoundary(t *testing.T) {
	levels := []store.Level{{Type: store.LevelZone, Price: 1.1000, Timeframe: market.H1}}
	cases := []struct {
		name   string
		price  float64
		status InteractionStatus
		omit   bool
	}{
		{name: "exactly 20 pips omitted", price: 1.1020, omit: true},
		{name: "19.999 pips approaching", price: 1.1019999, status: StatusApproaching},
		{name: "10 pips approaching", price: 1.0990, status: StatusApproaching},
		{name: "9.999 pips near", price: 1.1009999, status: StatusNear},
		{name: "far away", price: 1.2000, omit: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LevelInteractions(tc.price, levels, Options{})
			if tc.omit {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tc.status, got[0].Status)
			assert.Equal(t, 1.1000, got[0].LevelPrice)
		})
	}
}

func TestLevelInteractionsPipScale(t *testing.T) {
	levels := []store.Level{{Type: store.LevelSwingHigh, Price: 150.00}}
	got := LevelInteractions(150.05, levels, Options{PipScale: 100})
	require.Len(t, got, 1)
	assert.Equal(t, StatusNear, got[0].Status)
	assert.InDelta(t, 5.0, got[0].DistancePips, 1e-9)
}

func TestTrendOf(t *testing.T) {
	var cs market.Candles
	for i := 0; i < 15; i++ {
		c := hl(i, 1.2, 1.0)
		c.Close = 1.0 + float64(i)*0.01
		cs = append(cs, c)
	}
	trend, ok := TrendOf(cs, 10)
	require.True(t, ok)
	assert.Equal(t, Bullish, trend)

	flat := market.Candles{hl(0, 1.2, 1.0), hl(1, 1.2, 1.0)}
	trend, ok = TrendOf(flat, 10)
	require.True(t, ok)
	assert.Equal(t, Bearish, trend, "equal closes are not bullish")

	_, ok = TrendOf(market.Candles{hl(0, 1, 0.9)}, 10)
	assert.False(t, ok)
}

func TestDetectPriceActionAndInteractions(t *testing.T) {
	var h1 market.Candles
	for i := 0; i < 20; i++ {
		c := hl(i, 1.1010+float64(i)*0.0001, 1.0990+float64(i)*0.0001)
		c.Close = 1.1000 + float64(i)*0.0001
		h1 = append(h1, c)
	}
	m15 := market.Candles{hl(0, 1.10, 1.08), hl(1, 1.12, 1.11), hl(2, 1.14, 1.13)}
	in := Input{
		Series: market.Series{market.H1: h1, market.M15: m15},
		Levels: []store.Level{{Type: store.LevelSwingHigh, Price: 1.1025, Timeframe: market.H1}},
	}
	res := Detect(in, Options{})

	assert.Equal(t, market.H1, res.PriceAction.PrimaryTimeframe)
	assert.Equal(t, Bullish, res.PriceAction.Trend)
	assert.Equal(t, 10, res.PriceAction.Window)
	require.NotNil(t, res.PriceAction.CurrentPrice)
	assert.InDelta(t, 1.1019, *res.PriceAction.CurrentPrice, 1e-9)
	require.NotNil(t, res.PriceAction.ATR)
	assert.Contains(t, res.PriceAction.Timeframes, market.M15)

	require.Len(t, res.LevelInteractions, 1)
	assert.Equal(t, StatusNear, res.LevelInteractions[0].Status)

	require.Len(t, res.FVGs, 1)
	assert.Equal(t, market.M15, res.FVGs[0].Timeframe)
	assert.False(t, res.Empty())
}

func TestDetectExplicitCurrentPrice(t *testing.T) {
	price := 1.0850
	res := Detect(Input{
		Series:       market.Series{market.H1: market.Candles{hl(0, 1.2, 1.1), hl(1, 1.2, 1.1)}},
		Levels:       []store.Level{{Type: store.LevelZone, Price: 1.0845}},
		CurrentPrice: &price,
	}, Options{})
	require.Len(t, res.LevelInteractions, 1)
	assert.Equal(t, 1.0850, *res.PriceAction.CurrentPrice)
}

func TestDetectEmptyInput(t *testing.T) {
	res := Detect(Input{}, Options{})
	assert.True(t, res.Empty())
	assert.NotNil(t, res.FVGs)
	assert.NotNil(t, res.LevelInteractions)
}
