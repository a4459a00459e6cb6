package market

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleUnmarshal(t *testing.T) {
	t.Run("mt5 string time", func(t *testing.T) {
		var c Candle
		require.NoError(t, json.Unmarshal([]byte(`{"time":"2024.01.15 08:00","open":"1.1","high":1.2,"low":1.0,"close":1.15}`), &c))
		assert.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), c.Time)
		assert.InDelta(t, 1.1, c.Open, 1e-12)
		assert.Zero(t, c.Volume)
	})

	t.Run("epoch seconds and millis", func(t *testing.T) {
		var sec, ms Candle
		require.NoError(t, json.Unmarshal([]byte(`{"time":1715000000,"open":1,"high":1,"low":1,"close":1}`), &sec))
		require.NoError(t, json.Unmarshal([]byte(`{"time":1715000000000,"open":1,"high":1,"low":1,"close":1}`), &ms))
		assert.Equal(t, sec.Time, ms.Time)
		assert.Equal(t, time.UTC, sec.Time.Location())
	})

	t.Run("bad number", func(t *testing.T) {
		var c Candle
		assert.Error(t, json.Unmarshal([]byte(`{"time":"2024-01-15","open":"abc"}`), &c))
	})

	t.Run("bad time", func(t *testing.T) {
		var c Candle
		assert.Error(t, json.Unmarshal([]byte(`{"time":"yesterday","open":1}`), &c))
	})
}

func TestParseTime(t *testing.T) {
	ts, err := ParseTime(nil)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	ts, err = ParseTime(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	ts, err = ParseTime(json.RawMessage(`"2024-05-06T09:30:00+02:00"`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 30, 0, 0, time.UTC), ts.UTC())
}

func TestCandlesAscending(t *testing.T) {
	t0 := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	newestFirst := Candles{
		{Time: t0.Add(2 * time.Hour), Close: 3},
		{Time: t0.Add(time.Hour), Close: 2},
		{Time: t0, Close: 1},
	}
	asc := newestFirst.Ascending()
	assert.Equal(t, []float64{1, 2, 3}, asc.Closes())
	assert.Equal(t, 3.0, newestFirst[0].Close, "input left untouched")

	last, ok := asc.Last()
	require.True(t, ok)
	assert.Equal(t, 3.0, last.Close)
	assert.Len(t, asc.Tail(2), 2)
	assert.Len(t, asc.Tail(0), 3)

	_, ok = Candles{}.Last()
	assert.False(t, ok)
}

func TestCandlesRange(t *testing.T) {
	high, low := Candles{{High: 1.2, Low: 1.1}, {High: 1.3, Low: 1.05}}.Range()
	assert.Equal(t, 1.3, high)
	assert.Equal(t, 1.05, low)

	high, low = Candles{}.Range()
	assert.Zero(t, high)
	assert.Zero(t, low)
}

func TestNormalizeTimeframe(t *testing.T) {
	cases := map[string]string{
		"1h_DATA":  H1,
		"H1_DATA":  H1,
		"1D_DATA":  D1,
		"1W_DATA":  W1,
		"m15":      M15,
		"60":       H1,
		"1M":       M1,
		"MN1":      MN,
		" h4 ":     H4,
		"custom":   "CUSTOM",
		"":         "",
		"_DATA":    "_DATA",
		"4h_data":  H4,
		"DAILY":    D1,
		"30MIN":    M30,
		"5":        M5,
		"WEEKLY":   W1,
		"240":      H4,
		"1MO":      MN,
		"15M_DATA": M15,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTimeframe(in), in)
	}
	assert.Equal(t, []string{H1, M15}, NormalizeTimeframes([]string{"1h", "H1", "m15", ""}))
}

func TestSortTimeframes(t *testing.T) {
	assert.Equal(t, []string{W1, D1, H1, M5, "X"}, SortTimeframes([]string{"X", M5, D1, W1, H1}))
	assert.Equal(t, time.Hour, Duration("1h"))
	assert.Zero(t, Duration("custom"))
}

func TestSeriesFromPayload(t *testing.T) {
	payload := map[string]json.RawMessage{
		"symbol":   json.RawMessage(`"EURUSD"`),
		"1h_DATA":  json.RawMessage(`[{"time":"2024-05-06T08:00:00Z","open":1,"high":1,"low":1,"close":1}]`),
		"M15_DATA": json.RawMessage(`[]`),
	}
	s, err := SeriesFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{H1, M15}, s.Timeframes())
	assert.True(t, s.Has("1h"))
	assert.False(t, s.Has(M15), "empty arrays do not count")
	assert.Equal(t, []string{H1}, s.Subset([]string{"h1", "D1"}).Timeframes())

	_, err = SeriesFromPayload(map[string]json.RawMessage{"H1_DATA": json.RawMessage(`{"x":1}`)})
	assert.Error(t, err)
}

func TestSeriesFromMap(t *testing.T) {
	s, err := SeriesFromMap(map[string]json.RawMessage{
		"H1":                json.RawMessage(`[{"time":"2024-05-06T08:00:00Z","close":1}]`),
		"current_price":     json.RawMessage(`1.08`),
		"primary_timeframe": json.RawMessage(`"H1"`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{H1}, s.Timeframes())
}
