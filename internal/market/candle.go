package market

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Candle 是 EA 推送的单根 K 线。time 字段兼容秒/毫秒时间戳与多种字符串格式。
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type candleWire struct {
	Time   json.RawMessage `json:"time"`
	Open   json.Number     `json:"open"`
	High   json.Number     `json:"high"`
	Low    json.Number     `json:"low"`
	Close  json.Number     `json:"close"`
	Volume json.Number     `json:"volume"`
}

// MT5 exports "2024.01.15 08:00" style timestamps.
var candleTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02",
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	var w candleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := ParseTime(w.Time)
	if err != nil {
		return err
	}
	c.Time = ts
	fields := []struct {
		name string
		num  json.Number
		dst  *float64
	}{
		{"open", w.Open, &c.Open},
		{"high", w.High, &c.High},
		{"low", w.Low, &c.Low},
		{"close", w.Close, &c.Close},
		{"volume", w.Volume, &c.Volume},
	}
	for _, f := range fields {
		if f.num == "" {
			*f.dst = 0
			continue
		}
		v, err := f.num.Float64()
		if err != nil {
			return fmt.Errorf("candle %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

func (c Candle) MarshalJSON() ([]byte, error) {
	type out struct {
		Time   string  `json:"time"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	}
	ts := ""
	if !c.Time.IsZero() {
		ts = c.Time.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out{Time: ts, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
}

// ParseTime 解析 JSON 中的时间字段：数字（秒或毫秒）、数字字符串或日期字符串。
// 缺失或 null 返回零值。
func ParseTime(raw json.RawMessage) (time.Time, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return time.Time{}, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return ParseTimeString(s)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid candle time %s", text)
	}
	return epochToTime(f), nil
}

func ParseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(f), nil
	}
	for _, layout := range candleTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format %q", s)
}

func epochToTime(f float64) time.Time {
	if math.Abs(f) >= 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

type Candles []Candle

// Ascending 返回按时间升序的副本；EA 可能按最新在前的顺序发送。
// 时间戳缺失时退化为：首根晚于末根则整体反转。
func (cs Candles) Ascending() Candles {
	out := make(Candles, len(cs))
	copy(out, cs)
	if len(out) < 2 {
		return out
	}
	allTimed := true
	for _, c := range out {
		if c.Time.IsZero() {
			allTimed = false
			break
		}
	}
	if allTimed {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
		return out
	}
	if out[0].Time.After(out[len(out)-1].Time) {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Tail returns the most recent n candles of an ascending series.
func (cs Candles) Tail(n int) Candles {
	if n <= 0 || n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

// Range 返回区间最高/最低价。
func (cs Candles) Range() (high, low float64) {
	if len(cs) == 0 {
		return 0, 0
	}
	high, low = -math.MaxFloat64, math.MaxFloat64
	for _, c := range cs {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low
}
