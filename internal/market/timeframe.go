package market

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Canonical timeframe labels used across the pipeline.
const (
	M1  = "M1"
	M5  = "M5"
	M15 = "M15"
	M30 = "M30"
	H1  = "H1"
	H4  = "H4"
	D1  = "D1"
	W1  = "W1"
	MN  = "MN"
)

// DataKeySuffix 是 EA 负载中 K 线数组的键后缀（如 "H1_DATA"、"1h_DATA"）。
const DataKeySuffix = "_DATA"

var timeframeAliases = map[string]string{
	"1M": M1, "1MIN": M1, "M1": M1, "1": M1,
	"5M": M5, "5MIN": M5, "M5": M5, "5": M5,
	"15M": M15, "15MIN": M15, "M15": M15, "15": M15,
	"30M": M30, "30MIN": M30, "M30": M30, "30": M30,
	"1H": H1, "H1": H1, "60": H1, "60M": H1,
	"4H": H4, "H4": H4, "240": H4,
	"1D": D1, "D1": D1, "D": D1, "DAILY": D1,
	"1W": W1, "W1": W1, "W": W1, "WEEKLY": W1,
	"MN": MN, "MN1": MN, "1MO": MN,
}

// timeframeOrder 用于稳定排序：大周期在前。
var timeframeOrder = map[string]int{MN: 0, W1: 1, D1: 2, H4: 3, H1: 4, M30: 5, M15: 6, M5: 7, M1: 8}

// NormalizeTimeframe maps EA spellings ("1h_DATA", "H1_DATA", "1h", "60")
// onto canonical labels. Unknown labels are upper-cased and kept, since
// series keys are caller-defined.
func NormalizeTimeframe(label string) string {
	s := strings.TrimSpace(label)
	if len(s) > len(DataKeySuffix) && strings.EqualFold(s[len(s)-len(DataKeySuffix):], DataKeySuffix) {
		s = s[:len(s)-len(DataKeySuffix)]
	}
	if s == "" {
		return ""
	}
	// "1M" from MT5 means one minute; the month is spelled MN.
	upper := strings.ToUpper(s)
	if canon, ok := timeframeAliases[upper]; ok {
		return canon
	}
	return upper
}

func NormalizeTimeframes(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		tf := NormalizeTimeframe(l)
		if tf == "" || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

// Duration returns the bar length of a canonical timeframe, or zero.
func Duration(tf string) time.Duration {
	switch NormalizeTimeframe(tf) {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	case W1:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// SortTimeframes orders labels from the largest bar to the smallest; unknown
// labels sort last alphabetically.
func SortTimeframes(labels []string) []string {
	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool {
		oi, okI := timeframeOrder[out[i]]
		oj, okJ := timeframeOrder[out[j]]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// Series 按周期保存 K 线，key 为规范化后的周期标签。
type Series map[string]Candles

func (s Series) Timeframes() []string {
	out := make([]string, 0, len(s))
	for tf := range s {
		out = append(out, tf)
	}
	return SortTimeframes(out)
}

// Has reports whether the series contains a non-empty entry for tf.
func (s Series) Has(tf string) bool {
	return len(s[NormalizeTimeframe(tf)]) > 0
}

// Subset returns the series restricted to the given timeframes.
func (s Series) Subset(tfs []string) Series {
	out := make(Series, len(tfs))
	for _, tf := range tfs {
		tf = NormalizeTimeframe(tf)
		if cs, ok := s[tf]; ok {
			out[tf] = cs
		}
	}
	return out
}

// SeriesFromPayload 从 EA 负载中提取所有 *_DATA 键；其余键忽略。
func SeriesFromPayload(payload map[string]json.RawMessage) (Series, error) {
	out := make(Series)
	for key, raw := range payload {
		if !strings.HasSuffix(strings.ToUpper(key), DataKeySuffix) {
			continue
		}
		tf := NormalizeTimeframe(key)
		if tf == "" {
			continue
		}
		var cs Candles
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out[tf] = cs
	}
	return out, nil
}

// SeriesFromMap decodes a {"H1": [...], "M15": [...]} object, skipping
// non-array members such as current_price.
func SeriesFromMap(payload map[string]json.RawMessage) (Series, error) {
	out := make(Series)
	for key, raw := range payload {
		trimmed := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(trimmed, "[") {
			continue
		}
		var cs Candles
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out[NormalizeTimeframe(key)] = cs
	}
	return out, nil
}
