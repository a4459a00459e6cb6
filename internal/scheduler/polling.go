// Package scheduler decides when the EA polls next and which timeframes it
// sends.
package scheduler

import (
	"strings"
	"time"

	"botcore/internal/decision"
	"botcore/internal/market"
)

// SODTimeframes 是开盘分析固定使用的周期。
var SODTimeframes = []string{market.H1, market.H4, market.D1, market.W1}

// DefaultIntraday 是日内请求未指定周期时的默认值。
var DefaultIntraday = []string{market.H1, market.M15}

var byAction = map[string][]string{
	decision.ActionWait:    {market.H1, market.M15},
	decision.ActionWatch:   {market.M15, market.M5},
	decision.ActionEnter:   {market.M5, market.M1},
	decision.ActionHotZone: {market.M5, market.M1},
	decision.ActionManage:  {market.M1, market.M5},
	"IN_TRADE":             {market.M1, market.M5},
}

// NextTimeframes 返回下一次请求的周期：开盘分析固定四个大周期；
// 模型显式给出时原样使用；否则按动作推断。
func NextTimeframes(d decision.Decision, isSOD bool) []string {
	if isSOD {
		return clone(SODTimeframes)
	}
	if d.HasRequestedTimeframes() {
		return clone(d.NextRequestedTimeframes)
	}
	if tfs, ok := byAction[strings.ToUpper(strings.TrimSpace(d.Action))]; ok {
		return clone(tfs)
	}
	return clone(DefaultIntraday)
}

// IsStartOfDay 判断请求是否为开盘分析：显式请求的周期包含 H1/H4/D1/W1，
// 或未显式请求时数据恰好只包含这四个周期。
func IsStartOfDay(requested []string, series market.Series) bool {
	if len(requested) > 0 {
		set := make(map[string]bool, len(requested))
		for _, tf := range market.NormalizeTimeframes(requested) {
			set[tf] = true
		}
		for _, tf := range SODTimeframes {
			if !set[tf] {
				return false
			}
		}
		return true
	}
	present := 0
	for tf, cs := range series {
		if len(cs) == 0 {
			continue
		}
		if !contains(SODTimeframes, market.NormalizeTimeframe(tf)) {
			return false
		}
		present++
	}
	return present == len(SODTimeframes)
}

// Window 是某个动作允许的下次运行间隔范围；零值表示该侧不限。
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Bounds 按动作（大写）索引窗口。
type Bounds map[string]Window

// DefaultBounds mirrors the cadence the trading prompt asks the model for.
func DefaultBounds() Bounds {
	return Bounds{
		decision.ActionWait:    {Min: 15 * time.Minute, Max: 60 * time.Minute},
		decision.ActionWatch:   {Min: 5 * time.Minute, Max: 15 * time.Minute},
		decision.ActionHotZone: {Min: time.Minute, Max: 5 * time.Minute},
		decision.ActionEnter:   {Min: time.Minute, Max: 5 * time.Minute},
		decision.ActionManage:  {Min: time.Minute, Max: 15 * time.Minute},
	}
}

// ClampNextRun 把模型给出的下次运行时间限制在动作对应的窗口内。
// 无法解析的时间、没有窗口的动作保持原样。
func ClampNextRun(d decision.Decision, now time.Time, bounds Bounds) decision.Decision {
	w, ok := bounds[strings.ToUpper(strings.TrimSpace(d.Action))]
	if !ok {
		return d
	}
	next, err := market.ParseTimeString(d.NextRunAtUTC)
	if err != nil || next.IsZero() {
		return d
	}
	delta := next.Sub(now)
	switch {
	case w.Min > 0 && delta < w.Min:
		next = now.Add(w.Min)
	case w.Max > 0 && delta > w.Max:
		next = now.Add(w.Max)
	default:
		return d
	}
	out := d
	out.NextRunAtUTC = decision.FormatTime(next)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
