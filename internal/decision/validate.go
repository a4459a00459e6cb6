package decision

import (
	"strings"
	"time"

	"botcore/internal/market"
)

// 默认值（可由配置覆盖）。
const (
	DefaultNextRun         = 15 * time.Minute
	DefaultParseRetry      = 5 * time.Minute
	DefaultErrorRetry      = time.Minute
	DefaultMaxTradesPerDay = 10
)

// 早于此时间的 next_run_at_utc 视为无效，改用默认值。
var minNextRun = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Policy 是校验阶段使用的参数。
type Policy struct {
	DefaultNextRun  time.Duration
	ParseRetry      time.Duration
	ErrorRetry      time.Duration
	MaxTradesPerDay int
}

// DefaultPolicy returns the built-in validation parameters.
func DefaultPolicy() Policy {
	return Policy{
		DefaultNextRun:  DefaultNextRun,
		ParseRetry:      DefaultParseRetry,
		ErrorRetry:      DefaultErrorRetry,
		MaxTradesPerDay: DefaultMaxTradesPerDay,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.DefaultNextRun <= 0 {
		p.DefaultNextRun = def.DefaultNextRun
	}
	if p.ParseRetry <= 0 {
		p.ParseRetry = def.ParseRetry
	}
	if p.ErrorRetry <= 0 {
		p.ErrorRetry = def.ErrorRetry
	}
	if p.MaxTradesPerDay <= 0 {
		p.MaxTradesPerDay = def.MaxTradesPerDay
	}
	return p
}

// Validate 使用默认策略校验决策。
func Validate(d Decision, acct AccountState, now time.Time) Decision {
	return DefaultPolicy().Validate(d, acct, now)
}

// Validate 规范化并约束决策，幂等：对结果再次调用不会产生变化。
//   - 缺失/未知 action → WAIT
//   - 缺失或早于 2000 年的 next_run_at_utc → now+DefaultNextRun；可解析的时间统一为 RFC3339 UTC
//   - order_intent 缺字段 → WAIT 且清空订单；非 ENTER 动作不携带订单
//   - ENTER 且持仓数达到上限 → WAIT，清空订单，追加 MAX_TRADES_REACHED
func (p Policy) Validate(d Decision, acct AccountState, now time.Time) Decision {
	p = p.withDefaults()
	out := d.Clone()

	out.Action = strings.ToUpper(strings.TrimSpace(out.Action))
	if !IsValidAction(out.Action) {
		out.Action = ActionWait
	}

	next := strings.TrimSpace(out.NextRunAtUTC)
	switch {
	case next == "":
		out.NextRunAtUTC = FormatTime(now.Add(p.DefaultNextRun))
	default:
		if t, err := market.ParseTimeString(next); err == nil {
			if t.Before(minNextRun) {
				// "15" 之类的值会被当作 epoch 秒
				out.NextRunAtUTC = FormatTime(now.Add(p.DefaultNextRun))
			} else {
				out.NextRunAtUTC = FormatTime(t)
			}
		} else {
			out.NextRunAtUTC = next
		}
	}

	if out.OrderIntent != nil {
		if len(out.OrderIntent.Missing()) > 0 {
			out.Action = ActionWait
			out.OrderIntent = nil
		} else if out.Action != ActionEnter {
			out.OrderIntent = nil
		}
	}

	if out.Action == ActionEnter {
		limit := p.MaxTradesPerDay
		if acct.MaxTradesPerDay != nil {
			limit = *acct.MaxTradesPerDay
		}
		if len(acct.OpenPositions) >= limit {
			out.Action = ActionWait
			out.OrderIntent = nil
			out.ReasonCodes = appendOnce(out.ReasonCodes, ReasonMaxTradesReached)
		}
	}
	if out.ReasonCodes == nil {
		out.ReasonCodes = []string{}
	}
	return out
}

func appendOnce(codes []string, code string) []string {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}
