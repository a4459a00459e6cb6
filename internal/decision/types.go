package decision

import (
	"encoding/json"
	"strings"
	"time"

	"botcore/internal/market"
	"botcore/internal/store"
)

// Actions the EA understands.
const (
	ActionWait      = "WAIT"
	ActionWatch     = "WATCH"
	ActionEnter     = "ENTER"
	ActionManage    = "MANAGE"
	ActionExit      = "EXIT"
	ActionStandDown = "STAND_DOWN"
	ActionHotZone   = "HOTZONE"
	ActionError     = "ERROR"
)

// 决策相关的原因码。
const (
	ReasonParseError       = "PARSE_ERROR"
	ReasonMaxTradesReached = "MAX_TRADES_REACHED"
)

var validActions = map[string]bool{
	ActionWait: true, ActionWatch: true, ActionEnter: true, ActionManage: true,
	ActionExit: true, ActionStandDown: true, ActionHotZone: true, ActionError: true,
}

// IsValidAction reports whether a (normalised) action belongs to the fixed set.
func IsValidAction(action string) bool {
	return validActions[action]
}

// Decision 是一次轮询返回给 EA 的结果。
// next_run_at_utc 保留字符串：无法解析的时间原样透传。
type Decision struct {
	Action                  string         `json:"action"`
	NextRunAtUTC            string         `json:"next_run_at_utc"`
	SetupID                 *string        `json:"setup_id"`
	LevelsUpdate            []LevelUpdate  `json:"levels_update"`
	OrderIntent             *OrderIntent   `json:"order_intent"`
	ReasonCodes             []string       `json:"reason_codes"`
	StateUpdate             StateUpdate    `json:"state_update"`
	NextRequestedTimeframes []string       `json:"next_requested_timeframes"`
	Error                   *string        `json:"error"`
	Summary                 string         `json:"summary,omitempty"`
	KeyPoints               []string       `json:"key_points,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`

	// requestedTimeframesSet 区分“模型给了空列表”与“没给”。
	requestedTimeframesSet bool
}

// HasRequestedTimeframes reports whether the model explicitly listed the
// timeframes it wants next.
func (d Decision) HasRequestedTimeframes() bool {
	return d.requestedTimeframesSet || len(d.NextRequestedTimeframes) > 0
}

// SetRequestedTimeframes overwrites the next timeframes.
func (d *Decision) SetRequestedTimeframes(tfs []string) {
	d.NextRequestedTimeframes = tfs
	d.requestedTimeframesSet = true
}

// SetError sets the error marker.
func (d *Decision) SetError(msg string) {
	d.Error = &msg
}

// ErrorText returns the error marker or "".
func (d Decision) ErrorText() string {
	if d.Error == nil {
		return ""
	}
	return *d.Error
}

// SetupIDText returns the setup id or "".
func (d Decision) SetupIDText() string {
	if d.SetupID == nil {
		return ""
	}
	return strings.TrimSpace(*d.SetupID)
}

// SetMeta 写入一项元数据。
func (d *Decision) SetMeta(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}

// Clone returns a deep copy so validation never aliases caller state.
func (d Decision) Clone() Decision {
	out := d
	if d.SetupID != nil {
		id := *d.SetupID
		out.SetupID = &id
	}
	if d.Error != nil {
		e := *d.Error
		out.Error = &e
	}
	if d.OrderIntent != nil {
		oi := *d.OrderIntent
		out.OrderIntent = &oi
	}
	out.LevelsUpdate = append([]LevelUpdate(nil), d.LevelsUpdate...)
	out.ReasonCodes = append([]string(nil), d.ReasonCodes...)
	out.KeyPoints = append([]string(nil), d.KeyPoints...)
	out.NextRequestedTimeframes = append([]string(nil), d.NextRequestedTimeframes...)
	if d.StateUpdate != nil {
		out.StateUpdate = make(StateUpdate, len(d.StateUpdate))
		for k, v := range d.StateUpdate {
			out.StateUpdate[k] = v
		}
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// MarshalJSON keeps the transport shape stable: reason_codes,
// next_requested_timeframes and state_update are never null.
func (d Decision) MarshalJSON() ([]byte, error) {
	type alias Decision
	out := alias(d)
	if out.ReasonCodes == nil {
		out.ReasonCodes = []string{}
	}
	if out.NextRequestedTimeframes == nil {
		out.NextRequestedTimeframes = []string{}
	}
	if out.StateUpdate == nil {
		out.StateUpdate = StateUpdate{}
	}
	return json.Marshal(out)
}

// OrderIntent 的数值字段用指针区分“缺失”和 0。
type OrderIntent struct {
	Type       string   `json:"type"`
	Price      *float64 `json:"price"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	RiskPct    *float64 `json:"risk_pct"`
	LotSize    *float64 `json:"lot_size,omitempty"`
}

// Missing lists the mandatory fields the order lacks.
func (o *OrderIntent) Missing() []string {
	if o == nil {
		return nil
	}
	var out []string
	if strings.TrimSpace(o.Type) == "" {
		out = append(out, "type")
	}
	if o.Price == nil {
		out = append(out, "price")
	}
	if o.StopLoss == nil {
		out = append(out, "stop_loss")
	}
	if o.TakeProfit == nil {
		out = append(out, "take_profit")
	}
	if o.RiskPct == nil {
		out = append(out, "risk_pct")
	}
	return out
}

// LevelUpdate 是模型返回的单个价位。
type LevelUpdate struct {
	Type       string         `json:"type"`
	Price      *float64       `json:"price"`
	ZoneTop    *float64       `json:"zone_top,omitempty"`
	ZoneBottom *float64       `json:"zone_bottom,omitempty"`
	Timeframe  string         `json:"timeframe,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToStore converts the updates to store levels, skipping entries without a
// price. Unknown types are kept as generic levels.
func ToStore(updates []LevelUpdate, symbol, session string, now time.Time) []store.Level {
	out := make([]store.Level, 0, len(updates))
	for _, u := range updates {
		if u.Price == nil {
			continue
		}
		lt := store.LevelType(strings.ToLower(strings.TrimSpace(u.Type)))
		switch lt {
		case store.LevelSwingHigh, store.LevelSwingLow, store.LevelZone:
		default:
			lt = store.LevelGeneric
		}
		out = append(out, store.Level{
			Symbol:     symbol,
			Session:    session,
			Type:       lt,
			Price:      *u.Price,
			ZoneTop:    u.ZoneTop,
			ZoneBottom: u.ZoneBottom,
			Timeframe:  market.NormalizeTimeframe(u.Timeframe),
			Metadata:   u.Metadata,
			CreatedAt:  now.UTC(),
		})
	}
	return out
}

// StateUpdate 原样保存模型给出的 setup 状态；phase 驱动生命周期。
type StateUpdate map[string]any

// Phase returns the upper-cased phase or "".
func (s StateUpdate) Phase() string {
	if s == nil {
		return ""
	}
	v, _ := s["phase"].(string)
	return strings.ToUpper(strings.TrimSpace(v))
}

// AccountState 是 EA 上报的账户信息；Raw 原样进入上下文。
type AccountState struct {
	OpenPositions   []json.RawMessage `json:"open_positions,omitempty"`
	// MaxTradesPerDay 为 nil 表示 EA 未给出；显式 0 表示禁止开仓。
	MaxTradesPerDay *int              `json:"max_trades_per_day,omitempty"`
	// PositionsReported 为 true 表示 EA 显式给出了 open_positions（即使为空）。
	PositionsReported bool            `json:"-"`
	Raw               json.RawMessage `json:"-"`
}

// ParseAccountState decodes the EA account object. An empty payload is a
// zero AccountState.
func ParseAccountState(raw json.RawMessage) (AccountState, error) {
	var acct AccountState
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return acct, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return acct, err
	}
	acct.Raw = append(json.RawMessage(nil), raw...)
	if v, ok := fields["open_positions"]; ok && strings.TrimSpace(string(v)) != "null" {
		if err := json.Unmarshal(v, &acct.OpenPositions); err != nil {
			return acct, err
		}
		acct.PositionsReported = true
	}
	if v, ok := fields["max_trades_per_day"]; ok {
		var anyVal any
		if err := json.Unmarshal(v, &anyVal); err == nil {
			if f, ok := coerceFloat(anyVal); ok {
				limit := int(f)
				acct.MaxTradesPerDay = &limit
			}
		}
	}
	return acct, nil
}

// Trace 记录一次决策调用，供审计日志使用。
type Trace struct {
	ID         string        `json:"trace_id"`
	Model      string        `json:"model"`
	StartedAt  time.Time     `json:"started_at"`
	Latency    time.Duration `json:"latency"`
	RawOutput  string        `json:"raw_output"`
	ParseError string        `json:"parse_error,omitempty"`
}
