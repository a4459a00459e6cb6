package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"botcore/internal/market"
	"botcore/internal/pkg/jsonutil"
)

// ErrNoJSON 表示回复中找不到 JSON 对象。
var ErrNoJSON = errors.New("no json object in model output")

// Parse 从模型原始回复中提取决策：去掉 ``` 围栏，取最外层 {...}，
// 解码并做结构检查。任何失败都返回 error，由调用方换成 Fallback。
func Parse(raw string) (Decision, error) {
	body, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Decision{}, ErrNoJSON
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Decision{}, fmt.Errorf("decode: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("decision must be a json object")
	}
	if err := CheckSchema(doc); err != nil {
		return Decision{}, fmt.Errorf("schema: %w", err)
	}
	return fromObject(obj), nil
}

func fromObject(obj map[string]any) Decision {
	d := Decision{
		Action:       coerceString(obj["action"]),
		NextRunAtUTC: coerceString(obj["next_run_at_utc"]),
		SetupID:      coerceStringPtr(obj["setup_id"]),
		Summary:      coerceString(obj["summary"]),
	}
	if codes, ok := coerceStrings(obj["reason_codes"]); ok {
		d.ReasonCodes = codes
	}
	if points, ok := coerceStrings(obj["key_points"]); ok && len(points) > 0 {
		d.KeyPoints = points
	}
	if tfs, ok := coerceStrings(obj["next_requested_timeframes"]); ok {
		d.SetRequestedTimeframes(market.NormalizeTimeframes(tfs))
	}
	if su := coerceObject(obj["state_update"]); su != nil {
		d.StateUpdate = StateUpdate(su)
	}
	if oi := coerceObject(obj["order_intent"]); oi != nil {
		d.OrderIntent = &OrderIntent{
			Type:       strings.ToUpper(coerceString(oi["type"])),
			Price:      coerceFloatPtr(oi["price"]),
			StopLoss:   coerceFloatPtr(oi["stop_loss"]),
			TakeProfit: coerceFloatPtr(oi["take_profit"]),
			RiskPct:    coerceFloatPtr(oi["risk_pct"]),
			LotSize:    coerceFloatPtr(oi["lot_size"]),
		}
	}
	if levels, ok := obj["levels_update"].([]any); ok {
		d.LevelsUpdate = make([]LevelUpdate, 0, len(levels))
		for _, item := range levels {
			lv := coerceObject(item)
			if lv == nil {
				continue
			}
			d.LevelsUpdate = append(d.LevelsUpdate, LevelUpdate{
				Type:       coerceString(lv["type"]),
				Price:      coerceFloatPtr(lv["price"]),
				ZoneTop:    coerceFloatPtr(lv["zone_top"]),
				ZoneBottom: coerceFloatPtr(lv["zone_bottom"]),
				Timeframe:  coerceString(lv["timeframe"]),
				Metadata:   coerceObject(lv["metadata"]),
			})
		}
	}
	return d
}

// Fallback 是解析失败时的安全决策：WAIT，短间隔重试，带 parse_error 标记。
func Fallback(now time.Time, retry time.Duration, cause error) Decision {
	if retry <= 0 {
		retry = DefaultParseRetry
	}
	msg := "parse_error"
	if cause != nil {
		msg = "parse_error: " + cause.Error()
	}
	d := Decision{
		Action:       ActionWait,
		NextRunAtUTC: FormatTime(now.Add(retry)),
		ReasonCodes:  []string{ReasonParseError},
	}
	d.SetError(msg)
	return d
}

// ErrorDecision 是工作流边界兜底返回的 ERROR 决策。
func ErrorDecision(now time.Time, retry time.Duration, cause error) Decision {
	if retry <= 0 {
		retry = DefaultErrorRetry
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	d := Decision{
		Action:       ActionError,
		NextRunAtUTC: FormatTime(now.Add(retry)),
	}
	d.SetError(msg)
	return d
}

// FormatTime renders t as RFC3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
