package decision

import (
	"encoding/json"
	"strconv"
	"strings"
)

// 模型有时把数字写成字符串（"1.0850"），这里统一做宽松转换。

func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceFloatPtr(v any) *float64 {
	f, ok := coerceFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// coerceStrings accepts an array of scalars or a single string.
func coerceStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return []string{}, true
		}
		return []string{s}, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceStringPtr(v any) *string {
	s := coerceString(v)
	if s == "" {
		return nil
	}
	return &s
}

func coerceObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
