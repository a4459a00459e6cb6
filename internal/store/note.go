package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// NewNote 构造一条笔记，并从 payload 中提取 summary / key_points：
// 优先 decision.summary、decision.key_points，其次顶层同名字段。
func NewNote(symbol string, noteType NoteType, payload json.RawMessage, createdAt time.Time) Note {
	n := Note{
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		Type:      noteType,
		Payload:   payload,
		CreatedAt: createdAt.UTC(),
	}
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return n
	}
	root := gjson.ParseBytes(payload)
	n.Summary = firstString(root, "decision.summary", "summary")
	for _, path := range []string{"decision.key_points", "key_points"} {
		kp := root.Get(path)
		if !kp.IsArray() {
			continue
		}
		kp.ForEach(func(_, v gjson.Result) bool {
			if s := strings.TrimSpace(v.String()); s != "" {
				n.KeyPoints = append(n.KeyPoints, s)
			}
			return true
		})
		break
	}
	return n
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// Age 返回笔记年龄；CreatedAt 为零值时 ok=false（视为过期）。
func (n Note) Age(now time.Time) (time.Duration, bool) {
	if n.CreatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(n.CreatedAt), true
}
