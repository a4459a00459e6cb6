package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Indent 将任意值编码为缩进 JSON（map 键有序，HTML 不转义），用于拼装上下文。
func Indent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
