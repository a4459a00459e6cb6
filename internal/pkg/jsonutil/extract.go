package jsonutil

import (
	"regexp"
	"strings"
)

const codeFence = "```"

// greedyObject matches from the first '{' to the last '}'.
var greedyObject = regexp.MustCompile(`(?s)\{.*\}`)

// StripFences 去掉 ```json / ``` 包裹；没有成对 fence 时原样返回（已 trim）。
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return raw
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return raw
	}
	block := strings.TrimLeft(rest[:end], " \t\r\n")
	// 跳过语言标记行（如 "json"）。
	if idx := strings.IndexAny(block, "\r\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	} else if lower := strings.ToLower(block); strings.HasPrefix(lower, "json") {
		block = block[len("json"):]
	}
	return strings.TrimSpace(block)
}

// ExtractObject returns the outermost JSON object in a model response:
// fences are stripped first, then the first balanced {...} is taken,
// falling back to a greedy first-'{' to last-'}' match.
func ExtractObject(raw string) (string, bool) {
	body := StripFences(raw)
	if body == "" {
		return "", false
	}
	if obj, _, ok := extractJSONObject(body); ok {
		return obj, true
	}
	if m := greedyObject.FindString(body); m != "" {
		return m, true
	}
	return "", false
}

// ExtractJSON prefers a fenced block, then an array, then an object.
func ExtractJSON(raw string) (string, bool) {
	body := StripFences(raw)
	if body == "" {
		return "", false
	}
	if arr, start, ok := extractJSONArray(body); ok {
		if objStart := strings.Index(body, "{"); objStart == -1 || start < objStart {
			return arr, true
		}
	}
	obj, _, ok := extractJSONObject(body)
	return obj, ok
}

func extractJSONArray(raw string) (string, int, bool) {
	return extractBalanced(raw, '[', ']')
}

func extractJSONObject(raw string) (string, int, bool) {
	return extractBalanced(raw, '{', '}')
}

func extractBalanced(raw string, open, close byte) (string, int, bool) {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return "", -1, false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), start, true
			}
		}
	}
	return "", -1, false
}
