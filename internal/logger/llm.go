package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// 模型调用记录写到单独的文件，与服务日志分开。
var (
	llmMu   sync.Mutex
	llmOut  io.Writer
	llmFull bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	llmOut = w
	llmMu.Unlock()
}

// EnableLLMPayloadDump 打开后记录完整的 system/user 文本；关闭时只记录长度。
func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmFull = enabled
	llmMu.Unlock()
}

type llmEntry struct {
	at       time.Time
	event    string
	model    string
	purpose  string
	sections [][2]string
}

func (e llmEntry) write(w io.Writer) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [llm] %s model=%s purpose=%s\n", e.at.UTC().Format(time.RFC3339Nano), e.event, e.model, e.purpose)
	for _, sec := range e.sections {
		fmt.Fprintf(&b, "  > %s\n", sec[0])
		for _, line := range strings.Split(strings.TrimRight(sec[1], "\n"), "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	_, _ = io.WriteString(w, b.String())
}

func emit(event, model, purpose string, sections ...[2]string) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if llmOut == nil {
		return
	}
	llmEntry{at: time.Now(), event: event, model: model, purpose: purpose, sections: sections}.write(llmOut)
}

func dumpFull() bool {
	llmMu.Lock()
	defer llmMu.Unlock()
	return llmFull
}

// LogLLMRequest 记录一次请求；images 只记录标签（周期、字节数），不写 base64。
func LogLLMRequest(kind, model, purpose, systemPrompt, userPrompt string, images []string) {
	var sections [][2]string
	if dumpFull() {
		sections = append(sections, [2]string{"system", systemPrompt}, [2]string{"user", userPrompt})
	} else {
		sections = append(sections, [2]string{"sizes", fmt.Sprintf("system=%d user=%d", len(systemPrompt), len(userPrompt))})
	}
	if len(images) > 0 {
		sections = append(sections, [2]string{"images", strings.Join(images, "\n")})
	}
	emit(kind+".request", model, purpose, sections...)
}

func LogLLMResponse(kind, model, purpose, raw string) {
	emit(kind+".response", model, purpose, [2]string{"raw", raw})
}

// LogLLMError 记录失败的调用，便于与请求条目对照。
func LogLLMError(kind, model, purpose string, err error) {
	if err == nil {
		return
	}
	emit(kind+".error", model, purpose, [2]string{"error", err.Error()})
}
