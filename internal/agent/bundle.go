package agent

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"botcore/internal/pkg/jsonutil"
	"botcore/internal/store"
)

// BundleInput 是拼装上下文所需的全部材料；nil/空值对应的段落会被省略。
type BundleInput struct {
	Workflow string
	Symbol   string
	Session  string
	Now      time.Time

	// Meta 收纳 EA 的账户/会话信息、锁定价位、活跃 setup 等元信息。
	Meta        map[string]any
	PreviousRun *store.Note
	// SODNote 只在日内流程中输出。
	SODNote     *store.Note
	DBPositions []store.Position
	EAPositions []store.Position

	Pattern any
	Charts  any
	Market  any
}

type section struct {
	title string
	body  any
	note  string
}

// AssembleContext 按固定顺序拼装上下文：头部、元信息、上次运行笔记、开盘笔记
// （仅日内）、数据库持仓、EA 持仓、形态检测、图表观察、市场环境。
// 相同输入与时钟得到相同输出。
func AssembleContext(in BundleInput) string {
	var b strings.Builder
	b.WriteString("=== TRADING CONTEXT ===\n")
	fmt.Fprintf(&b, "Symbol: %s\n", strings.ToUpper(strings.TrimSpace(in.Symbol)))
	fmt.Fprintf(&b, "Time (UTC): %s\n", in.Now.UTC().Format(time.RFC3339))
	if in.Session != "" {
		fmt.Fprintf(&b, "Session: %s\n", in.Session)
	}
	if in.Workflow != "" {
		fmt.Fprintf(&b, "Workflow: %s\n", strings.ToUpper(in.Workflow))
	}

	sections := []section{
		{title: "META", body: in.Meta},
		{title: "PREVIOUS RUN NOTE", body: noteBody(in.PreviousRun)},
	}
	if in.Workflow == WorkflowIntraday {
		sections = append(sections, section{title: "START OF DAY NOTE", body: noteBody(in.SODNote)})
	}
	sections = append(sections,
		section{title: "OPEN POSITIONS (DATABASE)", body: in.DBPositions, note: "Database positions are authoritative."},
		section{title: "EA REPORTED POSITIONS", body: in.EAPositions, note: "For cross-validation only."},
		section{title: "PATTERN ANALYSIS", body: in.Pattern},
		section{title: "CHART OBSERVATIONS", body: in.Charts},
		section{title: "MARKET CONTEXT", body: in.Market},
	)
	for _, sec := range sections {
		if isEmpty(sec.body) {
			continue
		}
		text, err := jsonutil.Indent(sec.body)
		if err != nil {
			text = fmt.Sprintf("%q", fmt.Sprint(sec.body))
		}
		fmt.Fprintf(&b, "\n=== %s ===\n", sec.title)
		if sec.note != "" {
			b.WriteString(sec.note)
			b.WriteByte('\n')
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

func noteBody(n *store.Note) any {
	if n == nil {
		return nil
	}
	return n
}

type emptier interface {
	Empty() bool
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if e, ok := v.(emptier); ok {
		return e.Empty()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
