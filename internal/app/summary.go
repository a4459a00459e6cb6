package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

type StartupSummary struct {
	Version       string
	HTTPAddr      string
	Database      string
	DecisionLog   string
	DecisionModel string
	VisionModel   string
	ChartSource   string
	MarketSources []string
	Prompts       map[string]string
	Endpoints     []string
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[服务 (SERVICE)]")
	fmt.Fprintf(w, "  版本: %s\n", orDash(s.Version))
	fmt.Fprintf(w, "  监听: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  状态库: %s\n", orDash(s.Database))
	fmt.Fprintf(w, "  决策日志: %s\n", orDash(s.DecisionLog))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[模型与数据源 (MODELS & SOURCES)]")
	fmt.Fprintf(w, "  决策模型: %s\n", orDash(s.DecisionModel))
	fmt.Fprintf(w, "  视觉模型: %s\n", orDash(s.VisionModel))
	fmt.Fprintf(w, "  图表来源: %s\n", orDash(s.ChartSource))
	fmt.Fprintf(w, "  市场来源: %s\n", formatList(s.MarketSources))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[提示词 (PROMPTS)]")
	if len(s.Prompts) == 0 {
		fmt.Fprintln(w, "  (无)")
	} else {
		names := make([]string, 0, len(s.Prompts))
		for name := range s.Prompts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			content := s.Prompts[name]
			preview := content
			lines := strings.Split(content, "\n")
			if len(lines) > 3 {
				preview = strings.Join(lines[:3], "\n") + "\n    ... (truncated)"
			}
			preview = strings.ReplaceAll(preview, "\n", "\n    ")
			fmt.Fprintf(w, "  > %s (%d 字符):\n    %s\n", name, len(content), preview)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[接口 (ENDPOINTS)]")
	for _, ep := range s.Endpoints {
		fmt.Fprintf(w, "  - %s\n", ep)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
