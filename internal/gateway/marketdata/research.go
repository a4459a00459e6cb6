package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"botcore/internal/gateway/provider"
)

const researchMaxTokens = 1500

type Topic string

const (
	TopicMacro     Topic = "macro_and_fed"
	TopicCatalysts Topic = "catalysts_news"
)

const researchPurpose = "market-research"

// Researcher 使用检索型模型（Perplexity sonar-pro via OpenRouter）生成宏观与新闻摘要。
type Researcher struct {
	model provider.ModelProvider
}

func NewResearcher(model provider.ModelProvider) *Researcher {
	return &Researcher{model: model}
}

func (r *Researcher) Research(ctx context.Context, topic Topic, now time.Time) (string, error) {
	prompt, err := researchPrompt(topic, now)
	if err != nil {
		return "", err
	}
	out, err := r.model.Call(ctx, provider.ChatPayload{
		User:      prompt,
		MaxTokens: researchMaxTokens,
		Purpose:   researchPurpose + ":" + string(topic),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func researchPrompt(topic Topic, now time.Time) (string, error) {
	now = now.UTC()
	stamp := now.Format("2006-01-02 15:04:05") + " UTC"
	day := now.Format("2006-01-02")
	header := fmt.Sprintf("You are a forex market analyst. Current time: %s (today is %s).\n\n", stamp, day)
	switch topic {
	case TopicMacro:
		return header + macroPrompt, nil
	case TopicCatalysts:
		return header + fmt.Sprintf(catalystPrompt, day), nil
	default:
		return "", fmt.Errorf("unknown research topic %q", topic)
	}
}

const macroPrompt = `Search authoritative sources and provide concise, current macro intelligence relevant to forex trading:

=== PART 1: KEY MACRO DATA ===
Prioritize: Investing.com, Federal Reserve (federalreserve.gov), BLS, BEA

Provide CURRENT readings (with date) and recent trend for:
1. Fed Funds Rate - current target rate + stance (hawkish/dovish/neutral) + next FOMC date
2. US CPI - headline and core, latest MoM and YoY readings, trend
3. US Unemployment / NFP - latest non-farm payrolls and unemployment rate
4. US GDP - latest quarterly reading, direction
5. ISM PMI - Manufacturing and Services, latest readings

For each: current value, previous value, trend direction (rising/falling/stable), brief market implication.

=== PART 2: FED POLICY & RATE EXPECTATIONS ===
- Current Fed stance and forward guidance
- Market-implied rate expectations for next 2-3 FOMC meetings
- Divergence between Fed guidance and market pricing (in basis points)
- How this affects DXY and major forex pairs

=== PART 3: MAJOR FOREX PAIRS FUNDAMENTAL OUTLOOK ===
Brief fundamental bias for:
- EUR/USD: ECB vs Fed policy divergence, eurozone data
- GBP/USD: BOE stance, UK economic conditions
- USD/JPY: BOJ policy, yield differential

Be concise and specific. Focus on what matters for short-term forex trading decisions.`

const catalystPrompt = `Search authoritative sources and provide:

=== PART 1: TODAY'S MARKET-MOVING NEWS ===
Top 3-5 news items from TODAY (%s) that affect forex markets:
- Central bank decisions or speeches (Fed, ECB, BOE, BOJ)
- Major economic data releases
- Geopolitical events affecting USD, EUR, GBP, JPY
Format: [Time UTC] Source - Headline. Brief market impact (1 sentence).

=== PART 2: UPCOMING ECONOMIC CALENDAR (Next 48 Hours) ===
High and medium impact events only. For each event:
- Date/Time (UTC)
- Event name
- Currency affected
- Impact: HIGH / MEDIUM
- Forecast vs previous (if available)
- Why it matters for forex

=== PART 3: RISK ENVIRONMENT ===
- What is driving overall market sentiment right now?
- Any active geopolitical risks affecting safe havens (USD, JPY, Gold, CHF)?
- Any scheduled events this week that could cause a volatility spike?

Be brief and actionable. A forex trader is reading this before entering trades.`
