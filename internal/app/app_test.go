package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	brcfg "botcore/internal/config"
	"botcore/internal/decision"
	"botcore/internal/gateway/provider"
	"botcore/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedModel struct{ reply string }

func (m cannedModel) ID() string           { return "canned" }
func (m cannedModel) Enabled() bool        { return true }
func (m cannedModel) SupportsVision() bool { return false }
func (m cannedModel) Call(context.Context, provider.ChatPayload) (string, error) {
	return m.reply, nil
}

func testConfig() *brcfg.Config {
	return &brcfg.Config{
		App:      brcfg.AppConfig{HTTPAddr: ":0", Version: "test", LogLevel: "error"},
		Database: brcfg.DatabaseConfig{DSN: ":memory:", DecisionLogPath: ":memory:"},
		AI:       brcfg.AIConfig{Provider: "openai", Model: "gpt-test", MaxTokens: 1000, TimeoutSeconds: 5},
		Chart:    brcfg.ChartConfig{Provider: "none"},
	}
}

func TestBuildAndServe(t *testing.T) {
	clock := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	b := NewAppBuilder(testConfig(),
		WithModels(func(brcfg.Config) (*modelSet, error) {
			return &modelSet{decision: cannedModel{reply: `{"action":"WATCH","summary":"approaching supply"}`}}, nil
		}),
		WithClock(func() time.Time { return clock }),
	)
	a, err := b.Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Summary)
	assert.Equal(t, "canned", a.Summary.DecisionModel)
	assert.Equal(t, "none", a.Summary.ChartSource)
	assert.Empty(t, a.Summary.MarketSources)

	h := a.Handler()
	require.NotNil(t, h)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := `{"symbol":"EURUSD","H1_DATA":[{"time":"2024-05-06T08:00:00Z","open":1.07,"high":1.08,"low":1.06,"close":1.075}]}`
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/trading/intraday", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, decision.ActionWatch, got["action"])
	meta, ok := got["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "intraday", meta["workflow"])
	assert.Equal(t, "disabled", meta["market_cache"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trading/decisions?symbol=EURUSD", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"WATCH"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "botcore_decisions_total")
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := NewAppBuilder(nil).Build(context.Background())
	assert.Error(t, err)

	_, err = NewApp(nil)
	assert.Error(t, err)
}

func TestBuildModelSetRequiresKey(t *testing.T) {
	cfg := testConfig()
	_, err := buildModelSet(*cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")

	cfg.Secrets.OpenAIKey = "sk-test"
	set, err := buildModelSet(*cfg)
	require.NoError(t, err)
	assert.NotNil(t, set.decision)
	assert.Nil(t, set.vision, "chart provider none skips the vision model")
	assert.Nil(t, set.research)
}

func TestApiKeyFor(t *testing.T) {
	s := brcfg.Secrets{OpenAIKey: "o", AnthropicKey: "a", OpenRouterKey: "r"}
	assert.Equal(t, "o", apiKeyFor("openai", s))
	assert.Equal(t, "a", apiKeyFor("Anthropic", s))
	assert.Equal(t, "r", apiKeyFor("openrouter", s))
	assert.Equal(t, "", baseURLFor("anthropic", "https://api.openai.com/v1"))
	assert.Equal(t, "https://proxy", baseURLFor("anthropic", "https://proxy"))
}

func TestBoundsFromConfig(t *testing.T) {
	bounds := boundsFromConfig(brcfg.SchedulerConfig{Windows: map[string]brcfg.WindowConfig{
		"wait": {MinMinutes: 30, MaxMinutes: 90},
	}})
	assert.Equal(t, scheduler.Window{Min: 30 * time.Minute, Max: 90 * time.Minute}, bounds[decision.ActionWait])
	assert.Equal(t, scheduler.DefaultBounds()[decision.ActionWatch], bounds[decision.ActionWatch])
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://bot:***@db:5432/botcore", redactDSN("postgres://bot:secret@db:5432/botcore"))
	assert.Equal(t, "data/db/botcore.db", redactDSN("data/db/botcore.db"))
}

func TestSummaryPrint(t *testing.T) {
	var buf bytes.Buffer
	(&StartupSummary{
		Version:  "1.0.0",
		HTTPAddr: ":5000",
		Prompts:  map[string]string{"sod": "line1\nline2\nline3\nline4"},
	}).Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "STARTUP SUMMARY")
	assert.Contains(t, out, "> sod")
	assert.Contains(t, out, "(truncated)")
	assert.False(t, strings.Contains(out, "line4"))
}
