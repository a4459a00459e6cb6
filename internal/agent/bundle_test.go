package agent

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"botcore/internal/analysis/pattern"
	"botcore/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestAssembleContextOrder(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	sod := store.NewNote("EURUSD", store.NoteSOD, json.RawMessage(`{"summary":"bias long"}`), now)
	last := store.NewNote("EURUSD", store.NoteLastRun, json.RawMessage(`{"summary":"waiting"}`), now)
	in := BundleInput{
		Workflow:    WorkflowIntraday,
		Symbol:      "eurusd",
		Session:     "London",
		Now:         now,
		Meta:        map[string]any{"timeframes": []string{"H1"}},
		PreviousRun: &last,
		SODNote:     &sod,
		DBPositions: []store.Position{{Ticket: 1, Asset: "EURUSD", Direction: "BUY", EntryPrice: 1.1, LotSize: 0.1, EntryTime: now}},
		EAPositions: []store.Position{{Ticket: 1, Asset: "EURUSD", Direction: "BUY", EntryPrice: 1.1, LotSize: 0.1, EntryTime: now}},
		Pattern:     map[string]any{"fvgs": []any{}},
		Charts:      map[string]any{"H1": "uptrend"},
		Market:      map[string]any{"macro": "calm"},
	}
	out := AssembleContext(in)

	assert.True(t, strings.HasPrefix(out, "=== TRADING CONTEXT ===\nSymbol: EURUSD\nTime (UTC): 2024-05-06T08:30:00Z\nSession: London\nWorkflow: INTRADAY\n"))
	titles := []string{
		"=== META ===",
		"=== PREVIOUS RUN NOTE ===",
		"=== START OF DAY NOTE ===",
		"=== OPEN POSITIONS (DATABASE) ===",
		"=== EA REPORTED POSITIONS ===",
		"=== PATTERN ANALYSIS ===",
		"=== CHART OBSERVATIONS ===",
		"=== MARKET CONTEXT ===",
	}
	lastIdx := -1
	for _, title := range titles {
		idx := strings.Index(out, title)
		if assert.GreaterOrEqual(t, idx, 0, title) {
			assert.Greater(t, idx, lastIdx, "%s out of order", title)
			lastIdx = idx
		}
	}
	assert.Equal(t, out, AssembleContext(in), "deterministic for equal input")
}

func TestAssembleContextOmitsEmpty(t *testing.T) {
	sod := store.NewNote("EURUSD", store.NoteSOD, json.RawMessage(`{}`), time.Now())
	out := AssembleContext(BundleInput{
		Workflow:    WorkflowSOD,
		Symbol:      "EURUSD",
		Now:         time.Now(),
		SODNote:     &sod,
		DBPositions: []store.Position{},
		Pattern:     pattern.Result{},
		Market:      map[string]any{"error": "upstream down"},
	})
	assert.NotContains(t, out, "START OF DAY NOTE", "SOD note only appears intraday")
	assert.NotContains(t, out, "OPEN POSITIONS")
	assert.NotContains(t, out, "PATTERN ANALYSIS")
	assert.NotContains(t, out, "META")
	assert.NotContains(t, out, "Session:")
	assert.Contains(t, out, "=== MARKET CONTEXT ===")
	assert.Contains(t, out, "upstream down")
}
