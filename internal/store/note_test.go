package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewNoteExtractsSummary(t *testing.T) {
	now := time.Date(2024, 1, 15, 7, 0, 0, 0, time.FixedZone("x", 3600))
	t.Run("nested decision", func(t *testing.T) {
		n := NewNote(" eurusd ", NoteSOD, json.RawMessage(`{"decision":{"summary":" bias long ","key_points":["a"," ","b"]}}`), now)
		assert.Equal(t, "EURUSD", n.Symbol)
		assert.Equal(t, "bias long", n.Summary)
		assert.Equal(t, []string{"a", "b"}, n.KeyPoints)
		assert.Equal(t, time.UTC, n.CreatedAt.Location())
	})
	t.Run("top level", func(t *testing.T) {
		n := NewNote("EURUSD", NoteLastRun, json.RawMessage(`{"summary":"flat","key_points":["x"]}`), now)
		assert.Equal(t, "flat", n.Summary)
		assert.Equal(t, []string{"x"}, n.KeyPoints)
	})
	t.Run("opaque payload", func(t *testing.T) {
		n := NewNote("EURUSD", NoteMarketData, json.RawMessage(`not json`), now)
		assert.Empty(t, n.Summary)
		assert.Nil(t, n.KeyPoints)
	})
}

func TestNoteAge(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	_, ok := Note{}.Age(now)
	assert.False(t, ok)
	age, ok := Note{CreatedAt: now.Add(-time.Hour)}.Age(now)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, age)
}
