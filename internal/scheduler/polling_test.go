package scheduler

import (
	"testing"
	"time"

	"botcore/internal/decision"
	"botcore/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestNextTimeframes(t *testing.T) {
	cases := []struct {
		action string
		want   []string
	}{
		{"WAIT", []string{"H1", "M15"}},
		{"WATCH", []string{"M15", "M5"}},
		{"ENTER", []string{"M5", "M1"}},
		{"HOTZONE", []string{"M5", "M1"}},
		{"MANAGE", []string{"M1", "M5"}},
		{"IN_TRADE", []string{"M1", "M5"}},
		{"EXIT", []string{"H1", "M15"}},
		{"ERROR", []string{"H1", "M15"}},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			assert.Equal(t, tc.want, NextTimeframes(decision.Decision{Action: tc.action}, false))
		})
	}

	t.Run("explicit list used verbatim", func(t *testing.T) {
		var d decision.Decision
		d.Action = "WAIT"
		d.SetRequestedTimeframes([]string{"H4", "M30"})
		assert.Equal(t, []string{"H4", "M30"}, NextTimeframes(d, false))
	})

	t.Run("sod overrides explicit list", func(t *testing.T) {
		var d decision.Decision
		d.SetRequestedTimeframes([]string{"M1"})
		assert.Equal(t, []string{"H1", "H4", "D1", "W1"}, NextTimeframes(d, true))
	})

	t.Run("result does not alias defaults", func(t *testing.T) {
		got := NextTimeframes(decision.Decision{Action: "WAIT"}, false)
		got[0] = "X"
		assert.Equal(t, "H1", NextTimeframes(decision.Decision{Action: "WAIT"}, false)[0])
	})
}

func TestIsStartOfDay(t *testing.T) {
	c := market.Candles{{Close: 1}}
	sod := market.Series{"H1": c, "H4": c, "D1": c, "W1": c}

	assert.True(t, IsStartOfDay([]string{"W1", "D1", "H4", "H1"}, nil))
	assert.True(t, IsStartOfDay([]string{"H1", "H4", "D1", "W1", "M15"}, nil), "superset")
	assert.False(t, IsStartOfDay([]string{"H1", "H4", "D1"}, sod), "explicit list wins over data")
	assert.True(t, IsStartOfDay(nil, sod))
	assert.False(t, IsStartOfDay(nil, market.Series{"H1": c, "H4": c, "D1": c, "W1": c, "M15": c}), "data must be exactly the sod set")
	assert.False(t, IsStartOfDay(nil, market.Series{"H1": c, "H4": c}))
}

func TestClampNextRun(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	bounds := DefaultBounds()
	mk := func(action, next string) decision.Decision {
		return decision.Decision{Action: action, NextRunAtUTC: next}
	}

	assert.Equal(t, "2024-01-15T10:15:00Z", ClampNextRun(mk("WAIT", "2024-01-15T10:01:00Z"), now, bounds).NextRunAtUTC)
	assert.Equal(t, "2024-01-15T11:00:00Z", ClampNextRun(mk("WAIT", "2024-01-15T18:00:00Z"), now, bounds).NextRunAtUTC)
	assert.Equal(t, "2024-01-15T10:30:00Z", ClampNextRun(mk("WAIT", "2024-01-15T10:30:00Z"), now, bounds).NextRunAtUTC)
	assert.Equal(t, "2024-01-15T10:05:00Z", ClampNextRun(mk("HOTZONE", "2024-01-15T10:20:00Z"), now, bounds).NextRunAtUTC)
	assert.Equal(t, "later", ClampNextRun(mk("WAIT", "later"), now, bounds).NextRunAtUTC)
	assert.Equal(t, "2024-01-15T13:00:00Z", ClampNextRun(mk("EXIT", "2024-01-15T13:00:00Z"), now, bounds).NextRunAtUTC)
}
