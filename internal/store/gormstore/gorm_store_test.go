package gormstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"botcore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, clock *time.Time) *GormStore {
	t.Helper()
	s, err := NewGormStore(":memory:", WithClock(func() time.Time { return *clock }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fp(v float64) *float64 { return &v }

func TestNotes(t *testing.T) {
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, &clock)
	ctx := context.Background()

	got, err := s.GetNote(ctx, "EURUSD", store.NoteSOD)
	require.NoError(t, err)
	assert.Nil(t, got, "absent note is nil without error")

	payload := json.RawMessage(`{"decision":{"summary":"bullish","key_points":["1.0850 support"]}}`)
	require.NoError(t, s.SaveNote(ctx, store.NewNote("eurusd", store.NoteSOD, payload, clock)))
	got, err = s.GetNote(ctx, "EURUSD", store.NoteSOD)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bullish", got.Summary)
	assert.Equal(t, []string{"1.0850 support"}, got.KeyPoints)
	assert.JSONEq(t, string(payload), string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(clock))

	t.Run("save overwrites", func(t *testing.T) {
		later := clock.Add(time.Hour)
		require.NoError(t, s.SaveNote(ctx, store.NewNote("EURUSD", store.NoteSOD, json.RawMessage(`{"summary":"bearish"}`), later)))
		got, err := s.GetNote(ctx, "EURUSD", store.NoteSOD)
		require.NoError(t, err)
		assert.Equal(t, "bearish", got.Summary)
		assert.Empty(t, got.KeyPoints)
		assert.True(t, got.CreatedAt.Equal(later))
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.SaveNote(ctx, store.NewNote("EURUSD", store.NoteLastRun, json.RawMessage(`{}`), clock)))
		require.NoError(t, s.ClearNotes(ctx, "EURUSD", []store.NoteType{store.NoteLastRun}))
		got, err := s.GetNote(ctx, "EURUSD", store.NoteLastRun)
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = s.GetNote(ctx, "EURUSD", store.NoteSOD)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestLevelsUpsert(t *testing.T) {
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, &clock)
	ctx := context.Background()

	require.NoError(t, s.SaveLevels(ctx, "EURUSD", "london", []store.Level{
		{Type: store.LevelZone, Price: 1.0850, ZoneTop: fp(1.0860), ZoneBottom: fp(1.0840), Timeframe: "H1"},
		{Type: store.LevelSwingHigh, Price: 1.0920, Timeframe: "H4"},
	}))
	levels, err := s.GetLevels(ctx, "EURUSD", "london")
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, 1.0850, levels[0].Price)

	t.Run("same identity replaces bounds and clears invalidation", func(t *testing.T) {
		require.NoError(t, s.db.Exec("UPDATE locked_levels SET invalidated_at = ? WHERE level_type = 'zone'", clock).Error)
		levels, err := s.GetLevels(ctx, "EURUSD", "london")
		require.NoError(t, err)
		require.Len(t, levels, 1)

		require.NoError(t, s.SaveLevels(ctx, "EURUSD", "london", []store.Level{
			{Type: store.LevelZone, Price: 1.0850, ZoneTop: fp(1.0870), Timeframe: "M15", Metadata: map[string]any{"touches": 3.0}},
		}))
		levels, err = s.GetLevels(ctx, "EURUSD", "london")
		require.NoError(t, err)
		require.Len(t, levels, 2)
		zone := levels[0]
		assert.Equal(t, store.LevelZone, zone.Type)
		assert.Nil(t, zone.InvalidatedAt)
		require.NotNil(t, zone.ZoneTop)
		assert.Equal(t, 1.0870, *zone.ZoneTop)
		assert.Nil(t, zone.ZoneBottom)
		assert.Equal(t, "M15", zone.Timeframe)
		assert.Equal(t, 3.0, zone.Metadata["touches"])
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		levels, err := s.GetLevels(ctx, "EURUSD", "")
		require.NoError(t, err)
		assert.Empty(t, levels)
	})
}

func TestSetupLifecycle(t *testing.T) {
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, &clock)
	ctx := context.Background()

	got, err := s.GetActiveSetup(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveSetup(ctx, store.Setup{SetupID: "s1", Symbol: "EURUSD"}))
	got, err = s.GetActiveSetup(ctx, "EURUSD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.PhaseWatching, got.Phase, "missing phase defaults to WATCHING")

	clock = clock.Add(time.Minute)
	require.NoError(t, s.SaveSetup(ctx, store.Setup{SetupID: "s1", Symbol: "EURUSD", Phase: "in_trade", StateData: json.RawMessage(`{"active_zone":"z1"}`)}))
	got, err = s.GetSetup(ctx, "EURUSD", "s1")
	require.NoError(t, err)
	assert.Equal(t, store.PhaseInTrade, got.Phase)
	assert.JSONEq(t, `{"active_zone":"z1"}`, string(got.StateData))

	clock = clock.Add(time.Minute)
	standDown := clock
	require.NoError(t, s.SaveSetup(ctx, store.Setup{SetupID: "s1", Symbol: "EURUSD", Phase: store.PhaseStandDown}))
	got, err = s.GetSetup(ctx, "EURUSD", "s1")
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(standDown))

	active, err := s.GetActiveSetup(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, active)

	t.Run("completed_at kept on later writes", func(t *testing.T) {
		clock = clock.Add(time.Hour)
		require.NoError(t, s.SaveSetup(ctx, store.Setup{SetupID: "s1", Symbol: "EURUSD", Phase: store.PhaseStandDown}))
		got, err := s.GetSetup(ctx, "EURUSD", "s1")
		require.NoError(t, err)
		assert.True(t, got.CompletedAt.Equal(standDown))
	})

	t.Run("any phase accepted", func(t *testing.T) {
		require.NoError(t, s.SaveSetup(ctx, store.Setup{SetupID: "s2", Symbol: "EURUSD", Phase: "SOMETHING_NEW"}))
		got, err := s.GetActiveSetup(ctx, "EURUSD")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "SOMETHING_NEW", got.Phase)
	})
}

func TestReplacePositions(t *testing.T) {
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, &clock)
	ctx := context.Background()

	require.NoError(t, s.ReplacePositions(ctx, "EURUSD", []store.Position{
		{Ticket: 1, Direction: "buy", EntryPrice: 1.08501, LotSize: 0.1, EntryTime: clock},
		{Ticket: 2, Direction: "sell", EntryPrice: 1.09, LotSize: 0.2, StopLoss: fp(1.095), EntryTime: clock.Add(time.Minute)},
	}))
	got, err := s.GetPositions(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BUY", got[0].Direction)
	assert.Equal(t, "EURUSD", got[0].Asset)

	require.NoError(t, s.ReplacePositions(ctx, "EURUSD", []store.Position{{Ticket: 3, Direction: "BUY", EntryPrice: 1.1, LotSize: 1}}))
	got, err = s.GetPositions(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Ticket)

	require.NoError(t, s.ReplacePositions(ctx, "EURUSD", nil))
	got, err = s.GetPositions(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTradeEvents(t *testing.T) {
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, &clock)
	ctx := context.Background()

	assert.Error(t, s.SaveTradeEvent(ctx, store.TradeEvent{Symbol: "EURUSD"}))
	require.NoError(t, s.SaveTradeEvent(ctx, store.TradeEvent{SetupID: "s1", Symbol: "eurusd", EventType: "execution", EventData: json.RawMessage(`{"ticket":7}`)}))
	events, err := s.ListTradeEvents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "EXECUTION", events[0].EventType)
	assert.Equal(t, "EURUSD", events[0].Symbol)
	assert.NotEmpty(t, events[0].ID)
}
