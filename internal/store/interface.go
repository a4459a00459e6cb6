package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"botcore/internal/market"
)

// NoteType 区分分析笔记；每个 (symbol, note_type) 只保留一条，保存即覆盖。
type NoteType string

const (
	NoteSOD        NoteType = "sod_note"
	NoteLastRun    NoteType = "last_run_note"
	NoteMarketData NoteType = "market_data_note"
	NoteEOD        NoteType = "eod_note"
)

// Note is a persisted analysis note. Payload is the opaque JSON the note was
// built from; Summary and KeyPoints are lifted out of it for quick reads.
type Note struct {
	Symbol    string          `json:"symbol"`
	Type      NoteType        `json:"note_type"`
	Summary   string          `json:"summary,omitempty"`
	KeyPoints []string        `json:"key_points,omitempty"`
	Payload   json.RawMessage `json:"full_response"`
	CreatedAt time.Time       `json:"created_at"`
}

type LevelType string

const (
	LevelSwingHigh LevelType = "swing_high"
	LevelSwingLow  LevelType = "swing_low"
	LevelZone      LevelType = "zone"
	LevelGeneric   LevelType = "level"
)

// Level 是会话内锁定的价位/区间。身份键为 (symbol, session, price, type)。
type Level struct {
	Symbol        string         `json:"symbol,omitempty"`
	Session       string         `json:"session,omitempty"`
	Type          LevelType      `json:"type"`
	Price         float64        `json:"price"`
	ZoneTop       *float64       `json:"zone_top,omitempty"`
	ZoneBottom    *float64       `json:"zone_bottom,omitempty"`
	Timeframe     string         `json:"timeframe,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero"`
	InvalidatedAt *time.Time     `json:"invalidated_at,omitempty"`
}

// Setup lifecycle phases. STAND_DOWN is terminal; the store accepts any
// phase string a decision writes.
const (
	PhaseWatching  = "WATCHING"
	PhaseHotZone   = "HOT_ZONE"
	PhaseInTrade   = "IN_TRADE"
	PhaseManaging  = "MANAGING"
	PhaseStandDown = "STAND_DOWN"
)

type Setup struct {
	SetupID     string          `json:"setup_id"`
	Symbol      string          `json:"symbol"`
	Session     string          `json:"session,omitempty"`
	Phase       string          `json:"phase"`
	StateData   json.RawMessage `json:"state_data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the phase ends the setup.
func IsTerminal(phase string) bool {
	return strings.EqualFold(strings.TrimSpace(phase), PhaseStandDown)
}

// Position 是 EA 上报（或数据库记录）的持仓。
type Position struct {
	Ticket       int64     `json:"ticket"`
	Asset        string    `json:"asset"`
	Direction    string    `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice *float64  `json:"current_price,omitempty"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	TakeProfit   *float64  `json:"take_profit,omitempty"`
	LotSize      float64   `json:"lot_size"`
	EntryTime    time.Time `json:"entry_time"`
}

func (p *Position) UnmarshalJSON(data []byte) error {
	type alias Position
	var w struct {
		alias
		EntryTime json.RawMessage `json:"entry_time"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := market.ParseTime(w.EntryTime)
	if err != nil {
		return err
	}
	*p = Position(w.alias)
	p.EntryTime = ts
	return nil
}

// TradeEvent is an append-only history record (e.g. EXECUTION confirmations).
type TradeEvent struct {
	ID        string          `json:"id"`
	SetupID   string          `json:"setup_id,omitempty"`
	Symbol    string          `json:"symbol"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NoteStore 返回 nil, nil 表示笔记不存在。
type NoteStore interface {
	GetNote(ctx context.Context, symbol string, noteType NoteType) (*Note, error)
	SaveNote(ctx context.Context, note Note) error
	ClearNotes(ctx context.Context, symbol string, noteTypes []NoteType) error
}

type LevelStore interface {
	// GetLevels returns the non-invalidated levels of a symbol/session.
	GetLevels(ctx context.Context, symbol, session string) ([]Level, error)
	SaveLevels(ctx context.Context, symbol, session string, levels []Level) error
}

type SetupStore interface {
	GetSetup(ctx context.Context, symbol, setupID string) (*Setup, error)
	// GetActiveSetup returns the most recently updated setup without completed_at.
	GetActiveSetup(ctx context.Context, symbol string) (*Setup, error)
	SaveSetup(ctx context.Context, setup Setup) error
}

type PositionStore interface {
	GetPositions(ctx context.Context, symbol string) ([]Position, error)
	// ReplacePositions swaps the stored positions of a symbol for the given set.
	ReplacePositions(ctx context.Context, symbol string, positions []Position) error
}

type EventStore interface {
	SaveTradeEvent(ctx context.Context, event TradeEvent) error
	ListTradeEvents(ctx context.Context, setupID string) ([]TradeEvent, error)
}

// Store is the persistence surface the pipeline consumes.
type Store interface {
	NoteStore
	LevelStore
	SetupStore
	PositionStore
	EventStore
	Close() error
}
