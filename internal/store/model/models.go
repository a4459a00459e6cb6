package model

import (
	"time"

	"gorm.io/datatypes"
)

// LockedLevelModel maps to 'locked_levels'. The unique index is the level
// identity key; session is stored as '' rather than NULL so the index holds
// on Postgres as well.
type LockedLevelModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol        string         `gorm:"column:symbol;size:20;not null;uniqueIndex:idx_locked_levels_identity,priority:1"`
	Session       string         `gorm:"column:session;size:50;not null;default:'';uniqueIndex:idx_locked_levels_identity,priority:2"`
	Price         float64        `gorm:"column:price;type:decimal(18,5);not null;uniqueIndex:idx_locked_levels_identity,priority:3"`
	LevelType     string         `gorm:"column:level_type;size:20;not null;uniqueIndex:idx_locked_levels_identity,priority:4"`
	ZoneTop       *float64       `gorm:"column:zone_top;type:decimal(18,5)"`
	ZoneBottom    *float64       `gorm:"column:zone_bottom;type:decimal(18,5)"`
	Timeframe     string         `gorm:"column:timeframe;size:10"`
	Metadata      datatypes.JSON `gorm:"column:metadata"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	InvalidatedAt *time.Time     `gorm:"column:invalidated_at"`
}

func (LockedLevelModel) TableName() string { return "locked_levels" }

type ActiveSetupModel struct {
	SetupID     string         `gorm:"column:setup_id;size:100;primaryKey"`
	Symbol      string         `gorm:"column:symbol;size:20;not null;index:idx_active_setups_symbol"`
	Session     string         `gorm:"column:session;size:50"`
	Phase       string         `gorm:"column:phase;size:50;not null"`
	StateData   datatypes.JSON `gorm:"column:state_data"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
}

func (ActiveSetupModel) TableName() string { return "active_setups" }

type TradeEventModel struct {
	ID        string         `gorm:"column:id;size:36;primaryKey"`
	SetupID   string         `gorm:"column:setup_id;size:100;index:idx_trade_events_setup_id"`
	Symbol    string         `gorm:"column:symbol;size:20;not null"`
	EventType string         `gorm:"column:event_type;size:50;not null"`
	EventData datatypes.JSON `gorm:"column:event_data"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (TradeEventModel) TableName() string { return "trade_events" }

type AnalysisNoteModel struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol       string         `gorm:"column:symbol;size:20;not null;uniqueIndex:idx_analysis_notes_symbol_type,priority:1"`
	NoteType     string         `gorm:"column:note_type;size:50;not null;uniqueIndex:idx_analysis_notes_symbol_type,priority:2"`
	Summary      string         `gorm:"column:summary;type:text"`
	KeyPoints    datatypes.JSON `gorm:"column:key_points"`
	FullResponse datatypes.JSON `gorm:"column:full_response"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
}

func (AnalysisNoteModel) TableName() string { return "analysis_notes" }

type CurrentPositionModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol       string    `gorm:"column:symbol;size:20;not null;uniqueIndex:idx_current_positions_symbol_ticket,priority:1"`
	Ticket       int64     `gorm:"column:ticket;not null;uniqueIndex:idx_current_positions_symbol_ticket,priority:2"`
	Asset        string    `gorm:"column:asset;size:20;not null"`
	Direction    string    `gorm:"column:direction;size:10;not null"`
	EntryPrice   float64   `gorm:"column:entry_price;type:decimal(18,5);not null"`
	CurrentPrice *float64  `gorm:"column:current_price;type:decimal(18,5)"`
	StopLoss     *float64  `gorm:"column:stop_loss;type:decimal(18,5)"`
	TakeProfit   *float64  `gorm:"column:take_profit;type:decimal(18,5)"`
	LotSize      float64   `gorm:"column:lot_size;type:decimal(10,2);not null"`
	EntryTime    time.Time `gorm:"column:entry_time;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (CurrentPositionModel) TableName() string { return "current_positions" }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&LockedLevelModel{},
		&ActiveSetupModel{},
		&TradeEventModel{},
		&AnalysisNoteModel{},
		&CurrentPositionModel{},
	}
}
