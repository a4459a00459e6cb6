package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"botcore/internal/store"
	storemodel "botcore/internal/store/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// priceScale matches the DECIMAL(18,5) price columns; prices are rounded
// before they take part in the level identity key.
const priceScale = 5

// GormStore implements store.Store on Gorm (SQLite or Postgres).
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*GormStore)(nil)

type Option func(*GormStore)

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewGormStore opens the store. DSNs starting with postgres:// (or
// containing host=) use Postgres; ":memory:" opens a private in-memory
// SQLite database; anything else is treated as a SQLite file path.
func NewGormStore(dsn string, opts ...Option) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("gorm store: dsn 不能为空")
	}
	dialector, isSQLite, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gorm store: open failed: %w", err)
	}
	if err := db.AutoMigrate(storemodel.All()...); err != nil {
		return nil, fmt.Errorf("gorm store: migrate failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
		// while keeping lock contention low.
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	s := &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func openDialector(dsn string) (gorm.Dialector, bool, error) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.Contains(lower, "host="):
		return postgres.Open(dsn), false, nil
	case dsn == ":memory:":
		name := "mem-" + uuid.NewString()
		return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)), true, nil
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if err := ensureDir(path); err != nil {
			return nil, false, err
		}
		return sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)), true, nil
	}
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for health checks.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

// --------------------- Notes -------------------------

func (s *GormStore) GetNote(ctx context.Context, symbol string, noteType store.NoteType) (*store.Note, error) {
	var m storemodel.AnalysisNoteModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND note_type = ?", normalizeSymbol(symbol), string(noteType)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	note := store.Note{
		Symbol:    m.Symbol,
		Type:      store.NoteType(m.NoteType),
		Summary:   m.Summary,
		Payload:   json.RawMessage(m.FullResponse),
		CreatedAt: m.CreatedAt.UTC(),
	}
	if len(m.KeyPoints) > 0 {
		if err := json.Unmarshal(m.KeyPoints, &note.KeyPoints); err != nil {
			note.KeyPoints = nil
		}
	}
	return &note, nil
}

func (s *GormStore) SaveNote(ctx context.Context, note store.Note) error {
	symbol := normalizeSymbol(note.Symbol)
	if symbol == "" || note.Type == "" {
		return fmt.Errorf("save note: symbol 与 note_type 必填")
	}
	created := note.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	m := storemodel.AnalysisNoteModel{
		Symbol:       symbol,
		NoteType:     string(note.Type),
		Summary:      note.Summary,
		KeyPoints:    marshalJSON(note.KeyPoints),
		FullResponse: datatypes.JSON(note.Payload),
		CreatedAt:    created.UTC(),
	}
	if len(m.FullResponse) == 0 {
		m.FullResponse = datatypes.JSON("{}")
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "note_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "key_points", "full_response", "created_at"}),
		}).
		Create(&m).Error
}

func (s *GormStore) ClearNotes(ctx context.Context, symbol string, noteTypes []store.NoteType) error {
	if len(noteTypes) == 0 {
		return nil
	}
	types := make([]string, 0, len(noteTypes))
	for _, t := range noteTypes {
		types = append(types, string(t))
	}
	return s.db.WithContext(ctx).
		Where("symbol = ? AND note_type IN ?", normalizeSymbol(symbol), types).
		Delete(&storemodel.AnalysisNoteModel{}).Error
}

// --------------------- Levels -------------------------

func (s *GormStore) GetLevels(ctx context.Context, symbol, session string) ([]store.Level, error) {
	var models []storemodel.LockedLevelModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND session = ? AND invalidated_at IS NULL", normalizeSymbol(symbol), strings.TrimSpace(session)).
		Order("price ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.Level, 0, len(models))
	for _, m := range models {
		lvl := store.Level{
			Symbol:        m.Symbol,
			Session:       m.Session,
			Type:          store.LevelType(m.LevelType),
			Price:         m.Price,
			ZoneTop:       m.ZoneTop,
			ZoneBottom:    m.ZoneBottom,
			Timeframe:     m.Timeframe,
			CreatedAt:     m.CreatedAt.UTC(),
			InvalidatedAt: m.InvalidatedAt,
		}
		if len(m.Metadata) > 0 {
			_ = json.Unmarshal(m.Metadata, &lvl.Metadata)
		}
		out = append(out, lvl)
	}
	return out, nil
}

// SaveLevels upserts on (symbol, session, price, level_type): zone bounds,
// timeframe and metadata are replaced and invalidated_at is cleared.
func (s *GormStore) SaveLevels(ctx context.Context, symbol, session string, levels []store.Level) error {
	if len(levels) == 0 {
		return nil
	}
	symbol = normalizeSymbol(symbol)
	session = strings.TrimSpace(session)
	now := s.now()
	type identity struct {
		price string
		typ   string
	}
	index := make(map[identity]int, len(levels))
	models := make([]storemodel.LockedLevelModel, 0, len(levels))
	for _, lvl := range levels {
		typ := strings.TrimSpace(string(lvl.Type))
		if typ == "" {
			typ = string(store.LevelGeneric)
		}
		price := roundPrice(lvl.Price)
		m := storemodel.LockedLevelModel{
			Symbol:     symbol,
			Session:    session,
			Price:      price,
			LevelType:  typ,
			ZoneTop:    roundPricePtr(lvl.ZoneTop),
			ZoneBottom: roundPricePtr(lvl.ZoneBottom),
			Timeframe:  strings.TrimSpace(lvl.Timeframe),
			Metadata:   marshalJSON(lvl.Metadata),
			CreatedAt:  now,
		}
		// 同一批次内重复的身份键只保留最后一条，避免 ON CONFLICT 二次命中同一行。
		key := identity{price: decimal.NewFromFloat(price).StringFixed(priceScale), typ: typ}
		if pos, ok := index[key]; ok {
			models[pos] = m
			continue
		}
		index[key] = len(models)
		models = append(models, m)
	}
	updates := append(
		clause.AssignmentColumns([]string{"zone_top", "zone_bottom", "timeframe", "metadata"}),
		clause.Assignment{Column: clause.Column{Name: "invalidated_at"}, Value: nil},
	)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "session"}, {Name: "price"}, {Name: "level_type"}},
			DoUpdates: updates,
		}).
		Create(&models).Error
}

// --------------------- Setups -------------------------

func (s *GormStore) GetSetup(ctx context.Context, symbol, setupID string) (*store.Setup, error) {
	var m storemodel.ActiveSetupModel
	err := s.db.WithContext(ctx).
		Where("setup_id = ? AND symbol = ?", strings.TrimSpace(setupID), normalizeSymbol(symbol)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	setup := setupFromModel(m)
	return &setup, nil
}

func (s *GormStore) GetActiveSetup(ctx context.Context, symbol string) (*store.Setup, error) {
	var m storemodel.ActiveSetupModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND completed_at IS NULL", normalizeSymbol(symbol)).
		Order("updated_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	setup := setupFromModel(m)
	return &setup, nil
}

// SaveSetup 写入 setup 状态。阶段不做合法性校验；首次进入 STAND_DOWN 时记录 completed_at。
func (s *GormStore) SaveSetup(ctx context.Context, setup store.Setup) error {
	id := strings.TrimSpace(setup.SetupID)
	if id == "" {
		return fmt.Errorf("save setup: setup_id 必填")
	}
	now := s.now()
	phase := strings.ToUpper(strings.TrimSpace(setup.Phase))
	if phase == "" {
		phase = store.PhaseWatching
	}
	m := storemodel.ActiveSetupModel{
		SetupID:   id,
		Symbol:    normalizeSymbol(setup.Symbol),
		Session:   strings.TrimSpace(setup.Session),
		Phase:     phase,
		StateData: datatypes.JSON(setup.StateData),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(m.StateData) == 0 {
		m.StateData = datatypes.JSON("{}")
	}
	if store.IsTerminal(phase) {
		m.CompletedAt = &now
	}
	updates := clause.Assignments(map[string]interface{}{
		"phase":        gorm.Expr("excluded.phase"),
		"state_data":   gorm.Expr("excluded.state_data"),
		"updated_at":   gorm.Expr("excluded.updated_at"),
		"completed_at": gorm.Expr("COALESCE(active_setups.completed_at, excluded.completed_at)"),
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setup_id"}},
			DoUpdates: updates,
		}).
		Create(&m).Error
}

func setupFromModel(m storemodel.ActiveSetupModel) store.Setup {
	return store.Setup{
		SetupID:     m.SetupID,
		Symbol:      m.Symbol,
		Session:     m.Session,
		Phase:       m.Phase,
		StateData:   json.RawMessage(m.StateData),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		CompletedAt: m.CompletedAt,
	}
}

// --------------------- Positions -------------------------

func (s *GormStore) GetPositions(ctx context.Context, symbol string) ([]store.Position, error) {
	var models []storemodel.CurrentPositionModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", normalizeSymbol(symbol)).
		Order("entry_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.Position, 0, len(models))
	for _, m := range models {
		out = append(out, store.Position{
			Ticket:       m.Ticket,
			Asset:        m.Asset,
			Direction:    m.Direction,
			EntryPrice:   m.EntryPrice,
			CurrentPrice: m.CurrentPrice,
			StopLoss:     m.StopLoss,
			TakeProfit:   m.TakeProfit,
			LotSize:      m.LotSize,
			EntryTime:    m.EntryTime.UTC(),
		})
	}
	return out, nil
}

// ReplacePositions 以 EA 上报为准：删除该品种旧记录后整体写入。
func (s *GormStore) ReplacePositions(ctx context.Context, symbol string, positions []store.Position) error {
	symbol = normalizeSymbol(symbol)
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ?", symbol).Delete(&storemodel.CurrentPositionModel{}).Error; err != nil {
			return err
		}
		if len(positions) == 0 {
			return nil
		}
		models := make([]storemodel.CurrentPositionModel, 0, len(positions))
		for _, p := range positions {
			asset := strings.TrimSpace(p.Asset)
			if asset == "" {
				asset = symbol
			}
			entry := p.EntryTime
			if entry.IsZero() {
				entry = now
			}
			models = append(models, storemodel.CurrentPositionModel{
				Symbol:       symbol,
				Ticket:       p.Ticket,
				Asset:        asset,
				Direction:    strings.ToUpper(strings.TrimSpace(p.Direction)),
				EntryPrice:   roundPrice(p.EntryPrice),
				CurrentPrice: roundPricePtr(p.CurrentPrice),
				StopLoss:     roundPricePtr(p.StopLoss),
				TakeProfit:   roundPricePtr(p.TakeProfit),
				LotSize:      p.LotSize,
				EntryTime:    entry.UTC(),
				UpdatedAt:    now,
			})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "ticket"}},
			UpdateAll: true,
		}).Create(&models).Error
	})
}

// --------------------- Trade events -------------------------

func (s *GormStore) SaveTradeEvent(ctx context.Context, event store.TradeEvent) error {
	if strings.TrimSpace(event.EventType) == "" {
		return fmt.Errorf("save trade event: event_type 必填")
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = uuid.NewString()
	}
	created := event.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	m := storemodel.TradeEventModel{
		ID:        id,
		SetupID:   strings.TrimSpace(event.SetupID),
		Symbol:    normalizeSymbol(event.Symbol),
		EventType: strings.ToUpper(strings.TrimSpace(event.EventType)),
		EventData: datatypes.JSON(event.EventData),
		CreatedAt: created.UTC(),
	}
	if len(m.EventData) == 0 {
		m.EventData = datatypes.JSON("{}")
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListTradeEvents returns a setup's history, oldest first.
func (s *GormStore) ListTradeEvents(ctx context.Context, setupID string) ([]store.TradeEvent, error) {
	var models []storemodel.TradeEventModel
	if err := s.db.WithContext(ctx).Where("setup_id = ?", strings.TrimSpace(setupID)).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeEvent, 0, len(models))
	for _, m := range models {
		out = append(out, store.TradeEvent{
			ID:        m.ID,
			SetupID:   m.SetupID,
			Symbol:    m.Symbol,
			EventType: m.EventType,
			EventData: json.RawMessage(m.EventData),
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// --------------------- helpers -------------------------

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func roundPrice(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(priceScale).Float64()
	return f
}

func roundPricePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := roundPrice(*v)
	return &r
}

func marshalJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
