// Package notecache 是笔记存储之上的新鲜度策略：缓存未过期则直接返回，
// 否则同步刷新并覆盖保存。
package notecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"botcore/internal/logger"
	"botcore/internal/metrics"
	"botcore/internal/store"
)

// DefaultTTL is the freshness window of market_data_note.
const DefaultTTL = 4 * time.Hour

type Status string

const (
	StatusHit  Status = "hit"
	StatusMiss Status = "miss"
)

// FetchFunc produces the payload of a fresh note.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

type Cache struct {
	notes   store.NoteStore
	now     func() time.Time
	metrics *metrics.Recorder
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Cache) { c.metrics = m }
}

func New(notes store.NoteStore, opts ...Option) *Cache {
	c := &Cache{notes: notes, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFresh 返回 (symbol, noteType) 的笔记：存在且 now-created_at < ttl 时命中；
// 缺失、读取失败、无时间戳或过期时调用 fetch 并保存。保存失败只记日志，
// 仍返回新取得的笔记。fetch 失败则返回错误。
func (c *Cache) GetFresh(ctx context.Context, symbol string, noteType store.NoteType, ttl time.Duration, fetch FetchFunc) (store.Note, Status, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	cached, err := c.notes.GetNote(ctx, symbol, noteType)
	if err != nil {
		logger.Warnf("[notecache] 读取 %s/%s 失败，按过期处理: %v", symbol, noteType, err)
	} else if cached != nil {
		if age, ok := cached.Age(now); ok && age < ttl {
			c.metrics.RecordNoteCache(string(noteType), string(StatusHit))
			logger.Debugf("[notecache] %s/%s 命中 age=%s", symbol, noteType, age.Truncate(time.Second))
			return *cached, StatusHit, nil
		}
	}

	c.metrics.RecordNoteCache(string(noteType), string(StatusMiss))
	payload, err := fetch(ctx)
	if err != nil {
		return store.Note{}, StatusMiss, fmt.Errorf("refresh %s for %s: %w", noteType, symbol, err)
	}
	note := store.NewNote(symbol, noteType, payload, now)
	if err := c.notes.SaveNote(ctx, note); err != nil {
		logger.Warnf("[notecache] 保存 %s/%s 失败: %v", symbol, noteType, err)
	}
	return note, StatusMiss, nil
}
