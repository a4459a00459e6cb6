package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var errClosed = errors.New("decision log store 未初始化")

// Store 记录每次轮询的模型原始输出与校验后的决策，便于事后排查。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// Record 是一次决策调用的审计行。
type Record struct {
	ID         int64           `json:"id"`
	TraceID    string          `json:"trace_id"`
	Symbol     string          `json:"symbol"`
	Workflow   string          `json:"workflow"`
	Action     string          `json:"action"`
	Model      string          `json:"model,omitempty"`
	RawOutput  string          `json:"raw_output,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
	Error      string          `json:"error,omitempty"`
	Decision   json.RawMessage `json:"decision,omitempty"`
	LatencyMS  int64           `json:"latency_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Open 初始化 SQLite 审计库；":memory:" 使用进程内临时库。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	var dsn string
	memory := path == ":memory:"
	if memory {
		dsn = "file::memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if memory {
		// 每个连接都是独立的内存库
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(2)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the file the store was opened with.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s == nil {
		return nil, errClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errClosed
	}
	return s.db, nil
}

// Insert 写入一条记录并返回自增 ID。
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(rec.Symbol) == "" {
		return 0, fmt.Errorf("decision log: symbol 不能为空")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var decisionJSON sql.NullString
	if len(rec.Decision) > 0 {
		decisionJSON = sql.NullString{String: string(rec.Decision), Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_logs
			(trace_id, symbol, workflow, action, model, raw_output, parse_error, error,
			 decision_json, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		rec.Workflow,
		rec.Action,
		rec.Model,
		rec.RawOutput,
		rec.ParseError,
		rec.Error,
		decisionJSON,
		rec.LatencyMS,
		created.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent 返回某品种最新的 limit 条记录（新→旧）；symbol 为空时不过滤。
func (s *Store) Recent(ctx context.Context, symbol string, limit int) ([]Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT id, trace_id, symbol, workflow, action, model, raw_output, parse_error, error,
		decision_json, latency_ms, created_at FROM decision_logs`
	var args []any
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query += ` WHERE symbol = ?`
		args = append(args, sym)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ByTrace 返回同一 trace 的记录；不存在时返回 sql.ErrNoRows。
func (s *Store) ByTrace(ctx context.Context, traceID string) (Record, error) {
	db, err := s.conn()
	if err != nil {
		return Record{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT id, trace_id, symbol, workflow, action, model, raw_output,
		parse_error, error, decision_json, latency_ms, created_at
		FROM decision_logs WHERE trace_id = ? ORDER BY id DESC LIMIT 1`, traceID)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (Record, error) {
	var (
		rec                        Record
		model, rawOut, parseErr    sql.NullString
		errStr, decisionJSON, wkfl sql.NullString
		latency                    sql.NullInt64
		created                    int64
	)
	if err := scanner.Scan(&rec.ID, &rec.TraceID, &rec.Symbol, &wkfl, &rec.Action, &model, &rawOut,
		&parseErr, &errStr, &decisionJSON, &latency, &created); err != nil {
		return rec, err
	}
	rec.Workflow = wkfl.String
	rec.Model = model.String
	rec.RawOutput = rawOut.String
	rec.ParseError = parseErr.String
	rec.Error = errStr.String
	if decisionJSON.Valid && decisionJSON.String != "" {
		rec.Decision = json.RawMessage(decisionJSON.String)
	}
	rec.LatencyMS = latency.Int64
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}
