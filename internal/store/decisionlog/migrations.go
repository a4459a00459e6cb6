package decisionlog

import (
	"database/sql"
	"fmt"
	"strings"
)

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT,
			symbol TEXT NOT NULL,
			workflow TEXT,
			action TEXT NOT NULL,
			model TEXT,
			raw_output TEXT,
			parse_error TEXT,
			error TEXT,
			decision_json TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_symbol_created ON decision_logs(symbol, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_trace ON decision_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	// 后加的列走幂等 ALTER，兼容旧库
	cols := []struct {
		column string
		typ    string
	}{
		{"latency_ms", "INTEGER DEFAULT 0"},
	}
	for _, col := range cols {
		if err := addColumnIfMissing(db, "decision_logs", col.column, col.typ); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	exists := false
	for rows.Next() {
		var (
			cid          int
			name, ctype  string
			notnull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &defaultValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
		}
	}
	rows.Close()
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}
