package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/saltehb/hiway/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS report_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	task_id INTEGER NOT NULL,
	task_name TEXT NOT NULL DEFAULT '',
	lang TEXT NOT NULL DEFAULT '',
	invoc_id INTEGER,
	file TEXT NOT NULL DEFAULT '',
	entry_key TEXT NOT NULL,
	entry_value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_entries_run ON report_entries(run_id);
`

// SQLiteJournal is a single-file journal for local runs.
type SQLiteJournal struct {
	db *sqlx.DB
}

func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

func (s *SQLiteJournal) Append(entry models.ReportEntry) error {
	_, err := s.db.Exec("INSERT INTO report_entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.Timestamp, entry.RunID.String(), entry.TaskID, entry.TaskName, entry.Lang, entry.InvocID, entry.File, entry.Key, entry.Value)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *SQLiteJournal) Entries() ([]models.ReportEntry, error) {
	entries := []models.ReportEntry{}
	if err := s.db.Select(&entries, "SELECT "+entryColumns+" FROM report_entries ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (s *SQLiteJournal) EntriesForRun(runID uuid.UUID) ([]models.ReportEntry, error) {
	entries := []models.ReportEntry{}
	err := s.db.Select(&entries, "SELECT "+entryColumns+" FROM report_entries WHERE run_id = ? ORDER BY seq", runID.String())
	if err != nil {
		return nil, fmt.Errorf("list entries of run %s: %w", runID, err)
	}
	return entries, nil
}
