package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/saltehb/hiway/pkg/models"
)

const entryColumns = "ts, run_id, task_id, task_name, lang, invoc_id, file, entry_key, entry_value"

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresJournal stores raw report entries in the report_entries table
// created by the migrations.
type PostgresJournal struct {
	db DBInterface
}

func NewPostgresJournal(connStr string) (*PostgresJournal, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresJournal{db: db}, nil
}

func (s *PostgresJournal) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// Append inserts one entry; seq preserves arrival order.
func (s *PostgresJournal) Append(entry models.ReportEntry) error {
	_, err := s.db.Exec("INSERT INTO report_entries ("+entryColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		entry.Timestamp, entry.RunID, entry.TaskID, entry.TaskName, entry.Lang, entry.InvocID, entry.File, entry.Key, entry.Value)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// Entries returns the whole journal in arrival order.
func (s *PostgresJournal) Entries() ([]models.ReportEntry, error) {
	entries := []models.ReportEntry{}
	err := s.db.Select(&entries, "SELECT "+entryColumns+" FROM report_entries ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// EntriesForRun returns the journal of one run in arrival order.
func (s *PostgresJournal) EntriesForRun(runID uuid.UUID) ([]models.ReportEntry, error) {
	entries := []models.ReportEntry{}
	err := s.db.Select(&entries, "SELECT "+entryColumns+" FROM report_entries WHERE run_id = $1 ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("list entries of run %s: %w", runID, err)
	}
	return entries, nil
}

// Count returns the number of journaled entries.
func (s *PostgresJournal) Count() (int64, error) {
	var n int64
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM report_entries"); err != nil {
		return 0, err
	}
	return n, nil
}
