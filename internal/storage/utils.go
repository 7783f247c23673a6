package storage

import (
	"github.com/saltehb/hiway/internal/config"
	"github.com/saltehb/hiway/pkg/storage"
)

// InitJournal opens the journal selected by cfg, or returns nil when none is
// configured.
func InitJournal(cfg config.Config) (storage.Journal, error) {
	switch {
	case cfg.DBURL != "":
		journal, err := NewPostgresJournal(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		return journal, nil
	case cfg.SQLitePath != "":
		journal, err := NewSQLiteJournal(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return journal, nil
	}
	return nil, nil
}
