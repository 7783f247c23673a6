package service

import (
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
)

// EntrySource yields a recorded entry stream in production order.
type EntrySource interface {
	Entries() ([]models.ReportEntry, error)
}

// EntryList is an in-memory EntrySource.
type EntryList []models.ReportEntry

func (l EntryList) Entries() ([]models.ReportEntry, error) {
	return l, nil
}

// ReplayStats counts the outcome of a replay.
type ReplayStats struct {
	Entries int
	Skipped int
	Pending int
}

// Replay re-feeds a recorded stream without journaling it again.
func (s *IngestService) Replay(src EntrySource) (ReplayStats, error) {
	entries, err := src.Entries()
	if err != nil {
		return ReplayStats{}, errors.Wrap(err, "read entry source")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stats := ReplayStats{Entries: len(entries)}
	for _, entry := range entries {
		if err := s.dispatch(entry); err != nil {
			stats.Skipped++
		}
	}
	stats.Pending = s.pendingLen
	s.logger.Infof("Replayed %d entries (%d skipped, %d pending)", stats.Entries, stats.Skipped, stats.Pending)
	return stats, nil
}
