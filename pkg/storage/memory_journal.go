package storage

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
)

// memoryJournal implements Journal with an in-memory slice
type memoryJournal struct {
	entries []models.ReportEntry
	closed  bool
	mu      sync.Mutex
}

func (m *memoryJournal) Append(entry models.ReportEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("journal already closed")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryJournal) Entries() ([]models.ReportEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("journal already closed")
	}
	out := make([]models.ReportEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

func NewMemoryJournal() Journal {
	return &memoryJournal{}
}
