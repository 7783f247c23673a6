package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
	"github.com/saltehb/hiway/pkg/storage"
)

// DefaultMaxPending bounds the entries held back for runs without a workflow binding.
const DefaultMaxPending = 10000

// Logger defines the logging interface for IngestService
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// IngestService interprets report entries and applies them to a Store.
//
// Entries that reference an invocation of a run whose workflow-name entry has
// not arrived yet are held back per run, in arrival order, and applied as soon
// as the binding is ingested. Later entries for a held invocation join the same
// run's queue whatever run id they carry. Entries are applied one at a time; concurrent
// callers are serialized.
type IngestService struct {
	store        storage.Store
	journal      storage.Journal
	logger       Logger
	sink         ErrorSink
	pending      map[uuid.UUID][]models.ReportEntry
	pendingInvoc map[int64]uuid.UUID // held invocation -> run it waits for
	pendingLen   int
	maxPending   int
	mu           sync.Mutex
}

type Option func(*IngestService)

// WithJournal appends every ingested entry to j before it is applied.
func WithJournal(j storage.Journal) Option {
	return func(s *IngestService) { s.journal = j }
}

// WithErrorSink replaces the default LogSink.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *IngestService) { s.sink = sink }
}

// WithMaxPending sets the pending buffer cap. Zero disables buffering, a
// negative value removes the cap.
func WithMaxPending(n int) Option {
	return func(s *IngestService) { s.maxPending = n }
}

func NewIngestService(store storage.Store, logger Logger, opts ...Option) *IngestService {
	s := &IngestService{
		store:        store,
		logger:       logger,
		sink:         NewLogSink(logger),
		pending:      make(map[uuid.UUID][]models.ReportEntry),
		pendingInvoc: make(map[int64]uuid.UUID),
		maxPending:   DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the store the service writes to.
func (s *IngestService) Store() storage.Store {
	return s.store
}

// Ingest journals and applies one report entry. A non-nil error means the
// entry's update was skipped; it has already been reported to the error sink
// and does not affect later entries.
func (s *IngestService) Ingest(entry models.ReportEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal != nil {
		if err := s.journal.Append(entry); err != nil {
			s.logger.Errorf("Failed to journal entry '%s' of run %s: %v", entry.Key, entry.RunID, err)
			return errors.Wrap(err, "journal entry")
		}
	}
	return s.dispatch(entry)
}

// PendingEntries returns the number of entries waiting for a workflow binding.
func (s *IngestService) PendingEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLen
}

// PendingRuns returns the runs that have entries waiting for a workflow binding.
func (s *IngestService) PendingRuns() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]uuid.UUID, 0, len(s.pending))
	for runID := range s.pending {
		runs = append(runs, runID)
	}
	return runs
}

func (s *IngestService) dispatch(entry models.ReportEntry) error {
	err := s.apply(entry)
	if err != nil {
		s.sink.Report(entry, err)
	}
	return err
}

func (s *IngestService) apply(entry models.ReportEntry) error {
	kind := entry.Kind()
	if kind == models.WorkflowNameEntryKind {
		return s.bindRun(entry)
	}

	if entry.InvocID != nil {
		if runID, ok := s.pendingInvoc[*entry.InvocID]; ok {
			return s.hold(runID, entry, errors.Wrapf(storage.ErrUnboundRun, "run %s", runID))
		}
		created, err := s.store.MaterializeInvocation(*entry.InvocID, entry.RunID, entry.TaskID, entry.TaskName, entry.Timestamp)
		if errors.Is(err, storage.ErrUnboundRun) {
			if entry.RunID == uuid.Nil {
				return models.NewIngestError(models.UnboundRunError, entry, errors.Wrap(err, "entry carries no run id"))
			}
			return s.hold(entry.RunID, entry, err)
		}
		if err != nil {
			return err
		}
		if created {
			s.logger.Debugf("Materialized invocation %d of task %d ('%s')", *entry.InvocID, entry.TaskID, entry.TaskName)
		}
	}

	if !kind.InvocationScoped() {
		return nil
	}
	if entry.InvocID == nil {
		return models.NewIngestError(models.MissingInvocationError, entry, errors.New("entry carries no invocation id"))
	}
	return appliers[kind](s.store, entry)
}

func (s *IngestService) bindRun(entry models.ReportEntry) error {
	workflowName := entry.Value.Raw()
	if workflowName == "" {
		return models.NewIngestError(models.MalformedValueError, entry, errors.New("empty workflow name"))
	}
	if !s.store.BindRunToWorkflow(entry.RunID, workflowName) {
		if bound, _ := s.store.WorkflowForRun(entry.RunID); bound != workflowName {
			s.logger.Infof("Run %s already bound to workflow '%s', ignoring '%s'", entry.RunID, bound, workflowName)
		}
		return nil
	}
	s.logger.Infof("Bound run %s to workflow '%s'", entry.RunID, workflowName)

	held := s.pending[entry.RunID]
	if len(held) == 0 {
		return nil
	}
	delete(s.pending, entry.RunID)
	s.pendingLen -= len(held)
	for _, e := range held {
		if e.InvocID != nil {
			delete(s.pendingInvoc, *e.InvocID)
		}
	}
	s.logger.Debugf("Applying %d held entries for run %s", len(held), entry.RunID)
	for _, e := range held {
		_ = s.dispatch(e)
	}
	return nil
}

// hold queues entry until runID is bound.
func (s *IngestService) hold(runID uuid.UUID, entry models.ReportEntry, cause error) error {
	if s.maxPending == 0 {
		return models.NewIngestError(models.UnboundRunError, entry, cause)
	}
	if s.maxPending > 0 && s.pendingLen >= s.maxPending {
		return models.NewIngestError(models.PendingOverflowError, entry, cause)
	}
	s.pending[runID] = append(s.pending[runID], entry)
	s.pendingLen++
	if entry.InvocID != nil {
		s.pendingInvoc[*entry.InvocID] = runID
	}
	s.logger.Debugf("Holding entry '%s' until run %s is bound", entry.Key, runID)
	return nil
}
