package storage

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUnboundRun = errors.New("run has no workflow binding")
)

// Reader is the read-only query API over the provenance store. Every returned
// collection is a copy owned by the caller.
type Reader interface {
	HostNames() []string
	LogEntries() []models.InvocStat
	LogEntriesForTask(taskID int64) []models.InvocStat
	LogEntriesForTasks(taskIDs []int64) []models.InvocStat
	LogEntriesSince(sinceTimestamp int64) []models.InvocStat
	LogEntriesSinceForTask(taskID int64, sinceTimestamp int64) []models.InvocStat
	LogEntriesSinceForTasks(taskIDs []int64, sinceTimestamp int64) []models.InvocStat
	TaskIDsForWorkflow(workflowName string) ([]int64, bool)
	TaskName(taskID int64) (string, bool)
	WorkflowForRun(runID uuid.UUID) (string, bool)
	Workflows() []string
	Invocation(invocID int64) (models.InvocStat, bool)
}

// Store defines the entity operations used by ingestion plus the query API.
type Store interface {
	Reader

	// Run and task bindings
	BindRunToWorkflow(runID uuid.UUID, workflowName string) bool
	RegisterTaskForWorkflow(workflowName string, taskID int64, taskName string)

	// Invocation operations
	GetOrCreateInvocation(invocID, timestamp, taskID int64) (models.InvocStat, bool)
	MaterializeInvocation(invocID int64, runID uuid.UUID, taskID int64, taskName string, timestamp int64) (bool, error)
	SetInvocationRealTime(invocID, realTime int64) error
	SetInvocationHost(invocID int64, hostName string) error
	RecordHost(hostName string)

	// File operations
	EnsureFile(invocID int64, dir models.Direction, fileName string) (bool, error)
	SetFileSize(invocID int64, dir models.Direction, fileName string, size int64) error
	SetFileRealTime(invocID int64, dir models.Direction, fileName string, realTime int64) error
}

// Journal is an append-only log of raw report entries, used to rebuild a
// transient store by replay.
type Journal interface {
	Append(entry models.ReportEntry) error
	Entries() ([]models.ReportEntry, error)
	Close() error
}
