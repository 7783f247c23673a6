package models

import (
	"github.com/google/uuid"
)

// Report entry keys as emitted by the workers.
const (
	KeyWorkflowName     = "wf-name"
	KeyInvocationTime   = "invoc-time"
	KeyInvocationHost   = "invoc-host"
	KeyFileSizeStageIn  = "file-size-stagein"
	KeyFileSizeStageOut = "file-size-stageout"
	KeyFileTimeStageIn  = "file-time-stagein"
	KeyFileTimeStageOut = "file-time-stageout"
)

// RealTimeField is the structured field carrying wall-clock measurements.
const RealTimeField = "realTime"

// ReportEntry is one timestamped key/value observation emitted while a task runs.
type ReportEntry struct {
	Timestamp int64     `json:"timestamp" db:"ts"`               // Milliseconds since epoch
	RunID     uuid.UUID `json:"runId" db:"run_id"`               // Run the entry belongs to
	TaskID    int64     `json:"taskId" db:"task_id"`             // Task within the workflow
	TaskName  string    `json:"taskname" db:"task_name"`         // Human readable task name
	Lang      string    `json:"lang,omitempty" db:"lang"`        // Task language, informational
	InvocID   *int64    `json:"invocId,omitempty" db:"invoc_id"` // Nil for run-level entries
	File      string    `json:"file,omitempty" db:"file"`        // Staged file, if any
	Key       string    `json:"key" db:"entry_key"`              // Recognized or opaque key
	Value     Value     `json:"value" db:"entry_value"`          // Raw scalar or JSON object
}

// Kind returns the typed kind of the entry's key.
func (e ReportEntry) Kind() EntryKind {
	return KindOf(e.Key)
}

// Int64Ptr is a convenience for building entries with an invocation id.
func Int64Ptr(v int64) *int64 {
	return &v
}
