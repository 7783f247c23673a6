package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a single report entry could not be applied.
type ErrorKind int

const (
	MalformedValueError ErrorKind = iota + 1
	MissingInvocationError
	MissingFileError
	UnboundRunError
	PendingOverflowError
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedValueError:
		return "malformed value"
	case MissingInvocationError:
		return "missing invocation"
	case MissingFileError:
		return "missing file"
	case UnboundRunError:
		return "unbound run"
	case PendingOverflowError:
		return "pending overflow"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// IngestError reports a skipped field update. Ingestion of later entries is
// never affected by it.
type IngestError struct {
	Kind    ErrorKind
	Key     string
	InvocID *int64
	Err     error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("%s: key %q", e.Kind, e.Key)
	if e.InvocID != nil {
		msg += fmt.Sprintf(" invocation %d", *e.InvocID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewIngestError builds an IngestError for the given entry.
func NewIngestError(kind ErrorKind, entry ReportEntry, err error) *IngestError {
	return &IngestError{Kind: kind, Key: entry.Key, InvocID: entry.InvocID, Err: err}
}

// KindOfError extracts the ErrorKind from an error chain.
func KindOfError(err error) (ErrorKind, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}
