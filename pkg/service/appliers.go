package service

import (
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
	"github.com/saltehb/hiway/pkg/storage"
)

// applyFunc applies the value of one entry to the store. The entry's
// invocation is known to exist when it is called.
type applyFunc func(store storage.Store, entry models.ReportEntry) error

// appliers maps each invocation-scoped kind to the field it updates. File
// measurements take their input or output set from the kind.
var appliers = map[models.EntryKind]applyFunc{
	models.InvocationTimeEntryKind:   applyInvocationTime,
	models.InvocationHostEntryKind:   applyInvocationHost,
	models.FileSizeStageInEntryKind:  applyFileSize,
	models.FileSizeStageOutEntryKind: applyFileSize,
	models.FileTimeStageInEntryKind:  applyFileTime,
	models.FileTimeStageOutEntryKind: applyFileTime,
}

func applyInvocationTime(store storage.Store, entry models.ReportEntry) error {
	realTime, err := entry.Value.Field(models.RealTimeField)
	if err != nil {
		return models.NewIngestError(models.MalformedValueError, entry, err)
	}
	return store.SetInvocationRealTime(*entry.InvocID, realTime)
}

func applyInvocationHost(store storage.Store, entry models.ReportEntry) error {
	hostName := entry.Value.Raw()
	if hostName == "" {
		return models.NewIngestError(models.MalformedValueError, entry, errors.New("empty host name"))
	}
	return store.SetInvocationHost(*entry.InvocID, hostName)
}

func applyFileSize(store storage.Store, entry models.ReportEntry) error {
	dir, err := ensureFile(store, entry)
	if err != nil {
		return err
	}
	size, err := entry.Value.Int64()
	if err != nil {
		return models.NewIngestError(models.MalformedValueError, entry, err)
	}
	return store.SetFileSize(*entry.InvocID, dir, entry.File, size)
}

func applyFileTime(store storage.Store, entry models.ReportEntry) error {
	dir, err := ensureFile(store, entry)
	if err != nil {
		return err
	}
	realTime, err := entry.Value.Field(models.RealTimeField)
	if err != nil {
		return models.NewIngestError(models.MalformedValueError, entry, err)
	}
	return store.SetFileRealTime(*entry.InvocID, dir, entry.File, realTime)
}

// ensureFile materializes the file record before its value is parsed, so a
// malformed value still leaves the file tracked. It returns the file set the
// entry's kind stages into.
func ensureFile(store storage.Store, entry models.ReportEntry) (models.Direction, error) {
	dir, ok := entry.Kind().Direction()
	if !ok {
		return "", errors.Errorf("key '%s' is not a file measurement", entry.Key)
	}
	if entry.File == "" {
		return "", models.NewIngestError(models.MissingFileError, entry, errors.New("entry names no file"))
	}
	if _, err := store.EnsureFile(*entry.InvocID, dir, entry.File); err != nil {
		return "", err
	}
	return dir, nil
}
