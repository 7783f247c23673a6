// Package reportlog reads and writes report entries as JSON lines, the form in
// which workers ship their measurements.
package reportlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
)

const maxLineSize = 4 * 1024 * 1024

// LineError describes a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return errors.Wrapf(e.Err, "line %d", e.Line).Error()
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Decode reads one entry per non-blank line. Undecodable lines are passed to
// onError (when non-nil) and skipped; only read failures abort decoding.
func Decode(r io.Reader, onError func(*LineError)) ([]models.ReportEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []models.ReportEntry
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var entry models.ReportEntry
		if err := json.Unmarshal(text, &entry); err != nil {
			if onError != nil {
				onError(&LineError{Line: line, Err: err})
			}
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrap(err, "read report log")
	}
	return entries, nil
}

// Encode writes entries as JSON lines.
func Encode(w io.Writer, entries []models.ReportEntry) error {
	enc := json.NewEncoder(w)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return errors.Wrap(err, "encode report entry")
		}
	}
	return nil
}
