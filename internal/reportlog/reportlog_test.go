package reportlog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/saltehb/hiway/internal/reportlog"
	"github.com/saltehb/hiway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"timestamp":1,"runId":"5f0c7a4e-8a0b-4d5e-9a65-0d2b8c7f1a11","taskId":0,"taskname":"","key":"wf-name","value":"wf-A"}

{"timestamp":2,"runId":"5f0c7a4e-8a0b-4d5e-9a65-0d2b8c7f1a11","taskId":1,"taskname":"align","invocId":100,"key":"invoc-host","value":"node7"}
not json at all
{"timestamp":3,"runId":"not-a-uuid","taskId":1,"key":"invoc-host","value":"node7"}
{"timestamp":4,"runId":"5f0c7a4e-8a0b-4d5e-9a65-0d2b8c7f1a11","taskId":1,"taskname":"align","invocId":100,"file":"reads.fq","key":"file-time-stagein","value":{"realTime":35}}
`

func TestDecode(t *testing.T) {
	var lineErrs []*reportlog.LineError
	entries, err := reportlog.Decode(strings.NewReader(sampleLog), func(lerr *reportlog.LineError) {
		lineErrs = append(lineErrs, lerr)
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, models.KeyWorkflowName, entries[0].Key)
	assert.Equal(t, "wf-A", entries[0].Value.Raw())
	assert.Nil(t, entries[0].InvocID)

	assert.Equal(t, int64(100), *entries[1].InvocID)
	assert.Equal(t, "align", entries[1].TaskName)

	assert.Equal(t, "reads.fq", entries[2].File)
	assert.True(t, entries[2].Value.IsStructured())

	require.Len(t, lineErrs, 2)
	assert.Equal(t, 4, lineErrs[0].Line)
	assert.Equal(t, 5, lineErrs[1].Line)
	assert.Contains(t, lineErrs[0].Error(), "line 4")
}

func TestDecodeWithoutErrorCallback(t *testing.T) {
	entries, err := reportlog.Decode(strings.NewReader("garbage\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEncodeDecode(t *testing.T) {
	runID := uuid.MustParse("0b6d2f3c-7e1a-4c58-b9d0-2a4e6f8c1d35")
	entries := []models.ReportEntry{
		{Timestamp: 9, RunID: runID, Key: models.KeyWorkflowName, Value: models.RawValue("wf-B")},
		{Timestamp: 10, RunID: runID, TaskID: 3, TaskName: "sort", InvocID: models.Int64Ptr(7),
			Key: models.KeyInvocationTime, Value: models.ObjectValue(map[string]interface{}{"realTime": 12})},
	}

	var buf bytes.Buffer
	require.NoError(t, reportlog.Encode(&buf, entries))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	decoded, err := reportlog.Decode(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}
