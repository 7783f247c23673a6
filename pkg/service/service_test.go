package service_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/saltehb/hiway/pkg/models"
	"github.com/saltehb/hiway/pkg/service"
	"github.com/saltehb/hiway/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logger struct{}

func (l logger) Debugf(format string, args ...interface{}) {
	// no-op
}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

type recordingSink struct {
	mu      sync.Mutex
	entries []models.ReportEntry
	errs    []error
}

func (s *recordingSink) Report(entry models.ReportEntry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.errs = append(s.errs, err)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

var (
	runA = uuid.MustParse("5f0c7a4e-8a0b-4d5e-9a65-0d2b8c7f1a11")
	runB = uuid.MustParse("0b6d2f3c-7e1a-4c58-b9d0-2a4e6f8c1d35")
)

func workflowEntry(runID uuid.UUID, name string) models.ReportEntry {
	return models.ReportEntry{RunID: runID, Key: models.KeyWorkflowName, Value: models.RawValue(name)}
}

func invocEntry(runID uuid.UUID, invocID, taskID int64, taskName string, ts int64, key string, value models.Value) models.ReportEntry {
	return models.ReportEntry{
		Timestamp: ts,
		RunID:     runID,
		TaskID:    taskID,
		TaskName:  taskName,
		InvocID:   models.Int64Ptr(invocID),
		Key:       key,
		Value:     value,
	}
}

func fileEntry(runID uuid.UUID, invocID, taskID int64, file, key string, value models.Value) models.ReportEntry {
	e := invocEntry(runID, invocID, taskID, "task", 1000, key, value)
	e.File = file
	return e
}

func realTime(ms int64) models.Value {
	return models.ObjectValue(map[string]interface{}{models.RealTimeField: ms})
}

func TestIngestService(t *testing.T) {

	newIngestService := func(opts ...service.Option) (*service.IngestService, *storage.MemoryStore, *recordingSink) {
		store := storage.NewMemoryStore()
		sink := &recordingSink{}
		opts = append([]service.Option{service.WithErrorSink(sink)}, opts...)
		return service.NewIngestService(store, logger{}, opts...), store, sink
	}

	t.Run("EndToEndScenario", func(t *testing.T) {
		svc, store, sink := newIngestService()

		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7"))))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 0, "", 0, models.KeyInvocationTime, realTime(4200))))

		assert.Equal(t, []string{"node7"}, store.HostNames())
		name, ok := store.TaskName(1)
		assert.True(t, ok)
		assert.Equal(t, "align", name)
		taskIDs, ok := store.TaskIDsForWorkflow("wf-A")
		assert.True(t, ok)
		assert.Equal(t, []int64{1}, taskIDs)

		stats := store.LogEntriesForTask(1)
		require.Len(t, stats, 1)
		assert.Equal(t, "node7", stats[0].HostName)
		assert.Equal(t, int64(4200), stats[0].RealTime)
		assert.Equal(t, int64(1500), stats[0].Timestamp)
		assert.Equal(t, 0, sink.count())
	})

	t.Run("IdempotentFirstSight", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		first := invocEntry(runA, 100, 1, "align", 1500, "invoc-stdout", models.RawValue("ok"))
		assert.NoError(t, svc.Ingest(first))
		assert.NoError(t, svc.Ingest(first))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 2, "sort", 1700, models.KeyInvocationHost, models.RawValue("node1"))))

		stats := store.LogEntries()
		require.Len(t, stats, 1)
		assert.Equal(t, int64(1), stats[0].TaskID)
		assert.Equal(t, int64(1500), stats[0].Timestamp)
		assert.Equal(t, "node1", stats[0].HostName)

		taskIDs, _ := store.TaskIDsForWorkflow("wf-A")
		assert.Equal(t, []int64{1}, taskIDs)
	})

	t.Run("MonotonicHostSet", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		hosts := []string{"node1", "node2", "node1", "node3", "node2", "node1"}
		distinct := map[string]struct{}{}
		for i, h := range hosts {
			assert.NoError(t, svc.Ingest(invocEntry(runA, int64(i), 1, "align", 10, models.KeyInvocationHost, models.RawValue(h))))
			distinct[h] = struct{}{}
			assert.Len(t, store.HostNames(), len(distinct))
		}
		assert.Equal(t, []string{"node1", "node2", "node3"}, store.HostNames())
	})

	t.Run("FilterCorrectness", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		rng := rand.New(rand.NewSource(42))
		type seed struct{ taskID, ts int64 }
		seeds := map[int64]seed{}
		for i := 0; i < 200; i++ {
			invocID := int64(rng.Intn(150))
			s := seed{taskID: int64(rng.Intn(6)), ts: int64(rng.Intn(100))}
			if _, ok := seeds[invocID]; !ok {
				seeds[invocID] = s
			}
			assert.NoError(t, svc.Ingest(invocEntry(runA, invocID, s.taskID, "t", s.ts, "invoc-exec", models.RawValue(""))))
		}

		for trial := 0; trial < 20; trial++ {
			since := int64(rng.Intn(110)) - 5
			taskSet := map[int64]bool{}
			var taskIDs []int64
			for id := int64(0); id < 6; id++ {
				if rng.Intn(2) == 0 {
					taskSet[id] = true
					taskIDs = append(taskIDs, id)
				}
			}

			wantSince, wantTasks, wantBoth := map[int64]bool{}, map[int64]bool{}, map[int64]bool{}
			for invocID, s := range seeds {
				if s.ts > since {
					wantSince[invocID] = true
				}
				if taskSet[s.taskID] {
					wantTasks[invocID] = true
				}
				if s.ts > since && taskSet[s.taskID] {
					wantBoth[invocID] = true
				}
			}

			asSet := func(stats []models.InvocStat) map[int64]bool {
				got := map[int64]bool{}
				for _, st := range stats {
					got[st.InvocID] = true
				}
				return got
			}
			assert.Equal(t, wantSince, asSet(store.LogEntriesSince(since)))
			assert.Equal(t, wantTasks, asSet(store.LogEntriesForTasks(taskIDs)))
			assert.Equal(t, wantBoth, asSet(store.LogEntriesSinceForTasks(taskIDs, since)))
		}
		assert.Len(t, store.LogEntries(), len(seeds))
	})

	t.Run("FileDedup", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.NoError(t, svc.Ingest(fileEntry(runA, 100, 1, "reads.fq", models.KeyFileSizeStageIn, models.RawValue("2048"))))
		assert.NoError(t, svc.Ingest(fileEntry(runA, 100, 1, "reads.fq", models.KeyFileTimeStageIn, realTime(35))))
		assert.NoError(t, svc.Ingest(fileEntry(runA, 100, 1, "reads.fq", models.KeyFileSizeStageOut, models.RawValue("512"))))
		assert.NoError(t, svc.Ingest(fileEntry(runA, 100, 1, "reads.fq", models.KeyFileTimeStageOut, realTime(7))))

		stat, ok := store.Invocation(100)
		require.True(t, ok)
		assert.Equal(t, []models.FileStat{{Name: "reads.fq", Size: 2048, RealTime: 35}}, stat.InputFiles)
		assert.Equal(t, []models.FileStat{{Name: "reads.fq", Size: 512, RealTime: 7}}, stat.OutputFiles)
	})

	t.Run("MalformedValueResilience", func(t *testing.T) {
		svc, store, sink := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		err := svc.Ingest(fileEntry(runA, 100, 1, "bad.fq", models.KeyFileSizeStageIn, models.RawValue("lots")))
		require.Error(t, err)
		kind, ok := models.KindOfError(err)
		assert.True(t, ok)
		assert.Equal(t, models.MalformedValueError, kind)

		assert.NoError(t, svc.Ingest(fileEntry(runA, 100, 1, "good.fq", models.KeyFileSizeStageIn, models.RawValue("64"))))
		assert.NoError(t, svc.Ingest(fileEntry(runA, 101, 1, "bad.fq", models.KeyFileSizeStageIn, models.RawValue("128"))))

		err = svc.Ingest(invocEntry(runA, 101, 1, "align", 1000, models.KeyInvocationTime, models.RawValue(`{"userTime":3}`)))
		kind, _ = models.KindOfError(err)
		assert.Equal(t, models.MalformedValueError, kind)

		stat, _ := store.Invocation(100)
		bad, ok := stat.InputFile("bad.fq")
		assert.True(t, ok, "file is tracked even when its value is malformed")
		assert.Equal(t, int64(0), bad.Size)
		good, _ := stat.InputFile("good.fq")
		assert.Equal(t, int64(64), good.Size)

		stat, _ = store.Invocation(101)
		f, _ := stat.InputFile("bad.fq")
		assert.Equal(t, int64(128), f.Size)

		assert.Equal(t, 2, sink.count())
	})

	t.Run("HeldUntilRunIsBound", func(t *testing.T) {
		svc, store, sink := newIngestService()

		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7"))))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationTime, realTime(4200))))
		assert.NoError(t, svc.Ingest(invocEntry(runB, 200, 5, "sort", 1600, models.KeyInvocationHost, models.RawValue("node9"))))
		assert.Equal(t, 3, svc.PendingEntries())
		assert.Len(t, svc.PendingRuns(), 2)
		assert.Empty(t, store.LogEntries())
		assert.Empty(t, store.HostNames())

		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.Equal(t, 1, svc.PendingEntries())
		assert.Equal(t, []uuid.UUID{runB}, svc.PendingRuns())

		stat, ok := store.Invocation(100)
		require.True(t, ok)
		assert.Equal(t, "node7", stat.HostName)
		assert.Equal(t, int64(4200), stat.RealTime)
		assert.Equal(t, []string{"node7"}, store.HostNames())
		assert.Equal(t, 0, sink.count())
	})

	t.Run("FollowUpWithoutRunIsHeldWithItsInvocation", func(t *testing.T) {
		svc, store, sink := newIngestService()

		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7"))))
		followUp := models.ReportEntry{InvocID: models.Int64Ptr(100), Key: models.KeyInvocationTime, Value: realTime(4200)}
		assert.NoError(t, svc.Ingest(followUp))
		file := models.ReportEntry{InvocID: models.Int64Ptr(100), File: "reads.fq", Key: models.KeyFileSizeStageIn, Value: models.RawValue("512")}
		assert.NoError(t, svc.Ingest(file))
		assert.Equal(t, 3, svc.PendingEntries())
		assert.Equal(t, []uuid.UUID{runA}, svc.PendingRuns())

		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.Equal(t, 0, svc.PendingEntries())
		assert.Empty(t, svc.PendingRuns())

		stat, ok := store.Invocation(100)
		require.True(t, ok)
		assert.Equal(t, "node7", stat.HostName)
		assert.Equal(t, int64(4200), stat.RealTime)
		assert.Equal(t, []models.FileStat{{Name: "reads.fq", Size: 512}}, stat.InputFiles)
		assert.Equal(t, 0, sink.count())

		assert.NoError(t, svc.Ingest(models.ReportEntry{InvocID: models.Int64Ptr(100), Key: models.KeyInvocationHost, Value: models.RawValue("node8")}))
		assert.Equal(t, []string{"node7", "node8"}, store.HostNames())
	})

	t.Run("EntryWithoutRunForUnknownInvocationIsReported", func(t *testing.T) {
		svc, store, sink := newIngestService()

		err := svc.Ingest(models.ReportEntry{InvocID: models.Int64Ptr(300), Key: models.KeyInvocationHost, Value: models.RawValue("node1")})
		kind, ok := models.KindOfError(err)
		assert.True(t, ok)
		assert.Equal(t, models.UnboundRunError, kind)
		assert.ErrorIs(t, err, storage.ErrUnboundRun)
		assert.Equal(t, 0, svc.PendingEntries())
		assert.Empty(t, svc.PendingRuns())
		assert.Equal(t, 1, sink.count())
		assert.Empty(t, store.HostNames())
	})

	t.Run("FollowUpCountsAgainstPendingCap", func(t *testing.T) {
		svc, _, sink := newIngestService(service.WithMaxPending(1))

		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7"))))
		err := svc.Ingest(models.ReportEntry{InvocID: models.Int64Ptr(100), Key: models.KeyInvocationTime, Value: realTime(4200)})
		kind, _ := models.KindOfError(err)
		assert.Equal(t, models.PendingOverflowError, kind)
		assert.Equal(t, 1, svc.PendingEntries())
		assert.Equal(t, 1, sink.count())
	})

	t.Run("BufferingDisabled", func(t *testing.T) {
		svc, store, sink := newIngestService(service.WithMaxPending(0))

		err := svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7")))
		kind, ok := models.KindOfError(err)
		assert.True(t, ok)
		assert.Equal(t, models.UnboundRunError, kind)
		assert.ErrorIs(t, err, storage.ErrUnboundRun)
		assert.Equal(t, 0, svc.PendingEntries())
		assert.Equal(t, 1, sink.count())

		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.Empty(t, store.LogEntries())
	})

	t.Run("PendingOverflow", func(t *testing.T) {
		svc, _, sink := newIngestService(service.WithMaxPending(1))

		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7"))))
		err := svc.Ingest(invocEntry(runA, 101, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node8")))
		kind, _ := models.KindOfError(err)
		assert.Equal(t, models.PendingOverflowError, kind)
		assert.Equal(t, 1, svc.PendingEntries())
		assert.Equal(t, 1, sink.count())
	})

	t.Run("MissingInvocationAndFile", func(t *testing.T) {
		svc, _, sink := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		noInvoc := models.ReportEntry{RunID: runA, Key: models.KeyInvocationHost, Value: models.RawValue("node1")}
		kind, _ := models.KindOfError(svc.Ingest(noInvoc))
		assert.Equal(t, models.MissingInvocationError, kind)

		noFile := fileEntry(runA, 100, 1, "", models.KeyFileSizeStageOut, models.RawValue("1"))
		kind, _ = models.KindOfError(svc.Ingest(noFile))
		assert.Equal(t, models.MissingFileError, kind)

		emptyHost := invocEntry(runA, 100, 1, "align", 1, models.KeyInvocationHost, models.RawValue(""))
		kind, _ = models.KindOfError(svc.Ingest(emptyHost))
		assert.Equal(t, models.MalformedValueError, kind)

		assert.Equal(t, 3, sink.count())
	})

	t.Run("ErrorSinkFunc", func(t *testing.T) {
		var reported []models.ErrorKind
		sink := service.ErrorSinkFunc(func(entry models.ReportEntry, err error) {
			kind, _ := models.KindOfError(err)
			reported = append(reported, kind)
		})
		svc := service.NewIngestService(storage.NewMemoryStore(), logger{}, service.WithErrorSink(sink))
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		assert.Error(t, svc.Ingest(fileEntry(runA, 100, 1, "a.bam", models.KeyFileSizeStageOut, models.RawValue("big"))))
		assert.Error(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1, models.KeyInvocationTime, models.RawValue(`{"userTime":1}`))))
		assert.Equal(t, []models.ErrorKind{models.MalformedValueError, models.MalformedValueError}, reported)
	})

	t.Run("UnrecognizedKeys", func(t *testing.T) {
		svc, store, sink := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.NoError(t, svc.Ingest(models.ReportEntry{RunID: runA, Key: "invoc-output", Value: models.RawValue("x")}))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 5, "invoc-stderr", models.RawValue("x"))))

		stat, ok := store.Invocation(100)
		require.True(t, ok)
		assert.Equal(t, int64(5), stat.Timestamp)
		assert.Equal(t, 0, sink.count())
	})

	t.Run("WorkflowBinding", func(t *testing.T) {
		svc, store, _ := newIngestService()

		err := svc.Ingest(workflowEntry(runA, ""))
		kind, _ := models.KindOfError(err)
		assert.Equal(t, models.MalformedValueError, kind)

		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-B")))
		name, _ := store.WorkflowForRun(runA)
		assert.Equal(t, "wf-A", name)
		assert.Equal(t, []string{"wf-A"}, store.Workflows())
	})

	t.Run("TasksShareWorkflowAcrossRuns", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		assert.NoError(t, svc.Ingest(workflowEntry(runB, "wf-A")))
		assert.NoError(t, svc.Ingest(invocEntry(runA, 1, 10, "align", 1, "invoc-exec", models.RawValue(""))))
		assert.NoError(t, svc.Ingest(invocEntry(runB, 2, 20, "sort", 2, "invoc-exec", models.RawValue(""))))

		taskIDs, _ := store.TaskIDsForWorkflow("wf-A")
		assert.Equal(t, []int64{10, 20}, taskIDs)
	})

	t.Run("ConcurrentIngest", func(t *testing.T) {
		svc, store, _ := newIngestService()
		assert.NoError(t, svc.Ingest(workflowEntry(runA, "wf-A")))

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				host := models.RawValue("node" + string(rune('a'+i%4)))
				assert.NoError(t, svc.Ingest(invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, host)))
				_ = store.LogEntriesForTask(1)
			}(i)
		}
		wg.Wait()

		assert.Len(t, store.LogEntries(), 1)
		assert.Len(t, store.HostNames(), 4)
	})
}

func TestIngestServiceJournal(t *testing.T) {
	entries := []models.ReportEntry{
		invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationHost, models.RawValue("node7")),
		workflowEntry(runA, "wf-A"),
		invocEntry(runA, 100, 1, "align", 1500, models.KeyInvocationTime, realTime(4200)),
		fileEntry(runA, 100, 1, "reads.fq", models.KeyFileSizeStageIn, models.RawValue("oops")),
		fileEntry(runA, 100, 1, "reads.fq", models.KeyFileSizeStageIn, models.RawValue("2048")),
	}

	t.Run("AppendsEveryEntry", func(t *testing.T) {
		journal := storage.NewMemoryJournal()
		svc := service.NewIngestService(storage.NewMemoryStore(), logger{}, service.WithJournal(journal))
		for _, e := range entries {
			_ = svc.Ingest(e)
		}
		journaled, err := journal.Entries()
		require.NoError(t, err)
		assert.Len(t, journaled, len(entries))
	})

	t.Run("ReplayRebuildsState", func(t *testing.T) {
		journal := storage.NewMemoryJournal()
		original := service.NewIngestService(storage.NewMemoryStore(), logger{}, service.WithJournal(journal))
		for _, e := range entries {
			_ = original.Ingest(e)
		}

		rebuiltJournal := storage.NewMemoryJournal()
		rebuilt := service.NewIngestService(storage.NewMemoryStore(), logger{}, service.WithJournal(rebuiltJournal))
		stats, err := rebuilt.Replay(journal)
		require.NoError(t, err)
		assert.Equal(t, service.ReplayStats{Entries: 5, Skipped: 1, Pending: 0}, stats)

		assert.Equal(t, original.Store().LogEntries(), rebuilt.Store().LogEntries())
		assert.Equal(t, original.Store().HostNames(), rebuilt.Store().HostNames())

		replayed, err := rebuiltJournal.Entries()
		require.NoError(t, err)
		assert.Empty(t, replayed, "replay must not journal again")
	})

	t.Run("JournalFailureSkipsEntry", func(t *testing.T) {
		journal := storage.NewMemoryJournal()
		require.NoError(t, journal.Close())
		svc := service.NewIngestService(storage.NewMemoryStore(), logger{}, service.WithJournal(journal))

		assert.Error(t, svc.Ingest(workflowEntry(runA, "wf-A")))
		_, ok := svc.Store().WorkflowForRun(runA)
		assert.False(t, ok)
	})

	t.Run("ReplayEntryList", func(t *testing.T) {
		svc := service.NewIngestService(storage.NewMemoryStore(), logger{})
		stats, err := svc.Replay(service.EntryList(entries[:3]))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Entries)
		assert.Equal(t, 0, stats.Skipped)

		stat, ok := svc.Store().Invocation(100)
		require.True(t, ok)
		assert.Equal(t, "node7", stat.HostName)
		assert.Equal(t, int64(4200), stat.RealTime)
	})
}
