package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/pkg/models"
)

type invocation struct {
	stat    models.InvocStat
	inputs  map[string]*models.FileStat
	outputs map[string]*models.FileStat
}

func (inv *invocation) files(dir models.Direction) map[string]*models.FileStat {
	if dir == models.InputDirection {
		return inv.inputs
	}
	return inv.outputs
}

func (inv *invocation) snapshot() models.InvocStat {
	stat := inv.stat
	stat.InputFiles = snapshotFiles(inv.inputs)
	stat.OutputFiles = snapshotFiles(inv.outputs)
	return stat
}

func snapshotFiles(files map[string]*models.FileStat) []models.FileStat {
	out := make([]models.FileStat, 0, len(files))
	for _, f := range files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MemoryStore is the transient entity store. It only ever grows: runs, tasks,
// invocations, files and hosts are never removed. All methods are safe for
// concurrent use; each mutation is applied under a single write lock so readers
// never see a partially built record.
type MemoryStore struct {
	hostNames     map[string]struct{}
	invocations   map[int64]*invocation
	runWorkflow   map[uuid.UUID]string
	taskNames     map[int64]string
	taskWorkflow  map[int64]string
	workflowTasks map[string]map[int64]struct{}
	mu            sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hostNames:     make(map[string]struct{}),
		invocations:   make(map[int64]*invocation),
		runWorkflow:   make(map[uuid.UUID]string),
		taskNames:     make(map[int64]string),
		taskWorkflow:  make(map[int64]string),
		workflowTasks: make(map[string]map[int64]struct{}),
	}
}

// BindRunToWorkflow binds a run to a workflow, creating the workflow's task set
// if needed. The first binding for a run wins; it returns false for repeats.
func (s *MemoryStore) BindRunToWorkflow(runID uuid.UUID, workflowName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runWorkflow[runID]; ok {
		return false
	}
	s.runWorkflow[runID] = workflowName
	if _, ok := s.workflowTasks[workflowName]; !ok {
		s.workflowTasks[workflowName] = make(map[int64]struct{})
	}
	return true
}

// RegisterTaskForWorkflow adds a task to a workflow's task set and records its
// name. The first name recorded for a task id wins, and a task never moves to
// a second workflow.
func (s *MemoryStore) RegisterTaskForWorkflow(workflowName string, taskID int64, taskName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerTask(workflowName, taskID, taskName)
}

func (s *MemoryStore) registerTask(workflowName string, taskID int64, taskName string) {
	if _, ok := s.taskNames[taskID]; !ok {
		s.taskNames[taskID] = taskName
	}
	if owner, ok := s.taskWorkflow[taskID]; ok && owner != workflowName {
		return
	}
	tasks, ok := s.workflowTasks[workflowName]
	if !ok {
		tasks = make(map[int64]struct{})
		s.workflowTasks[workflowName] = tasks
	}
	tasks[taskID] = struct{}{}
	s.taskWorkflow[taskID] = workflowName
}

// GetOrCreateInvocation returns the invocation with the given id, creating it
// with empty file sets when absent. The second result reports creation.
func (s *MemoryStore) GetOrCreateInvocation(invocID, timestamp, taskID int64) (models.InvocStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, created := s.getOrCreate(invocID, timestamp, taskID)
	return inv.snapshot(), created
}

func (s *MemoryStore) getOrCreate(invocID, timestamp, taskID int64) (*invocation, bool) {
	if inv, ok := s.invocations[invocID]; ok {
		return inv, false
	}
	inv := &invocation{
		stat:    models.InvocStat{InvocID: invocID, Timestamp: timestamp, TaskID: taskID},
		inputs:  make(map[string]*models.FileStat),
		outputs: make(map[string]*models.FileStat),
	}
	s.invocations[invocID] = inv
	return inv, true
}

// MaterializeInvocation is the atomic check-and-create for an invocation seen
// for the first time: it resolves the run's workflow, registers the task and
// stores the invocation. Known invocations are left untouched. ErrUnboundRun
// is returned when the invocation is new and its run has no workflow yet.
func (s *MemoryStore) MaterializeInvocation(invocID int64, runID uuid.UUID, taskID int64, taskName string, timestamp int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invocations[invocID]; ok {
		return false, nil
	}
	workflowName, ok := s.runWorkflow[runID]
	if !ok {
		return false, errors.Wrapf(ErrUnboundRun, "run %s", runID)
	}
	s.registerTask(workflowName, taskID, taskName)
	s.getOrCreate(invocID, timestamp, taskID)
	return true, nil
}

func (s *MemoryStore) SetInvocationRealTime(invocID, realTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[invocID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "invocation %d", invocID)
	}
	inv.stat.RealTime = realTime
	return nil
}

// SetInvocationHost sets the execution host once and adds it to the host set.
func (s *MemoryStore) SetInvocationHost(invocID int64, hostName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[invocID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "invocation %d", invocID)
	}
	if inv.stat.HostName == "" {
		inv.stat.HostName = hostName
	}
	s.recordHost(hostName)
	return nil
}

func (s *MemoryStore) RecordHost(hostName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordHost(hostName)
}

func (s *MemoryStore) recordHost(hostName string) {
	if hostName == "" {
		return
	}
	s.hostNames[hostName] = struct{}{}
}

// EnsureFile tracks a file in the invocation's input or output set. It reports
// whether a new record was created.
func (s *MemoryStore) EnsureFile(invocID int64, dir models.Direction, fileName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[invocID]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "invocation %d", invocID)
	}
	files := inv.files(dir)
	if _, ok := files[fileName]; ok {
		return false, nil
	}
	files[fileName] = &models.FileStat{Name: fileName}
	return true, nil
}

func (s *MemoryStore) SetFileSize(invocID int64, dir models.Direction, fileName string, size int64) error {
	return s.updateFile(invocID, dir, fileName, func(f *models.FileStat) { f.Size = size })
}

func (s *MemoryStore) SetFileRealTime(invocID int64, dir models.Direction, fileName string, realTime int64) error {
	return s.updateFile(invocID, dir, fileName, func(f *models.FileStat) { f.RealTime = realTime })
}

func (s *MemoryStore) updateFile(invocID int64, dir models.Direction, fileName string, update func(*models.FileStat)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[invocID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "invocation %d", invocID)
	}
	f, ok := inv.files(dir)[fileName]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s file %q of invocation %d", dir, fileName, invocID)
	}
	update(f)
	return nil
}

// HostNames returns the sorted host set.
func (s *MemoryStore) HostNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]string, 0, len(s.hostNames))
	for h := range s.hostNames {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func (s *MemoryStore) LogEntries() []models.InvocStat {
	return s.collect(func(*invocation) bool { return true })
}

func (s *MemoryStore) LogEntriesForTask(taskID int64) []models.InvocStat {
	return s.LogEntriesForTasks([]int64{taskID})
}

func (s *MemoryStore) LogEntriesForTasks(taskIDs []int64) []models.InvocStat {
	ids := toSet(taskIDs)
	return s.collect(func(inv *invocation) bool {
		_, ok := ids[inv.stat.TaskID]
		return ok
	})
}

// LogEntriesSince returns invocations whose timestamp is strictly greater
// than sinceTimestamp.
func (s *MemoryStore) LogEntriesSince(sinceTimestamp int64) []models.InvocStat {
	return s.collect(func(inv *invocation) bool { return inv.stat.Timestamp > sinceTimestamp })
}

func (s *MemoryStore) LogEntriesSinceForTask(taskID int64, sinceTimestamp int64) []models.InvocStat {
	return s.LogEntriesSinceForTasks([]int64{taskID}, sinceTimestamp)
}

func (s *MemoryStore) LogEntriesSinceForTasks(taskIDs []int64, sinceTimestamp int64) []models.InvocStat {
	ids := toSet(taskIDs)
	return s.collect(func(inv *invocation) bool {
		_, ok := ids[inv.stat.TaskID]
		return ok && inv.stat.Timestamp > sinceTimestamp
	})
}

// collect returns snapshots of matching invocations ordered by invocation id.
func (s *MemoryStore) collect(match func(*invocation) bool) []models.InvocStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := []models.InvocStat{}
	for _, inv := range s.invocations {
		if match(inv) {
			stats = append(stats, inv.snapshot())
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].InvocID < stats[j].InvocID })
	return stats
}

// TaskIDsForWorkflow returns the sorted task ids bound to a workflow, or false
// when the workflow is unknown.
func (s *MemoryStore) TaskIDsForWorkflow(workflowName string) ([]int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks, ok := s.workflowTasks[workflowName]
	if !ok {
		return nil, false
	}
	ids := make([]int64, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, true
}

func (s *MemoryStore) TaskName(taskID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.taskNames[taskID]
	return name, ok
}

func (s *MemoryStore) WorkflowForRun(runID uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.runWorkflow[runID]
	return name, ok
}

func (s *MemoryStore) Workflows() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.workflowTasks))
	for name := range s.workflowTasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *MemoryStore) Invocation(invocID int64) (models.InvocStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invocations[invocID]
	if !ok {
		return models.InvocStat{}, false
	}
	return inv.snapshot(), true
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
