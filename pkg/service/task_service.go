package service

import (
	"fmt"
	"io"

	"github.com/saltehb/hiway/pkg/storage"
)

// TaskSummary aggregates the invocations of one task.
type TaskSummary struct {
	TaskID        int64  `json:"task_id"`
	Name          string `json:"name"`
	Invocations   int    `json:"invocations"`
	TotalRealTime int64  `json:"total_real_time"`
	BytesIn       int64  `json:"bytes_in"`
	BytesOut      int64  `json:"bytes_out"`
}

// WorkflowSummary lists the tasks bound to one workflow.
type WorkflowSummary struct {
	Name  string        `json:"name"`
	Tasks []TaskSummary `json:"tasks"`
}

// Summary is a read-only digest of a store.
type Summary struct {
	Workflows []WorkflowSummary `json:"workflows"`
	Hosts     []string          `json:"hosts"`
}

// Summarize builds a Summary from the query API only.
func Summarize(reader storage.Reader) Summary {
	summary := Summary{Hosts: reader.HostNames(), Workflows: []WorkflowSummary{}}
	for _, wfName := range reader.Workflows() {
		taskIDs, _ := reader.TaskIDsForWorkflow(wfName)
		wf := WorkflowSummary{Name: wfName, Tasks: make([]TaskSummary, 0, len(taskIDs))}
		for _, taskID := range taskIDs {
			name, _ := reader.TaskName(taskID)
			ts := TaskSummary{TaskID: taskID, Name: name}
			for _, stat := range reader.LogEntriesForTask(taskID) {
				ts.Invocations++
				ts.TotalRealTime += stat.RealTime
				for _, f := range stat.InputFiles {
					ts.BytesIn += f.Size
				}
				for _, f := range stat.OutputFiles {
					ts.BytesOut += f.Size
				}
			}
			wf.Tasks = append(wf.Tasks, ts)
		}
		summary.Workflows = append(summary.Workflows, wf)
	}
	return summary
}

// Write prints the summary in the CLI's plain text form.
func (s Summary) Write(w io.Writer) {
	if len(s.Workflows) == 0 {
		fmt.Fprintf(w, "No workflows found.\n")
		return
	}
	fmt.Fprintf(w, "Workflows:\n")
	for _, wf := range s.Workflows {
		fmt.Fprintf(w, "- %s (%d tasks)\n", wf.Name, len(wf.Tasks))
		for _, t := range wf.Tasks {
			fmt.Fprintf(w, "  - Task %d '%s': %d invocations, real time %d, in %d B, out %d B\n",
				t.TaskID, t.Name, t.Invocations, t.TotalRealTime, t.BytesIn, t.BytesOut)
		}
	}
	fmt.Fprintf(w, "Hosts: %d\n", len(s.Hosts))
	for _, h := range s.Hosts {
		fmt.Fprintf(w, "- %s\n", h)
	}
}
