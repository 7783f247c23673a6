package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/saltehb/hiway/internal/log"
	"github.com/saltehb/hiway/internal/reportlog"
	"github.com/saltehb/hiway/pkg/service"
	"github.com/saltehb/hiway/pkg/storage"
)

// MaxEntriesBody caps the size of a POST /entries request body.
const MaxEntriesBody = 64 << 20

// NewMux wires the ingest endpoint and the read API.
func NewMux(svc *service.IngestService) *http.ServeMux {
	reader := svc.Store()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("POST /entries", EntriesHandler(svc, MaxEntriesBody))
	mux.HandleFunc("GET /hosts", HostsHandler(reader))
	mux.HandleFunc("GET /invocations", InvocationsHandler(reader))
	mux.HandleFunc("GET /invocations/{id}", InvocationByIDHandler(reader))
	mux.HandleFunc("GET /workflows", WorkflowsHandler(reader))
	mux.HandleFunc("GET /workflows/{name}/tasks", WorkflowTasksHandler(reader))
	mux.HandleFunc("GET /tasks/{id}", TaskHandler(reader))
	mux.HandleFunc("GET /summary", SummaryHandler(reader))
	return mux
}

func StartServer(port string, svc *service.IngestService) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.GetLogger().Infof("Starting HiWAY provenance server on :%s", port)
	return srv.ListenAndServe()
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "HiWAY provenance server is running")
}

type ingestResponse struct {
	Accepted       int `json:"accepted"`
	Skipped        int `json:"skipped"`
	MalformedLines int `json:"malformed_lines"`
	Pending        int `json:"pending"`
}

// EntriesHandler ingests a JSON-lines body, one report entry per line. Bodies
// larger than maxBytes are rejected before any entry is applied.
func EntriesHandler(svc *service.IngestService, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp ingestResponse
		body := http.MaxBytesReader(w, r.Body, maxBytes)
		entries, err := reportlog.Decode(body, func(lerr *reportlog.LineError) {
			log.GetLogger().Errorf("Malformed report entry in POST /entries: %v", lerr)
			resp.MalformedLines++
		})
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.GetLogger().Errorf("Rejected POST /entries body over %d bytes", tooLarge.Limit)
			http.Error(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		if err != nil {
			log.GetLogger().Errorf("Failed to read POST /entries body: %v", err)
			http.Error(w, fmt.Sprintf("Failed to read entries: %v", err), http.StatusBadRequest)
			return
		}
		for _, entry := range entries {
			if err := svc.Ingest(entry); err != nil {
				resp.Skipped++
				continue
			}
			resp.Accepted++
		}
		resp.Pending = svc.PendingEntries()
		writeJSON(w, http.StatusOK, resp)
	}
}

func HostsHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"hosts": reader.HostNames()})
	}
}

// InvocationsHandler serves invocation records, optionally filtered by
// ?task=1,2 and ?since=<timestamp> (strictly greater).
func InvocationsHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var taskIDs []int64
		if raw := query.Get("task"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					http.Error(w, fmt.Sprintf("Invalid task id '%s'", part), http.StatusBadRequest)
					return
				}
				taskIDs = append(taskIDs, id)
			}
		}

		since, hasSince := int64(0), false
		if raw := query.Get("since"); raw != "" {
			ts, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid since timestamp '%s'", raw), http.StatusBadRequest)
				return
			}
			since, hasSince = ts, true
		}

		switch {
		case taskIDs != nil && hasSince:
			writeJSON(w, http.StatusOK, reader.LogEntriesSinceForTasks(taskIDs, since))
		case taskIDs != nil:
			writeJSON(w, http.StatusOK, reader.LogEntriesForTasks(taskIDs))
		case hasSince:
			writeJSON(w, http.StatusOK, reader.LogEntriesSince(since))
		default:
			writeJSON(w, http.StatusOK, reader.LogEntries())
		}
	}
}

func InvocationByIDHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid invocation id", http.StatusBadRequest)
			return
		}
		stat, ok := reader.Invocation(id)
		if !ok {
			http.Error(w, fmt.Sprintf("Invocation %d not found", id), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, stat)
	}
}

func WorkflowsHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"workflows": reader.Workflows()})
	}
}

func WorkflowTasksHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		taskIDs, ok := reader.TaskIDsForWorkflow(name)
		if !ok {
			http.Error(w, fmt.Sprintf("Workflow '%s' not found", name), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"workflow": name, "task_ids": taskIDs})
	}
}

func TaskHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid task id", http.StatusBadRequest)
			return
		}
		name, ok := reader.TaskName(id)
		if !ok {
			http.Error(w, fmt.Sprintf("Task %d not found", id), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "name": name})
	}
}

func SummaryHandler(reader storage.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, service.Summarize(reader))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
