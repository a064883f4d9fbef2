package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"crossposter/internal/database"
	"crossposter/internal/export"
	"crossposter/internal/models"
	"crossposter/internal/processor"

	"github.com/rs/zerolog"
)

// Handlers binds the ops API endpoints to storage, the manual-run
// processor and the Excel reporter.
type Handlers struct {
	db       *database.DB
	proc     *processor.Processor
	reporter *export.Reporter
	logger   zerolog.Logger
}

func NewHandlers(db *database.DB, proc *processor.Processor, reporter *export.Reporter, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:       db,
		proc:     proc,
		reporter: reporter,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tasks, err := h.db.GetAllTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// handleTask routes /api/v1/tasks/{id}, /api/v1/tasks/{id}/run and
// /api/v1/tasks/{id}/executions.xlsx.
func (h *Handlers) handleTask(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/tasks/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)

	taskID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || taskID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		h.getTask(w, r, taskID)
	case "run":
		h.runTask(w, r, taskID)
	case "executions.xlsx":
		h.exportExecutions(w, r, taskID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request, taskID int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	task, err := h.db.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handlers) runTask(w http.ResponseWriter, r *http.Request, taskID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	executions, err := h.proc.Run(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error().Err(err).Int64("task_id", taskID).Msg("manual run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	success, failed := 0, 0
	for _, exec := range executions {
		if exec.Status == models.ExecutionSuccess {
			success++
		} else {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"total":   len(executions),
		"success": success,
		"failed":  failed,
	})
}

func (h *Handlers) exportExecutions(w http.ResponseWriter, r *http.Request, taskID int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	task, err := h.db.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	executions, err := h.db.GetTaskExecutions(r.Context(), taskID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load executions")
		return
	}

	path, err := h.reporter.ExecutionsReport(task, executions)
	if err != nil {
		h.logger.Error().Err(err).Int64("task_id", taskID).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
