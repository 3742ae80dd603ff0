package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roundtable-report/internal/model"
	"roundtable-report/internal/store"
)

const runsPrefix = "/api/v1/runs/"

// Starter executes a stored run.
type Starter interface {
	Run(ctx context.Context, runID string, spec model.RunSpec) error
}

// StarterFactory builds the starter for a new run, so that params and the
// reporting period are read fresh each time.
type StarterFactory func() (Starter, error)

// RunHandler serves the run endpoints. Only one run executes at a time.
type RunHandler struct {
	factory StarterFactory
	logger  *slog.Logger

	mu   sync.Mutex
	busy bool
	wg   sync.WaitGroup
}

// NewRunHandler creates a handler starting runs built by factory.
func NewRunHandler(factory StarterFactory, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{factory: factory, logger: logger}
}

func (h *RunHandler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy {
		return false
	}
	h.busy = true
	return true
}

func (h *RunHandler) release() {
	h.mu.Lock()
	h.busy = false
	h.mu.Unlock()
}

// Wait blocks until the run in progress, if any, has finished.
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// CreateRun starts a new run
// @Summary Start a run
// @Description Start extraction and/or report generation for the given report ids. Only one run executes at a time.
// @Tags runs
// @Accept json
// @Produce json
// @Param run body model.RunSpec true "Run phase and report ids"
// @Success 202 {object} map[string]interface{} "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 409 {object} map[string]interface{} "A run is already in progress"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var spec model.RunSpec
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
			return
		}
	}
	if spec.Phase == "" {
		spec.Phase = model.PhaseAll
	}
	if !spec.Phase.Valid() {
		http.Error(w, "phase must be one of all, query, vis", http.StatusBadRequest)
		return
	}

	if !h.acquire() {
		http.Error(w, "A run is already in progress", http.StatusConflict)
		return
	}

	starter, err := h.factory()
	if err != nil {
		h.release()
		h.logger.Error("failed to prepare run", "error", err)
		http.Error(w, "Failed to prepare run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	runID := uuid.New().String()
	if err := store.SaveRun(runID, spec); err != nil {
		h.release()
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.release()
		if err := starter.Run(context.Background(), runID, spec); err != nil {
			h.logger.Error("run failed", "run", runID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Run started",
		"run_id":     runID,
		"status":     model.StatusPending,
		"created_at": time.Now().UTC(),
	})
}

// ListRuns retrieves all runs
// @Summary List runs
// @Description Get all runs with their current status, newest first
// @Tags runs
// @Produce json
// @Success 200 {array} model.Run "List of runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := store.ListRuns()
	if err != nil {
		http.Error(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun retrieves a specific run
// @Summary Get run
// @Description Retrieve a run with the stats of every report id
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run "Run details"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "")
	if !ok {
		return
	}

	run, err := store.GetRun(runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunErrors retrieves errors for a run
// @Summary Get run errors
// @Description Retrieve all errors recorded during a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "/errors")
	if !ok {
		return
	}

	errs, err := store.GetRunErrors(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve errors", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetRunTables retrieves the pivot tables produced by a run
// @Summary Get run tables
// @Description Retrieve the pivot tables produced by a run, per report id
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run tables"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/tables [get]
func (h *RunHandler) GetRunTables(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "/tables")
	if !ok {
		return
	}

	tables, err := store.GetRunTables(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve tables", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"tables": tables,
		"count":  len(tables),
	})
}

// runIDFromPath extracts the run id between the runs prefix and suffix,
// writing a 400 when it is missing.
func runIDFromPath(w http.ResponseWriter, path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, runsPrefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}
	runID := strings.Trim(path[len(runsPrefix):len(path)-len(suffix)], "/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return "", false
	}
	return runID, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
