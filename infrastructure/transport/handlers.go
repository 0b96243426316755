package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolcat/visimatch"
	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/domain/task"
)

var errMissingVersion = errors.New("transport: missing version path parameter")

type adminHandlers struct {
	client *visimatch.Client
	logger *slog.Logger
}

func (h *adminHandlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse is the admin_stats payload: queue depth, catalog
// composition, and whether the feedback backlog has crossed the
// should-retrain hint.
type statsResponse struct {
	PendingTasks    int64                `json:"pending_tasks"`
	WorkerIdle      bool                 `json:"worker_idle"`
	Departments     []catalog.Department `json:"departments"`
	ShouldRetrain   bool                 `json:"should_retrain"`
	UnconsumedCount int                  `json:"unconsumed_feedback_count"`
}

func (h *adminHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.client.Tasks.Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	departments, err := h.client.Catalog.Departments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	shouldRetrain, stats, err := h.client.Feedback.ShouldRetrainHint(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PendingTasks:    count,
		WorkerIdle:      h.client.WorkerIdle(),
		Departments:     departments,
		ShouldRetrain:   shouldRetrain,
		UnconsumedCount: unconsumedCount(stats),
	})
}

func unconsumedCount(stats feedback.Stats) int {
	return stats.UnconsumedTotal
}

// train enqueues a full fine-tuning session (backup, prepare, epoch,
// promote, consume, re-embed) rather than calling Trainer.FineTune
// synchronously, so a slow training run doesn't hold the HTTP request
// open.
func (h *adminHandlers) train(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ops := task.NewPrescribedOperations().RunTrainingSession()
	if err := h.client.Tasks.EnqueueOperations(ctx, ops, task.PriorityUserInitiated, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "training session enqueued"})
}

func (h *adminHandlers) listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.client.Trainer.ListBackups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// restoreBackup enqueues the restore-backup operation chain (snapshot
// current, swap to the requested version, re-embed) rather than calling
// Trainer.RestoreBackup directly, for the same reason train enqueues
// rather than calling FineTune inline.
func (h *adminHandlers) restoreBackup(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if version == "" {
		writeError(w, http.StatusBadRequest, errMissingVersion)
		return
	}

	ctx := r.Context()
	ops := task.NewPrescribedOperations().RestoreBackup()
	payload := map[string]any{"version": version}
	if err := h.client.Tasks.EnqueueOperations(ctx, ops, task.PriorityUserInitiated, payload); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restore enqueued", "version": version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
