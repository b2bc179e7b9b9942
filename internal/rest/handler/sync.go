package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robalyx/rolesync/internal/github/rate"
	restTypes "github.com/robalyx/rolesync/internal/rest/types"
	"github.com/robalyx/rolesync/internal/worker/core"
	"github.com/robalyx/rolesync/internal/worker/rolesync"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Syncer is the scheduler surface the admin API drives.
type Syncer interface {
	TriggerAsync() error
	Status() rolesync.Status
}

// QuotaSource exposes the shared GitHub quota.
type QuotaSource interface {
	Quota() rate.Quota
}

// WorkerLister lists worker heartbeats.
type WorkerLister interface {
	GetAllStatuses(ctx context.Context) ([]core.Status, error)
}

// SyncHandler handles sync-related REST endpoints.
type SyncHandler struct {
	syncer         Syncer
	quota          QuotaSource
	workers        WorkerLister
	triggerEnabled bool
	logger         *zap.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(
	syncer Syncer, quota QuotaSource, workers WorkerLister, triggerEnabled bool, logger *zap.Logger,
) *SyncHandler {
	return &SyncHandler{
		syncer:         syncer,
		quota:          quota,
		workers:        workers,
		triggerEnabled: triggerEnabled,
		logger:         logger,
	}
}

// Trigger starts a pass immediately.
func (h *SyncHandler) Trigger(w http.ResponseWriter, _ bunrouter.Request) error {
	if !h.triggerEnabled {
		return writeError(w, http.StatusNotFound, "manual sync trigger is disabled")
	}

	err := h.syncer.TriggerAsync()
	switch {
	case err == nil:
		h.logger.Info("Manual sync pass triggered")
		return writeJSON(w, http.StatusAccepted, restTypes.TriggerResponse{
			Accepted: true,
			Message:  "sync pass started",
		})
	case errors.Is(err, rolesync.ErrPassInProgress):
		return writeJSON(w, http.StatusConflict, restTypes.TriggerResponse{
			Message: err.Error(),
		})
	case errors.Is(err, rolesync.ErrNotStarted):
		return writeJSON(w, http.StatusServiceUnavailable, restTypes.TriggerResponse{
			Message: err.Error(),
		})
	default:
		h.logger.Error("Failed to trigger sync pass", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Status returns the scheduler state and GitHub quota.
func (h *SyncHandler) Status(w http.ResponseWriter, _ bunrouter.Request) error {
	return writeJSON(w, http.StatusOK, restTypes.SyncStatusResponse{
		Scheduler: h.syncer.Status(),
		Quota:     h.quota.Quota(),
	})
}

// Workers lists worker heartbeats.
func (h *SyncHandler) Workers(w http.ResponseWriter, req bunrouter.Request) error {
	statuses, err := h.workers.GetAllStatuses(req.Context())
	if err != nil {
		h.logger.Error("Failed to get worker statuses", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}

	now := time.Now()
	response := restTypes.WorkersResponse{
		Workers: make([]restTypes.WorkerStatus, 0, len(statuses)),
		AsOf:    now,
	}

	for _, status := range statuses {
		response.Workers = append(response.Workers, restTypes.WorkerStatus{
			Status: status,
			Stale:  status.IsStale(now),
		})
	}

	return writeJSON(w, http.StatusOK, response)
}
