package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
	apperrors "github.com/andrewinci/actual-sync/internal/shared/errors"
	"github.com/andrewinci/actual-sync/internal/transport/httpapi/middleware"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

// SyncRunner runs the account map on demand
type SyncRunner interface {
	Sync(ctx context.Context) (*sync.RunResult, error)
	LastResult() (sync.RunResult, bool)
}

// SyncHandler handles sync run requests
type SyncHandler struct {
	runner SyncRunner
	logger *logger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner SyncRunner, log *logger.Logger) *SyncHandler {
	return &SyncHandler{
		runner: runner,
		logger: log.WithField("component", "sync_handler"),
	}
}

// FailureResponse is one entry that could not be synced
type FailureResponse struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// RunResponse is the JSON form of a run summary
type RunResponse struct {
	RunID              string            `json:"run_id"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	AccountSyncs       int               `json:"account_syncs"`
	NewTransactions    int               `json:"new_transactions"`
	BalanceMismatches  int               `json:"balance_mismatches"`
	MismatchedAccounts []string          `json:"mismatched_accounts"`
	Failed             []FailureResponse `json:"failed"`
	HasIssues          bool              `json:"has_issues"`
}

func toRunResponse(r sync.RunResult) RunResponse {
	resp := RunResponse{
		RunID:              r.RunID.String(),
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		AccountSyncs:       r.AccountSyncs,
		NewTransactions:    r.NewTransactions,
		BalanceMismatches:  r.BalanceMismatches,
		MismatchedAccounts: append([]string{}, r.MismatchedBanks...),
		Failed:             make([]FailureResponse, 0, len(r.Failed)),
		HasIssues:          r.HasIssues(),
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, FailureResponse{Name: f.Name, Error: f.Err.Error()})
	}
	return resp
}

// TriggerSync handles POST /api/v1/sync
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	operator, _ := middleware.GetOperatorFromContext(r.Context())
	log := h.logger.WithContext(r.Context())
	log.Info("sync requested", "operator", operator)

	result, err := h.runner.Sync(r.Context())
	if err != nil {
		appErr := syncError(err)
		if appErr.HTTPStatus() >= http.StatusInternalServerError {
			log.Error("sync request failed", "error", err)
		} else {
			log.Warn("sync request rejected", "error", err)
		}
		respondAppError(w, appErr)
		return
	}

	respondJSON(w, toRunResponse(*result), http.StatusOK)
}

// GetLastRun handles GET /api/v1/runs/last
func (h *SyncHandler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	result, ok := h.runner.LastResult()
	if !ok {
		respondAppError(w, apperrors.NotFound("completed run"))
		return
	}

	respondJSON(w, toRunResponse(result), http.StatusOK)
}

// syncError maps a run error to the API error the client sees
func syncError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, sync.ErrRunInProgress):
		return apperrors.Conflict(err.Error())
	case sync.IsConfigurationError(err):
		return apperrors.Configuration(err)
	case sync.IsProviderRequestError(err):
		return apperrors.Upstream(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Unavailable("sync run was interrupted")
	default:
		return apperrors.Internal("sync run failed", err)
	}
}
