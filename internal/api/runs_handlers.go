package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	runsTimeout     = 3 * time.Second
)

// RunsHandler exposes read-only harvest run history.
type RunsHandler struct {
	repo    store.RunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo store.RunRepository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		repo:    repo,
		timeout: runsTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?platform=&status=&limit=&offset=. It returns
// {"runs": [...]} newest first, 400 for invalid filters, 503 when the repo is
// unavailable, or 500 if the repository call fails.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListRuns(ctx, filter)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// GetRun handles GET /v1/runs/{run_id}: {"run": {...}}, 400 for malformed
// IDs, 404 on store.ErrNotFound.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	filter := store.RunFilter{Limit: defaultRunLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return store.RunFilter{}, errors.New("invalid limit")
		}
		filter.Limit = min(n, maxRunLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return store.RunFilter{}, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	if v := strings.TrimSpace(q.Get("platform")); v != "" {
		p, err := crawler.ParsePlatform(v)
		if err != nil {
			return store.RunFilter{}, errors.New("invalid platform")
		}
		filter.Platform = string(p)
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, err := parseStatus(v)
		if err != nil {
			return store.RunFilter{}, err
		}
		filter.Status = &status
	}
	return filter, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "success", "succeeded":
		return store.RunSuccess, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	case "canceled", "cancelled":
		return store.RunCanceled, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTOs(in []store.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.Run) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		Platform:   run.Platform,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		StopReason: run.StopReason,
		Error:      run.ErrorMessage,
		Pages:      run.Pages,
		Fetched:    run.Fetched,
		Dropped:    run.Dropped,
		Saved:      run.Saved,
		RawSaved:   run.RawSaved,
	}
}

type runDTO struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	StopReason string     `json:"stop_reason,omitempty"`
	Error      *string    `json:"error,omitempty"`
	Pages      int64      `json:"pages"`
	Fetched    int64      `json:"fetched"`
	Dropped    int64      `json:"dropped"`
	Saved      int64      `json:"saved"`
	RawSaved   int64      `json:"raw_saved"`
}
