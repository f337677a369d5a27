package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/config"
	"github.com/JakeFAU/job-harvester/internal/storage/memory"
	"github.com/JakeFAU/job-harvester/internal/store"
)

func seededRuns(t *testing.T) (*memory.RunStore, uuid.UUID) {
	t.Helper()

	ctx := context.Background()
	repo := memory.NewRunStore()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	wanted := uuid.New()
	require.NoError(t, repo.StartRun(ctx, wanted, "WANTED", base))
	require.NoError(t, repo.AddPageStats(ctx, wanted, store.PageDelta{Pages: 4, Fetched: 30, Saved: 28, RawSaved: 28}))
	require.NoError(t, repo.CompleteRun(ctx, wanted, base.Add(time.Hour), store.RunSuccess, "consecutive_empty_pages", nil))

	saramin := uuid.New()
	require.NoError(t, repo.StartRun(ctx, saramin, "SARAMIN", base.Add(time.Minute)))
	return repo, wanted
}

func TestRunsHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo, _ := seededRuns(t)
	handler := NewRunsHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)

	rec = httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?platform=wanted&status=success", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "WANTED", body.Runs[0].Platform)
	assert.Equal(t, int64(28), body.Runs[0].Saved)
	assert.Equal(t, "consecutive_empty_pages", body.Runs[0].StopReason)
	assert.NotNil(t, body.Runs[0].FinishedAt)
}

func TestRunsHandlerListRunsInvalidFilters(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(memory.NewRunStore(), zap.NewNop())
	for _, target := range []string{
		"/v1/runs?limit=-1",
		"/v1/runs?limit=abc",
		"/v1/runs?offset=-3",
		"/v1/runs?platform=linkedin",
		"/v1/runs?status=paused",
	} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunsHandlerGetRun(t *testing.T) {
	t.Parallel()

	repo, wanted := seededRuns(t)
	handler := NewRunsHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil), wanted.String()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), wanted.String())

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil), uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil), "not-a-uuid"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsHandlerRepositoryFailures(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(failingRuns{}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil), uuid.NewString()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	unavailable := NewRunsHandler(nil, nil)
	rec = httptest.NewRecorder()
	unavailable.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerRoutesRuns(t *testing.T) {
	t.Parallel()

	repo, wanted := seededRuns(t)
	s := NewServer(&fakeHarvester{}, repo, config.Config{}, zap.NewNop())

	rec := serve(s, http.MethodGet, "/v1/runs/"+wanted.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"platform":"WANTED"`)
}

type failingRuns struct{ store.RunRepository }

func (failingRuns) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, errors.New("connection reset")
}

func (failingRuns) ListRuns(context.Context, store.RunFilter) ([]store.Run, error) {
	return nil, errors.New("connection reset")
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
