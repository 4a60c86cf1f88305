package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/jobs"
	"github.com/a-lournrose/ai-video-searcher/internal/period"
)

type apiTestEnv struct {
	tracker    *period.Tracker
	supervisor *jobs.Supervisor
}

// setupAPI wires the full HTTP surface over a temp sqlite database with no-op
// job runners, so handler behaviour is observable without engines.
func setupAPI(t *testing.T) (http.Handler, *apiTestEnv) {
	t.Helper()

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	supervisor := jobs.NewSupervisor(1, zap.NewNop())
	t.Cleanup(func() { supervisor.Shutdown(context.Background()) })

	noop := jobs.RunnerFunc(func(ctx context.Context, jobID string) error { return nil })
	periodRepo := database.NewPeriodRepo(db)
	tracker := period.NewTracker(periodRepo)

	service := NewService(
		database.NewSourceRepo(db),
		database.NewTaskRepo(db),
		database.NewFrameRepo(db),
		database.NewVectorizationJobRepo(db),
		database.NewSearchJobRepo(db),
		periodRepo,
		tracker,
		supervisor,
		noop,
		noop,
		zap.NewNop(),
	)
	router := NewRouter(NewHandlers(service, nil, zap.NewNop()))
	return router, &apiTestEnv{tracker: tracker, supervisor: supervisor}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestSubmitVectorizationJob(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/vectorization-jobs", map[string]any{
		"source_id": "cam-1",
		"ranges": []map[string]string{
			{"start_at": "2024-05-01T10:00:00Z", "end_at": "2024-05-01T11:00:00Z"},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var job struct {
		ID       string  `json:"id"`
		SourceID string  `json:"source_id"`
		Status   string  `json:"status"`
		Progress float64 `json:"progress"`
	}
	decodeBody(t, rec, &job)
	if job.ID == "" || job.SourceID != "cam-1" || job.Status != "PENDING" {
		t.Errorf("unexpected job payload: %+v", job)
	}

	// Submission registers unknown sources on the way in.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/sources", nil)
	var sources []map[string]string
	decodeBody(t, rec, &sources)
	if len(sources) != 1 || sources[0]["source_id"] != "cam-1" {
		t.Errorf("sources = %v", sources)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/vectorization-jobs/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get job status = %d", rec.Code)
	}
}

func TestSubmitVectorizationJobValidation(t *testing.T) {
	router, _ := setupAPI(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no ranges", map[string]any{"source_id": "cam-1"}},
		{"inverted range", map[string]any{
			"source_id": "cam-1",
			"ranges": []map[string]string{
				{"start_at": "2024-05-01T11:00:00Z", "end_at": "2024-05-01T10:00:00Z"},
			},
		}},
		{"unparseable range", map[string]any{
			"source_id": "cam-1",
			"ranges":    []map[string]string{{"start_at": "bad", "end_at": "worse"}},
		}},
		{"missing source", map[string]any{
			"ranges": []map[string]string{
				{"start_at": "2024-05-01T10:00:00Z", "end_at": "2024-05-01T11:00:00Z"},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/vectorization-jobs", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
			}
		})
	}

	// Rejected submissions never leave a job row behind.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/vectorization-jobs", nil)
	var list []json.RawMessage
	decodeBody(t, rec, &list)
	if len(list) != 0 {
		t.Errorf("expected no jobs, got %d", len(list))
	}
}

func TestGetUnknownJobReturns404(t *testing.T) {
	router, _ := setupAPI(t)

	for _, path := range []string{
		"/api/v1/vectorization-jobs/missing",
		"/api/v1/search-jobs/missing",
		"/api/v1/search-jobs/missing/results",
		"/api/v1/search-jobs/missing/events",
		"/api/v1/frames/missing/snapshot",
	} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d", path, rec.Code)
		}
	}
}

func TestSubmitSearchJob(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/search-jobs", map[string]any{
		"title":      "red car sweep",
		"text_query": "red car",
		"source_id":  "cam-1",
		"start_at":   "2024-05-01T10:00:00Z",
		"end_at":     "2024-05-01T11:00:00Z",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var job struct {
		ID        string `json:"id"`
		TextQuery string `json:"text_query"`
		Status    string `json:"status"`
	}
	decodeBody(t, rec, &job)
	if job.TextQuery != "red car" || job.Status != "PENDING" {
		t.Errorf("unexpected job payload: %+v", job)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/search-jobs/"+job.ID+"/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results status = %d", rec.Code)
	}
	var results struct {
		Status  string            `json:"status"`
		Results []json.RawMessage `json:"results"`
	}
	decodeBody(t, rec, &results)
	if len(results.Results) != 0 {
		t.Errorf("expected no results yet, got %d", len(results.Results))
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/search-jobs", map[string]any{
		"title":     "no query",
		"source_id": "cam-1",
		"start_at":  "2024-05-01T10:00:00Z",
		"end_at":    "2024-05-01T11:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing text_query status = %d", rec.Code)
	}
}

func TestCoverageEndpoint(t *testing.T) {
	router, env := setupAPI(t)
	tracker := env.tracker
	ctx := context.Background()

	query := "/api/v1/sources/cam-1/coverage?start_at=2024-05-01T10%3A00%3A00Z&end_at=2024-05-01T12%3A00%3A00Z"

	rec := doJSON(t, router, http.MethodGet, query, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Coverage string `json:"coverage"`
		Missing  []struct {
			StartAt string `json:"start_at"`
			EndAt   string `json:"end_at"`
		} `json:"missing"`
	}
	decodeBody(t, rec, &resp)
	if resp.Coverage != string(CoverageNone) || len(resp.Missing) != 1 {
		t.Errorf("empty source coverage = %+v", resp)
	}

	if err := tracker.RecordCompleted(ctx, "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"); err != nil {
		t.Fatalf("RecordCompleted: %v", err)
	}
	rec = doJSON(t, router, http.MethodGet, query, nil)
	decodeBody(t, rec, &resp)
	if resp.Coverage != string(CoveragePartial) {
		t.Errorf("coverage = %s, want partial", resp.Coverage)
	}
	if len(resp.Missing) != 1 || resp.Missing[0].StartAt != "2024-05-01T11:00:00Z" {
		t.Errorf("missing = %+v", resp.Missing)
	}

	if err := tracker.RecordCompleted(ctx, "cam-1", "2024-05-01T11:00:00Z", "2024-05-01T12:00:00Z"); err != nil {
		t.Fatalf("RecordCompleted: %v", err)
	}
	rec = doJSON(t, router, http.MethodGet, query, nil)
	decodeBody(t, rec, &resp)
	if resp.Coverage != string(CoverageFull) || len(resp.Missing) != 0 {
		t.Errorf("coverage after full sweep = %+v", resp)
	}

	// The two touching sweeps surface as one merged period.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/sources/cam-1/periods", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("periods status = %d", rec.Code)
	}
	var periods []struct {
		StartAt string `json:"start_at"`
		EndAt   string `json:"end_at"`
	}
	decodeBody(t, rec, &periods)
	if len(periods) != 1 || periods[0].StartAt != "2024-05-01T10:00:00Z" || periods[0].EndAt != "2024-05-01T12:00:00Z" {
		t.Errorf("periods = %+v", periods)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sources/cam-1/coverage?start_at=bad&end_at=worse", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid range status = %d", rec.Code)
	}
}

func TestCancelPendingVectorizationJob(t *testing.T) {
	router, env := setupAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/vectorization-jobs", map[string]any{
		"source_id": "cam-1",
		"ranges": []map[string]string{
			{"start_at": "2024-05-01T10:00:00Z", "end_at": "2024-05-01T11:00:00Z"},
		},
	})
	var job struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &job)

	// Wait for the no-op runner to release so cancel takes the pending-row
	// path instead of signalling an execution.
	deadline := time.After(time.Second)
	for env.supervisor.Running(job.ID) {
		select {
		case <-deadline:
			t.Fatal("job never released")
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/vectorization-jobs/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cancelled struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &cancelled)
	if cancelled.Status != "CANCELLED" {
		t.Errorf("status after cancel = %s", cancelled.Status)
	}

	// A terminal job is left untouched by resubmit.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/vectorization-jobs/"+job.ID+"/resubmit", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resubmit status = %d", rec.Code)
	}
	decodeBody(t, rec, &cancelled)
	if cancelled.Status != "CANCELLED" {
		t.Errorf("status after resubmit = %s", cancelled.Status)
	}
}

func TestTaskEndpoints(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", map[string]any{
		"name":      "morning sweep",
		"source_id": "cam-1",
		"start_at":  "2024-05-01T08:00:00Z",
		"end_at":    "2024-05-01T09:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/tasks", map[string]any{
		"source_id": "cam-1",
		"start_at":  "2024-05-01T08:00:00Z",
		"end_at":    "2024-05-01T09:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("nameless task status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/tasks?source_id=cam-1", nil)
	var tasks []map[string]string
	decodeBody(t, rec, &tasks)
	if len(tasks) != 1 || tasks[0]["name"] != "morning sweep" {
		t.Errorf("tasks = %v", tasks)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/tasks?source_id=other", nil)
	decodeBody(t, rec, &tasks)
	if len(tasks) != 0 {
		t.Errorf("filtered tasks = %v", tasks)
	}
}
