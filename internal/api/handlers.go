package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/jobs"
	"github.com/a-lournrose/ai-video-searcher/internal/models"
	"github.com/a-lournrose/ai-video-searcher/internal/storage"
)

type Handlers struct {
	service   *Service
	snapshots *storage.SnapshotStorage
	logger    *zap.Logger
}

func NewHandlers(service *Service, snapshots *storage.SnapshotStorage, logger *zap.Logger) *Handlers {
	return &Handlers{service: service, snapshots: snapshots, logger: logger}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrValidation) {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Error("request failed", zap.Error(err))
	h.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (h *Handlers) respondNotFound(w http.ResponseWriter, what string) {
	h.respondJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

type timeRangeDTO struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

func toRanges(dtos []timeRangeDTO) []models.TimeRange {
	ranges := make([]models.TimeRange, 0, len(dtos))
	for _, d := range dtos {
		ranges = append(ranges, models.TimeRange{StartAt: d.StartAt, EndAt: d.EndAt})
	}
	return ranges
}

func fromRanges(ranges []models.TimeRange) []timeRangeDTO {
	dtos := make([]timeRangeDTO, 0, len(ranges))
	for _, r := range ranges {
		dtos = append(dtos, timeRangeDTO{StartAt: r.StartAt, EndAt: r.EndAt})
	}
	return dtos
}

type vectorizationJobDTO struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	Ranges    []timeRangeDTO `json:"ranges"`
	Status    string         `json:"status"`
	Progress  float64        `json:"progress"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toVectorizationJobDTO(job *models.VectorizationJob) vectorizationJobDTO {
	return vectorizationJobDTO{
		ID:        job.ID,
		SourceID:  job.SourceID,
		Ranges:    fromRanges(job.Ranges),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

type searchJobDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TextQuery string    `json:"text_query"`
	SourceID  string    `json:"source_id"`
	StartAt   string    `json:"start_at"`
	EndAt     string    `json:"end_at"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSearchJobDTO(job *models.SearchJob) searchJobDTO {
	return searchJobDTO{
		ID:        job.ID,
		Title:     job.Title,
		TextQuery: job.TextQuery,
		SourceID:  job.SourceID,
		StartAt:   job.StartAt,
		EndAt:     job.EndAt,
		Status:    string(job.Status),
		Progress:  job.Progress,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

type searchResultDTO struct {
	FrameID    string  `json:"frame_id"`
	ObjectID   *string `json:"object_id,omitempty"`
	Rank       int     `json:"rank"`
	FinalScore float64 `json:"final_score"`
	ClipScore  float64 `json:"clip_score"`
	ColorScore float64 `json:"color_score"`
	PlateScore float64 `json:"plate_score"`
}

type searchEventDTO struct {
	TrackID  *int64  `json:"track_id,omitempty"`
	ObjectID *string `json:"object_id,omitempty"`
	Score    float64 `json:"score"`
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (h *Handlers) SubmitVectorizationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string         `json:"source_id"`
		Ranges   []timeRangeDTO `json:"ranges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, jobs.ValidationErrorf("invalid request body: %v", err))
		return
	}

	job, err := h.service.SubmitVectorization(r.Context(), req.SourceID, toRanges(req.Ranges))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, toVectorizationJobDTO(job))
}

func (h *Handlers) GetVectorizationJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetVectorizationJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusOK, toVectorizationJobDTO(job))
}

func (h *Handlers) ListVectorizationJobsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListVectorizationJobs(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]vectorizationJobDTO, 0, len(list))
	for _, job := range list {
		dtos = append(dtos, toVectorizationJobDTO(job))
	}
	h.respondJSON(w, http.StatusOK, dtos)
}

func (h *Handlers) ResubmitVectorizationHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.ResubmitVectorization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusAccepted, toVectorizationJobDTO(job))
}

func (h *Handlers) CancelVectorizationHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.CancelVectorization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusOK, toVectorizationJobDTO(job))
}

func (h *Handlers) SubmitSearchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		TextQuery string `json:"text_query"`
		SourceID  string `json:"source_id"`
		StartAt   string `json:"start_at"`
		EndAt     string `json:"end_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, jobs.ValidationErrorf("invalid request body: %v", err))
		return
	}

	job, err := h.service.SubmitSearch(r.Context(), req.Title, req.TextQuery, req.SourceID,
		models.TimeRange{StartAt: req.StartAt, EndAt: req.EndAt})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, toSearchJobDTO(job))
}

func (h *Handlers) GetSearchJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetSearchJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusOK, toSearchJobDTO(job))
}

func (h *Handlers) ListSearchJobsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSearchJobs(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]searchJobDTO, 0, len(list))
	for _, job := range list {
		dtos = append(dtos, toSearchJobDTO(job))
	}
	h.respondJSON(w, http.StatusOK, dtos)
}

func (h *Handlers) ResubmitSearchHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.ResubmitSearch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusAccepted, toSearchJobDTO(job))
}

func (h *Handlers) CancelSearchHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.CancelSearch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}
	h.respondJSON(w, http.StatusOK, toSearchJobDTO(job))
}

func (h *Handlers) SearchResultsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := h.service.GetSearchJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}

	results, err := h.service.SearchResults(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]searchResultDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, searchResultDTO{
			FrameID:    res.FrameID,
			ObjectID:   res.ObjectID,
			Rank:       res.Rank,
			FinalScore: res.FinalScore,
			ClipScore:  res.ClipScore,
			ColorScore: res.ColorScore,
			PlateScore: res.PlateScore,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  string(job.Status),
		"results": dtos,
	})
}

func (h *Handlers) SearchEventsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := h.service.GetSearchJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if job == nil {
		h.respondNotFound(w, "job")
		return
	}

	events, err := h.service.SearchEvents(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]searchEventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, searchEventDTO{TrackID: ev.TrackID, ObjectID: ev.ObjectID, Score: ev.Score})
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":   string(job.Status),
		"progress": job.Progress,
		"events":   dtos,
	})
}

func (h *Handlers) CoverageHandler(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	rng := models.TimeRange{
		StartAt: r.URL.Query().Get("start_at"),
		EndAt:   r.URL.Query().Get("end_at"),
	}

	coverage, missing, err := h.service.CheckCoverage(r.Context(), sourceID, rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"coverage": string(coverage),
		"missing":  fromRanges(missing),
	})
}

func (h *Handlers) ListPeriodsHandler(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.ListPeriods(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]timeRangeDTO, 0, len(periods))
	for _, p := range periods {
		dtos = append(dtos, timeRangeDTO{StartAt: p.StartAt, EndAt: p.EndAt})
	}
	h.respondJSON(w, http.StatusOK, dtos)
}

func (h *Handlers) CreateSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, jobs.ValidationErrorf("invalid request body: %v", err))
		return
	}

	source, err := h.service.CreateSource(r.Context(), req.SourceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{
		"id":        source.ID,
		"source_id": source.SourceID,
	})
}

func (h *Handlers) ListSourcesHandler(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]map[string]string, 0, len(sources))
	for _, src := range sources {
		dtos = append(dtos, map[string]string{"id": src.ID, "source_id": src.SourceID})
	}
	h.respondJSON(w, http.StatusOK, dtos)
}

func (h *Handlers) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		SourceID string `json:"source_id"`
		StartAt  string `json:"start_at"`
		EndAt    string `json:"end_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, jobs.ValidationErrorf("invalid request body: %v", err))
		return
	}

	task, err := h.service.CreateTask(r.Context(), req.Name, req.SourceID, req.StartAt, req.EndAt)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{
		"id":        task.ID,
		"name":      task.Name,
		"source_id": task.SourceID,
		"start_at":  task.StartAt,
		"end_at":    task.EndAt,
	})
}

func (h *Handlers) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context(), r.URL.Query().Get("source_id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]map[string]string, 0, len(tasks))
	for _, task := range tasks {
		dtos = append(dtos, map[string]string{
			"id":        task.ID,
			"name":      task.Name,
			"source_id": task.SourceID,
			"start_at":  task.StartAt,
			"end_at":    task.EndAt,
		})
	}
	h.respondJSON(w, http.StatusOK, dtos)
}

// FrameSnapshotHandler streams the archived image of a frame.
func (h *Handlers) FrameSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	frameID := chi.URLParam(r, "id")

	frame, err := h.service.GetFrame(r.Context(), frameID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if frame == nil {
		h.respondNotFound(w, "frame")
		return
	}

	if h.snapshots == nil {
		h.respondNotFound(w, "snapshot")
		return
	}
	file, err := h.snapshots.OpenSnapshot(frameID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.respondNotFound(w, "snapshot")
			return
		}
		h.respondError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, frameID+".jpg", time.Time{}, file)
}
