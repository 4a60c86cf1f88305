// Package api exposes the HTTP surface: job submission and polling, sources,
// tasks, coverage checks, and frame snapshots.
package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/jobs"
	"github.com/a-lournrose/ai-video-searcher/internal/models"
	"github.com/a-lournrose/ai-video-searcher/internal/period"
)

// Coverage classifies how much of a requested window is vectorized.
type Coverage string

const (
	CoverageFull    Coverage = "FULLY_VECTORIZED"
	CoveragePartial Coverage = "PARTIALLY_VECTORIZED"
	CoverageNone    Coverage = "NOT_VECTORIZED"
)

// Service ties the repos, the period tracker, and the job supervisor together
// behind the HTTP handlers. Submission is idempotent per job id: re-submitting
// a job that is already queued or running is a no-op.
type Service struct {
	sources    *database.SourceRepo
	tasks      *database.TaskRepo
	frames     *database.FrameRepo
	vecJobs    *database.VectorizationJobRepo
	searchJobs *database.SearchJobRepo
	periods    *database.PeriodRepo
	tracker    *period.Tracker
	supervisor *jobs.Supervisor
	vecRunner  jobs.Runner
	srchRunner jobs.Runner
	logger     *zap.Logger
}

func NewService(
	sources *database.SourceRepo,
	tasks *database.TaskRepo,
	frames *database.FrameRepo,
	vecJobs *database.VectorizationJobRepo,
	searchJobs *database.SearchJobRepo,
	periods *database.PeriodRepo,
	tracker *period.Tracker,
	supervisor *jobs.Supervisor,
	vecRunner jobs.Runner,
	srchRunner jobs.Runner,
	logger *zap.Logger,
) *Service {
	return &Service{
		sources:    sources,
		tasks:      tasks,
		frames:     frames,
		vecJobs:    vecJobs,
		searchJobs: searchJobs,
		periods:    periods,
		tracker:    tracker,
		supervisor: supervisor,
		vecRunner:  vecRunner,
		srchRunner: srchRunner,
		logger:     logger,
	}
}

// ensureSource resolves a source by its external id, registering it on first
// use.
func (s *Service) ensureSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return jobs.ValidationErrorf("source_id is required")
	}
	existing, err := s.sources.GetBySourceID(ctx, sourceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.sources.Create(ctx, models.NewSource(sourceID))
}

func validateRanges(ranges []models.TimeRange) error {
	if len(ranges) == 0 {
		return jobs.ValidationErrorf("at least one time range is required")
	}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return jobs.ValidationErrorf("%v", err)
		}
	}
	return nil
}

// SubmitVectorization validates the request, persists a PENDING job, and hands
// it to the supervisor. Validation failures never create a job record.
func (s *Service) SubmitVectorization(ctx context.Context, sourceID string, ranges []models.TimeRange) (*models.VectorizationJob, error) {
	if err := validateRanges(ranges); err != nil {
		return nil, err
	}
	if err := s.ensureSource(ctx, sourceID); err != nil {
		return nil, err
	}

	job := models.NewVectorizationJob(sourceID, ranges)
	if err := s.vecJobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := s.supervisor.Submit(job.ID, s.vecRunner); err != nil {
		// The job row stays PENDING; ResubmitPending picks it up later.
		s.logger.Warn("failed to schedule vectorization job",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	return job, nil
}

func (s *Service) GetVectorizationJob(ctx context.Context, jobID string) (*models.VectorizationJob, error) {
	return s.vecJobs.GetByID(ctx, jobID)
}

func (s *Service) ListVectorizationJobs(ctx context.Context) ([]*models.VectorizationJob, error) {
	return s.vecJobs.List(ctx)
}

// ResubmitVectorization re-queues an existing non-terminal job, e.g. after a
// restart. Returns the job, or nil when it does not exist.
func (s *Service) ResubmitVectorization(ctx context.Context, jobID string) (*models.VectorizationJob, error) {
	job, err := s.vecJobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return job, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if _, err := s.supervisor.Submit(job.ID, s.vecRunner); err != nil {
		return nil, err
	}
	return job, nil
}

// CancelVectorization signals a running execution and marks the row CANCELLED
// when it was still pending. Terminal rows are untouched.
func (s *Service) CancelVectorization(ctx context.Context, jobID string) (*models.VectorizationJob, error) {
	job, err := s.vecJobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return job, err
	}

	if !s.supervisor.Cancel(jobID) {
		// Nothing in flight: a PENDING row is cancelled directly.
		if _, err := s.vecJobs.UpdateStatus(ctx, jobID, models.JobCancelled, nil); err != nil {
			return nil, err
		}
	}
	return s.vecJobs.GetByID(ctx, jobID)
}

func (s *Service) SubmitSearch(ctx context.Context, title, textQuery, sourceID string, r models.TimeRange) (*models.SearchJob, error) {
	if textQuery == "" {
		return nil, jobs.ValidationErrorf("text_query is required")
	}
	if err := r.Validate(); err != nil {
		return nil, jobs.ValidationErrorf("%v", err)
	}
	if err := s.ensureSource(ctx, sourceID); err != nil {
		return nil, err
	}

	job := models.NewSearchJob(title, textQuery, sourceID, r.StartAt, r.EndAt)
	if err := s.searchJobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := s.supervisor.Submit(job.ID, s.srchRunner); err != nil {
		s.logger.Warn("failed to schedule search job",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	return job, nil
}

func (s *Service) GetSearchJob(ctx context.Context, jobID string) (*models.SearchJob, error) {
	return s.searchJobs.GetByID(ctx, jobID)
}

func (s *Service) ListSearchJobs(ctx context.Context) ([]*models.SearchJob, error) {
	return s.searchJobs.List(ctx)
}

func (s *Service) ResubmitSearch(ctx context.Context, jobID string) (*models.SearchJob, error) {
	job, err := s.searchJobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return job, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if _, err := s.supervisor.Submit(job.ID, s.srchRunner); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) CancelSearch(ctx context.Context, jobID string) (*models.SearchJob, error) {
	job, err := s.searchJobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return job, err
	}

	if !s.supervisor.Cancel(jobID) {
		if _, err := s.searchJobs.UpdateStatus(ctx, jobID, models.JobCancelled, nil); err != nil {
			return nil, err
		}
	}
	return s.searchJobs.GetByID(ctx, jobID)
}

func (s *Service) SearchResults(ctx context.Context, jobID string) ([]*models.SearchJobResult, error) {
	return s.searchJobs.ListResults(ctx, jobID)
}

func (s *Service) SearchEvents(ctx context.Context, jobID string) ([]*models.SearchJobEvent, error) {
	return s.searchJobs.ListEvents(ctx, jobID)
}

// CheckCoverage reports how much of [r.StartAt, r.EndAt) is vectorized for the
// source, plus the still-missing subranges.
func (s *Service) CheckCoverage(ctx context.Context, sourceID string, r models.TimeRange) (Coverage, []models.TimeRange, error) {
	if err := r.Validate(); err != nil {
		return "", nil, jobs.ValidationErrorf("%v", err)
	}

	missing, err := s.tracker.MissingRanges(ctx, sourceID, []models.TimeRange{r})
	if err != nil {
		return "", nil, err
	}
	if len(missing) == 0 {
		return CoverageFull, nil, nil
	}
	if len(missing) == 1 && missing[0].StartAt == r.StartAt && missing[0].EndAt == r.EndAt {
		return CoverageNone, missing, nil
	}
	return CoveragePartial, missing, nil
}

// ListPeriods returns the merged vectorized periods of a source, ordered by
// start time.
func (s *Service) ListPeriods(ctx context.Context, sourceID string) ([]*models.VectorizedPeriod, error) {
	return s.periods.ListForSource(ctx, sourceID)
}

func (s *Service) CreateSource(ctx context.Context, sourceID string) (*models.Source, error) {
	if sourceID == "" {
		return nil, jobs.ValidationErrorf("source_id is required")
	}
	existing, err := s.sources.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	source := models.NewSource(sourceID)
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *Service) ListSources(ctx context.Context) ([]*models.Source, error) {
	return s.sources.List(ctx)
}

func (s *Service) CreateTask(ctx context.Context, name, sourceID, startAt, endAt string) (*models.Task, error) {
	if name == "" {
		return nil, jobs.ValidationErrorf("name is required")
	}
	r := models.TimeRange{StartAt: startAt, EndAt: endAt}
	if err := r.Validate(); err != nil {
		return nil, jobs.ValidationErrorf("%v", err)
	}
	if err := s.ensureSource(ctx, sourceID); err != nil {
		return nil, err
	}

	task := models.NewTask(name, sourceID, startAt, endAt)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, sourceID string) ([]*models.Task, error) {
	return s.tasks.List(ctx, sourceID)
}

func (s *Service) GetFrame(ctx context.Context, frameID string) (*models.Frame, error) {
	return s.frames.GetByID(ctx, frameID)
}

// ResubmitPending re-queues every non-terminal job after a restart. RUNNING
// rows belong to executions lost with the previous process; their engines
// re-enter safely because completed periods and sticky statuses are durable.
func (s *Service) ResubmitPending(ctx context.Context) error {
	vecJobs, err := s.vecJobs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list vectorization jobs: %w", err)
	}
	for _, job := range vecJobs {
		if job.Status.Terminal() {
			continue
		}
		if _, err := s.supervisor.Submit(job.ID, s.vecRunner); err != nil {
			return err
		}
	}

	searchJobs, err := s.searchJobs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list search jobs: %w", err)
	}
	for _, job := range searchJobs {
		if job.Status.Terminal() {
			continue
		}
		if _, err := s.supervisor.Submit(job.ID, s.srchRunner); err != nil {
			return err
		}
	}
	return nil
}
