package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/extractor"
	"github.com/a-lournrose/ai-video-searcher/internal/jobs"
	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// JobStore is the search-job slice of the persisted layer.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*models.SearchJob, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress float64) error
	ReplaceResults(ctx context.Context, jobID string, results []*models.SearchJobResult) error
	UpsertEventMax(ctx context.Context, event *models.SearchJobEvent) error
}

// CandidateStore serves embedding candidates restricted to a source and time
// range.
type CandidateStore interface {
	FrameCandidates(ctx context.Context, sourceID, startAt, endAt string, limit int) ([]database.FrameCandidate, error)
	ObjectCandidates(ctx context.Context, sourceID, startAt, endAt string, typeFilter *models.ObjectType, limit int) ([]database.ObjectCandidate, error)
}

// Options tunes the engine; zero values fall back to the defaults below.
type Options struct {
	MaxCandidates int
	TopResults    int
	MinClipScore  float64
	EventBatch    int
	Weights       Weights
	StoreRetries  int
	RetryBackoff  time.Duration
}

// Engine runs search jobs: embed the query, load candidates, fuse per-signal
// scores, emit incremental per-track events, and persist the final ranking.
type Engine struct {
	store      JobStore
	candidates CandidateStore
	embedder   extractor.Embedder
	limiter    *extractor.Limiter
	logger     *zap.Logger
	opts       Options
}

func NewEngine(store JobStore, candidates CandidateStore, embedder extractor.Embedder, limiter *extractor.Limiter, logger *zap.Logger, opts Options) *Engine {
	if opts.MaxCandidates == 0 {
		opts.MaxCandidates = 500
	}
	if opts.TopResults == 0 {
		opts.TopResults = 50
	}
	if opts.EventBatch == 0 {
		opts.EventBatch = 20
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.StoreRetries == 0 {
		opts.StoreRetries = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Engine{
		store:      store,
		candidates: candidates,
		embedder:   embedder,
		limiter:    limiter,
		logger:     logger,
		opts:       opts,
	}
}

// Run executes one search job to a persisted terminal status.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, err := e.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load search job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("search job %s not found", jobID)
	}

	started, err := e.store.UpdateStatus(ctx, jobID, models.JobRunning, nil)
	if err != nil {
		return fmt.Errorf("failed to mark search job running: %w", err)
	}
	if !started {
		// Already terminal: cancelled while pending, or a duplicate start.
		return nil
	}

	if err := e.run(ctx, job); err != nil {
		if ctx.Err() != nil {
			e.markCancelled(jobID)
			return ctx.Err()
		}
		e.fail(jobID, err)
		return err
	}
	return nil
}

func (e *Engine) run(ctx context.Context, job *models.SearchJob) error {
	parsed := ParseQuery(job.TextQuery)

	embedText := parsed.CleanedText
	if embedText == "" {
		embedText = job.TextQuery
	}

	// The query embedding is the anchor of the whole search; failure here is
	// fatal to the job.
	var queryVector []float32
	err := e.limiter.Do(ctx, func(callCtx context.Context) error {
		var embErr error
		queryVector, embErr = e.embedder.EmbedText(callCtx, embedText)
		return embErr
	})
	if err != nil {
		return &jobs.ExtractionError{Unit: "query text", Err: err}
	}

	var hits []Hit
	if parsed.Type == nil {
		hits, err = e.scoreFrames(ctx, job, queryVector)
	} else {
		hits, err = e.scoreObjects(ctx, job, parsed, queryVector)
	}
	if err != nil {
		return err
	}

	SortHits(hits)

	results := make([]*models.SearchJobResult, 0, e.opts.TopResults)
	for _, hit := range hits {
		if len(results) == e.opts.TopResults {
			break
		}
		if hit.ClipScore < e.opts.MinClipScore {
			continue
		}
		results = append(results, &models.SearchJobResult{
			JobID:      job.ID,
			FrameID:    hit.FrameID,
			ObjectID:   hit.ObjectID,
			Rank:       len(results) + 1,
			FinalScore: hit.FinalScore,
			ClipScore:  hit.ClipScore,
			ColorScore: hit.ColorScore,
			PlateScore: hit.PlateScore,
		})
	}

	err = jobs.RetryStore(ctx, e.opts.StoreRetries, e.opts.RetryBackoff, func() error {
		return e.store.ReplaceResults(ctx, job.ID, results)
	})
	if err != nil {
		return err
	}

	if err := e.store.UpdateProgress(ctx, job.ID, 1.0); err != nil {
		e.logger.Warn("failed to persist final progress", zap.String("job_id", job.ID), zap.Error(err))
	}
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobCompleted, nil); err != nil {
		return fmt.Errorf("failed to mark search job completed: %w", err)
	}

	e.logger.Info("search job completed",
		zap.String("job_id", job.ID),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)))
	return nil
}

func (e *Engine) scoreFrames(ctx context.Context, job *models.SearchJob, queryVector []float32) ([]Hit, error) {
	candidates, err := e.candidates.FrameCandidates(ctx, job.SourceID, job.StartAt, job.EndAt, e.opts.MaxCandidates)
	if err != nil {
		return nil, &jobs.StoreError{Err: err}
	}

	hits := make([]Hit, 0, len(candidates))
	for i, cand := range candidates {
		if err := e.checkpoint(ctx, job.ID, i, len(candidates)); err != nil {
			return nil, err
		}

		clip, err := CosineSimilarity(queryVector, cand.Vector)
		if err != nil {
			e.logger.Warn("skipping frame candidate",
				zap.String("job_id", job.ID), zap.String("frame_id", cand.FrameID), zap.Error(err))
			continue
		}

		// Frame-level search has no color/plate signals; final equals clip.
		hits = append(hits, Hit{
			FrameID:      cand.FrameID,
			TimestampSec: cand.TimestampSec,
			FinalScore:   e.opts.Weights.Combine(Components{Clip: clip}),
			ClipScore:    clip,
		})
	}
	return hits, nil
}

func (e *Engine) scoreObjects(ctx context.Context, job *models.SearchJob, parsed ParsedQuery, queryVector []float32) ([]Hit, error) {
	candidates, err := e.candidates.ObjectCandidates(ctx, job.SourceID, job.StartAt, job.EndAt, parsed.Type, e.opts.MaxCandidates)
	if err != nil {
		return nil, &jobs.StoreError{Err: err}
	}

	hits := make([]Hit, 0, len(candidates))
	for i, cand := range candidates {
		if err := e.checkpoint(ctx, job.ID, i, len(candidates)); err != nil {
			return nil, err
		}

		clip, err := CosineSimilarity(queryVector, cand.Vector)
		if err != nil {
			e.logger.Warn("skipping object candidate",
				zap.String("job_id", job.ID), zap.String("object_id", cand.ObjectID), zap.Error(err))
			continue
		}

		components := Components{Clip: clip}
		if parsed.HasColor() {
			components.HasColor = true
			components.Color = objectColorScore(parsed, cand)
		}
		if parsed.Plate != "" && cand.TransportPlate != nil {
			components.HasPlate = true
			components.Plate = PlateScore(parsed.Plate, *cand.TransportPlate)
		}

		objectID := cand.ObjectID
		hit := Hit{
			FrameID:      cand.FrameID,
			ObjectID:     &objectID,
			TrackID:      cand.TrackID,
			TimestampSec: cand.TimestampSec,
			FinalScore:   e.opts.Weights.Combine(components),
			ClipScore:    clip,
			ColorScore:   components.Color,
			PlateScore:   components.Plate,
		}
		hits = append(hits, hit)
		e.emitEvent(ctx, job.ID, hit)
	}
	return hits, nil
}

// checkpoint is the cooperative cancellation point between candidate batches;
// it also persists progress so pollers see the job advance.
func (e *Engine) checkpoint(ctx context.Context, jobID string, index, total int) error {
	if index%e.opts.EventBatch != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if total > 0 {
		if err := e.store.UpdateProgress(ctx, jobID, float64(index)/float64(total)); err != nil {
			e.logger.Warn("failed to persist progress", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	return nil
}

// emitEvent coalesces hits by track, keeping the best score per track so live
// pollers can consume partial results. Event write failures are advisory and
// never fail the job.
func (e *Engine) emitEvent(ctx context.Context, jobID string, hit Hit) {
	event := &models.SearchJobEvent{
		JobID:    jobID,
		TrackID:  hit.TrackID,
		ObjectID: hit.ObjectID,
		Score:    hit.FinalScore,
	}
	if err := e.store.UpsertEventMax(ctx, event); err != nil {
		e.logger.Warn("failed to record search event", zap.String("job_id", jobID), zap.Error(err))
	}
}

func objectColorScore(parsed ParsedQuery, cand database.ObjectCandidate) float64 {
	switch cand.Type {
	case models.ObjectTransport:
		if parsed.Color == "" || cand.TransportColorHSV == nil {
			return 0.0
		}
		h, s, v, ok := ParseHSV(*cand.TransportColorHSV)
		if !ok {
			return 0.0
		}
		return ColorScore(parsed.Color, h, s, v)

	case models.ObjectPerson:
		var scores []float64
		upper := parsed.UpperColor
		lower := parsed.LowerColor
		if upper == "" && lower == "" {
			// A generic color on a person query is matched against both
			// clothing regions.
			upper, lower = parsed.Color, parsed.Color
		}
		if upper != "" && cand.PersonUpperHSV != nil {
			if h, s, v, ok := ParseHSV(*cand.PersonUpperHSV); ok {
				scores = append(scores, ColorScore(upper, h, s, v))
			}
		}
		if lower != "" && cand.PersonLowerHSV != nil {
			if h, s, v, ok := ParseHSV(*cand.PersonLowerHSV); ok {
				scores = append(scores, ColorScore(lower, h, s, v))
			}
		}
		if len(scores) == 0 {
			return 0.0
		}
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}
	return 0.0
}

func (e *Engine) fail(jobID string, cause error) {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.UpdateStatus(ctx, jobID, models.JobFailed, &msg); err != nil {
		e.logger.Error("failed to mark search job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (e *Engine) markCancelled(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.UpdateStatus(ctx, jobID, models.JobCancelled, nil); err != nil {
		e.logger.Error("failed to mark search job cancelled", zap.String("job_id", jobID), zap.Error(err))
	}
}
