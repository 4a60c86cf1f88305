// Package vectorize runs vectorization jobs: it samples frames from the media
// gateway, runs detection and embedding on each, and persists the per-frame
// graph together with the covered period bookkeeping.
package vectorize

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

// JobStore is the vectorization-job slice of the persisted layer.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*models.VectorizationJob, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress float64) error
}

// GraphStore persists extracted frame graphs.
type GraphStore interface {
	SaveGraph(ctx context.Context, graph *database.FrameGraph) error
}

// PeriodTracker answers what is missing and records what got done. Both sides
// of one sub-range cycle run under the per-source lock.
type PeriodTracker interface {
	LockSource(sourceID string) func()
	MissingRanges(ctx context.Context, sourceID string, requested []models.TimeRange) ([]models.TimeRange, error)
	RecordCompleted(ctx context.Context, sourceID, startAt, endAt string) error
}

// Snapshots archives the raw frame image for later retrieval. Optional: a nil
// archive disables snapshots.
type Snapshots interface {
	SaveSnapshot(frameID string, image []byte) error
}

type Options struct {
	FrameIntervalSec float64
	StoreRetries     int
	RetryBackoff     time.Duration
}

type Engine struct {
	store     JobStore
	graphs    GraphStore
	tracker   PeriodTracker
	frames    extractor.FrameSource
	embedder  extractor.Embedder
	detector  extractor.Detector
	limiter   *extractor.Limiter
	snapshots Snapshots
	logger    *zap.Logger
	opts      Options
}

func NewEngine(store JobStore, graphs GraphStore, tracker PeriodTracker,
	frames extractor.FrameSource, embedder extractor.Embedder, detector extractor.Detector,
	limiter *extractor.Limiter, snapshots Snapshots, logger *zap.Logger, opts Options) *Engine {
	if opts.FrameIntervalSec == 0 {
		opts.FrameIntervalSec = 1.0
	}
	if opts.StoreRetries == 0 {
		opts.StoreRetries = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Engine{
		store:     store,
		graphs:    graphs,
		tracker:   tracker,
		frames:    frames,
		embedder:  embedder,
		detector:  detector,
		limiter:   limiter,
		snapshots: snapshots,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes one vectorization job to a persisted terminal status. Completed
// sub-ranges stay durable even when a later sub-range fails, so a retried job
// only reprocesses what is still missing.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, err := e.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load vectorization job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("vectorization job %s not found", jobID)
	}

	started, err := e.store.UpdateStatus(ctx, jobID, models.JobRunning, nil)
	if err != nil {
		return fmt.Errorf("failed to mark vectorization job running: %w", err)
	}
	if !started {
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

func (e *Engine) run(ctx context.Context, job *models.VectorizationJob) error {
	totalSec, err := requestedSeconds(job.Ranges)
	if err != nil {
		return err
	}

	unlock := e.tracker.LockSource(job.SourceID)
	defer unlock()

	missing, err := e.tracker.MissingRanges(ctx, job.SourceID, job.Ranges)
	if err != nil {
		return &jobs.StoreError{Err: err}
	}

	// Everything already covered counts as done up front.
	missingSec, err := requestedSeconds(missing)
	if err != nil {
		return err
	}
	doneSec := totalSec - missingSec
	e.reportProgress(ctx, job.ID, doneSec, totalSec)

	for _, r := range missing {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.processRange(ctx, job, r); err != nil {
			return err
		}
		if err := e.tracker.RecordCompleted(ctx, job.SourceID, r.StartAt, r.EndAt); err != nil {
			return &jobs.StoreError{Err: err}
		}

		doneSec += r.Duration().Seconds()
		e.reportProgress(ctx, job.ID, doneSec, totalSec)
	}

	if err := e.store.UpdateProgress(ctx, job.ID, 1.0); err != nil {
		e.logger.Warn("failed to persist final progress", zap.String("job_id", job.ID), zap.Error(err))
	}
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobCompleted, nil); err != nil {
		return fmt.Errorf("failed to mark vectorization job completed: %w", err)
	}

	e.logger.Info("vectorization job completed",
		zap.String("job_id", job.ID),
		zap.String("source_id", job.SourceID),
		zap.Int("missing_ranges", len(missing)))
	return nil
}

func (e *Engine) processRange(ctx context.Context, job *models.VectorizationJob, r models.TimeRange) error {
	frames, err := e.frames.Frames(ctx, job.SourceID, r, e.opts.FrameIntervalSec)
	if err != nil {
		return &jobs.ExtractionError{
			Unit: fmt.Sprintf("frames %s..%s", r.StartAt, r.EndAt),
			Err:  err,
		}
	}

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processFrame(ctx, job.SourceID, frame); err != nil {
			return err
		}
	}
	return nil
}

// processFrame extracts and persists the full graph of one sampled frame.
func (e *Engine) processFrame(ctx context.Context, sourceID string, frame extractor.Frame) error {
	rec := models.NewFrame(sourceID, frame.At, frame.TimestampSec)

	frameVector, err := e.embedImage(ctx, frame.Image)
	if err != nil {
		return &jobs.ExtractionError{Unit: fmt.Sprintf("frame %s", frame.At), Err: err}
	}

	var detections []extractor.Detection
	err = e.limiter.Do(ctx, func(callCtx context.Context) error {
		var detErr error
		detections, detErr = e.detector.Detect(callCtx, frame.Image)
		return detErr
	})
	if err != nil {
		return &jobs.ExtractionError{Unit: fmt.Sprintf("frame %s", frame.At), Err: err}
	}

	graph := &database.FrameGraph{
		Frame:          rec,
		FrameEmbedding: models.NewFrameEmbedding(rec.ID, frameVector),
	}

	for _, det := range detections {
		og, err := e.buildObject(ctx, rec.ID, det)
		if err != nil {
			return &jobs.ExtractionError{Unit: fmt.Sprintf("object on frame %s", frame.At), Err: err}
		}
		graph.Objects = append(graph.Objects, og)
	}

	err = jobs.RetryStore(ctx, e.opts.StoreRetries, e.opts.RetryBackoff, func() error {
		return e.graphs.SaveGraph(ctx, graph)
	})
	if err != nil {
		return err
	}

	if e.snapshots != nil {
		if err := e.snapshots.SaveSnapshot(rec.ID, frame.Image); err != nil {
			e.logger.Warn("failed to archive frame snapshot",
				zap.String("frame_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) buildObject(ctx context.Context, frameID string, det extractor.Detection) (database.ObjectGraph, error) {
	obj := models.NewObject(frameID, det.Type, det.BBox, det.TrackID)
	og := database.ObjectGraph{Object: obj}

	var attrs *extractor.Attributes
	err := e.limiter.Do(ctx, func(callCtx context.Context) error {
		var attrErr error
		attrs, attrErr = e.detector.Attributes(callCtx, det.Crop, det.Type)
		return attrErr
	})
	if err != nil {
		return og, err
	}
	if attrs != nil {
		switch det.Type {
		case models.ObjectTransport:
			og.Transport = models.NewTransportAttrs(obj.ID, attrs.ColorHSV, attrs.LicensePlate)
		case models.ObjectPerson:
			og.Person = models.NewPersonAttrs(obj.ID, attrs.UpperColorHSV, attrs.LowerColorHSV)
		}
	}

	vector, err := e.embedImage(ctx, det.Crop)
	if err != nil {
		return og, err
	}
	og.Embedding = models.NewObjectEmbedding(obj.ID, vector)
	return og, nil
}

func (e *Engine) embedImage(ctx context.Context, image []byte) ([]float32, error) {
	var vector []float32
	err := e.limiter.Do(ctx, func(callCtx context.Context) error {
		var embErr error
		vector, embErr = e.embedder.EmbedImage(callCtx, image)
		return embErr
	})
	return vector, err
}

func (e *Engine) reportProgress(ctx context.Context, jobID string, doneSec, totalSec float64) {
	if totalSec <= 0 {
		return
	}
	progress := doneSec / totalSec
	if progress > 1.0 {
		progress = 1.0
	}
	if err := e.store.UpdateProgress(ctx, jobID, progress); err != nil {
		e.logger.Warn("failed to persist progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func requestedSeconds(ranges []models.TimeRange) (float64, error) {
	total := 0.0
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return 0, jobs.ValidationErrorf("invalid time range: %v", err)
		}
		total += r.Duration().Seconds()
	}
	return total, nil
}

func (e *Engine) fail(jobID string, cause error) {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.UpdateStatus(ctx, jobID, models.JobFailed, &msg); err != nil {
		e.logger.Error("failed to mark vectorization job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (e *Engine) markCancelled(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.UpdateStatus(ctx, jobID, models.JobCancelled, nil); err != nil {
		e.logger.Error("failed to mark vectorization job cancelled", zap.String("job_id", jobID), zap.Error(err))
	}
}
