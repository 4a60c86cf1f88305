package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/extractor"
	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

type fakeSearchStore struct {
	job      *models.SearchJob
	statuses []models.JobStatus
	lastErr  *string
	progress []float64
	results  []*models.SearchJobResult
	events   []*models.SearchJobEvent
}

func (s *fakeSearchStore) GetByID(ctx context.Context, id string) (*models.SearchJob, error) {
	if s.job == nil || s.job.ID != id {
		return nil, nil
	}
	return s.job, nil
}

func (s *fakeSearchStore) UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (bool, error) {
	if s.job.Status.Terminal() {
		return false, nil
	}
	s.job.Status = status
	s.statuses = append(s.statuses, status)
	s.lastErr = errMsg
	return true, nil
}

func (s *fakeSearchStore) UpdateProgress(ctx context.Context, id string, progress float64) error {
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeSearchStore) ReplaceResults(ctx context.Context, jobID string, results []*models.SearchJobResult) error {
	s.results = results
	return nil
}

func (s *fakeSearchStore) UpsertEventMax(ctx context.Context, event *models.SearchJobEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fakeCandidateStore struct {
	frames     []database.FrameCandidate
	objects    []database.ObjectCandidate
	typeFilter *models.ObjectType

	framesCalled  bool
	objectsCalled bool
}

func (s *fakeCandidateStore) FrameCandidates(ctx context.Context, sourceID, startAt, endAt string, limit int) ([]database.FrameCandidate, error) {
	s.framesCalled = true
	return s.frames, nil
}

func (s *fakeCandidateStore) ObjectCandidates(ctx context.Context, sourceID, startAt, endAt string, typeFilter *models.ObjectType, limit int) ([]database.ObjectCandidate, error) {
	s.objectsCalled = true
	s.typeFilter = typeFilter
	return s.objects, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return nil, errors.New("embedder down")
}

func (failingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

func int64Ptr(v int64) *int64 { return &v }

func newTestEngine(store *fakeSearchStore, candidates *fakeCandidateStore, embedder extractor.Embedder) *Engine {
	return NewEngine(store, candidates, embedder,
		extractor.NewLimiter(2, time.Second), zap.NewNop(), Options{})
}

func TestEngineRanksObjectCandidates(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("red cars", "red car", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}

	red := "0,0.9,0.8"
	blue := "220,0.9,0.8"
	candidates := &fakeCandidateStore{
		objects: []database.ObjectCandidate{
			{ObjectID: "obj-blue", FrameID: "f2", TimestampSec: 20, Type: models.ObjectTransport,
				TrackID: int64Ptr(2), Vector: []float32{1, 1, 0, 0}, TransportColorHSV: &blue},
			{ObjectID: "obj-red", FrameID: "f1", TimestampSec: 10, Type: models.ObjectTransport,
				TrackID: int64Ptr(1), Vector: []float32{1, 0, 0, 0}, TransportColorHSV: &red},
		},
	}

	embedder := extractor.NewMockEmbedder(4)
	embedder.Fixed = map[string][]float32{"red car": {1, 0, 0, 0}}

	engine := newTestEngine(store, candidates, embedder)
	if err := engine.Run(context.Background(), store.job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.job.Status != models.JobCompleted {
		t.Fatalf("status = %s, want COMPLETED", store.job.Status)
	}
	if !candidates.objectsCalled || candidates.framesCalled {
		t.Error("typed query must fetch object candidates only")
	}
	if candidates.typeFilter == nil || *candidates.typeFilter != models.ObjectTransport {
		t.Errorf("type filter = %v, want TRANSPORT", candidates.typeFilter)
	}

	if len(store.results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(store.results))
	}
	if store.results[0].ObjectID == nil || *store.results[0].ObjectID != "obj-red" {
		t.Errorf("rank 1 = %v, want obj-red", store.results[0].ObjectID)
	}
	if store.results[0].Rank != 1 || store.results[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", store.results[0].Rank, store.results[1].Rank)
	}
	if store.results[0].FinalScore <= store.results[1].FinalScore {
		t.Errorf("scores not descending: %v, %v", store.results[0].FinalScore, store.results[1].FinalScore)
	}
	if store.results[0].ColorScore != 1.0 {
		t.Errorf("red object's color score = %v, want 1.0", store.results[0].ColorScore)
	}

	if len(store.events) != 2 {
		t.Errorf("expected one event per candidate, got %d", len(store.events))
	}
	if len(store.progress) == 0 || store.progress[len(store.progress)-1] != 1.0 {
		t.Errorf("final progress must be 1.0, got %v", store.progress)
	}
}

func TestEngineUntypedQueryUsesFrames(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("", "something unusual", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}
	candidates := &fakeCandidateStore{
		frames: []database.FrameCandidate{
			{FrameID: "f1", TimestampSec: 10, Vector: []float32{1, 0, 0, 0}},
			{FrameID: "f2", TimestampSec: 20, Vector: []float32{0, 1, 0, 0}},
		},
	}
	embedder := extractor.NewMockEmbedder(4)
	embedder.Fixed = map[string][]float32{"something unusual": {1, 0, 0, 0}}

	engine := newTestEngine(store, candidates, embedder)
	if err := engine.Run(context.Background(), store.job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !candidates.framesCalled || candidates.objectsCalled {
		t.Error("untyped query must fetch frame candidates only")
	}
	if len(store.results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(store.results))
	}
	if store.results[0].FrameID != "f1" {
		t.Errorf("rank 1 frame = %s, want f1", store.results[0].FrameID)
	}
	if store.results[0].ObjectID != nil {
		t.Error("frame-level results carry no object id")
	}
	if len(store.events) != 0 {
		t.Errorf("frame-level search emits no events, got %d", len(store.events))
	}
}

func TestEnginePlateBoostsScore(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("", "car A123BC77", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}

	plate := "A123BC77"
	otherPlate := "X999ZZ00"
	candidates := &fakeCandidateStore{
		objects: []database.ObjectCandidate{
			{ObjectID: "obj-match", FrameID: "f1", TimestampSec: 10, Type: models.ObjectTransport,
				Vector: []float32{1, 0, 0, 0}, TransportPlate: &plate},
			{ObjectID: "obj-other", FrameID: "f2", TimestampSec: 20, Type: models.ObjectTransport,
				Vector: []float32{1, 0, 0, 0}, TransportPlate: &otherPlate},
		},
	}
	embedder := extractor.NewMockEmbedder(4)
	embedder.Fixed = map[string][]float32{"car": {1, 0, 0, 0}}

	engine := newTestEngine(store, candidates, embedder)
	if err := engine.Run(context.Background(), store.job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(store.results))
	}
	if *store.results[0].ObjectID != "obj-match" {
		t.Errorf("plate match must rank first, got %s", *store.results[0].ObjectID)
	}
	if store.results[0].PlateScore != 1.0 {
		t.Errorf("plate score = %v, want 1.0", store.results[0].PlateScore)
	}
	if store.results[1].PlateScore != 0.0 {
		t.Errorf("non-matching plate score = %v, want 0.0", store.results[1].PlateScore)
	}
}

func TestEngineFailsWhenQueryEmbeddingFails(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("", "red car", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}

	engine := newTestEngine(store, &fakeCandidateStore{}, failingEmbedder{})
	if err := engine.Run(context.Background(), store.job.ID); err == nil {
		t.Fatal("expected an error")
	}

	if store.job.Status != models.JobFailed {
		t.Errorf("status = %s, want FAILED", store.job.Status)
	}
	if store.lastErr == nil || *store.lastErr == "" {
		t.Error("failure reason must be persisted")
	}
}

func TestEngineSkipsMismatchedVectors(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("", "something odd", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}
	candidates := &fakeCandidateStore{
		frames: []database.FrameCandidate{
			{FrameID: "f-bad", TimestampSec: 10, Vector: []float32{1, 0}},
			{FrameID: "f-good", TimestampSec: 20, Vector: []float32{1, 0, 0, 0}},
		},
	}
	embedder := extractor.NewMockEmbedder(4)
	embedder.Fixed = map[string][]float32{"something odd": {1, 0, 0, 0}}

	engine := newTestEngine(store, candidates, embedder)
	if err := engine.Run(context.Background(), store.job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.results) != 1 || store.results[0].FrameID != "f-good" {
		t.Errorf("bad vector must be skipped, results = %v", store.results)
	}
	if store.job.Status != models.JobCompleted {
		t.Errorf("status = %s, want COMPLETED", store.job.Status)
	}
}

func TestEngineSkipsTerminalJob(t *testing.T) {
	job := models.NewSearchJob("", "red car", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z")
	job.Status = models.JobCancelled
	store := &fakeSearchStore{job: job}
	candidates := &fakeCandidateStore{}

	engine := newTestEngine(store, candidates, extractor.NewMockEmbedder(4))
	if err := engine.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if candidates.framesCalled || candidates.objectsCalled {
		t.Error("a terminal job must not be scored")
	}
	if job.Status != models.JobCancelled {
		t.Errorf("terminal status must stick, got %s", job.Status)
	}
}

func TestEngineCancelledMidRun(t *testing.T) {
	store := &fakeSearchStore{
		job: models.NewSearchJob("", "something odd", "cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z"),
	}

	// Enough candidates to guarantee a checkpoint after cancellation.
	var frames []database.FrameCandidate
	for i := 0; i < 100; i++ {
		frames = append(frames, database.FrameCandidate{
			FrameID: "f", TimestampSec: float64(i), Vector: []float32{1, 0, 0, 0},
		})
	}
	candidates := &fakeCandidateStore{frames: frames}

	embedder := extractor.NewMockEmbedder(4)
	embedder.Fixed = map[string][]float32{"something odd": {1, 0, 0, 0}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(store, candidates, embedder)
	err := engine.Run(ctx, store.job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.job.Status != models.JobCancelled {
		t.Errorf("status = %s, want CANCELLED", store.job.Status)
	}
	if store.results != nil {
		t.Error("a cancelled job must not publish results")
	}
}
