package database

import (
	"context"
	"testing"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

func newStoredVectorizationJob(t *testing.T, repo *VectorizationJobRepo) *models.VectorizationJob {
	t.Helper()
	job := models.NewVectorizationJob("cam-1", []models.TimeRange{
		{StartAt: "2024-05-01T10:00:00Z", EndAt: "2024-05-01T11:00:00Z"},
	})
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestVectorizationJobRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewVectorizationJobRepo(db)

	job := newStoredVectorizationJob(t, repo)

	got, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.Status != models.JobPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if len(got.Ranges) != 1 || got.Ranges[0].StartAt != "2024-05-01T10:00:00Z" {
		t.Errorf("ranges not round-tripped: %v", got.Ranges)
	}

	missing, err := repo.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID(missing): %v", err)
	}
	if missing != nil {
		t.Error("missing job must return nil, nil")
	}
}

func TestVectorizationJobStatusTransitions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewVectorizationJobRepo(db)

	job := newStoredVectorizationJob(t, repo)
	ctx := context.Background()

	ok, err := repo.UpdateStatus(ctx, job.ID, models.JobRunning, nil)
	if err != nil || !ok {
		t.Fatalf("PENDING -> RUNNING: ok=%v err=%v", ok, err)
	}

	ok, err = repo.UpdateStatus(ctx, job.ID, models.JobCancelled, nil)
	if err != nil || !ok {
		t.Fatalf("RUNNING -> CANCELLED: ok=%v err=%v", ok, err)
	}

	// Terminal statuses are sticky.
	ok, err = repo.UpdateStatus(ctx, job.ID, models.JobCompleted, nil)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if ok {
		t.Error("a terminal job must reject further transitions")
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != models.JobCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestVectorizationJobFailureMessage(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewVectorizationJobRepo(db)

	job := newStoredVectorizationJob(t, repo)
	msg := "detector down"
	if _, err := repo.UpdateStatus(context.Background(), job.ID, models.JobFailed, &msg); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.Error == nil || *got.Error != msg {
		t.Errorf("error = %v, want %q", got.Error, msg)
	}
}

func TestVectorizationJobProgressMonotonic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewVectorizationJobRepo(db)

	job := newStoredVectorizationJob(t, repo)
	ctx := context.Background()

	if err := repo.UpdateProgress(ctx, job.ID, 0.6); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	// A stale lower value is silently ignored.
	if err := repo.UpdateProgress(ctx, job.ID, 0.3); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Progress != 0.6 {
		t.Errorf("progress = %v, want 0.6", got.Progress)
	}

	if err := repo.UpdateProgress(ctx, job.ID, 1.0); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ = repo.GetByID(ctx, job.ID)
	if got.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", got.Progress)
	}
}

func TestVectorizationJobList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewVectorizationJobRepo(db)

	newStoredVectorizationJob(t, repo)
	newStoredVectorizationJob(t, repo)

	jobs, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jobs))
	}
}
