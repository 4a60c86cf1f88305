package database

import (
	"context"
	"testing"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

func TestPeriodRepoListOrdered(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewPeriodRepo(db)

	late := models.NewVectorizedPeriod("cam-1", "2024-05-01T11:00:00Z", "2024-05-01T12:00:00Z")
	early := models.NewVectorizedPeriod("cam-1", "2024-05-01T09:00:00Z", "2024-05-01T10:00:00Z")
	other := models.NewVectorizedPeriod("cam-2", "2024-05-01T08:00:00Z", "2024-05-01T09:00:00Z")

	for _, p := range []*models.VectorizedPeriod{late, early, other} {
		if err := repo.ReplaceMerged(context.Background(), p, nil); err != nil {
			t.Fatalf("ReplaceMerged: %v", err)
		}
	}

	periods, err := repo.ListForSource(context.Background(), "cam-1")
	if err != nil {
		t.Fatalf("ListForSource: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods for cam-1, got %d", len(periods))
	}
	if periods[0].ID != early.ID || periods[1].ID != late.ID {
		t.Error("periods must be ordered by start time")
	}
}

func TestPeriodRepoReplaceMergedAbsorbs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewPeriodRepo(db)

	a := models.NewVectorizedPeriod("cam-1", "2024-05-01T10:00:00Z", "2024-05-01T10:30:00Z")
	b := models.NewVectorizedPeriod("cam-1", "2024-05-01T10:30:00Z", "2024-05-01T11:00:00Z")
	for _, p := range []*models.VectorizedPeriod{a, b} {
		if err := repo.ReplaceMerged(context.Background(), p, nil); err != nil {
			t.Fatalf("ReplaceMerged: %v", err)
		}
	}

	merged := models.NewVectorizedPeriod("cam-1", "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z")
	if err := repo.ReplaceMerged(context.Background(), merged, []string{a.ID, b.ID}); err != nil {
		t.Fatalf("ReplaceMerged(union): %v", err)
	}

	periods, err := repo.ListForSource(context.Background(), "cam-1")
	if err != nil {
		t.Fatalf("ListForSource: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected the union only, got %d periods", len(periods))
	}
	if periods[0].ID != merged.ID {
		t.Errorf("surviving period = %s, want %s", periods[0].ID, merged.ID)
	}
}
