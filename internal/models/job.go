package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal statuses never
// transition back to PENDING or RUNNING.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

type VectorizationJob struct {
	ID        string
	SourceID  string
	Ranges    []TimeRange
	Status    JobStatus
	Progress  float64
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewVectorizationJob(sourceID string, ranges []TimeRange) *VectorizationJob {
	now := time.Now().UTC()
	return &VectorizationJob{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Ranges:    ranges,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type SearchJob struct {
	ID        string
	Title     string
	TextQuery string
	SourceID  string
	StartAt   string
	EndAt     string
	Status    JobStatus
	Progress  float64
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewSearchJob(title, textQuery, sourceID, startAt, endAt string) *SearchJob {
	now := time.Now().UTC()
	return &SearchJob{
		ID:        uuid.New().String(),
		Title:     title,
		TextQuery: textQuery,
		SourceID:  sourceID,
		StartAt:   startAt,
		EndAt:     endAt,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type SearchJobResult struct {
	ID         string
	JobID      string
	FrameID    string
	ObjectID   *string
	Rank       int
	FinalScore float64
	ClipScore  float64
	ColorScore float64
	PlateScore float64
}

// SearchJobEvent carries the best score seen so far for one track (or one
// untracked object) while a search job is still running.
type SearchJobEvent struct {
	ID       string
	JobID    string
	TrackID  *int64
	ObjectID *string
	Score    float64
}
