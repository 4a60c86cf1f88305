// Package period tracks which time ranges of a source are already vectorized
// and answers what is still missing from a requested window.
package period

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// Store is the slice of the persisted layer the tracker needs.
type Store interface {
	ListForSource(ctx context.Context, sourceID string) ([]*models.VectorizedPeriod, error)
	ReplaceMerged(ctx context.Context, merged *models.VectorizedPeriod, absorbedIDs []string) error
}

// Tracker maintains the disjoint period set per source. RecordCompleted
// merges on insert, so after every write no two periods of a source overlap.
type Tracker struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// LockSource takes the per-source advisory lock and returns its release func.
// Vectorization holds it across each missingRanges -> recordCompleted cycle so
// concurrent jobs on one source cannot double-process a range.
func (t *Tracker) LockSource(sourceID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[sourceID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

type boundary struct {
	raw string
	at  time.Time
}

type interval struct {
	start boundary
	end   boundary
	id    string
}

// MissingRanges returns the ordered disjoint subranges of the requested
// ranges not yet covered by any vectorized period of the source.
func (t *Tracker) MissingRanges(ctx context.Context, sourceID string, requested []models.TimeRange) ([]models.TimeRange, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	periods, err := t.store.ListForSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load periods: %w", err)
	}

	existing, err := parsePeriods(periods)
	if err != nil {
		return nil, err
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].start.at.Before(existing[j].start.at) })

	var missing []models.TimeRange
	for _, req := range requested {
		sub, err := subtractCovered(req, existing)
		if err != nil {
			return nil, err
		}
		missing = append(missing, sub...)
	}
	return missing, nil
}

// subtractCovered sweeps the sorted existing intervals left to right,
// carving the covered parts out of the requested range.
func subtractCovered(req models.TimeRange, existing []interval) ([]models.TimeRange, error) {
	reqStart, err := models.ParseTime(req.StartAt)
	if err != nil {
		return nil, fmt.Errorf("invalid requested range: %w", err)
	}
	reqEnd, err := models.ParseTime(req.EndAt)
	if err != nil {
		return nil, fmt.Errorf("invalid requested range: %w", err)
	}
	if !reqEnd.After(reqStart) {
		return nil, nil // zero-length request is a no-op
	}

	var missing []models.TimeRange
	cursor := boundary{raw: req.StartAt, at: reqStart}

	for _, ex := range existing {
		if !ex.end.at.After(cursor.at) {
			continue // entirely left of the cursor
		}
		if !ex.start.at.Before(reqEnd) {
			break // sorted, so nothing further overlaps
		}

		if ex.start.at.After(cursor.at) {
			missing = append(missing, models.TimeRange{StartAt: cursor.raw, EndAt: ex.start.raw})
		}
		if ex.end.at.After(cursor.at) {
			cursor = ex.end
		}
		if !cursor.at.Before(reqEnd) {
			break
		}
	}

	if cursor.at.Before(reqEnd) {
		missing = append(missing, models.TimeRange{StartAt: cursor.raw, EndAt: req.EndAt})
	}
	return missing, nil
}

// RecordCompleted inserts [startAt, endAt) for the source, merging with any
// overlapping or adjacent periods in a single transaction.
func (t *Tracker) RecordCompleted(ctx context.Context, sourceID, startAt, endAt string) error {
	newStart, err := models.ParseTime(startAt)
	if err != nil {
		return fmt.Errorf("invalid period start: %w", err)
	}
	newEnd, err := models.ParseTime(endAt)
	if err != nil {
		return fmt.Errorf("invalid period end: %w", err)
	}
	if !newEnd.After(newStart) {
		return nil
	}

	periods, err := t.store.ListForSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to load periods: %w", err)
	}
	existing, err := parsePeriods(periods)
	if err != nil {
		return err
	}

	mergedStart := boundary{raw: startAt, at: newStart}
	mergedEnd := boundary{raw: endAt, at: newEnd}
	var absorbed []string

	for _, ex := range existing {
		// Overlapping or touching: [a,b) merges with [b,c).
		if ex.end.at.Before(mergedStart.at) || ex.start.at.After(mergedEnd.at) {
			continue
		}
		if ex.start.at.Before(mergedStart.at) {
			mergedStart = ex.start
		}
		if ex.end.at.After(mergedEnd.at) {
			mergedEnd = ex.end
		}
		absorbed = append(absorbed, ex.id)
	}

	// Fully inside one existing period: nothing to change.
	if len(absorbed) == 1 {
		for _, ex := range existing {
			if ex.id == absorbed[0] &&
				!ex.start.at.After(newStart) && !ex.end.at.Before(newEnd) {
				return nil
			}
		}
	}

	merged := models.NewVectorizedPeriod(sourceID, mergedStart.raw, mergedEnd.raw)
	if err := t.store.ReplaceMerged(ctx, merged, absorbed); err != nil {
		return fmt.Errorf("failed to record completed period: %w", err)
	}
	return nil
}

func parsePeriods(periods []*models.VectorizedPeriod) ([]interval, error) {
	out := make([]interval, 0, len(periods))
	for _, p := range periods {
		start, err := models.ParseTime(p.StartAt)
		if err != nil {
			return nil, fmt.Errorf("stored period %s has invalid start: %w", p.ID, err)
		}
		end, err := models.ParseTime(p.EndAt)
		if err != nil {
			return nil, fmt.Errorf("stored period %s has invalid end: %w", p.ID, err)
		}
		out = append(out, interval{
			start: boundary{raw: p.StartAt, at: start},
			end:   boundary{raw: p.EndAt, at: end},
			id:    p.ID,
		})
	}
	return out, nil
}
