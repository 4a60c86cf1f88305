package search

import "sort"

// Weights configures the fusion of the component scores. They need not sum to
// one: for each candidate the weights of the applicable components are
// renormalized, so dropping an inapplicable signal never penalizes a
// candidate against peers that also lack it.
type Weights struct {
	Clip  float64
	Color float64
	Plate float64
}

// DefaultWeights matches the all-signals case of the production ranking.
var DefaultWeights = Weights{Clip: 0.4, Color: 0.2, Plate: 0.4}

// Components carries one candidate's scores. HasColor/HasPlate mark whether
// the respective signal applies to this candidate at all (a color filter was
// in the query, a plate is stored on the object).
type Components struct {
	Clip     float64
	Color    float64
	HasColor bool
	Plate    float64
	HasPlate bool
}

// Combine fuses the applicable components into a final score in [0,1].
func (w Weights) Combine(c Components) float64 {
	wClip, wColor, wPlate := w.Clip, 0.0, 0.0
	if c.HasColor {
		wColor = w.Color
	}
	if c.HasPlate {
		wPlate = w.Plate
	}

	total := wClip + wColor + wPlate
	if total <= 0 {
		return c.Clip
	}
	return (wClip*c.Clip + wColor*c.Color + wPlate*c.Plate) / total
}

// Hit is one scored candidate.
type Hit struct {
	FrameID      string
	ObjectID     *string
	TrackID      *int64
	TimestampSec float64

	FinalScore float64
	ClipScore  float64
	ColorScore float64
	PlateScore float64
}

// SortHits orders hits deterministically: final score descending, then clip
// score descending, then frame timestamp ascending, then ids ascending.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.ClipScore != b.ClipScore {
			return a.ClipScore > b.ClipScore
		}
		if a.TimestampSec != b.TimestampSec {
			return a.TimestampSec < b.TimestampSec
		}
		if a.FrameID != b.FrameID {
			return a.FrameID < b.FrameID
		}
		return objectID(a) < objectID(b)
	})
}

func objectID(h Hit) string {
	if h.ObjectID == nil {
		return ""
	}
	return *h.ObjectID
}
