package extractor

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// MockEmbedder is a deterministic embedder for tests and demo deployments: the
// same input always maps to the same unit vector, so similarity comparisons
// are reproducible without a model backend.
type MockEmbedder struct {
	dimensions int

	// Fixed lets a test pin exact vectors for chosen inputs.
	Fixed map[string][]float32
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = models.EmbeddingDim
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.Fixed[text]; ok {
		return v, nil
	}
	return e.derive(text), nil
}

func (e *MockEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if v, ok := e.Fixed[string(image)]; ok {
		return v, nil
	}
	return e.derive(string(image)), nil
}

func (e *MockEmbedder) derive(input string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(input))
	seed := h.Sum32()

	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed)*float64(i+1)) * 0.1)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb
}

// MockDetector returns preconfigured detections for every frame.
type MockDetector struct {
	Detections []Detection
	Attrs      map[models.ObjectType]*Attributes
	DetectErr  error
}

func (d *MockDetector) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	if d.DetectErr != nil {
		return nil, d.DetectErr
	}
	return d.Detections, nil
}

func (d *MockDetector) Attributes(ctx context.Context, crop []byte, typ models.ObjectType) (*Attributes, error) {
	if attrs, ok := d.Attrs[typ]; ok {
		return attrs, nil
	}
	if typ == models.ObjectTransport {
		return &Attributes{ColorHSV: "0,0,0.5"}, nil
	}
	gray := "0,0,0.5"
	return &Attributes{UpperColorHSV: &gray, LowerColorHSV: &gray}, nil
}

// MockFrameSource synthesizes frames at the requested interval across the
// range, timestamped on the source's real-time axis.
type MockFrameSource struct {
	Err error
}

func (s *MockFrameSource) Frames(ctx context.Context, sourceID string, r models.TimeRange, intervalSec float64) ([]Frame, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	start, err := models.ParseTime(r.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := models.ParseTime(r.EndAt)
	if err != nil {
		return nil, err
	}
	if intervalSec <= 0 {
		intervalSec = 1.0
	}

	var frames []Frame
	step := time.Duration(intervalSec * float64(time.Second))
	for at := start; at.Before(end); at = at.Add(step) {
		frames = append(frames, Frame{
			Image:        []byte(sourceID + "@" + at.Format(time.RFC3339)),
			At:           at.UTC().Format(time.RFC3339),
			TimestampSec: at.Sub(start).Seconds(),
		})
	}
	return frames, nil
}
