// Package extractor defines the boundary to the external model services: the
// embedding encoder, the object detector / attribute extractor, and the media
// gateway that serves sampled frames. All implementations are stateless; calls
// may be slow and are rate-limited by the caller through a Limiter.
package extractor

import (
	"context"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// Embedder maps images and free text into one shared vector space.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Detection is one object found on a frame, with its crop for downstream
// attribute extraction and embedding.
type Detection struct {
	Type    models.ObjectType
	BBox    models.BBox
	TrackID *int64
	Crop    []byte
}

// Attributes carries the visual attributes of one object crop. Transport
// objects fill ColorHSV and possibly LicensePlate; person objects fill the
// upper/lower clothing colors.
type Attributes struct {
	ColorHSV      string
	LicensePlate  *string
	UpperColorHSV *string
	LowerColorHSV *string
}

// Detector finds objects on a frame and extracts their attributes.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]Detection, error)
	Attributes(ctx context.Context, crop []byte, typ models.ObjectType) (*Attributes, error)
}

// Frame is one sampled frame of a source feed.
type Frame struct {
	Image        []byte
	At           string
	TimestampSec float64
}

// FrameSource yields frames of a source sampled every intervalSec seconds
// across [r.StartAt, r.EndAt).
type FrameSource interface {
	Frames(ctx context.Context, sourceID string, r models.TimeRange, intervalSec float64) ([]Frame, error)
}
