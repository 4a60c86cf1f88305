package models

import (
	"fmt"

	"github.com/google/uuid"
)

// EmbeddingDim is the dimensionality produced by the embedding service.
const EmbeddingDim = 512

type ObjectType string

const (
	ObjectPerson    ObjectType = "PERSON"
	ObjectTransport ObjectType = "TRANSPORT"
)

type EntityType string

const (
	EntityFrame  EntityType = "FRAME"
	EntityObject EntityType = "OBJECT"
)

type Source struct {
	ID       string
	SourceID string
}

func NewSource(sourceID string) *Source {
	return &Source{
		ID:       uuid.New().String(),
		SourceID: sourceID,
	}
}

// Task is a named (source, time range) grouping. It is never executed itself.
type Task struct {
	ID       string
	Name     string
	SourceID string
	StartAt  string
	EndAt    string
}

func NewTask(name, sourceID, startAt, endAt string) *Task {
	return &Task{
		ID:       uuid.New().String(),
		Name:     name,
		SourceID: sourceID,
		StartAt:  startAt,
		EndAt:    endAt,
	}
}

type Frame struct {
	ID           string
	SourceID     string
	At           string
	TimestampSec float64
}

func NewFrame(sourceID, at string, timestampSec float64) *Frame {
	return &Frame{
		ID:           uuid.New().String(),
		SourceID:     sourceID,
		At:           at,
		TimestampSec: timestampSec,
	}
}

type BBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

type Object struct {
	ID      string
	FrameID string
	Type    ObjectType
	TrackID *int64
	BBox    BBox
}

func NewObject(frameID string, typ ObjectType, bbox BBox, trackID *int64) *Object {
	return &Object{
		ID:      uuid.New().String(),
		FrameID: frameID,
		Type:    typ,
		TrackID: trackID,
		BBox:    bbox,
	}
}

// TransportAttrs holds the color signature and optional plate of a TRANSPORT
// object. ColorHSV is an "h,s,v" string with h in degrees and s,v in [0,1].
type TransportAttrs struct {
	ID           string
	ObjectID     string
	ColorHSV     string
	LicensePlate *string
}

func NewTransportAttrs(objectID, colorHSV string, plate *string) *TransportAttrs {
	return &TransportAttrs{
		ID:           uuid.New().String(),
		ObjectID:     objectID,
		ColorHSV:     colorHSV,
		LicensePlate: plate,
	}
}

type PersonAttrs struct {
	ID            string
	ObjectID      string
	UpperColorHSV *string
	LowerColorHSV *string
}

func NewPersonAttrs(objectID string, upperHSV, lowerHSV *string) *PersonAttrs {
	return &PersonAttrs{
		ID:            uuid.New().String(),
		ObjectID:      objectID,
		UpperColorHSV: upperHSV,
		LowerColorHSV: lowerHSV,
	}
}

// Embedding is owned by exactly one frame or exactly one object, discriminated
// by EntityType. Use the constructors; a hand-built value with both or neither
// owner set is rejected by Validate and by the store's CHECK constraint.
type Embedding struct {
	ID         string
	EntityType EntityType
	FrameID    *string
	ObjectID   *string
	Vector     []float32
}

func NewFrameEmbedding(frameID string, vector []float32) *Embedding {
	return &Embedding{
		ID:         uuid.New().String(),
		EntityType: EntityFrame,
		FrameID:    &frameID,
		Vector:     vector,
	}
}

func NewObjectEmbedding(objectID string, vector []float32) *Embedding {
	return &Embedding{
		ID:         uuid.New().String(),
		EntityType: EntityObject,
		ObjectID:   &objectID,
		Vector:     vector,
	}
}

// OwnerID returns the id of the owning frame or object.
func (e *Embedding) OwnerID() string {
	if e.EntityType == EntityFrame && e.FrameID != nil {
		return *e.FrameID
	}
	if e.ObjectID != nil {
		return *e.ObjectID
	}
	return ""
}

func (e *Embedding) Validate() error {
	switch e.EntityType {
	case EntityFrame:
		if e.FrameID == nil || e.ObjectID != nil {
			return fmt.Errorf("FRAME embedding must reference a frame and no object")
		}
	case EntityObject:
		if e.ObjectID == nil || e.FrameID != nil {
			return fmt.Errorf("OBJECT embedding must reference an object and no frame")
		}
	default:
		return fmt.Errorf("unknown embedding entity type: %s", e.EntityType)
	}
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	return nil
}

// VectorizedPeriod records that [StartAt, EndAt) of a source is fully indexed.
type VectorizedPeriod struct {
	ID       string
	SourceID string
	StartAt  string
	EndAt    string
}

func NewVectorizedPeriod(sourceID, startAt, endAt string) *VectorizedPeriod {
	return &VectorizedPeriod{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		StartAt:  startAt,
		EndAt:    endAt,
	}
}
