package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// FrameRepo persists the per-frame graph (frame, objects, attributes,
// embeddings) and serves embedding candidates for search.
type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

// ObjectGraph pairs one detected object with its attributes and embedding.
// Exactly one of Transport/Person is set, matching the object type.
type ObjectGraph struct {
	Object    *models.Object
	Transport *models.TransportAttrs
	Person    *models.PersonAttrs
	Embedding *models.Embedding
}

// FrameGraph is everything extracted from one sampled frame. SaveGraph writes
// it in a single transaction so a failure leaves no partial frame behind.
type FrameGraph struct {
	Frame          *models.Frame
	FrameEmbedding *models.Embedding
	Objects        []ObjectGraph
}

func (r *FrameRepo) SaveGraph(ctx context.Context, graph *FrameGraph) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		frame := graph.Frame
		_, err := tx.ExecContext(ctx,
			`INSERT INTO frames (id, source_id, at, timestamp_sec) VALUES ($1, $2, $3, $4)`,
			frame.ID, frame.SourceID, frame.At, frame.TimestampSec)
		if err != nil {
			return fmt.Errorf("failed to insert frame: %w", err)
		}

		if graph.FrameEmbedding != nil {
			if err := insertEmbedding(ctx, tx, graph.FrameEmbedding); err != nil {
				return err
			}
		}

		for _, og := range graph.Objects {
			obj := og.Object
			_, err := tx.ExecContext(ctx,
				`INSERT INTO objects (id, frame_id, type, track_id, bbox_x, bbox_y, bbox_w, bbox_h)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				obj.ID, obj.FrameID, string(obj.Type), obj.TrackID,
				obj.BBox.X, obj.BBox.Y, obj.BBox.Width, obj.BBox.Height)
			if err != nil {
				return fmt.Errorf("failed to insert object: %w", err)
			}

			if og.Transport != nil {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO transport_attrs (id, object_id, color_hsv, license_plate) VALUES ($1, $2, $3, $4)`,
					og.Transport.ID, og.Transport.ObjectID, og.Transport.ColorHSV, og.Transport.LicensePlate)
				if err != nil {
					return fmt.Errorf("failed to insert transport attrs: %w", err)
				}
			}
			if og.Person != nil {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO person_attrs (id, object_id, upper_color_hsv, lower_color_hsv) VALUES ($1, $2, $3, $4)`,
					og.Person.ID, og.Person.ObjectID, og.Person.UpperColorHSV, og.Person.LowerColorHSV)
				if err != nil {
					return fmt.Errorf("failed to insert person attrs: %w", err)
				}
			}
			if og.Embedding != nil {
				if err := insertEmbedding(ctx, tx, og.Embedding); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, emb *models.Embedding) error {
	if err := emb.Validate(); err != nil {
		return fmt.Errorf("invalid embedding: %w", err)
	}
	vec, err := encodeVector(emb.Vector)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO embeddings (id, entity_type, frame_id, object_id, vector) VALUES ($1, $2, $3, $4, $5)`,
		emb.ID, string(emb.EntityType), emb.FrameID, emb.ObjectID, vec)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

func (r *FrameRepo) GetByID(ctx context.Context, id string) (*models.Frame, error) {
	query := `SELECT id, source_id, at, timestamp_sec FROM frames WHERE id = $1`

	frame := &models.Frame{}
	err := r.db.conn.QueryRowContext(ctx, query, id).Scan(
		&frame.ID, &frame.SourceID, &frame.At, &frame.TimestampSec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query frame: %w", err)
	}
	return frame, nil
}

// CountInRange counts frames of a source in [startAt, endAt).
func (r *FrameRepo) CountInRange(ctx context.Context, sourceID, startAt, endAt string) (int, error) {
	query := `SELECT COUNT(*) FROM frames WHERE source_id = $1 AND at >= $2 AND at < $3`

	var n int
	if err := r.db.conn.QueryRowContext(ctx, query, sourceID, startAt, endAt).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}

// FrameCandidate is a frame-level embedding row loaded for similarity search.
type FrameCandidate struct {
	FrameID      string
	At           string
	TimestampSec float64
	Vector       []float32
}

// FrameCandidates loads frame embeddings of a source within [startAt, endAt),
// ordered by timestamp, capped at limit.
func (r *FrameRepo) FrameCandidates(ctx context.Context, sourceID, startAt, endAt string, limit int) ([]FrameCandidate, error) {
	query := `
		SELECT e.frame_id, f.at, f.timestamp_sec, e.vector
		FROM embeddings e
		JOIN frames f ON e.frame_id = f.id
		WHERE e.entity_type = 'FRAME'
		  AND f.source_id = $1
		  AND f.at >= $2
		  AND f.at < $3
		ORDER BY f.timestamp_sec
		LIMIT $4`

	rows, err := r.db.conn.QueryContext(ctx, query, sourceID, startAt, endAt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame candidates: %w", err)
	}
	defer rows.Close()

	var candidates []FrameCandidate
	for rows.Next() {
		var c FrameCandidate
		var raw string
		if err := rows.Scan(&c.FrameID, &c.At, &c.TimestampSec, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan frame candidate: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			continue // skip rows with unreadable vectors
		}
		c.Vector = vec
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ObjectCandidate is an object-level embedding row with the attributes needed
// for color and plate scoring.
type ObjectCandidate struct {
	ObjectID     string
	FrameID      string
	At           string
	TimestampSec float64
	Type         models.ObjectType
	TrackID      *int64
	Vector       []float32

	TransportColorHSV *string
	TransportPlate    *string
	PersonUpperHSV    *string
	PersonLowerHSV    *string
}

// ObjectCandidates loads object embeddings of a source within [startAt, endAt),
// optionally restricted to one object type.
func (r *FrameRepo) ObjectCandidates(ctx context.Context, sourceID, startAt, endAt string, typeFilter *models.ObjectType, limit int) ([]ObjectCandidate, error) {
	query := `
		SELECT e.object_id, o.frame_id, f.at, f.timestamp_sec, o.type, o.track_id, e.vector,
		       ta.color_hsv, ta.license_plate, pa.upper_color_hsv, pa.lower_color_hsv
		FROM embeddings e
		JOIN objects o ON e.object_id = o.id
		JOIN frames f ON o.frame_id = f.id
		LEFT JOIN transport_attrs ta ON o.id = ta.object_id
		LEFT JOIN person_attrs pa ON o.id = pa.object_id
		WHERE e.entity_type = 'OBJECT'
		  AND f.source_id = $1
		  AND f.at >= $2
		  AND f.at < $3`

	args := []any{sourceID, startAt, endAt}
	if typeFilter != nil {
		query += ` AND o.type = $4 ORDER BY f.timestamp_sec LIMIT $5`
		args = append(args, string(*typeFilter), limit)
	} else {
		query += ` ORDER BY f.timestamp_sec LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object candidates: %w", err)
	}
	defer rows.Close()

	var candidates []ObjectCandidate
	for rows.Next() {
		var c ObjectCandidate
		var typ string
		var raw string
		err := rows.Scan(&c.ObjectID, &c.FrameID, &c.At, &c.TimestampSec, &typ, &c.TrackID, &raw,
			&c.TransportColorHSV, &c.TransportPlate, &c.PersonUpperHSV, &c.PersonLowerHSV)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object candidate: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			continue
		}
		c.Type = models.ObjectType(typ)
		c.Vector = vec
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func encodeVector(v []float32) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vector: %w", err)
	}
	return string(data), nil
}

func decodeVector(raw string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	return v, nil
}
