package sonardb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sidescan.report/internal/sonar/grid"
)

// ImageRecord is the queryable metadata of a cached map image.
type ImageRecord struct {
	ImageID    string      `json:"image_id"`
	SurveyID   string      `json:"survey_id"`
	TileID     string      `json:"tile_id"`
	Bounds     grid.Bounds `json:"bounds"`
	Resolution float64     `json:"resolution"`
	Rows       int         `json:"rows"`
	Cols       int         `json:"cols"`
	Pings      int         `json:"ping_count"`
	Hits       float64     `json:"hit_count"`
	CreatedAt  int64       `json:"created_at"`
}

// MapImageStore provides persistence for finished map images.
type MapImageStore struct {
	db *sql.DB
}

// NewMapImageStore creates a new MapImageStore.
func NewMapImageStore(db *SonarDB) *MapImageStore {
	return &MapImageStore{db: db.DB}
}

// Insert stores img under surveyID/tileID and returns the generated image ID.
func (s *MapImageStore) Insert(ctx context.Context, surveyID, tileID string, img *grid.MapImage) (string, error) {
	if img == nil {
		return "", errors.New("insert map image: nil image")
	}
	blob, err := serializeImage(img)
	if err != nil {
		return "", fmt.Errorf("serialize map image: %w", err)
	}

	rec := recordFor(img)
	rec.ImageID = uuid.New().String()
	rec.SurveyID = surveyID
	rec.TileID = tileID
	rec.CreatedAt = time.Now().UnixNano()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sss_map_images (
			image_id, survey_id, tile_id, min_x, min_y, max_x, max_y,
			resolution, grid_rows, grid_cols, ping_count, hit_count,
			grid_blob, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ImageID, rec.SurveyID, rec.TileID,
		rec.Bounds.MinX(), rec.Bounds.MinY(), rec.Bounds.MaxX(), rec.Bounds.MaxY(),
		rec.Resolution, rec.Rows, rec.Cols, rec.Pings, rec.Hits,
		blob, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert map image: %w", err)
	}
	return rec.ImageID, nil
}

func recordFor(img *grid.MapImage) ImageRecord {
	rows, cols := img.Dims()
	return ImageRecord{
		Bounds:     img.Bounds,
		Resolution: img.Resolution,
		Rows:       rows,
		Cols:       cols,
		Pings:      len(img.Positions),
		Hits:       img.HitCount(),
	}
}

const recordColumns = `image_id, survey_id, tile_id, min_x, min_y, max_x, max_y,
		       resolution, grid_rows, grid_cols, ping_count, hit_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (*ImageRecord, error) {
	var r ImageRecord
	var minX, minY, maxX, maxY float64
	dest := []any{
		&r.ImageID, &r.SurveyID, &r.TileID, &minX, &minY, &maxX, &maxY,
		&r.Resolution, &r.Rows, &r.Cols, &r.Pings, &r.Hits, &r.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Bounds = grid.NewBounds(minX, minY, maxX, maxY)
	return &r, nil
}

// Get loads one image and its metadata. It returns ErrNotFound when no image
// has the given ID.
func (s *MapImageStore) Get(ctx context.Context, imageID string) (*ImageRecord, *grid.MapImage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`, grid_blob
		FROM sss_map_images
		WHERE image_id = ?`, imageID)

	var blob []byte
	rec, err := scanRecord(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get map image %s: %w", imageID, err)
	}

	img, err := deserializeImage(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("map image %s: %w", imageID, err)
	}
	return rec, img, nil
}

// ListBySurvey returns the metadata of every image in a survey, oldest first.
func (s *MapImageStore) ListBySurvey(ctx context.Context, surveyID string) ([]*ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM sss_map_images
		WHERE survey_id = ?
		ORDER BY created_at ASC, tile_id ASC`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("query map images: %w", err)
	}
	defer rows.Close()

	var out []*ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan map image: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes one image. It returns ErrNotFound when nothing was deleted.
func (s *MapImageStore) Delete(ctx context.Context, imageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sss_map_images WHERE image_id = ?`, imageID)
	if err != nil {
		return fmt.Errorf("delete map image %s: %w", imageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete map image %s: %w", imageID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	return nil
}
