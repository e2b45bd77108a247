package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/repository"
)

type Repository struct {
	db *DB
}

var (
	_ repository.RecordingRepository = (*Repository)(nil)
	_ repository.RunRepository       = (*Repository)(nil)
)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRecording(ctx context.Context, rec *models.ScreenRecording) error {
	const op = "SQLiteRepository.SaveRecording"

	cursorData, err := marshalColumn(rec.CursorData)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode cursor data")
	}
	zoomPoints, err := marshalColumn(rec.ZoomPoints)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode zoom points")
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err = withRetry(ctx, r.db.config, op, func() error {
		_, err := r.db.statements.upsertRecording.ExecContext(ctx,
			rec.ID,
			rec.ProjectID,
			rec.FeatureName,
			rec.Description,
			rec.VideoURL,
			rec.Duration,
			rec.TrimStart,
			rec.TrimEnd,
			rec.CursorStyle,
			string(rec.CursorSource),
			string(rec.ProcessingStatus),
			rec.Progress,
			cursorData,
			zoomPoints,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save recording")
	}
	return nil
}

func (r *Repository) FindRecording(ctx context.Context, id string) (*models.ScreenRecording, error) {
	const op = "SQLiteRepository.FindRecording"

	rec, err := scanRecording(r.db.statements.getRecording.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Recording not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query recording")
	}
	return rec, nil
}

func (r *Repository) FindUnfinished(ctx context.Context) ([]*models.ScreenRecording, error) {
	const op = "SQLiteRepository.FindUnfinished"

	rows, err := r.db.statements.getUnfinished.QueryContext(ctx,
		string(models.CursorSourceExternal),
		string(models.ProcessingPending),
		string(models.ProcessingProcessing),
	)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query recordings")
	}
	defer rows.Close()

	var out []*models.ScreenRecording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to read recording")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to read recordings")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*models.ScreenRecording, error) {
	rec := &models.ScreenRecording{}
	var (
		projectID, featureName, description, cursorStyle sql.NullString
		cursorData, zoomPoints                           sql.NullString
		source, status                                   string
	)

	err := row.Scan(
		&rec.ID,
		&projectID,
		&featureName,
		&description,
		&rec.VideoURL,
		&rec.Duration,
		&rec.TrimStart,
		&rec.TrimEnd,
		&cursorStyle,
		&source,
		&status,
		&rec.Progress,
		&cursorData,
		&zoomPoints,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ProjectID = projectID.String
	rec.FeatureName = featureName.String
	rec.Description = description.String
	rec.CursorStyle = cursorStyle.String
	rec.CursorSource = models.CursorSource(source)
	rec.ProcessingStatus = models.ProcessingStatus(status)

	rec.CursorData = []models.CursorEvent{}
	if err := unmarshalColumn(cursorData, &rec.CursorData); err != nil {
		return nil, err
	}
	rec.ZoomPoints = []models.ZoomPoint{}
	if err := unmarshalColumn(zoomPoints, &rec.ZoomPoints); err != nil {
		return nil, err
	}
	return rec, nil
}

// marshalColumn stores nil values as SQL NULL.
func marshalColumn(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalColumn(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}
