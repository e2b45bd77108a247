package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
)

func (r *Repository) SaveRun(ctx context.Context, state *models.PipelineState) error {
	const op = "SQLiteRepository.SaveRun"

	product, err := marshalColumn(state.ProductData)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode product data")
	}
	script, err := marshalColumn(state.VideoScript)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode video script")
	}
	beats, err := marshalColumn(state.BeatMap)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode beat map")
	}
	errs, err := marshalColumn(state.Errors)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode errors")
	}

	created := state.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	err = withRetry(ctx, r.db.config, op, func() error {
		_, err := r.db.statements.upsertRun.ExecContext(ctx,
			state.RunID,
			string(state.CurrentStep),
			product,
			script,
			beats,
			state.RemotionCode,
			state.VideoURL,
			errs,
			created,
			updated,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save run")
	}
	return nil
}

func (r *Repository) FindRun(ctx context.Context, id string) (*models.PipelineState, error) {
	const op = "SQLiteRepository.FindRun"

	state := &models.PipelineState{}
	var (
		step                         string
		product, script, beats, errs sql.NullString
		remotionCode, videoURL       sql.NullString
	)

	err := r.db.statements.getRun.QueryRowContext(ctx, id).Scan(
		&state.RunID,
		&step,
		&product,
		&script,
		&beats,
		&remotionCode,
		&videoURL,
		&errs,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Run not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query run")
	}

	state.CurrentStep = models.Step(step)
	state.RemotionCode = remotionCode.String
	state.VideoURL = videoURL.String
	state.Errors = []string{}

	columns := []struct {
		col sql.NullString
		dst any
	}{
		{product, &state.ProductData},
		{script, &state.VideoScript},
		{beats, &state.BeatMap},
		{errs, &state.Errors},
	}
	for _, c := range columns {
		if err := unmarshalColumn(c.col, c.dst); err != nil {
			return nil, errors.Internal(op, err, "Failed to decode run")
		}
	}
	return state, nil
}
