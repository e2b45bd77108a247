package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nijaru/reelsmith/errors"
)

const (
	upsertRecordingQuery = `
        INSERT INTO recordings (
            id, project_id, feature_name, description, video_url,
            duration, trim_start, trim_end, cursor_style, cursor_source,
            processing_status, progress, cursor_data, zoom_points,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            trim_start = excluded.trim_start,
            trim_end = excluded.trim_end,
            processing_status = excluded.processing_status,
            progress = excluded.progress,
            cursor_data = excluded.cursor_data,
            zoom_points = excluded.zoom_points,
            updated_at = excluded.updated_at
    `

	getRecordingQuery = `
        SELECT id, project_id, feature_name, description, video_url,
               duration, trim_start, trim_end, cursor_style, cursor_source,
               processing_status, progress, cursor_data, zoom_points,
               created_at, updated_at
        FROM recordings WHERE id = ?
    `

	getUnfinishedRecordingsQuery = `
        SELECT id, project_id, feature_name, description, video_url,
               duration, trim_start, trim_end, cursor_style, cursor_source,
               processing_status, progress, cursor_data, zoom_points,
               created_at, updated_at
        FROM recordings
        WHERE cursor_source = ? AND processing_status IN (?, ?)
        ORDER BY created_at
    `

	upsertRunQuery = `
        INSERT INTO runs (
            id, current_step, product_data, video_script, beat_map,
            remotion_code, video_url, errors, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            current_step = excluded.current_step,
            product_data = excluded.product_data,
            video_script = excluded.video_script,
            beat_map = excluded.beat_map,
            remotion_code = excluded.remotion_code,
            video_url = excluded.video_url,
            errors = excluded.errors,
            updated_at = excluded.updated_at
    `

	getRunQuery = `
        SELECT id, current_step, product_data, video_script, beat_map,
               remotion_code, video_url, errors, created_at, updated_at
        FROM runs WHERE id = ?
    `
)

type PreparedStatements struct {
	upsertRecording *sql.Stmt
	getRecording    *sql.Stmt
	getUnfinished   *sql.Stmt
	upsertRun       *sql.Stmt
	getRun          *sql.Stmt
}

func (stmts *PreparedStatements) Prepare(ctx context.Context, db *sql.DB) error {
	const op = "PreparedStatements.Prepare"

	var err error

	if stmts.upsertRecording, err = db.PrepareContext(ctx, upsertRecordingQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare upsertRecording statement")
	}

	if stmts.getRecording, err = db.PrepareContext(ctx, getRecordingQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare getRecording statement")
	}

	if stmts.getUnfinished, err = db.PrepareContext(ctx, getUnfinishedRecordingsQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare getUnfinished statement")
	}

	if stmts.upsertRun, err = db.PrepareContext(ctx, upsertRunQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare upsertRun statement")
	}

	if stmts.getRun, err = db.PrepareContext(ctx, getRunQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare getRun statement")
	}

	return nil
}

func (stmts *PreparedStatements) Close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.upsertRecording,
		stmts.getRecording,
		stmts.getUnfinished,
		stmts.upsertRun,
		stmts.getRun,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}
	return nil
}
