package repository

import (
	"context"

	"github.com/nijaru/reelsmith/models"
)

type RecordingRepository interface {
	SaveRecording(ctx context.Context, rec *models.ScreenRecording) error
	FindRecording(ctx context.Context, id string) (*models.ScreenRecording, error)
	// FindUnfinished returns externally processed recordings that have not
	// reached a terminal status.
	FindUnfinished(ctx context.Context) ([]*models.ScreenRecording, error)
}

type RunRepository interface {
	SaveRun(ctx context.Context, state *models.PipelineState) error
	FindRun(ctx context.Context, id string) (*models.PipelineState, error)
}
