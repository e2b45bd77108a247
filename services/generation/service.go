package generation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/pipeline"
	"github.com/nijaru/reelsmith/repository"
	"github.com/nijaru/reelsmith/storage"
	"github.com/nijaru/reelsmith/validation"
)

type Repository = repository.RunRepository

type Service interface {
	// Start runs a new generation up to review, streaming events to emitter.
	Start(ctx context.Context, req *models.GenerationRequest, emitter pipeline.Emitter) (*models.PipelineState, error)

	// Continue takes an approved script through code generation and render.
	Continue(ctx context.Context, req *models.ContinueRequest, emitter pipeline.Emitter) (*models.PipelineState, error)

	EditScript(ctx context.Context, req *models.EditRequest) (*models.EditResponse, error)

	GetRun(ctx context.Context, id string) (*models.PipelineState, error)
}

// ScriptEditor revises a script from a free-form instruction.
type ScriptEditor interface {
	Edit(ctx context.Context, message string, script *models.VideoScript, product *models.ProductData) (*models.VideoScript, error)
}

type Config struct {
	// SaveTimeout bounds each run snapshot write.
	SaveTimeout time.Duration
	// ArchiveRuns writes finished runs to object storage as runs/<id>.json.
	ArchiveRuns bool
}

type service struct {
	stages     pipeline.Stages
	recordings pipeline.RecordingSource
	runs       Repository
	editor     ScriptEditor
	store      storage.Store
	validator  *validation.Validator
	config     Config
	logger     *logrus.Logger
}

func NewService(
	stages pipeline.Stages,
	recordings pipeline.RecordingSource,
	runs Repository,
	editor ScriptEditor,
	store storage.Store,
	validator *validation.Validator,
	config Config,
	logger *logrus.Logger,
) Service {
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = 5 * time.Second
	}
	return &service{
		stages:     stages,
		recordings: recordings,
		runs:       runs,
		editor:     editor,
		store:      store,
		validator:  validator,
		config:     config,
		logger:     logger,
	}
}

func (s *service) Start(ctx context.Context, req *models.GenerationRequest, emitter pipeline.Emitter) (*models.PipelineState, error) {
	const op = "GenerationService.Start"

	if err := s.validator.ValidateGenerationRequest(req); err != nil {
		return nil, err
	}

	o := s.orchestrator(emitter, "")
	s.logger.WithFields(logrus.Fields{
		"operation":  op,
		"run_id":     o.State().RunID,
		"url":        req.URL,
		"duration":   req.Duration,
		"recordings": len(req.Recordings),
	}).Info("Starting generation run")

	return o.Start(ctx, req)
}

func (s *service) Continue(ctx context.Context, req *models.ContinueRequest, emitter pipeline.Emitter) (*models.PipelineState, error) {
	const op = "GenerationService.Continue"

	if err := s.validator.ValidateContinueRequest(req); err != nil {
		return nil, err
	}

	if req.RunID != "" {
		prev, err := s.runs.FindRun(ctx, req.RunID)
		switch {
		case err == nil && prev.CurrentStep != models.StepReview:
			return nil, errors.Conflict(op, nil, "Run is not waiting for review")
		case err != nil && !errors.IsNotFound(err):
			return nil, errors.Internal(op, err, "Failed to load run")
		}
	}

	o := s.orchestrator(emitter, req.RunID)
	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"run_id":    o.State().RunID,
		"scenes":    len(req.VideoScript.Scenes),
	}).Info("Continuing generation run")

	return o.Continue(ctx, req)
}

func (s *service) orchestrator(emitter pipeline.Emitter, runID string) *pipeline.Orchestrator {
	return pipeline.New(s.stages, emitter,
		pipeline.WithRunID(runID),
		pipeline.WithRecordings(s.recordings),
		pipeline.WithObserver(s.save),
		pipeline.WithLogger(s.logger),
	)
}

// save persists every transition. Terminal states are also archived when
// archiving is enabled. Failures are logged; they never stop a run.
func (s *service) save(state *models.PipelineState) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SaveTimeout)
	defer cancel()

	logger := s.logger.WithFields(logrus.Fields{
		"run_id": state.RunID,
		"step":   state.CurrentStep,
	})

	if err := s.runs.SaveRun(ctx, state); err != nil {
		logger.WithError(err).Error("Failed to save run state")
	}

	if s.config.ArchiveRuns && s.store != nil && state.CurrentStep.IsTerminal() {
		if _, err := s.store.PutJSON(ctx, archiveKey(state.RunID), state); err != nil {
			logger.WithError(err).Warn("Failed to archive run")
		}
	}
}

func archiveKey(id string) string {
	return "runs/" + storage.SafeFilename(id) + ".json"
}

func (s *service) GetRun(ctx context.Context, id string) (*models.PipelineState, error) {
	const op = "GenerationService.GetRun"

	if id == "" {
		return nil, errors.InvalidInput(op, nil, "Run ID is required")
	}

	state, err := s.runs.FindRun(ctx, id)
	if err == nil {
		return state, nil
	}
	if !errors.IsNotFound(err) {
		return nil, errors.Internal(op, err, "Failed to load run")
	}
	if !s.config.ArchiveRuns || s.store == nil {
		return nil, errors.NotFound(op, err, "Run not found")
	}

	var archived models.PipelineState
	if err := s.store.GetJSON(ctx, archiveKey(id), &archived); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound(op, err, "Run not found")
		}
		return nil, errors.Internal(op, err, "Failed to load archived run")
	}
	return &archived, nil
}

// EditScript reports upstream failures in the response body rather than as
// an error, so the editor UI can keep the previous script.
func (s *service) EditScript(ctx context.Context, req *models.EditRequest) (*models.EditResponse, error) {
	const op = "GenerationService.EditScript"

	if err := s.validator.ValidateEditRequest(req); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"scenes":    len(req.VideoScript.Scenes),
	})

	edited, err := s.editor.Edit(ctx, req.Message, req.VideoScript, req.ProductData)
	if err != nil {
		logger.WithError(err).Warn("Script edit failed")
		return &models.EditResponse{Success: false, Error: "Failed to edit script: " + err.Error()}, nil
	}

	edited.Repack()
	if err := edited.Validate(); err != nil {
		logger.WithError(err).Warn("Edited script is invalid")
		return &models.EditResponse{Success: false, Error: "Edited script is invalid: " + err.Error()}, nil
	}

	logger.WithField("edited_scenes", len(edited.Scenes)).Info("Script edited")
	return &models.EditResponse{Success: true, VideoScript: edited}, nil
}
