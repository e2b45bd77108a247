package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/stream"
)

// Orchestrator drives one run through the stage state machine. The first
// phase goes from idle to review and stops; the second goes from review
// through code generation and rendering to complete. Any stage error moves
// the run to error and nothing further happens.
type Orchestrator struct {
	stages     Stages
	emitter    Emitter
	recordings RecordingSource
	observer   func(*models.PipelineState)
	logger     *logrus.Entry
	state      *models.PipelineState
}

type Option func(*Orchestrator)

func WithRecordings(src RecordingSource) Option {
	return func(o *Orchestrator) { o.recordings = src }
}

// WithObserver registers a callback invoked with a copy of the state after
// every transition.
func WithObserver(fn func(*models.PipelineState)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.WithField("component", "pipeline") }
}

func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.state.RunID = id
		}
	}
}

func New(stages Stages, emitter Emitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:  stages,
		emitter: emitter,
		logger:  logrus.StandardLogger().WithField("component", "pipeline"),
		state:   models.NewPipelineState(uuid.New().String()),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithField("run_id", o.state.RunID)
	return o
}

func (o *Orchestrator) State() *models.PipelineState {
	return o.state.Clone()
}

// Start runs the first phase. The returned error is only for requests that
// are rejected before any stage runs; stage failures are recorded in the
// state and emitted as an error event.
func (o *Orchestrator) Start(ctx context.Context, req *models.GenerationRequest) (*models.PipelineState, error) {
	const op = "Orchestrator.Start"

	if req == nil || !req.HasSource() {
		return nil, apperrors.InvalidInput(op, nil, "Either a product URL or a description is required")
	}
	if o.state.CurrentStep != models.StepIdle {
		return nil, apperrors.Conflict(op, nil, "Run has already started")
	}

	in := Inputs{
		URL:         strings.TrimSpace(req.URL),
		Description: strings.TrimSpace(req.Description),
		Preferences: req.Preferences(),
		Audio:       req.Audio,
	}

	if in.URL != "" {
		o.transition(models.StepScraping)
		o.status(fmt.Sprintf("Extracting product information from %s...", in.URL))
		if !o.run(ctx, "scrape", o.stages.Scrape, in) {
			return o.State(), nil
		}
	} else {
		o.status("No URL provided, creating product profile from description...")
		o.apply("describe", Delta{ProductData: PlaceholderProduct(in.Description), Next: models.StepScripting})
	}
	o.emit(stream.EventProductData, o.state.ProductData)

	in.Recordings = o.assemble(req.Recordings)
	o.status("Generating video script...")
	if !o.run(ctx, "script", o.stages.Script, in) {
		return o.State(), nil
	}
	o.emit(stream.EventVideoScript, o.state.VideoScript)

	o.emit(stream.EventComplete, stream.CompletePayload{Step: models.StepReview, RunID: o.state.RunID})
	o.logger.WithField("scenes", len(o.state.VideoScript.Scenes)).Info("Run paused for review")
	return o.State(), nil
}

// Continue runs the second phase from an approved script.
func (o *Orchestrator) Continue(ctx context.Context, req *models.ContinueRequest) (*models.PipelineState, error) {
	const op = "Orchestrator.Continue"

	if req == nil || req.VideoScript == nil || !req.ProductData.Valid() {
		return nil, apperrors.InvalidInput(op, nil, "An approved script and product profile are required")
	}
	script := req.VideoScript.Clone()
	script.Repack()
	if err := script.Validate(); err != nil {
		return nil, apperrors.InvalidInput(op, err, "Approved script is not valid")
	}

	o.state.ProductData = req.ProductData
	o.state.VideoScript = script
	o.transition(models.StepReview)

	in := Inputs{
		Preferences: req.UserPreferences,
		Audio:       req.Audio,
		Recordings:  o.assemble(req.Recordings),
	}

	o.transition(models.StepGenerating)
	o.status("Generating video code...")
	if !o.run(ctx, "codegen", o.stages.Codegen, in) {
		return o.State(), nil
	}
	o.emit(stream.EventRemotionCode, o.state.RemotionCode)

	o.status("Finalizing and rendering video...")
	if !o.run(ctx, "render", o.stages.Render, in) {
		return o.State(), nil
	}
	o.emit(stream.EventVideoURL, o.state.VideoURL)

	o.emit(stream.EventComplete, stream.CompletePayload{
		Step:     models.StepComplete,
		RunID:    o.state.RunID,
		VideoURL: o.state.VideoURL,
	})
	o.logger.WithField("video_url", o.state.VideoURL).Info("Run complete")
	return o.State(), nil
}

// run executes one stage and merges its delta. It reports whether the run
// can proceed.
func (o *Orchestrator) run(ctx context.Context, name string, stage Stage, in Inputs) bool {
	if stage == nil {
		o.apply(name, failure("Internal error: %s stage is not configured", name))
		return false
	}
	if err := ctx.Err(); err != nil {
		o.apply(name, failure("Run cancelled before %s: %v", name, err))
		return false
	}

	start := time.Now()
	delta := o.invoke(ctx, name, stage, in)
	o.logger.WithFields(logrus.Fields{
		"stage":    name,
		"duration": time.Since(start).String(),
		"errors":   len(delta.Errors),
	}).Debug("Stage finished")

	return o.apply(name, delta)
}

func (o *Orchestrator) invoke(ctx context.Context, name string, stage Stage, in Inputs) (delta Delta) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{
				"stage": name,
				"panic": r,
			}).Error("Stage panicked")
			delta = failure("Internal error during %s stage", name)
		}
	}()
	return stage(ctx, o.state.Clone(), in)
}

// apply merges delta into the state and moves to the step implied by which
// fields are populated. It returns false when the run has failed.
func (o *Orchestrator) apply(name string, d Delta) bool {
	if d.ProductData != nil {
		o.state.ProductData = d.ProductData
	}
	if d.VideoScript != nil {
		o.state.VideoScript = d.VideoScript
	}
	if d.BeatMap != nil {
		o.state.BeatMap = d.BeatMap
	}
	if d.RemotionCode != "" {
		o.state.RemotionCode = d.RemotionCode
	}
	if d.VideoURL != "" {
		o.state.VideoURL = d.VideoURL
	}
	o.state.Errors = append(o.state.Errors, d.Errors...)

	next := o.nextStep()
	if d.Next != "" && d.Next != next {
		o.logger.WithFields(logrus.Fields{
			"stage":   name,
			"claimed": d.Next,
			"derived": next,
		}).Warn("Stage result disagrees with derived step")
	}
	o.transition(next)

	if next == models.StepError {
		msg := strings.Join(o.state.Errors, "; ")
		o.logger.WithField("stage", name).Warn(msg)
		o.emit(stream.EventError, msg)
		return false
	}
	return true
}

func (o *Orchestrator) nextStep() models.Step {
	s := o.state
	switch {
	case len(s.Errors) > 0:
		return models.StepError
	case s.ProductData == nil:
		return models.StepScraping
	case s.VideoScript == nil:
		return models.StepScripting
	case s.RemotionCode == "":
		if s.CurrentStep == models.StepGenerating {
			return models.StepGenerating
		}
		return models.StepReview
	case s.VideoURL == "":
		return models.StepGenerating
	default:
		return models.StepComplete
	}
}

func (o *Orchestrator) transition(step models.Step) {
	if o.state.CurrentStep == step {
		return
	}
	o.logger.WithFields(logrus.Fields{
		"from": o.state.CurrentStep,
		"to":   step,
	}).Debug("Pipeline transition")
	o.state.CurrentStep = step
	o.state.UpdatedAt = time.Now()
	if o.observer != nil {
		o.observer(o.state.Clone())
	}
}

func (o *Orchestrator) status(msg string) {
	o.emit(stream.EventStatus, msg)
}

func (o *Orchestrator) emit(t stream.EventType, data any) {
	if o.emitter == nil {
		return
	}
	if err := o.emitter.Emit(t, data); err != nil {
		o.logger.WithError(err).WithField("type", t).Warn("Failed to emit stream event")
	}
}

// assemble resolves recording references against the recording source so
// the latest cursor data and zoom points are used.
func (o *Orchestrator) assemble(refs []models.RecordingRef) []models.ScreenRecording {
	if len(refs) == 0 {
		return nil
	}
	known := map[string]models.ScreenRecording{}
	if o.recordings != nil {
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		for _, rec := range o.recordings.Snapshot(ids) {
			known[rec.ID] = rec
		}
	}

	out := make([]models.ScreenRecording, 0, len(refs))
	for _, ref := range refs {
		rec, ok := known[ref.ID]
		if !ok {
			rec = models.RecordingFromRef(ref)
		}
		if ref.TrimEnd > 0 {
			rec.TrimStart, rec.TrimEnd = ref.TrimStart, ref.TrimEnd
		}
		out = append(out, rec)
	}
	return out
}
