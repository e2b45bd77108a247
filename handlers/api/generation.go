package api

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/middleware"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/services/generation"
	"github.com/nijaru/reelsmith/stream"
	"github.com/nijaru/reelsmith/validation"
)

type GenerationHandler struct {
	service   generation.Service
	validator *validation.Validator
	logger    *logrus.Logger
}

func NewGenerationHandler(service generation.Service, validator *validation.Validator, logger *logrus.Logger) *GenerationHandler {
	return &GenerationHandler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

var jsonRequest = validation.RequestValidationOpts{
	MaxContentLength: maxJSONBody,
	RequireJSON:      true,
}

// HandleGenerate handles POST /api/generate
func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	if err := h.validator.ValidateRequest(r, jsonRequest); err != nil {
		respondError(w, r, err)
		return
	}

	var req models.GenerationRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	enc := stream.NewEncoder(w)
	prepareStream(w)

	// Errors come back only for requests rejected before anything was
	// streamed.
	state, err := h.service.Start(r.Context(), &req, enc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"run_id": state.RunID,
		"step":   state.CurrentStep,
	}).Info("Generation stream finished")
}

// HandleContinue handles POST /api/generate/continue
func (h *GenerationHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	if err := h.validator.ValidateRequest(r, jsonRequest); err != nil {
		respondError(w, r, err)
		return
	}

	var req models.ContinueRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	enc := stream.NewEncoder(w, stream.WithAllowed(
		stream.EventStatus,
		stream.EventRemotionCode,
		stream.EventVideoURL,
		stream.EventError,
		stream.EventComplete,
	))
	prepareStream(w)

	state, err := h.service.Continue(r.Context(), &req, enc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"run_id":    state.RunID,
		"step":      state.CurrentStep,
		"video_url": state.VideoURL,
	}).Info("Continue stream finished")
}

// prepareStream sets NDJSON headers and lifts the server write deadline so
// long renders are not cut off.
func prepareStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

// HandleEditScript handles POST /api/script/edit
func (h *GenerationHandler) HandleEditScript(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, jsonRequest); err != nil {
		respondError(w, r, err)
		return
	}

	var req models.EditRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := h.service.EditScript(r.Context(), &req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleGetRun handles GET /api/runs/{id}
func (h *GenerationHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, state)
}
