package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/middleware"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/services/recording"
	"github.com/nijaru/reelsmith/validation"
)

const multipartMemory = 32 << 20

type RecordingHandler struct {
	service        recording.Service
	validator      *validation.Validator
	maxUploadBytes int64
	logger         *logrus.Logger
}

func NewRecordingHandler(service recording.Service, validator *validation.Validator, maxUploadBytes int64, logger *logrus.Logger) *RecordingHandler {
	return &RecordingHandler{
		service:        service,
		validator:      validator,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleUpload handles POST /api/recordings
func (h *RecordingHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "RecordingHandler.HandleUpload"
	logger := middleware.GetLogger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Invalid multipart upload or file too large"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Video file is required"))
		return
	}
	defer file.Close()

	in, err := uploadInput(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	in.Video = file
	in.Filename = header.Filename
	in.Size = header.Size
	in.ContentType = header.Header.Get("Content-Type")

	resp, err := h.service.Upload(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"recording_id": resp.RecordingID,
		"status":       resp.ProcessingStatus,
		"size":         header.Size,
	}).Info("Recording upload accepted")

	writeJSON(w, r, http.StatusOK, resp)
}

func uploadInput(r *http.Request) (*recording.UploadInput, error) {
	const op = "RecordingHandler.uploadInput"

	in := &recording.UploadInput{
		ProjectID:   r.FormValue("projectId"),
		FeatureName: r.FormValue("featureName"),
		Description: r.FormValue("description"),
		CursorStyle: r.FormValue("cursorStyle"),
	}

	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 {
			return nil, errors.InvalidInput(op, err, "Duration must be a non-negative number of seconds")
		}
		in.Duration = d
	}

	if err := decodeField(r.FormValue("cursorData"), &in.CursorData); err != nil {
		return nil, errors.InvalidInput(op, err, "cursorData must be a JSON array")
	}
	if err := decodeField(r.FormValue("zoomPoints"), &in.ZoomPoints); err != nil {
		return nil, errors.InvalidInput(op, err, "zoomPoints must be a JSON array")
	}
	return in, nil
}

func decodeField(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// HandleStatus handles GET /api/recordings/{id}/status
func (h *RecordingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleAddZoomPoint handles PUT /api/recordings/{id}/zoom-points
func (h *RecordingHandler) HandleAddZoomPoint(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, jsonRequest); err != nil {
		respondError(w, r, err)
		return
	}

	var point models.ZoomPoint
	if err := readJSON(w, r, &point); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.ValidateZoomPoint(point); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := h.service.AddZoomPoint(r.Context(), r.PathValue("id"), point)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, rec)
}

// HandleRemoveZoomPoint handles DELETE /api/recordings/{id}/zoom-points/{index}
func (h *RecordingHandler) HandleRemoveZoomPoint(w http.ResponseWriter, r *http.Request) {
	const op = "RecordingHandler.HandleRemoveZoomPoint"

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Zoom point index must be an integer"))
		return
	}

	rec, err := h.service.RemoveZoomPoint(r.Context(), r.PathValue("id"), index)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, rec)
}
