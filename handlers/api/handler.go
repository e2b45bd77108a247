package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/middleware"
)

const maxJSONBody = 4 << 20

// Response represents a standardized API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response := Response{
		Success:   code >= 200 && code < 300,
		Data:      payload,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}

	if !response.Success && payload != nil {
		if err, ok := payload.(string); ok {
			response.Error = err
			response.Data = nil
		}
	}

	writeJSON(w, r, code, response)
}

// writeJSON sends payload without the envelope. It is used where clients
// expect a fixed response shape.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.Code(err)
	msg := errors.Message(err)

	entry := middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"error":  err,
		"status": code,
	})
	if code >= 500 {
		entry.Error("Request error")
	} else {
		entry.Warn("Request error")
	}

	respondJSON(w, r, code, msg)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	const op = "readJSON"

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err == io.EOF {
			return errors.InvalidInput(op, err, "Request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.InvalidInput(op, err, "Request body too large")
		}
		return errors.InvalidInput(op, err, "Invalid JSON format")
	}
	return nil
}
