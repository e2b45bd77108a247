package models

import "strings"

// AudioRef points at a music track. BPM is optional; when it is missing the
// scripting stage runs without a beat map.
type AudioRef struct {
	URL      string  `json:"url"`
	BPM      float64 `json:"bpm,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// RecordingRef is how a generation request refers to an uploaded screen
// recording. Cursor data and zoom points are looked up by ID at assembly time.
type RecordingRef struct {
	ID           string       `json:"id"`
	VideoURL     string       `json:"videoUrl"`
	Duration     float64      `json:"duration"`
	TrimStart    float64      `json:"trimStart"`
	TrimEnd      float64      `json:"trimEnd"`
	CursorStyle  string       `json:"cursorStyle,omitempty"`
	CursorSource CursorSource `json:"cursorSource,omitempty"`
}

type UserPreferences struct {
	Style         string `json:"style,omitempty"`
	TemplateStyle string `json:"templateStyle,omitempty"`
	VideoType     string `json:"videoType,omitempty"`
	Duration      int    `json:"duration,omitempty"`
}

// GenerationRequest starts the first phase of a run.
type GenerationRequest struct {
	URL           string         `json:"url,omitempty"`
	Description   string         `json:"description,omitempty"`
	Style         string         `json:"style,omitempty"`
	TemplateStyle string         `json:"templateStyle,omitempty"`
	VideoType     string         `json:"videoType,omitempty"`
	Duration      int            `json:"duration,omitempty"`
	Audio         *AudioRef      `json:"audio,omitempty"`
	Recordings    []RecordingRef `json:"recordings,omitempty"`
}

// HasSource reports whether the request names a product URL or carries a
// non-empty description.
func (r *GenerationRequest) HasSource() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Description) != ""
}

func (r *GenerationRequest) Preferences() UserPreferences {
	return UserPreferences{
		Style:         r.Style,
		TemplateStyle: r.TemplateStyle,
		VideoType:     r.VideoType,
		Duration:      r.Duration,
	}
}
