package models

import (
	"fmt"
	"time"
)

type CursorSource string

const (
	CursorSourceClient   CursorSource = "client-tracked"
	CursorSourceExternal CursorSource = "external-cv"
)

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingComplete   ProcessingStatus = "complete"
	ProcessingFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingComplete || s == ProcessingFailed
}

type CursorEventType string

const (
	CursorClick CursorEventType = "click"
	CursorMove  CursorEventType = "move"
	CursorInput CursorEventType = "input"
)

// CursorEvent positions are in frame pixels; Timestamp is milliseconds from
// the start of the recording.
type CursorEvent struct {
	Type      CursorEventType `json:"type"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Timestamp int64           `json:"timestamp"`
}

// ZoomPoint coordinates are normalized to [0,1]. Time and Duration are in
// seconds.
type ZoomPoint struct {
	Time     float64 `json:"time"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Duration float64 `json:"duration"`
	Manual   bool    `json:"manual,omitempty"`
}

type ScreenRecording struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"projectId,omitempty"`
	FeatureName      string           `json:"featureName,omitempty"`
	Description      string           `json:"description,omitempty"`
	VideoURL         string           `json:"videoUrl"`
	Duration         float64          `json:"duration"`
	TrimStart        float64          `json:"trimStart"`
	TrimEnd          float64          `json:"trimEnd"`
	CursorStyle      string           `json:"cursorStyle,omitempty"`
	CursorSource     CursorSource     `json:"cursorSource"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	Progress         int              `json:"progress"`
	CursorData       []CursorEvent    `json:"cursorData"`
	ZoomPoints       []ZoomPoint      `json:"zoomPoints"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// NeedsProcessing reports whether the recording is still waiting on the
// external CV service.
func (r *ScreenRecording) NeedsProcessing() bool {
	return r.CursorSource == CursorSourceExternal && !r.ProcessingStatus.IsTerminal()
}

// ValidateTrim checks 0 <= TrimStart < TrimEnd <= Duration. A zero TrimEnd
// means the recording is untrimmed.
func (r *ScreenRecording) ValidateTrim() error {
	end := r.TrimEnd
	if end == 0 {
		end = r.Duration
	}
	if r.TrimStart < 0 {
		return fmt.Errorf("trim start %.2f is negative", r.TrimStart)
	}
	if r.Duration > 0 && end > r.Duration {
		return fmt.Errorf("trim end %.2f exceeds duration %.2f", end, r.Duration)
	}
	if end > 0 && r.TrimStart >= end {
		return fmt.Errorf("trim start %.2f must be before trim end %.2f", r.TrimStart, end)
	}
	return nil
}

func (r *ScreenRecording) Clone() *ScreenRecording {
	c := *r
	c.CursorData = append([]CursorEvent(nil), r.CursorData...)
	c.ZoomPoints = append([]ZoomPoint(nil), r.ZoomPoints...)
	return &c
}

func (r *ScreenRecording) Ref() RecordingRef {
	return RecordingRef{
		ID:           r.ID,
		VideoURL:     r.VideoURL,
		Duration:     r.Duration,
		TrimStart:    r.TrimStart,
		TrimEnd:      r.TrimEnd,
		CursorStyle:  r.CursorStyle,
		CursorSource: r.CursorSource,
	}
}

// RecordingFromRef builds a recording for a reference the server has no
// stored copy of. It carries no cursor data.
func RecordingFromRef(ref RecordingRef) ScreenRecording {
	source := ref.CursorSource
	if source == "" {
		source = CursorSourceClient
	}
	return ScreenRecording{
		ID:               ref.ID,
		VideoURL:         ref.VideoURL,
		Duration:         ref.Duration,
		TrimStart:        ref.TrimStart,
		TrimEnd:          ref.TrimEnd,
		CursorStyle:      ref.CursorStyle,
		CursorSource:     source,
		ProcessingStatus: ProcessingComplete,
		Progress:         100,
		CursorData:       []CursorEvent{},
		ZoomPoints:       []ZoomPoint{},
	}
}

// IsStale reports whether an unfinished recording has not changed for longer
// than timeout.
func (r *ScreenRecording) IsStale(timeout time.Duration) bool {
	if r.ProcessingStatus.IsTerminal() {
		return false
	}
	return time.Since(r.UpdatedAt) > timeout
}
