package models

// ContinueRequest resumes a run that is waiting at review.
type ContinueRequest struct {
	RunID           string          `json:"runId,omitempty"`
	VideoScript     *VideoScript    `json:"videoScript"`
	ProductData     *ProductData    `json:"productData"`
	UserPreferences UserPreferences `json:"userPreferences"`
	Recordings      []RecordingRef  `json:"recordings,omitempty"`
	Audio           *AudioRef       `json:"audio,omitempty"`
}

type EditRequest struct {
	Message     string       `json:"message"`
	VideoScript *VideoScript `json:"videoScript"`
	ProductData *ProductData `json:"productData"`
}

type EditResponse struct {
	Success     bool         `json:"success"`
	VideoScript *VideoScript `json:"videoScript,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type UploadResponse struct {
	Success          bool             `json:"success"`
	RecordingID      string           `json:"recordingId"`
	VideoURL         string           `json:"videoUrl"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
}

type RecordingStatusResponse struct {
	Status     ProcessingStatus `json:"status"`
	Progress   int              `json:"progress"`
	CursorData []CursorEvent    `json:"cursorData,omitempty"`
	ZoomPoints []ZoomPoint      `json:"zoomPoints,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type RenderRequest struct {
	RemotionCode     string `json:"remotionCode"`
	DurationInFrames int    `json:"durationInFrames"`
	FPS              int    `json:"fps"`
	Format           string `json:"format"`
}

type RenderResponse struct {
	Success      bool   `json:"success"`
	VideoURL     string `json:"videoUrl,omitempty"`
	RenderTimeMs int64  `json:"renderTime,omitempty"`
	Error        string `json:"error,omitempty"`
}
