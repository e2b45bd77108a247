package recording

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/repository"
	"github.com/nijaru/reelsmith/storage"
	"github.com/nijaru/reelsmith/zoom"
)

type Repository = repository.RecordingRepository

type Service interface {
	// Upload stores the video and registers the recording. Uploads without
	// cursor data are handed to the CV service.
	Upload(ctx context.Context, in *UploadInput) (*models.UploadResponse, error)

	Status(ctx context.Context, id string) (*models.RecordingStatusResponse, error)

	AddZoomPoint(ctx context.Context, id string, p models.ZoomPoint) (*models.ScreenRecording, error)

	// RemoveZoomPoint deletes the zoom point at index, counted in time order.
	RemoveZoomPoint(ctx context.Context, id string, index int) (*models.ScreenRecording, error)

	// Resume re-tracks recordings that were still processing at shutdown.
	Resume(ctx context.Context) (int, error)

	Snapshot(ids []string) []models.ScreenRecording

	Subscribe() (<-chan Outcome, func())
}

// Submitter hands a new recording to the CV service.
type Submitter interface {
	Submit(ctx context.Context, rec *models.ScreenRecording) error
}

type Config struct {
	Frame zoom.Frame
	Zoom  zoom.Policy
}

type UploadInput struct {
	Video       io.Reader
	Filename    string
	ContentType string
	Size        int64
	ProjectID   string
	FeatureName string
	Description string
	Duration    float64
	CursorStyle string
	CursorData  []models.CursorEvent
	ZoomPoints  []models.ZoomPoint
}

type service struct {
	repo        Repository
	store       storage.Store
	coordinator *Coordinator
	submitter   Submitter
	config      Config
	logger      *logrus.Logger
}

func NewService(
	repo Repository,
	store storage.Store,
	coordinator *Coordinator,
	submitter Submitter,
	config Config,
	logger *logrus.Logger,
) Service {
	return &service{
		repo:        repo,
		store:       store,
		coordinator: coordinator,
		submitter:   submitter,
		config:      config,
		logger:      logger,
	}
}

func (s *service) Upload(ctx context.Context, in *UploadInput) (*models.UploadResponse, error) {
	const op = "RecordingService.Upload"

	if in == nil || in.Video == nil {
		return nil, errors.InvalidInput(op, nil, "Video file is required")
	}
	if in.Duration < 0 {
		return nil, errors.InvalidInput(op, nil, "Duration must not be negative")
	}

	id := uuid.New().String()
	logger := s.logger.WithFields(logrus.Fields{
		"operation":    op,
		"recording_id": id,
		"project_id":   in.ProjectID,
	})

	key := "recordings/" + id + "/" + storage.SafeFilename(in.Filename)
	contentType := in.ContentType
	if contentType == "" {
		contentType = "video/webm"
	}
	videoURL, err := s.store.Put(ctx, key, in.Video, in.Size, contentType)
	if err != nil {
		logger.WithError(err).Error("Failed to store recording")
		return nil, errors.Internal(op, err, "Failed to store recording")
	}

	now := time.Now()
	rec := &models.ScreenRecording{
		ID:          id,
		ProjectID:   in.ProjectID,
		FeatureName: in.FeatureName,
		Description: in.Description,
		VideoURL:    videoURL,
		Duration:    in.Duration,
		CursorStyle: in.CursorStyle,
		CursorData:  nonNilEvents(in.CursorData),
		ZoomPoints:  nonNilPoints(in.ZoomPoints),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if len(rec.CursorData) > 0 {
		rec.CursorSource = models.CursorSourceClient
		rec.ProcessingStatus = models.ProcessingComplete
		rec.Progress = 100
		if len(rec.ZoomPoints) == 0 {
			rec.ZoomPoints = zoom.Detect(rec.CursorData, s.config.Frame, s.config.Zoom)
		}
	} else {
		rec.CursorSource = models.CursorSourceExternal
		rec.ProcessingStatus = models.ProcessingPending
	}

	if err := s.repo.SaveRecording(ctx, rec); err != nil {
		logger.WithError(err).Error("Failed to save recording")
		return nil, errors.Internal(op, err, "Failed to save recording")
	}

	if rec.CursorSource == models.CursorSourceExternal && s.submitter != nil {
		if err := s.submitter.Submit(ctx, rec); err != nil {
			logger.WithError(err).Warn("Failed to submit recording to CV service, polling anyway")
		}
	}

	s.coordinator.Track(rec)

	logger.WithFields(logrus.Fields{
		"cursor_source": rec.CursorSource,
		"cursor_events": len(rec.CursorData),
		"zoom_points":   len(rec.ZoomPoints),
	}).Info("Recording uploaded")

	return &models.UploadResponse{
		Success:          true,
		RecordingID:      id,
		VideoURL:         videoURL,
		ProcessingStatus: rec.ProcessingStatus,
	}, nil
}

func (s *service) Status(ctx context.Context, id string) (*models.RecordingStatusResponse, error) {
	const op = "RecordingService.Status"

	rec, err := s.find(ctx, op, id)
	if err != nil {
		return nil, err
	}

	resp := &models.RecordingStatusResponse{
		Status:   rec.ProcessingStatus,
		Progress: rec.Progress,
	}
	if rec.ProcessingStatus == models.ProcessingComplete {
		resp.CursorData = nonNilEvents(rec.CursorData)
		resp.ZoomPoints = nonNilPoints(rec.ZoomPoints)
	}
	return resp, nil
}

func (s *service) AddZoomPoint(ctx context.Context, id string, p models.ZoomPoint) (*models.ScreenRecording, error) {
	const op = "RecordingService.AddZoomPoint"

	if p.Time < 0 {
		return nil, errors.InvalidInput(op, nil, "Zoom point time must not be negative")
	}
	if p.Scale <= 0 {
		p.Scale = s.config.Zoom.Scale
	}
	if p.Duration <= 0 {
		p.Duration = s.config.Zoom.Duration.Seconds()
	}

	if _, err := s.find(ctx, op, id); err != nil {
		return nil, err
	}
	rec, ok := s.coordinator.AddZoomPoint(id, p)
	if !ok {
		return nil, errors.NotFound(op, nil, "Recording not found")
	}
	return rec, nil
}

func (s *service) RemoveZoomPoint(ctx context.Context, id string, index int) (*models.ScreenRecording, error) {
	const op = "RecordingService.RemoveZoomPoint"

	if _, err := s.find(ctx, op, id); err != nil {
		return nil, err
	}
	rec, ok, err := s.coordinator.RemoveZoomPoint(id, index)
	if !ok {
		return nil, errors.NotFound(op, nil, "Recording not found")
	}
	if err != nil {
		return nil, errors.InvalidInput(op, err, "Zoom point index out of range")
	}

	s.logger.WithFields(logrus.Fields{
		"operation":    op,
		"recording_id": id,
		"index":        index,
	}).Info("Zoom point removed")
	return rec, nil
}

// find prefers the coordinator's live copy and falls back to the database,
// re-tracking what it loads.
func (s *service) find(ctx context.Context, op, id string) (*models.ScreenRecording, error) {
	if id == "" {
		return nil, errors.InvalidInput(op, nil, "Recording ID is required")
	}
	if rec, ok := s.coordinator.Get(id); ok {
		return rec, nil
	}

	rec, err := s.repo.FindRecording(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound(op, err, "Recording not found")
		}
		return nil, errors.Internal(op, err, "Failed to load recording")
	}
	s.coordinator.Track(rec)
	return rec, nil
}

func (s *service) Resume(ctx context.Context) (int, error) {
	const op = "RecordingService.Resume"

	recs, err := s.repo.FindUnfinished(ctx)
	if err != nil {
		return 0, errors.Internal(op, err, "Failed to load unfinished recordings")
	}
	for _, rec := range recs {
		s.coordinator.Track(rec)
	}
	if len(recs) > 0 {
		s.logger.WithFields(logrus.Fields{
			"operation": op,
			"count":     len(recs),
		}).Info("Resumed polling for unfinished recordings")
	}
	return len(recs), nil
}

// Snapshot resolves ids against tracked recordings, loading untracked ones
// from the database.
func (s *service) Snapshot(ids []string) []models.ScreenRecording {
	found := make(map[string]models.ScreenRecording, len(ids))
	for _, rec := range s.coordinator.Snapshot(ids) {
		found[rec.ID] = rec
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make([]models.ScreenRecording, 0, len(ids))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
			continue
		}
		rec, err := s.repo.FindRecording(ctx, id)
		if err != nil {
			if !errors.IsNotFound(err) {
				s.logger.WithError(err).WithField("recording_id", id).Warn("Failed to load recording")
			}
			continue
		}
		s.coordinator.Track(rec)
		out = append(out, *rec)
	}
	return out
}

func (s *service) Subscribe() (<-chan Outcome, func()) {
	return s.coordinator.Subscribe()
}

func nonNilEvents(events []models.CursorEvent) []models.CursorEvent {
	if events == nil {
		return []models.CursorEvent{}
	}
	return events
}

func nonNilPoints(points []models.ZoomPoint) []models.ZoomPoint {
	if points == nil {
		return []models.ZoomPoint{}
	}
	return points
}
