package recording

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/repository"
	"github.com/nijaru/reelsmith/zoom"
)

// StatusSource reports the processing state of a recording held by the
// external CV service.
type StatusSource interface {
	RecordingStatus(ctx context.Context, id string) (*models.RecordingStatusResponse, error)
}

type OutcomeKind string

const (
	OutcomeProgress  OutcomeKind = "progress"
	OutcomeResolved  OutcomeKind = "resolved"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomePollError OutcomeKind = "poll_error"
)

// Outcome is the result of one status poll for one recording.
type Outcome struct {
	RecordingID string                  `json:"recordingId"`
	Kind        OutcomeKind             `json:"kind"`
	Progress    int                     `json:"progress"`
	Recording   *models.ScreenRecording `json:"recording,omitempty"`
	Error       string                  `json:"error,omitempty"`
	At          time.Time               `json:"at"`
}

type CoordinatorConfig struct {
	PollInterval      time.Duration
	PollTimeout       time.Duration
	StaleAfter        time.Duration
	RequestsPerSecond float64
	Burst             int
	Frame             zoom.Frame
	Zoom              zoom.Policy
}

// Coordinator tracks recordings and polls the CV service for the ones that
// are still pending. The polling loop runs only while something is pending.
type Coordinator struct {
	source  StatusSource
	repo    repository.RecordingRepository
	config  CoordinatorConfig
	logger  *logrus.Logger
	limiter *rate.Limiter

	// saveMu serializes writes so the last save always carries the latest
	// in-memory copy.
	saveMu sync.Mutex

	mu         sync.Mutex
	recordings map[string]*models.ScreenRecording
	pending    map[string]struct{}
	running    bool
	closed     bool
	quit       chan struct{}

	subMu       sync.Mutex
	subscribers map[int]chan Outcome
	nextSub     int
}

func NewCoordinator(source StatusSource, repo repository.RecordingRepository, config CoordinatorConfig, logger *logrus.Logger) *Coordinator {
	if config.PollInterval <= 0 {
		config.PollInterval = 3 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 30 * time.Second
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &Coordinator{
		source:      source,
		repo:        repo,
		config:      config,
		logger:      logger,
		limiter:     rate.NewLimiter(limit, config.Burst),
		recordings:  make(map[string]*models.ScreenRecording),
		pending:     make(map[string]struct{}),
		quit:        make(chan struct{}),
		subscribers: make(map[int]chan Outcome),
	}
}

// Track registers a recording. Recordings waiting on the CV service join the
// pending set and start the polling loop if it is idle.
func (c *Coordinator) Track(rec *models.ScreenRecording) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recordings[rec.ID] = rec.Clone()
	if !rec.NeedsProcessing() {
		delete(c.pending, rec.ID)
		return
	}
	c.pending[rec.ID] = struct{}{}

	if !c.running && !c.closed {
		c.running = true
		go c.loop()
	}
}

func (c *Coordinator) Get(id string) (*models.ScreenRecording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.recordings[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Snapshot returns the tracked recordings among ids, in the order given.
func (c *Coordinator) Snapshot(ids []string) []models.ScreenRecording {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.ScreenRecording, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.recordings[id]; ok {
			out = append(out, *rec.Clone())
		}
	}
	return out
}

func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// AddZoomPoint inserts a manual zoom point into a tracked recording.
func (c *Coordinator) AddZoomPoint(id string, p models.ZoomPoint) (*models.ScreenRecording, bool) {
	c.mu.Lock()
	rec, ok := c.recordings[id]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	p.Manual = true
	rec.ZoomPoints = zoom.Insert(rec.ZoomPoints, p)
	rec.UpdatedAt = time.Now()
	out := rec.Clone()
	c.mu.Unlock()

	c.persist(id)
	return out, true
}

// RemoveZoomPoint deletes the zoom point at index from a tracked recording.
// The bool is false when the recording is not tracked.
func (c *Coordinator) RemoveZoomPoint(id string, index int) (*models.ScreenRecording, bool, error) {
	c.mu.Lock()
	rec, ok := c.recordings[id]
	if !ok {
		c.mu.Unlock()
		return nil, false, nil
	}
	points, err := zoom.Remove(rec.ZoomPoints, index)
	if err != nil {
		c.mu.Unlock()
		return nil, true, err
	}
	rec.ZoomPoints = points
	rec.UpdatedAt = time.Now()
	out := rec.Clone()
	c.mu.Unlock()

	c.persist(id)
	return out, true, nil
}

// Subscribe returns a channel of poll outcomes. Slow subscribers miss
// outcomes rather than block polling.
func (c *Coordinator) Subscribe() (<-chan Outcome, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Outcome, 16)
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
		})
	}
}

func (c *Coordinator) publish(o Outcome) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for id, ch := range c.subscribers {
		select {
		case ch <- o:
		default:
			c.logger.WithFields(logrus.Fields{
				"subscriber":   id,
				"recording_id": o.RecordingID,
			}).Warn("Dropping outcome for slow subscriber")
		}
	}
}

func (c *Coordinator) loop() {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.logger.Debug("Recording poll loop started")
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.Tick(ctx)

			c.mu.Lock()
			if len(c.pending) == 0 {
				c.running = false
				c.mu.Unlock()
				c.logger.Debug("Recording poll loop stopped, nothing pending")
				return
			}
			c.mu.Unlock()
		}
	}
}

// Tick polls every pending recording once, concurrently, and returns how
// many are still pending afterwards.
func (c *Coordinator) Tick(ctx context.Context) int {
	ids := c.Pending()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.poll(ctx, id)
		}(id)
	}
	wg.Wait()

	c.checkStale()

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) poll(ctx context.Context, id string) {
	log := c.logger.WithFields(logrus.Fields{
		"operation":    "Coordinator.poll",
		"recording_id": id,
	})

	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()

	resp, err := c.source.RecordingStatus(pollCtx, id)
	if err != nil {
		log.WithError(err).Warn("Status poll failed, retrying next tick")
		c.publish(Outcome{RecordingID: id, Kind: OutcomePollError, Error: err.Error(), At: time.Now()})
		return
	}

	outcome, rec, ok := c.apply(id, resp)
	if !ok {
		return
	}

	if outcome.Kind != OutcomeProgress {
		log.WithFields(logrus.Fields{
			"outcome":     outcome.Kind,
			"zoom_points": len(rec.ZoomPoints),
		}).Info("Recording processing finished")
	}

	c.persist(id)
	c.publish(outcome)
}

// apply folds a status response into the tracked recording. A recording
// leaves the pending set at most once; responses for recordings that are no
// longer pending are ignored.
func (c *Coordinator) apply(id string, resp *models.RecordingStatusResponse) (Outcome, *models.ScreenRecording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; !ok {
		return Outcome{}, nil, false
	}
	rec, ok := c.recordings[id]
	if !ok {
		delete(c.pending, id)
		return Outcome{}, nil, false
	}

	now := time.Now()
	outcome := Outcome{RecordingID: id, At: now}

	switch resp.Status {
	case models.ProcessingComplete:
		if resp.CursorData != nil {
			rec.CursorData = resp.CursorData
		}
		points := resp.ZoomPoints
		if len(points) == 0 {
			points = zoom.Detect(rec.CursorData, c.config.Frame, c.config.Zoom)
		}
		rec.ZoomPoints = mergeManual(points, rec.ZoomPoints)
		rec.ProcessingStatus = models.ProcessingComplete
		rec.Progress = 100
		delete(c.pending, id)
		outcome.Kind = OutcomeResolved

	case models.ProcessingFailed:
		rec.ProcessingStatus = models.ProcessingFailed
		delete(c.pending, id)
		outcome.Kind = OutcomeFailed
		outcome.Error = resp.Error

	case models.ProcessingProcessing, models.ProcessingPending:
		rec.ProcessingStatus = models.ProcessingProcessing
		if resp.Progress > rec.Progress {
			rec.Progress = min(resp.Progress, 99)
		}
		outcome.Kind = OutcomeProgress

	default:
		c.logger.WithFields(logrus.Fields{
			"recording_id": id,
			"status":       resp.Status,
		}).Warn("Unknown processing status, retrying next tick")
		return Outcome{}, nil, false
	}

	rec.UpdatedAt = now
	outcome.Progress = rec.Progress
	snapshot := rec.Clone()
	outcome.Recording = snapshot
	return outcome, snapshot, true
}

func mergeManual(points, existing []models.ZoomPoint) []models.ZoomPoint {
	out := append([]models.ZoomPoint{}, points...)
	for _, p := range existing {
		if p.Manual {
			out = zoom.Insert(out, p)
		}
	}
	return out
}

// persist saves the current copy of a tracked recording. The copy is taken
// after saveMu is held, so a save never overwrites a newer one.
func (c *Coordinator) persist(id string) {
	if c.repo == nil {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	rec, ok := c.Get(id)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.repo.SaveRecording(ctx, rec); err != nil {
		c.logger.WithError(err).WithField("recording_id", id).Error("Failed to persist recording")
	}
}

// checkStale logs pending recordings that have not moved for StaleAfter.
// They stay pending.
func (c *Coordinator) checkStale() {
	if c.config.StaleAfter <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.pending {
		rec := c.recordings[id]
		if rec != nil && rec.IsStale(c.config.StaleAfter) {
			c.logger.WithFields(logrus.Fields{
				"recording_id": id,
				"idle":         time.Since(rec.UpdatedAt).String(),
			}).Warn("Found stale recording")
		}
	}
}

// Close stops the polling loop and closes all subscriber channels.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.quit)
	}
	c.mu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}
