package recording

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/zoom"
)

type fakeSource struct {
	mu        sync.Mutex
	responses map[string][]*models.RecordingStatusResponse
	failures  map[string]error
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		responses: map[string][]*models.RecordingStatusResponse{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

// RecordingStatus replays the scripted responses for id, repeating the last.
func (f *fakeSource) RecordingStatus(_ context.Context, id string) (*models.RecordingStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[id]
	f.calls[id]++
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	script := f.responses[id]
	if len(script) == 0 {
		return &models.RecordingStatusResponse{Status: models.ProcessingProcessing}, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	resp := *script[n]
	return &resp, nil
}

func (f *fakeSource) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type memRepo struct {
	mu   sync.Mutex
	recs map[string]*models.ScreenRecording
}

func newMemRepo() *memRepo {
	return &memRepo{recs: map[string]*models.ScreenRecording{}}
}

func (r *memRepo) SaveRecording(_ context.Context, rec *models.ScreenRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = rec.Clone()
	return nil
}

func (r *memRepo) FindRecording(_ context.Context, id string) (*models.ScreenRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, errors.NotFound("memRepo.FindRecording", nil, "Recording not found")
	}
	return rec.Clone(), nil
}

func (r *memRepo) FindUnfinished(_ context.Context) ([]*models.ScreenRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ScreenRecording
	for _, rec := range r.recs {
		if rec.NeedsProcessing() {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

type memStore struct {
	objects map[string]string
}

func (s *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = string(b)
	return "https://files.example/" + key, nil
}

func (s *memStore) PutJSON(_ context.Context, key string, _ any) (string, error) {
	return "https://files.example/" + key, nil
}

func (s *memStore) GetJSON(_ context.Context, _ string, _ any) error {
	return fmt.Errorf("not implemented")
}

type fakeSubmitter struct {
	submitted []string
}

func (f *fakeSubmitter) Submit(_ context.Context, rec *models.ScreenRecording) error {
	f.submitted = append(f.submitted, rec.ID)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() CoordinatorConfig {
	return CoordinatorConfig{
		// Long enough that the background loop never fires during a test.
		PollInterval: time.Hour,
		Frame:        zoom.Frame{Width: 1000, Height: 500},
		Zoom:         zoom.DefaultPolicy(),
	}
}

func pendingRecording(id string) *models.ScreenRecording {
	return &models.ScreenRecording{
		ID:               id,
		VideoURL:         "https://files.example/" + id,
		Duration:         20,
		CursorSource:     models.CursorSourceExternal,
		ProcessingStatus: models.ProcessingPending,
		UpdatedAt:        time.Now(),
	}
}

func TestCoordinatorResolves(t *testing.T) {
	source := newFakeSource()
	source.responses["a"] = []*models.RecordingStatusResponse{
		{Status: models.ProcessingProcessing, Progress: 40},
		{Status: models.ProcessingComplete, CursorData: []models.CursorEvent{
			{Type: models.CursorClick, X: 500, Y: 250, Timestamp: 1000},
		}},
	}
	repo := newMemRepo()
	c := NewCoordinator(source, repo, testConfig(), quietLogger())
	defer c.Close()

	c.Track(pendingRecording("a"))
	ctx := context.Background()

	if n := c.Tick(ctx); n != 1 {
		t.Fatalf("pending after first tick = %d, want 1", n)
	}
	rec, _ := c.Get("a")
	if rec.ProcessingStatus != models.ProcessingProcessing || rec.Progress != 40 {
		t.Errorf("after progress: status %q progress %d", rec.ProcessingStatus, rec.Progress)
	}

	if n := c.Tick(ctx); n != 0 {
		t.Fatalf("pending after second tick = %d, want 0", n)
	}
	rec, _ = c.Get("a")
	if rec.ProcessingStatus != models.ProcessingComplete || rec.Progress != 100 {
		t.Errorf("after complete: status %q progress %d", rec.ProcessingStatus, rec.Progress)
	}
	if len(rec.ZoomPoints) != 1 || rec.ZoomPoints[0].X != 0.5 {
		t.Errorf("zoom points should be detected from cursor data, got %+v", rec.ZoomPoints)
	}

	saved, err := repo.FindRecording(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if saved.ProcessingStatus != models.ProcessingComplete {
		t.Errorf("persisted status = %q", saved.ProcessingStatus)
	}

	// Resolved recordings are not polled again.
	calls := source.callCount("a")
	c.Tick(ctx)
	if source.callCount("a") != calls {
		t.Error("resolved recording was polled again")
	}
}

func TestCoordinatorFailureIsTerminal(t *testing.T) {
	source := newFakeSource()
	source.responses["a"] = []*models.RecordingStatusResponse{
		{Status: models.ProcessingFailed, Error: "no cursor found"},
		{Status: models.ProcessingComplete},
	}
	c := NewCoordinator(source, nil, testConfig(), quietLogger())
	defer c.Close()

	c.Track(pendingRecording("a"))
	for i := 0; i < 3; i++ {
		c.Tick(context.Background())
	}

	rec, _ := c.Get("a")
	if rec.ProcessingStatus != models.ProcessingFailed {
		t.Errorf("status = %q, want failed", rec.ProcessingStatus)
	}
	if source.callCount("a") != 1 {
		t.Errorf("failed recording polled %d times, want 1", source.callCount("a"))
	}
}

func TestCoordinatorIsolatesPollFailures(t *testing.T) {
	source := newFakeSource()
	source.failures["broken"] = fmt.Errorf("connection refused")
	source.responses["ok"] = []*models.RecordingStatusResponse{
		{Status: models.ProcessingComplete, ZoomPoints: []models.ZoomPoint{{Time: 2, X: 0.3, Y: 0.3, Scale: 1.5, Duration: 2}}},
	}
	c := NewCoordinator(source, nil, testConfig(), quietLogger())
	defer c.Close()

	events, cancel := c.Subscribe()
	defer cancel()

	c.Track(pendingRecording("broken"))
	c.Track(pendingRecording("ok"))

	if n := c.Tick(context.Background()); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	ok, _ := c.Get("ok")
	if ok.ProcessingStatus != models.ProcessingComplete || len(ok.ZoomPoints) != 1 {
		t.Errorf("ok recording = %+v", ok)
	}
	broken, _ := c.Get("broken")
	if broken.ProcessingStatus != models.ProcessingPending {
		t.Errorf("broken recording status = %q, want pending", broken.ProcessingStatus)
	}
	if got := c.Pending(); len(got) != 1 || got[0] != "broken" {
		t.Errorf("pending = %v", got)
	}

	kinds := map[OutcomeKind]string{}
	for i := 0; i < 2; i++ {
		select {
		case o := <-events:
			kinds[o.Kind] = o.RecordingID
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for outcome")
		}
	}
	if kinds[OutcomeResolved] != "ok" || kinds[OutcomePollError] != "broken" {
		t.Errorf("outcomes = %v", kinds)
	}
}

func TestCoordinatorLoopStopsWhenIdle(t *testing.T) {
	source := newFakeSource()
	source.responses["a"] = []*models.RecordingStatusResponse{{Status: models.ProcessingComplete}}

	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	c := NewCoordinator(source, nil, cfg, quietLogger())
	defer c.Close()

	events, cancel := c.Subscribe()
	defer cancel()

	c.Track(pendingRecording("a"))
	if !c.Running() {
		t.Fatal("loop should start when a recording is pending")
	}

	select {
	case o := <-events:
		if o.Kind != OutcomeResolved {
			t.Errorf("outcome = %q, want resolved", o.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the loop to resolve the recording")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not stop after the pending set emptied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCoordinatorKeepsManualZoomPoints(t *testing.T) {
	source := newFakeSource()
	source.responses["a"] = []*models.RecordingStatusResponse{
		{Status: models.ProcessingComplete, ZoomPoints: []models.ZoomPoint{{Time: 5, X: 0.5, Y: 0.5, Scale: 1.5, Duration: 2}}},
	}
	c := NewCoordinator(source, nil, testConfig(), quietLogger())
	defer c.Close()

	c.Track(pendingRecording("a"))
	if _, ok := c.AddZoomPoint("a", models.ZoomPoint{Time: 1, X: 0.1, Y: 0.1, Scale: 2, Duration: 1}); !ok {
		t.Fatal("AddZoomPoint() on tracked recording failed")
	}
	c.Tick(context.Background())

	rec, _ := c.Get("a")
	if len(rec.ZoomPoints) != 2 {
		t.Fatalf("zoom points = %+v", rec.ZoomPoints)
	}
	if !rec.ZoomPoints[0].Manual || rec.ZoomPoints[0].Time != 1 || rec.ZoomPoints[1].Time != 5 {
		t.Errorf("zoom points not merged in time order: %+v", rec.ZoomPoints)
	}

	if _, ok := c.AddZoomPoint("missing", models.ZoomPoint{}); ok {
		t.Error("AddZoomPoint() on unknown recording should fail")
	}
}

func TestCoordinatorLateSaveKeepsManualZoomPoint(t *testing.T) {
	repo := newMemRepo()
	c := NewCoordinator(newFakeSource(), repo, testConfig(), quietLogger())
	defer c.Close()
	c.Track(pendingRecording("a"))

	// A poll resolves the recording, then a manual point is added and saved
	// before the poll gets to save its result.
	if _, _, ok := c.apply("a", &models.RecordingStatusResponse{
		Status:     models.ProcessingComplete,
		ZoomPoints: []models.ZoomPoint{{Time: 5, X: 0.5, Y: 0.5, Scale: 1.5, Duration: 2}},
	}); !ok {
		t.Fatal("apply() ignored a pending recording")
	}
	if _, ok := c.AddZoomPoint("a", models.ZoomPoint{Time: 1, X: 0.2, Y: 0.2, Scale: 2, Duration: 1}); !ok {
		t.Fatal("AddZoomPoint() failed")
	}
	c.persist("a")

	saved, err := repo.FindRecording(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if saved.ProcessingStatus != models.ProcessingComplete {
		t.Errorf("saved status = %q, want complete", saved.ProcessingStatus)
	}
	if len(saved.ZoomPoints) != 2 || !saved.ZoomPoints[0].Manual {
		t.Errorf("saved zoom points = %+v, want the manual point kept", saved.ZoomPoints)
	}
}

func TestCoordinatorConcurrentSavesMatchMemory(t *testing.T) {
	source := newFakeSource()
	source.responses["a"] = []*models.RecordingStatusResponse{
		{Status: models.ProcessingComplete, ZoomPoints: []models.ZoomPoint{{Time: 9, X: 0.5, Y: 0.5, Scale: 1.5, Duration: 2}}},
	}
	repo := newMemRepo()
	c := NewCoordinator(source, repo, testConfig(), quietLogger())
	defer c.Close()
	c.Track(pendingRecording("a"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Tick(context.Background())
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			c.AddZoomPoint("a", models.ZoomPoint{Time: float64(i), Scale: 2, Duration: 1})
		}
	}()
	wg.Wait()

	mem, _ := c.Get("a")
	saved, err := repo.FindRecording(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.ZoomPoints) != len(mem.ZoomPoints) || saved.ProcessingStatus != mem.ProcessingStatus {
		t.Errorf("saved %d points (%s), memory has %d (%s)",
			len(saved.ZoomPoints), saved.ProcessingStatus, len(mem.ZoomPoints), mem.ProcessingStatus)
	}
}

func newTestService() (Service, *memRepo, *memStore, *fakeSubmitter, *Coordinator) {
	repo := newMemRepo()
	store := &memStore{objects: map[string]string{}}
	sub := &fakeSubmitter{}
	coord := NewCoordinator(newFakeSource(), repo, testConfig(), quietLogger())
	svc := NewService(repo, store, coord, sub, Config{
		Frame: zoom.Frame{Width: 1000, Height: 500},
		Zoom:  zoom.DefaultPolicy(),
	}, quietLogger())
	return svc, repo, store, sub, coord
}

func TestUploadClientTracked(t *testing.T) {
	svc, repo, store, sub, coord := newTestService()
	defer coord.Close()
	ctx := context.Background()

	resp, err := svc.Upload(ctx, &UploadInput{
		Video:       strings.NewReader("webm-bytes"),
		Filename:    "../my demo.webm",
		ProjectID:   "proj",
		FeatureName: "Search",
		Duration:    12,
		CursorData: []models.CursorEvent{
			{Type: models.CursorClick, X: 100, Y: 100, Timestamp: 0},
			{Type: models.CursorClick, X: 900, Y: 400, Timestamp: 6000},
		},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !resp.Success || resp.ProcessingStatus != models.ProcessingComplete {
		t.Errorf("response = %+v", resp)
	}

	key := "recordings/" + resp.RecordingID + "/my_demo.webm"
	if store.objects[key] != "webm-bytes" {
		t.Errorf("stored objects = %v", store.objects)
	}
	if len(sub.submitted) != 0 {
		t.Error("client-tracked upload should not be submitted to CV")
	}

	saved, err := repo.FindRecording(ctx, resp.RecordingID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.CursorSource != models.CursorSourceClient || len(saved.ZoomPoints) != 2 {
		t.Errorf("saved recording = %+v", saved)
	}
	if coord.Running() {
		t.Error("client-tracked upload should not start polling")
	}

	status, err := svc.Status(ctx, resp.RecordingID)
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != models.ProcessingComplete || len(status.CursorData) != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestUploadExternalCV(t *testing.T) {
	svc, _, _, sub, coord := newTestService()
	defer coord.Close()
	ctx := context.Background()

	resp, err := svc.Upload(ctx, &UploadInput{Video: strings.NewReader("x"), Filename: "a.webm", Duration: 5})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if resp.ProcessingStatus != models.ProcessingPending {
		t.Errorf("status = %q, want pending", resp.ProcessingStatus)
	}
	if len(sub.submitted) != 1 || sub.submitted[0] != resp.RecordingID {
		t.Errorf("submitted = %v", sub.submitted)
	}
	if got := coord.Pending(); len(got) != 1 || got[0] != resp.RecordingID {
		t.Errorf("pending = %v", got)
	}

	status, err := svc.Status(ctx, resp.RecordingID)
	if err != nil {
		t.Fatal(err)
	}
	if status.CursorData != nil {
		t.Error("pending status should not carry cursor data")
	}
}

func TestUploadRejectsMissingVideo(t *testing.T) {
	svc, _, _, _, coord := newTestService()
	defer coord.Close()

	_, err := svc.Upload(context.Background(), &UploadInput{})
	if !errors.IsInvalidInput(err) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestStatusNotFound(t *testing.T) {
	svc, _, _, _, coord := newTestService()
	defer coord.Close()

	_, err := svc.Status(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestServiceAddZoomPointLoadsFromRepo(t *testing.T) {
	svc, repo, _, _, coord := newTestService()
	defer coord.Close()
	ctx := context.Background()

	stored := &models.ScreenRecording{
		ID:               "stored",
		VideoURL:         "u",
		CursorSource:     models.CursorSourceClient,
		ProcessingStatus: models.ProcessingComplete,
		ZoomPoints:       []models.ZoomPoint{{Time: 4, X: 0.5, Y: 0.5, Scale: 1.5, Duration: 2}},
	}
	if err := repo.SaveRecording(ctx, stored); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.AddZoomPoint(ctx, "stored", models.ZoomPoint{Time: 1, X: 1.4, Y: 0.2})
	if err != nil {
		t.Fatalf("AddZoomPoint() error = %v", err)
	}
	if len(rec.ZoomPoints) != 2 || rec.ZoomPoints[0].Time != 1 {
		t.Fatalf("zoom points = %+v", rec.ZoomPoints)
	}
	p := rec.ZoomPoints[0]
	if p.X != 1 || p.Scale != 1.5 || p.Duration != 2 || !p.Manual {
		t.Errorf("inserted point = %+v", p)
	}

	saved, _ := repo.FindRecording(ctx, "stored")
	if len(saved.ZoomPoints) != 2 {
		t.Errorf("zoom point not persisted: %+v", saved.ZoomPoints)
	}

	if _, err := svc.AddZoomPoint(ctx, "stored", models.ZoomPoint{Time: -1}); !errors.IsInvalidInput(err) {
		t.Errorf("expected invalid input for negative time, got %v", err)
	}
}

func TestServiceRemoveZoomPoint(t *testing.T) {
	svc, repo, _, _, coord := newTestService()
	defer coord.Close()
	ctx := context.Background()

	stored := &models.ScreenRecording{
		ID:               "stored",
		VideoURL:         "u",
		CursorSource:     models.CursorSourceClient,
		ProcessingStatus: models.ProcessingComplete,
		ZoomPoints: []models.ZoomPoint{
			{Time: 1, X: 0.2, Y: 0.2, Scale: 2, Duration: 1, Manual: true},
			{Time: 4, X: 0.5, Y: 0.5, Scale: 1.5, Duration: 2},
		},
	}
	if err := repo.SaveRecording(ctx, stored); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.RemoveZoomPoint(ctx, "stored", 0)
	if err != nil {
		t.Fatalf("RemoveZoomPoint() error = %v", err)
	}
	if len(rec.ZoomPoints) != 1 || rec.ZoomPoints[0].Time != 4 {
		t.Fatalf("zoom points = %+v", rec.ZoomPoints)
	}

	saved, _ := repo.FindRecording(ctx, "stored")
	if len(saved.ZoomPoints) != 1 {
		t.Errorf("removal not persisted: %+v", saved.ZoomPoints)
	}

	if _, err := svc.RemoveZoomPoint(ctx, "stored", 5); !errors.IsInvalidInput(err) {
		t.Errorf("expected invalid input for bad index, got %v", err)
	}
	if _, err := svc.RemoveZoomPoint(ctx, "missing", 0); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestResumeAndSnapshot(t *testing.T) {
	svc, repo, _, _, coord := newTestService()
	defer coord.Close()
	ctx := context.Background()

	for _, rec := range []*models.ScreenRecording{
		pendingRecording("p1"),
		{ID: "done", VideoURL: "u", CursorSource: models.CursorSourceClient, ProcessingStatus: models.ProcessingComplete},
	} {
		if err := repo.SaveRecording(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if n != 1 {
		t.Errorf("resumed %d, want 1", n)
	}
	if got := coord.Pending(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("pending = %v", got)
	}

	snap := svc.Snapshot([]string{"done", "missing", "p1"})
	if len(snap) != 2 || snap[0].ID != "done" || snap[1].ID != "p1" {
		t.Errorf("snapshot = %+v", snap)
	}
}
