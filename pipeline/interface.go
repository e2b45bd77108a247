package pipeline

import (
	"context"

	"github.com/nijaru/reelsmith/beatmap"
	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/stream"
)

type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.ProductData, error)
}

type ScriptAuthor interface {
	Author(ctx context.Context, req *AuthorRequest) (*models.VideoScript, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context, req *CodeRequest) (string, error)
}

type Renderer interface {
	Render(ctx context.Context, req *models.RenderRequest) (*models.RenderResponse, error)
}

// RecordingSource resolves recording references to their latest processed
// state. Unknown IDs are left out of the result.
type RecordingSource interface {
	Snapshot(ids []string) []models.ScreenRecording
}

// Emitter receives stream events as the run progresses.
type Emitter interface {
	Emit(t stream.EventType, data any) error
}

type AuthorRequest struct {
	Product      *models.ProductData
	Description  string
	Preferences  models.UserPreferences
	Recordings   []models.ScreenRecording
	BeatMap      *models.BeatMap
	FPS          int
	TargetFrames int
	SceneCount   int
}

type CodeRequest struct {
	Script      *models.VideoScript
	Product     *models.ProductData
	Preferences models.UserPreferences
	Recordings  []models.ScreenRecording
	BeatMap     *models.BeatMap
}

type Settings struct {
	FPS             int
	DefaultDuration int
	RenderFormat    string
	SceneSeconds    float64
	MinScenes       int
	MaxScenes       int
	Beat            beatmap.Policy
}

func DefaultSettings() Settings {
	return Settings{
		FPS:             30,
		DefaultDuration: 30,
		RenderFormat:    "mp4",
		SceneSeconds:    5,
		MinScenes:       3,
		MaxScenes:       12,
		Beat:            beatmap.DefaultPolicy(),
	}
}

// SceneCountFor is the number of scenes a video of durationSec seconds
// should have.
func (s Settings) SceneCountFor(durationSec int) int {
	n := 0
	if s.SceneSeconds > 0 {
		n = int(float64(durationSec)/s.SceneSeconds + 0.5)
	}
	if n < s.MinScenes {
		n = s.MinScenes
	}
	if s.MaxScenes > 0 && n > s.MaxScenes {
		n = s.MaxScenes
	}
	return n
}

// SceneRange is the accepted scene count for a video of durationSec
// seconds: within a quarter (at least one scene) of SceneCountFor and inside
// [MinScenes, MaxScenes].
func (s Settings) SceneRange(durationSec int) (int, int) {
	want := s.SceneCountFor(durationSec)
	slack := max(1, want/4)
	lo, hi := max(1, want-slack), want+slack
	if lo < s.MinScenes {
		lo = s.MinScenes
	}
	if s.MaxScenes > 0 && hi > s.MaxScenes {
		hi = s.MaxScenes
	}
	return lo, hi
}
