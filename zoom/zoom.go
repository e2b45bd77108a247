package zoom

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/nijaru/reelsmith/models"
)

var ErrPointIndex = errors.New("zoom point index out of range")

type Policy struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	SuppressWindow time.Duration `yaml:"suppress_window"`
	DisplacementPx float64       `yaml:"displacement_px"`
	MaxPoints      int           `yaml:"max_points"`
	Scale          float64       `yaml:"scale"`
	Duration       time.Duration `yaml:"duration"`
}

func DefaultPolicy() Policy {
	return Policy{
		Cooldown:       5 * time.Second,
		SuppressWindow: 500 * time.Millisecond,
		DisplacementPx: 50,
		MaxPoints:      5,
		Scale:          1.5,
		Duration:       2 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.SuppressWindow <= 0 {
		p.SuppressWindow = d.SuppressWindow
	}
	if p.DisplacementPx <= 0 {
		p.DisplacementPx = d.DisplacementPx
	}
	if p.MaxPoints <= 0 {
		p.MaxPoints = d.MaxPoints
	}
	if p.Scale <= 0 {
		p.Scale = d.Scale
	}
	if p.Duration <= 0 {
		p.Duration = d.Duration
	}
	return p
}

// Frame is the pixel size of the recorded video.
type Frame struct {
	Width  int
	Height int
}

// Detect picks zoom points from time-ordered cursor events. Clicks and input
// events are candidates. A candidate is dropped when it falls inside the
// cooldown of the last accepted point, or when a move event within the
// suppression window travels further than DisplacementPx from it. Rejected
// candidates do not restart the cooldown.
func Detect(events []models.CursorEvent, frame Frame, policy Policy) []models.ZoomPoint {
	policy = policy.withDefaults()
	points := make([]models.ZoomPoint, 0, policy.MaxPoints)
	if frame.Width <= 0 || frame.Height <= 0 {
		return points
	}

	cooldown := policy.Cooldown.Milliseconds()
	window := policy.SuppressWindow.Milliseconds()
	var last int64
	accepted := false

	for i, ev := range events {
		if len(points) >= policy.MaxPoints {
			break
		}
		if ev.Type != models.CursorClick && ev.Type != models.CursorInput {
			continue
		}
		if accepted && ev.Timestamp-last < cooldown {
			continue
		}
		if movesAway(ev, events[i+1:], window, policy.DisplacementPx) {
			continue
		}

		points = append(points, models.ZoomPoint{
			Time:     float64(ev.Timestamp) / 1000,
			X:        clamp01(ev.X / float64(frame.Width)),
			Y:        clamp01(ev.Y / float64(frame.Height)),
			Scale:    policy.Scale,
			Duration: policy.Duration.Seconds(),
		})
		last = ev.Timestamp
		accepted = true
	}

	return points
}

func movesAway(ev models.CursorEvent, rest []models.CursorEvent, window int64, threshold float64) bool {
	for _, next := range rest {
		if next.Timestamp-ev.Timestamp > window {
			return false
		}
		if next.Type != models.CursorMove {
			continue
		}
		if math.Hypot(next.X-ev.X, next.Y-ev.Y) > threshold {
			return true
		}
	}
	return false
}

// Insert adds p and keeps the list ordered by time. The input slice is not
// modified.
func Insert(points []models.ZoomPoint, p models.ZoomPoint) []models.ZoomPoint {
	p.X = clamp01(p.X)
	p.Y = clamp01(p.Y)
	out := make([]models.ZoomPoint, 0, len(points)+1)
	out = append(out, points...)
	out = append(out, p)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func Remove(points []models.ZoomPoint, i int) ([]models.ZoomPoint, error) {
	if i < 0 || i >= len(points) {
		return points, errors.Wrapf(ErrPointIndex, "remove %d", i)
	}
	out := make([]models.ZoomPoint, 0, len(points)-1)
	out = append(out, points[:i]...)
	return append(out, points[i+1:]...), nil
}

// Clip keeps the points that start inside [start, end) and shifts their
// times so they are relative to start. A zero end means no upper bound.
func Clip(points []models.ZoomPoint, start, end float64) []models.ZoomPoint {
	out := make([]models.ZoomPoint, 0, len(points))
	for _, p := range points {
		if p.Time < start || (end > 0 && p.Time >= end) {
			continue
		}
		p.Time -= start
		out = append(out, p)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
