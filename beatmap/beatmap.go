package beatmap

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/nijaru/reelsmith/models"
)

const DefaultBPM = 120.0

var (
	ErrInvalidBPM      = errors.New("bpm must be positive")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidFPS      = errors.New("fps must be positive")
)

type Policy struct {
	BeatsPerMeasure   int     `yaml:"beats_per_measure"`
	DropEveryMeasures int     `yaml:"drop_every_measures"`
	PulseDecay        float64 `yaml:"pulse_decay"`
	Jitter            float64 `yaml:"jitter"`
	MinBPM            float64 `yaml:"min_bpm"`
	MaxBPM            float64 `yaml:"max_bpm"`
}

func DefaultPolicy() Policy {
	return Policy{
		BeatsPerMeasure:   4,
		DropEveryMeasures: 16,
		PulseDecay:        5.0,
		Jitter:            0.05,
		MinBPM:            60,
		MaxBPM:            200,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BeatsPerMeasure <= 0 {
		p.BeatsPerMeasure = d.BeatsPerMeasure
	}
	if p.DropEveryMeasures <= 0 {
		p.DropEveryMeasures = d.DropEveryMeasures
	}
	if p.PulseDecay <= 0 {
		p.PulseDecay = d.PulseDecay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.MinBPM <= 0 {
		p.MinBPM = d.MinBPM
	}
	if p.MaxBPM <= p.MinBPM {
		p.MaxBPM = math.Max(d.MaxBPM, p.MinBPM*2)
	}
	return p
}

// FramesPerBeat is round(60/bpm*fps), never less than one frame.
func FramesPerBeat(bpm float64, fps int) int {
	fpb := int(math.Round(60 / bpm * float64(fps)))
	if fpb < 1 {
		return 1
	}
	return fpb
}

// Generate builds a beat map for a track of durationSec seconds at the given
// tempo. Beats start at frame 0 and repeat every FramesPerBeat frames up to,
// but not including, the total frame count. Every BeatsPerMeasure-th beat
// (starting with the first) is a downbeat and opens a measure; a drop lands
// on the first frame of every DropEveryMeasures-th measure after the opening
// one. The energy curve is deterministic for a given tempo and length.
func Generate(bpm, durationSec float64, fps int, policy Policy) (*models.BeatMap, error) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return nil, ErrInvalidBPM
	}
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return nil, ErrInvalidDuration
	}
	if fps <= 0 {
		return nil, ErrInvalidFPS
	}
	policy = policy.withDefaults()

	totalFrames := int(math.Round(durationSec * float64(fps)))
	if totalFrames < 1 {
		totalFrames = 1
	}
	fpb := FramesPerBeat(bpm, fps)

	m := &models.BeatMap{
		BPM:           bpm,
		FPS:           fps,
		FramesPerBeat: fpb,
		TotalDuration: totalFrames,
		Beats:         make([]int, 0, totalFrames/fpb+1),
		Downbeats:     []int{},
		Measures:      []int{},
		Drops:         []int{},
		Energy:        make([]float64, totalFrames),
	}

	for f, i := 0, 0; f < totalFrames; f, i = f+fpb, i+1 {
		m.Beats = append(m.Beats, f)
		if i%policy.BeatsPerMeasure != 0 {
			continue
		}
		measure := len(m.Measures)
		m.Downbeats = append(m.Downbeats, f)
		m.Measures = append(m.Measures, f)
		if measure > 0 && measure%policy.DropEveryMeasures == 0 {
			m.Drops = append(m.Drops, f)
		}
	}

	rng := rand.New(rand.NewSource(seed(bpm, fps, totalFrames)))
	for f := 0; f < totalFrames; f++ {
		phase := float64(f%fpb) / float64(fpb)
		accent := 0.8
		if (f/fpb)%policy.BeatsPerMeasure == 0 {
			accent = 1.0
		}
		e := 0.2 + 0.8*accent*math.Exp(-policy.PulseDecay*phase)
		e += (rng.Float64()*2 - 1) * policy.Jitter
		m.Energy[f] = clamp(e, 0, 1)
	}

	return m, nil
}

func seed(bpm float64, fps, totalFrames int) int64 {
	return int64(math.Round(bpm*1000))*31 + int64(fps)*7 + int64(totalFrames)
}

// ClampBPM folds a tempo into the policy range by doubling or halving, then
// clamps what is still out of range.
func ClampBPM(bpm float64, policy Policy) float64 {
	policy = policy.withDefaults()
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return DefaultBPM
	}
	for i := 0; i < 8 && bpm < policy.MinBPM; i++ {
		bpm *= 2
	}
	for i := 0; i < 8 && bpm > policy.MaxBPM; i++ {
		bpm /= 2
	}
	return clamp(bpm, policy.MinBPM, policy.MaxBPM)
}

// NearestBeat returns the beat frame closest to frame, preferring the earlier
// beat on a tie. It returns -1 for a map with no beats.
func NearestBeat(m *models.BeatMap, frame int) int {
	if m == nil || len(m.Beats) == 0 {
		return -1
	}
	i := sort.SearchInts(m.Beats, frame)
	if i == 0 {
		return m.Beats[0]
	}
	if i == len(m.Beats) {
		return m.Beats[len(m.Beats)-1]
	}
	before, after := m.Beats[i-1], m.Beats[i]
	if after-frame < frame-before {
		return after
	}
	return before
}

// IsOnBeat reports whether frame is within tolerance frames of a beat.
func IsOnBeat(m *models.BeatMap, frame, tolerance int) bool {
	b := NearestBeat(m, frame)
	if b < 0 {
		return false
	}
	d := frame - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// BeatPulse is the energy value at frame, or 0 outside the map.
func BeatPulse(m *models.BeatMap, frame int) float64 {
	if m == nil || frame < 0 || frame >= len(m.Energy) {
		return 0
	}
	return m.Energy[frame]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
