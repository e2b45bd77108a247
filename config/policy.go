package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nijaru/reelsmith/beatmap"
	"github.com/nijaru/reelsmith/zoom"
)

// Policy groups the tunable heuristics. Fields missing from a policy file
// keep their defaults.
type Policy struct {
	Zoom         zoom.Policy    `yaml:"zoom" json:"zoom"`
	Beat         beatmap.Policy `yaml:"beat" json:"beat"`
	FPS          int            `yaml:"fps" json:"fps"`
	Duration     int            `yaml:"default_duration" json:"default_duration"`
	SceneSeconds float64        `yaml:"scene_seconds" json:"scene_seconds"`
	MinScenes    int            `yaml:"min_scenes" json:"min_scenes"`
	MaxScenes    int            `yaml:"max_scenes" json:"max_scenes"`
}

func DefaultPolicy() Policy {
	return Policy{
		Zoom:         zoom.DefaultPolicy(),
		Beat:         beatmap.DefaultPolicy(),
		FPS:          30,
		Duration:     30,
		SceneSeconds: 5,
		MinScenes:    3,
		MaxScenes:    12,
	}
}

// LoadPolicy overlays the YAML file at path onto DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if p.FPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	if p.Duration <= 0 {
		return fmt.Errorf("default duration must be positive")
	}
	if p.SceneSeconds <= 0 {
		return fmt.Errorf("scene seconds must be positive")
	}
	if p.MinScenes < 1 || p.MaxScenes < p.MinScenes {
		return fmt.Errorf("scene bounds are invalid: %d-%d", p.MinScenes, p.MaxScenes)
	}
	if p.Zoom.Cooldown < 0 || p.Zoom.SuppressWindow < 0 || p.Zoom.MaxPoints < 0 {
		return fmt.Errorf("zoom policy values must not be negative")
	}
	if p.Beat.MinBPM > 0 && p.Beat.MaxBPM > 0 && p.Beat.MaxBPM <= p.Beat.MinBPM {
		return fmt.Errorf("beat bpm bounds are invalid: %.0f-%.0f", p.Beat.MinBPM, p.Beat.MaxBPM)
	}
	return nil
}
