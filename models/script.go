package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrSceneIndex    = errors.New("scene index out of range")
	ErrSceneDuration = errors.New("scene duration must be at least one frame")
)

type SceneType string

const (
	SceneIntro     SceneType = "intro"
	SceneFeature   SceneType = "feature"
	SceneRecording SceneType = "recording"
	SceneShowcase  SceneType = "showcase"
	SceneCTA       SceneType = "cta"
	SceneOutro     SceneType = "outro"
)

type SceneContent struct {
	Headline    string      `json:"headline,omitempty"`
	Subtext     string      `json:"subtext,omitempty"`
	Bullets     []string    `json:"bullets,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	RecordingID string      `json:"recordingId,omitempty"`
	ZoomPoints  []ZoomPoint `json:"zoomPoints,omitempty"`
}

type SceneStyle struct {
	Background string `json:"background,omitempty"`
	TextColor  string `json:"textColor,omitempty"`
	Transition string `json:"transition,omitempty"`
	Animation  string `json:"animation,omitempty"`
}

// Scene occupies the half-open frame range [StartFrame, EndFrame).
type Scene struct {
	ID         string       `json:"id"`
	Type       SceneType    `json:"type"`
	StartFrame int          `json:"startFrame"`
	EndFrame   int          `json:"endFrame"`
	Content    SceneContent `json:"content"`
	Style      SceneStyle   `json:"style"`
}

func (s Scene) Duration() int {
	return s.EndFrame - s.StartFrame
}

// VideoScript is an ordered, gapless sequence of scenes. TotalDuration is in
// frames and always equals the last scene's EndFrame.
type VideoScript struct {
	Scenes        []Scene `json:"scenes"`
	TotalDuration int     `json:"totalDuration"`
	FPS           int     `json:"fps"`
}

func (v *VideoScript) Clone() *VideoScript {
	c := *v
	c.Scenes = make([]Scene, len(v.Scenes))
	copy(c.Scenes, v.Scenes)
	return &c
}

// Repack lays scenes out back to back from frame 0, keeping each scene's
// duration. Scenes with a non-positive duration are given one frame.
func (v *VideoScript) Repack() {
	frame := 0
	for i := range v.Scenes {
		d := v.Scenes[i].Duration()
		if d < 1 {
			d = 1
		}
		v.Scenes[i].StartFrame = frame
		v.Scenes[i].EndFrame = frame + d
		frame += d
	}
	v.TotalDuration = frame
}

// AddScene inserts s at index at, or appends when at == len(Scenes).
func (v *VideoScript) AddScene(at int, s Scene) error {
	if at < 0 || at > len(v.Scenes) {
		return errors.Wrapf(ErrSceneIndex, "add at %d", at)
	}
	if s.Duration() < 1 {
		return ErrSceneDuration
	}
	v.Scenes = append(v.Scenes, Scene{})
	copy(v.Scenes[at+1:], v.Scenes[at:])
	v.Scenes[at] = s
	v.Repack()
	return nil
}

func (v *VideoScript) RemoveScene(i int) error {
	if i < 0 || i >= len(v.Scenes) {
		return errors.Wrapf(ErrSceneIndex, "remove %d", i)
	}
	v.Scenes = append(v.Scenes[:i], v.Scenes[i+1:]...)
	v.Repack()
	return nil
}

func (v *VideoScript) MoveScene(from, to int) error {
	if from < 0 || from >= len(v.Scenes) || to < 0 || to >= len(v.Scenes) {
		return errors.Wrapf(ErrSceneIndex, "move %d to %d", from, to)
	}
	s := v.Scenes[from]
	v.Scenes = append(v.Scenes[:from], v.Scenes[from+1:]...)
	v.Scenes = append(v.Scenes, Scene{})
	copy(v.Scenes[to+1:], v.Scenes[to:])
	v.Scenes[to] = s
	v.Repack()
	return nil
}

// ResizeScene changes one scene's length and shifts every later scene.
func (v *VideoScript) ResizeScene(i, frames int) error {
	if i < 0 || i >= len(v.Scenes) {
		return errors.Wrapf(ErrSceneIndex, "resize %d", i)
	}
	if frames < 1 {
		return ErrSceneDuration
	}
	v.Scenes[i].EndFrame = v.Scenes[i].StartFrame + frames
	v.Repack()
	return nil
}

// FitToDuration scales scene lengths proportionally so the script lasts
// total frames. Every scene keeps at least one frame, so the result may be
// longer than total when total < len(Scenes).
func (v *VideoScript) FitToDuration(total int) {
	n := len(v.Scenes)
	if n == 0 || total <= 0 {
		return
	}
	v.Repack()
	current := v.TotalDuration
	if current == total {
		return
	}

	lengths := make([]int, n)
	sum := 0
	for i, s := range v.Scenes {
		d := s.Duration() * total / current
		if d < 1 {
			d = 1
		}
		lengths[i] = d
		sum += d
	}

	for sum > total {
		longest := 0
		for i := range lengths {
			if lengths[i] > lengths[longest] {
				longest = i
			}
		}
		if lengths[longest] <= 1 {
			break
		}
		lengths[longest]--
		sum--
	}
	if sum < total {
		lengths[n-1] += total - sum
	}

	for i := range v.Scenes {
		v.Scenes[i].EndFrame = v.Scenes[i].StartFrame + lengths[i]
	}
	v.Repack()
}

// Validate checks the contiguity invariants.
func (v *VideoScript) Validate() error {
	if len(v.Scenes) == 0 {
		return errors.New("script has no scenes")
	}
	frame := 0
	for i, s := range v.Scenes {
		if s.StartFrame != frame {
			return fmt.Errorf("scene %d starts at frame %d, expected %d", i, s.StartFrame, frame)
		}
		if s.Duration() < 1 {
			return fmt.Errorf("scene %d: %w", i, ErrSceneDuration)
		}
		frame = s.EndFrame
	}
	if v.TotalDuration != frame {
		return fmt.Errorf("total duration %d does not match last scene end %d", v.TotalDuration, frame)
	}
	return nil
}
