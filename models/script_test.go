package models

import (
	"errors"
	"testing"
)

func newScript(lengths ...int) *VideoScript {
	v := &VideoScript{FPS: 30}
	for i, l := range lengths {
		v.Scenes = append(v.Scenes, Scene{
			ID:       string(rune('a' + i)),
			Type:     SceneFeature,
			EndFrame: l,
		})
	}
	v.Repack()
	return v
}

func ids(v *VideoScript) string {
	out := ""
	for _, s := range v.Scenes {
		out += s.ID
	}
	return out
}

func TestRepackKeepsDurations(t *testing.T) {
	v := newScript(90, 60, 30)

	if err := v.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if v.TotalDuration != 180 {
		t.Errorf("TotalDuration = %d, want 180", v.TotalDuration)
	}
	if v.Scenes[1].StartFrame != 90 || v.Scenes[2].StartFrame != 150 {
		t.Errorf("unexpected layout: %+v", v.Scenes)
	}
}

func TestSceneOperations(t *testing.T) {
	tests := []struct {
		name      string
		op        func(v *VideoScript) error
		wantOrder string
		wantTotal int
		wantErr   error
	}{
		{
			name:      "remove middle",
			op:        func(v *VideoScript) error { return v.RemoveScene(1) },
			wantOrder: "ac",
			wantTotal: 120,
		},
		{
			name: "add at front",
			op: func(v *VideoScript) error {
				return v.AddScene(0, Scene{ID: "x", EndFrame: 15})
			},
			wantOrder: "xabc",
			wantTotal: 195,
		},
		{
			name: "append",
			op: func(v *VideoScript) error {
				return v.AddScene(3, Scene{ID: "x", EndFrame: 15})
			},
			wantOrder: "abcx",
			wantTotal: 195,
		},
		{
			name:      "move last to first",
			op:        func(v *VideoScript) error { return v.MoveScene(2, 0) },
			wantOrder: "cab",
			wantTotal: 180,
		},
		{
			name:      "move first to last",
			op:        func(v *VideoScript) error { return v.MoveScene(0, 2) },
			wantOrder: "bca",
			wantTotal: 180,
		},
		{
			name:      "resize",
			op:        func(v *VideoScript) error { return v.ResizeScene(0, 30) },
			wantOrder: "abc",
			wantTotal: 120,
		},
		{
			name:      "remove out of range",
			op:        func(v *VideoScript) error { return v.RemoveScene(5) },
			wantOrder: "abc",
			wantTotal: 180,
			wantErr:   ErrSceneIndex,
		},
		{
			name: "add empty scene",
			op: func(v *VideoScript) error {
				return v.AddScene(0, Scene{ID: "x"})
			},
			wantOrder: "abc",
			wantTotal: 180,
			wantErr:   ErrSceneDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newScript(90, 60, 30)
			err := tt.op(v)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ids(v); got != tt.wantOrder {
				t.Errorf("order = %q, want %q", got, tt.wantOrder)
			}
			if v.TotalDuration != tt.wantTotal {
				t.Errorf("TotalDuration = %d, want %d", v.TotalDuration, tt.wantTotal)
			}
			if err := v.Validate(); err != nil {
				t.Errorf("Validate() after op: %v", err)
			}
		})
	}
}

func TestFitToDuration(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		target  int
		want    int
	}{
		{"stretch", []int{90, 60, 30}, 900, 900},
		{"shrink", []int{300, 300, 300}, 450, 450},
		{"uneven", []int{7, 11, 13}, 100, 100},
		{"below scene count", []int{10, 10, 10, 10}, 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newScript(tt.lengths...)
			v.FitToDuration(tt.target)
			if v.TotalDuration != tt.want {
				t.Errorf("TotalDuration = %d, want %d", v.TotalDuration, tt.want)
			}
			if err := v.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestValidateRejectsGaps(t *testing.T) {
	v := &VideoScript{
		Scenes: []Scene{
			{ID: "a", StartFrame: 0, EndFrame: 30},
			{ID: "b", StartFrame: 40, EndFrame: 60},
		},
		TotalDuration: 60,
	}
	if err := v.Validate(); err == nil {
		t.Error("expected gap to fail validation")
	}
}

func TestValidateTrim(t *testing.T) {
	tests := []struct {
		name    string
		rec     ScreenRecording
		wantErr bool
	}{
		{"untrimmed", ScreenRecording{Duration: 20}, false},
		{"valid trim", ScreenRecording{Duration: 20, TrimStart: 2, TrimEnd: 18}, false},
		{"negative start", ScreenRecording{Duration: 20, TrimStart: -1}, true},
		{"end past duration", ScreenRecording{Duration: 20, TrimEnd: 25}, true},
		{"start after end", ScreenRecording{Duration: 20, TrimStart: 10, TrimEnd: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.ValidateTrim()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTrim() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
