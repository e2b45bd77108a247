package models

// BeatMap is a frame-indexed rhythm description. Beats, Downbeats, Measures
// and Drops are frame numbers in ascending order; Energy has one value in
// [0,1] per frame. TotalDuration is in frames, like VideoScript.TotalDuration.
type BeatMap struct {
	BPM           float64   `json:"bpm"`
	FPS           int       `json:"fps"`
	FramesPerBeat int       `json:"framesPerBeat"`
	TotalDuration int       `json:"totalDuration"`
	Beats         []int     `json:"beats"`
	Downbeats     []int     `json:"downbeats"`
	Measures      []int     `json:"measures"`
	Drops         []int     `json:"drops"`
	Energy        []float64 `json:"energy"`
}
