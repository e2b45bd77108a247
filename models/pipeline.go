package models

import (
	"strings"
	"time"
)

type Step string

const (
	StepIdle       Step = "idle"
	StepScraping   Step = "scraping"
	StepScripting  Step = "scripting"
	StepReview     Step = "review"
	StepGenerating Step = "generating"
	StepComplete   Step = "complete"
	StepError      Step = "error"
)

func (s Step) IsTerminal() bool {
	return s == StepComplete || s == StepError
}

// Valid reports whether s is one of the known pipeline steps.
func (s Step) Valid() bool {
	switch s {
	case StepIdle, StepScraping, StepScripting, StepReview, StepGenerating, StepComplete, StepError:
		return true
	}
	return false
}

type Palette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
}

// DefaultPalette is used when the product profile does not come from a
// scraped page.
func DefaultPalette() Palette {
	return Palette{
		Primary:    "#6366F1",
		Secondary:  "#8B5CF6",
		Accent:     "#F59E0B",
		Background: "#0F172A",
		Text:       "#F8FAFC",
	}
}

type ProductData struct {
	Name        string   `json:"name"`
	Tagline     string   `json:"tagline"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features"`
	Palette     Palette  `json:"palette"`
	Screenshots []string `json:"screenshots,omitempty"`
	Logos       []string `json:"logos,omitempty"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
}

func (p *ProductData) Valid() bool {
	return p != nil && strings.TrimSpace(p.Name) != ""
}

type PipelineState struct {
	RunID        string       `json:"runId"`
	CurrentStep  Step         `json:"currentStep"`
	ProductData  *ProductData `json:"productData,omitempty"`
	VideoScript  *VideoScript `json:"videoScript,omitempty"`
	BeatMap      *BeatMap     `json:"beatMap,omitempty"`
	RemotionCode string       `json:"remotionCode,omitempty"`
	VideoURL     string       `json:"videoUrl,omitempty"`
	Errors       []string     `json:"errors"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func NewPipelineState(runID string) *PipelineState {
	now := time.Now()
	return &PipelineState{
		RunID:       runID,
		CurrentStep: StepIdle,
		Errors:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PipelineState) Failed() bool {
	return s.CurrentStep == StepError || len(s.Errors) > 0
}

// Clone copies the state so the copy can be persisted or projected without
// sharing slices with the running orchestrator.
func (s *PipelineState) Clone() *PipelineState {
	c := *s
	c.Errors = append([]string{}, s.Errors...)
	if s.ProductData != nil {
		p := *s.ProductData
		p.Features = append([]string(nil), s.ProductData.Features...)
		p.Screenshots = append([]string(nil), s.ProductData.Screenshots...)
		p.Logos = append([]string(nil), s.ProductData.Logos...)
		c.ProductData = &p
	}
	if s.VideoScript != nil {
		c.VideoScript = s.VideoScript.Clone()
	}
	if s.BeatMap != nil {
		b := *s.BeatMap
		c.BeatMap = &b
	}
	return &c
}
