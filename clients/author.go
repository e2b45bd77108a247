package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/pipeline"
	"github.com/nijaru/reelsmith/zoom"
)

var _ pipeline.ScriptAuthor = (*ScriptAuthor)(nil)

const authorPrompt = `You write scripts for short product marketing videos.

Respond with ONLY valid JSON of the form {"scenes": [...]}. No markdown, no explanation.

Each scene has:
- "id": keep the existing id when editing, otherwise omit
- "type": one of "intro" | "feature" | "recording" | "showcase" | "cta" | "outro"
- "durationSeconds": how long the scene lasts
- "headline": short on-screen headline
- "subtext": one supporting sentence or null
- "bullets": up to three short bullet points or null
- "recordingId": for "recording" scenes, the id of the screen recording to show
- "imageUrl": a product screenshot URL to feature, or null
- "background", "textColor": hex colors taken from the product palette
- "transition": one of "fade" | "slide" | "zoom" | "cut"

The first scene introduces the product and the last one is a call to action.`

// ScriptAuthor writes and edits video scripts with an LLM.
type ScriptAuthor struct {
	llm *LLMClient
	fps int
}

func NewScriptAuthor(llm *LLMClient, fps int) *ScriptAuthor {
	return &ScriptAuthor{llm: llm, fps: fps}
}

type scriptJSON struct {
	Scenes []sceneJSON `json:"scenes"`
}

type sceneJSON struct {
	ID              string   `json:"id,omitempty"`
	Type            string   `json:"type"`
	DurationSeconds float64  `json:"durationSeconds"`
	Headline        string   `json:"headline"`
	Subtext         string   `json:"subtext,omitempty"`
	Bullets         []string `json:"bullets,omitempty"`
	RecordingID     string   `json:"recordingId,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	Background      string   `json:"background,omitempty"`
	TextColor       string   `json:"textColor,omitempty"`
	Transition      string   `json:"transition,omitempty"`
}

func (a *ScriptAuthor) Author(ctx context.Context, req *pipeline.AuthorRequest) (*models.VideoScript, error) {
	const op = "ScriptAuthor.Author"

	fps := req.FPS
	if fps <= 0 {
		fps = a.fps
	}
	content, err := a.llm.Complete(ctx, authorPrompt, buildAuthorPrompt(req, fps))
	if err != nil {
		return nil, err
	}

	script, err := parseScript(content, fps, req.Recordings)
	if err != nil {
		return nil, newClientError("llm", op, 0, err, "unusable script")
	}
	return script, nil
}

// Edit applies a free-text instruction to an existing script. The returned
// script replaces the input wholesale.
func (a *ScriptAuthor) Edit(ctx context.Context, message string, script *models.VideoScript, product *models.ProductData) (*models.VideoScript, error) {
	const op = "ScriptAuthor.Edit"

	fps := script.FPS
	if fps <= 0 {
		fps = a.fps
	}
	current, err := json.Marshal(toScriptJSON(script, fps))
	if err != nil {
		return nil, newClientError("llm", op, 0, err, "failed to encode script")
	}

	var sb strings.Builder
	if product != nil {
		fmt.Fprintf(&sb, "PRODUCT: %s - %s\n\n", product.Name, product.Tagline)
	}
	fmt.Fprintf(&sb, "CURRENT SCRIPT:\n%s\n\n", current)
	fmt.Fprintf(&sb, "REQUESTED CHANGE:\n%s\n\n", message)
	sb.WriteString("Return the complete updated script. Respond ONLY with valid JSON.")

	content, err := a.llm.Complete(ctx, authorPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	edited, err := parseScript(content, fps, nil)
	if err != nil {
		return nil, newClientError("llm", op, 0, err, "unusable script")
	}
	carryZoomPoints(edited, script)
	return edited, nil
}

// carryZoomPoints restores the zoom points of recording scenes, which are
// never sent to the model. Scenes are matched by ID, then by recording.
func carryZoomPoints(edited, prev *models.VideoScript) {
	byID := make(map[string][]models.ZoomPoint, len(prev.Scenes))
	byRecording := make(map[string][]models.ZoomPoint)
	for _, s := range prev.Scenes {
		if len(s.Content.ZoomPoints) == 0 {
			continue
		}
		byID[s.ID] = s.Content.ZoomPoints
		if id := s.Content.RecordingID; id != "" {
			if _, ok := byRecording[id]; !ok {
				byRecording[id] = s.Content.ZoomPoints
			}
		}
	}

	for i := range edited.Scenes {
		scene := &edited.Scenes[i]
		if scene.Content.RecordingID == "" || len(scene.Content.ZoomPoints) > 0 {
			continue
		}
		points, ok := byID[scene.ID]
		if !ok {
			points, ok = byRecording[scene.Content.RecordingID]
		}
		if ok {
			scene.Content.ZoomPoints = append([]models.ZoomPoint(nil), points...)
		}
	}
}

func buildAuthorPrompt(req *pipeline.AuthorRequest, fps int) string {
	var sb strings.Builder
	seconds := float64(req.TargetFrames) / float64(fps)

	fmt.Fprintf(&sb, "Write a %.0f second product video in about %d scenes.\n\n", seconds, req.SceneCount)
	if p := req.Product; p != nil {
		fmt.Fprintf(&sb, "PRODUCT: %s\nTAGLINE: %s\n", p.Name, p.Tagline)
		if p.Description != "" {
			fmt.Fprintf(&sb, "DESCRIPTION: %s\n", p.Description)
		}
		if len(p.Features) > 0 {
			fmt.Fprintf(&sb, "FEATURES:\n- %s\n", strings.Join(p.Features, "\n- "))
		}
		fmt.Fprintf(&sb, "PALETTE: primary %s, secondary %s, accent %s, background %s, text %s\n",
			p.Palette.Primary, p.Palette.Secondary, p.Palette.Accent, p.Palette.Background, p.Palette.Text)
		if len(p.Screenshots) > 0 {
			fmt.Fprintf(&sb, "SCREENSHOTS:\n- %s\n", strings.Join(p.Screenshots, "\n- "))
		}
	}
	if req.Description != "" && (req.Product == nil || req.Description != req.Product.Description) {
		fmt.Fprintf(&sb, "USER NOTES: %s\n", req.Description)
	}

	prefs := req.Preferences
	if prefs.Style != "" || prefs.TemplateStyle != "" || prefs.VideoType != "" {
		fmt.Fprintf(&sb, "STYLE: %s / template %s / type %s\n", prefs.Style, prefs.TemplateStyle, prefs.VideoType)
	}

	if len(req.Recordings) > 0 {
		sb.WriteString("\nSCREEN RECORDINGS (use each in one \"recording\" scene):\n")
		for _, rec := range req.Recordings {
			length := rec.Duration
			if rec.TrimEnd > 0 {
				length = rec.TrimEnd - rec.TrimStart
			}
			fmt.Fprintf(&sb, "- id %s: %s, %.1fs, %d zoom moments\n",
				rec.ID, nonEmpty(rec.FeatureName, "untitled feature"), length, len(rec.ZoomPoints))
		}
	}

	if m := req.BeatMap; m != nil {
		fmt.Fprintf(&sb, "\nMUSIC: %.0f BPM, one measure every %.2fs. Make scene lengths whole measures where possible.\n",
			m.BPM, float64(m.FramesPerBeat*4)/float64(fps))
	}

	sb.WriteString("\nRespond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

func parseScript(content string, fps int, recordings []models.ScreenRecording) (*models.VideoScript, error) {
	var raw scriptJSON
	cleaned := stripFences(content)
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse script JSON: %w (raw: %s)", err, truncate(cleaned, 200))
	}
	if len(raw.Scenes) == 0 {
		return nil, fmt.Errorf("script has no scenes")
	}

	byID := make(map[string]models.ScreenRecording, len(recordings))
	for _, rec := range recordings {
		byID[rec.ID] = rec
	}

	script := &models.VideoScript{FPS: fps, Scenes: make([]models.Scene, 0, len(raw.Scenes))}
	for _, s := range raw.Scenes {
		frames := int(math.Round(s.DurationSeconds * float64(fps)))
		if frames < 1 {
			frames = fps
		}
		id := s.ID
		if id == "" {
			id = uuid.New().String()
		}
		scene := models.Scene{
			ID:       id,
			Type:     sceneType(s.Type),
			EndFrame: frames,
			Content: models.SceneContent{
				Headline:    s.Headline,
				Subtext:     s.Subtext,
				Bullets:     s.Bullets,
				ImageURL:    s.ImageURL,
				RecordingID: s.RecordingID,
			},
			Style: models.SceneStyle{
				Background: s.Background,
				TextColor:  s.TextColor,
				Transition: s.Transition,
			},
		}
		if rec, ok := byID[s.RecordingID]; ok {
			scene.Content.ZoomPoints = zoom.Clip(rec.ZoomPoints, rec.TrimStart, rec.TrimEnd)
		}
		script.Scenes = append(script.Scenes, scene)
	}
	script.Repack()
	return script, nil
}

func toScriptJSON(script *models.VideoScript, fps int) scriptJSON {
	out := scriptJSON{Scenes: make([]sceneJSON, 0, len(script.Scenes))}
	for _, s := range script.Scenes {
		out.Scenes = append(out.Scenes, sceneJSON{
			ID:              s.ID,
			Type:            string(s.Type),
			DurationSeconds: float64(s.Duration()) / float64(fps),
			Headline:        s.Content.Headline,
			Subtext:         s.Content.Subtext,
			Bullets:         s.Content.Bullets,
			RecordingID:     s.Content.RecordingID,
			ImageURL:        s.Content.ImageURL,
			Background:      s.Style.Background,
			TextColor:       s.Style.TextColor,
			Transition:      s.Style.Transition,
		})
	}
	return out
}

func sceneType(s string) models.SceneType {
	switch t := models.SceneType(strings.ToLower(strings.TrimSpace(s))); t {
	case models.SceneIntro, models.SceneFeature, models.SceneRecording, models.SceneShowcase, models.SceneCTA, models.SceneOutro:
		return t
	}
	return models.SceneFeature
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
