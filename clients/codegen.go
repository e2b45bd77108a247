package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nijaru/reelsmith/pipeline"
)

var _ pipeline.CodeGenerator = (*CodeGenerator)(nil)

const codegenPrompt = `You are an expert Remotion developer. Turn the approved video script into a single
self-contained TSX module that exports a component named "Video".

Rules:
- Use only "remotion" and "react" imports.
- Use <Sequence from={startFrame} durationInFrames={endFrame - startFrame}> for every scene, in order.
- For scenes with a recordingId, render <OffthreadVideo> with the recording URL and apply the zoom points
  as scale/translate interpolations around each point's time.
- When a beat map is provided, time entrances to the listed beat frames and pulse accents with the energy curve.
- Respond with ONLY the code. No explanation.`

// CodeGenerator turns an approved script into Remotion source code.
type CodeGenerator struct {
	llm *LLMClient
}

func NewCodeGenerator(llm *LLMClient) *CodeGenerator {
	return &CodeGenerator{llm: llm}
}

type codegenInput struct {
	Product    any   `json:"product"`
	Script     any   `json:"script"`
	Recordings []any `json:"recordings,omitempty"`
	Beats      any   `json:"beats,omitempty"`
}

type beatSummary struct {
	BPM       float64 `json:"bpm"`
	Beats     []int   `json:"beats"`
	Downbeats []int   `json:"downbeats"`
	Drops     []int   `json:"drops"`
}

func (g *CodeGenerator) Generate(ctx context.Context, req *pipeline.CodeRequest) (string, error) {
	const op = "CodeGenerator.Generate"

	in := codegenInput{Product: req.Product, Script: req.Script}
	for _, rec := range req.Recordings {
		in.Recordings = append(in.Recordings, map[string]any{
			"id":          rec.ID,
			"videoUrl":    rec.VideoURL,
			"trimStart":   rec.TrimStart,
			"trimEnd":     rec.TrimEnd,
			"cursorStyle": rec.CursorStyle,
			"zoomPoints":  rec.ZoomPoints,
		})
	}
	if m := req.BeatMap; m != nil {
		// The per-frame energy curve is too long for a prompt.
		in.Beats = beatSummary{BPM: m.BPM, Beats: m.Beats, Downbeats: m.Downbeats, Drops: m.Drops}
	}

	payload, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", newClientError("llm", op, 0, err, "failed to encode script")
	}

	var sb strings.Builder
	if req.Preferences.TemplateStyle != "" {
		fmt.Fprintf(&sb, "TEMPLATE STYLE: %s\n\n", req.Preferences.TemplateStyle)
	}
	fmt.Fprintf(&sb, "INPUT:\n%s\n", payload)

	content, err := g.llm.Complete(ctx, codegenPrompt, sb.String())
	if err != nil {
		return "", err
	}
	return stripFences(content), nil
}
