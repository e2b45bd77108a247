package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/nijaru/reelsmith/beatmap"
	"github.com/nijaru/reelsmith/models"
)

// Delta is what a stage hands back: the fields it populated and any errors.
// Stages never mutate the state they are given.
type Delta struct {
	ProductData  *models.ProductData
	VideoScript  *models.VideoScript
	BeatMap      *models.BeatMap
	RemotionCode string
	VideoURL     string
	Errors       []string
	Next         models.Step
}

func failure(format string, args ...any) Delta {
	return Delta{
		Errors: []string{fmt.Sprintf(format, args...)},
		Next:   models.StepError,
	}
}

// Inputs carries the request-scoped values a stage may read alongside the
// state.
type Inputs struct {
	URL         string
	Description string
	Preferences models.UserPreferences
	Audio       *models.AudioRef
	Recordings  []models.ScreenRecording
}

type Stage func(ctx context.Context, state *models.PipelineState, in Inputs) Delta

type Stages struct {
	Scrape  Stage
	Script  Stage
	Codegen Stage
	Render  Stage
}

func NewStages(scraper Scraper, author ScriptAuthor, codegen CodeGenerator, renderer Renderer, settings Settings) Stages {
	return Stages{
		Scrape:  ScrapeStage(scraper),
		Script:  ScriptStage(author, settings),
		Codegen: CodegenStage(codegen, settings),
		Render:  RenderStage(renderer, settings),
	}
}

func ScrapeStage(scraper Scraper) Stage {
	return func(ctx context.Context, _ *models.PipelineState, in Inputs) Delta {
		product, err := scraper.Scrape(ctx, in.URL)
		if err != nil {
			return failure("Content extraction failed: %v", err)
		}
		if !product.Valid() {
			return failure("Content extraction returned no product profile for %s", in.URL)
		}
		if product.SourceURL == "" {
			product.SourceURL = in.URL
		}
		return Delta{ProductData: product, Next: models.StepScripting}
	}
}

// PlaceholderProduct builds a minimal product profile from a free-text
// description when no URL was given.
func PlaceholderProduct(description string) *models.ProductData {
	description = strings.TrimSpace(description)
	name := firstSentence(description)
	if r := []rune(name); len(r) > 60 {
		name = strings.TrimSpace(string(r[:60]))
	}
	if name == "" {
		name = "Your Product"
	}
	return &models.ProductData{
		Name:        name,
		Tagline:     firstSentence(description),
		Description: description,
		Features:    []string{},
		Palette:     models.DefaultPalette(),
	}
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func ScriptStage(author ScriptAuthor, settings Settings) Stage {
	return func(ctx context.Context, state *models.PipelineState, in Inputs) Delta {
		if !state.ProductData.Valid() {
			return failure("Script generation requires a product profile")
		}

		duration := in.Preferences.Duration
		if duration <= 0 {
			duration = settings.DefaultDuration
		}
		target := duration * settings.FPS

		beats, err := beatMapFor(in.Audio, float64(duration), settings)
		if err != nil {
			return failure("Beat map generation failed: %v", err)
		}

		script, err := author.Author(ctx, &AuthorRequest{
			Product:      state.ProductData,
			Description:  in.Description,
			Preferences:  in.Preferences,
			Recordings:   in.Recordings,
			BeatMap:      beats,
			FPS:          settings.FPS,
			TargetFrames: target,
			SceneCount:   settings.SceneCountFor(duration),
		})
		if err != nil {
			return failure("Script generation failed: %v", err)
		}
		if script == nil || len(script.Scenes) == 0 {
			return failure("Script generation returned no scenes")
		}
		if lo, hi := settings.SceneRange(duration); len(script.Scenes) < lo || len(script.Scenes) > hi {
			return failure("Script generation returned %d scenes, expected %d to %d for a %d second video",
				len(script.Scenes), lo, hi, duration)
		}

		script.FPS = settings.FPS
		script.FitToDuration(target)
		if err := script.Validate(); err != nil {
			return failure("Script generation produced an invalid script: %v", err)
		}

		return Delta{VideoScript: script, BeatMap: beats, Next: models.StepReview}
	}
}

// beatMapFor returns nil when the audio track has no tempo.
func beatMapFor(audio *models.AudioRef, durationSec float64, settings Settings) (*models.BeatMap, error) {
	if audio == nil || audio.BPM <= 0 {
		return nil, nil
	}
	bpm := beatmap.ClampBPM(audio.BPM, settings.Beat)
	return beatmap.Generate(bpm, durationSec, settings.FPS, settings.Beat)
}

func CodegenStage(gen CodeGenerator, settings Settings) Stage {
	return func(ctx context.Context, state *models.PipelineState, in Inputs) Delta {
		if state.VideoScript == nil {
			return failure("Code generation requires an approved script")
		}
		beats := state.BeatMap
		if beats == nil && settings.FPS > 0 {
			m, err := beatMapFor(in.Audio, float64(state.VideoScript.TotalDuration)/float64(settings.FPS), settings)
			if err != nil {
				return failure("Beat map generation failed: %v", err)
			}
			beats = m
		}
		code, err := gen.Generate(ctx, &CodeRequest{
			Script:      state.VideoScript,
			Product:     state.ProductData,
			Preferences: in.Preferences,
			Recordings:  in.Recordings,
			BeatMap:     beats,
		})
		if err != nil {
			return failure("Code generation failed: %v", err)
		}
		if strings.TrimSpace(code) == "" {
			return failure("Code generation returned empty output")
		}
		return Delta{RemotionCode: code, BeatMap: beats, Next: models.StepGenerating}
	}
}

func RenderStage(renderer Renderer, settings Settings) Stage {
	return func(ctx context.Context, state *models.PipelineState, _ Inputs) Delta {
		if state.RemotionCode == "" || state.VideoScript == nil {
			return failure("Rendering requires generated code")
		}
		resp, err := renderer.Render(ctx, &models.RenderRequest{
			RemotionCode:     state.RemotionCode,
			DurationInFrames: state.VideoScript.TotalDuration,
			FPS:              settings.FPS,
			Format:           settings.RenderFormat,
		})
		if err != nil {
			return failure("Render failed: %v", err)
		}
		if !resp.Success {
			return failure("Render failed: %s", resp.Error)
		}
		if resp.VideoURL == "" {
			return failure("Render finished without a video URL")
		}
		return Delta{VideoURL: resp.VideoURL, Next: models.StepComplete}
	}
}
