package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/models"
	"github.com/nijaru/reelsmith/pipeline"
)

func testOptions(url string) Options {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return Options{BaseURL: url, APIKey: "secret", Logger: l}
}

func TestScraperClient(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		want    string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"name":"Acme","tagline":"Ship","features":["a"],"palette":{"primary":"#000"}}}`,
			want:   "Acme",
		},
		{
			name:    "unsuccessful",
			status:  http.StatusOK,
			body:    `{"success":false,"error":"blocked by robots.txt"}`,
			wantErr: true,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `boom`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/scrape" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("Authorization = %q", got)
				}
				var req scrapeRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL != "https://acme.dev" {
					t.Errorf("bad request body: %+v, %v", req, err)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			product, err := NewScraperClient(testOptions(srv.URL)).Scrape(context.Background(), "https://acme.dev")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scrape() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if product.Name != tt.want {
				t.Errorf("Name = %q, want %q", product.Name, tt.want)
			}
			if product.SourceURL != "https://acme.dev" {
				t.Errorf("SourceURL = %q", product.SourceURL)
			}
		})
	}
}

func TestClientErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRenderClient(testOptions(srv.URL)).Render(context.Background(), &models.RenderRequest{})

	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if ce.StatusCode != http.StatusTooManyRequests || !ce.Temporary() {
		t.Errorf("unexpected error: %+v", ce)
	}
	if !strings.Contains(ce.Error(), "slow down") {
		t.Errorf("error text = %q", ce.Error())
	}
}

func TestMissingBaseURL(t *testing.T) {
	_, err := NewRenderClient(Options{}).Render(context.Background(), &models.RenderRequest{})
	if err == nil {
		t.Fatal("expected error without a base URL")
	}
}

func llmServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 2 || req.Model != "test-model" {
			t.Errorf("unexpected request: %+v", req)
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestLLM(url string) *LLMClient {
	return NewLLMClient(LLMOptions{Options: testOptions(url), Model: "test-model"})
}

func TestScriptAuthorParsesFencedJSON(t *testing.T) {
	content := "```json\n" + `{"scenes":[
		{"type":"intro","durationSeconds":3,"headline":"Meet Acme"},
		{"type":"recording","durationSeconds":5,"headline":"Deploy","recordingId":"rec-1"},
		{"type":"nonsense","durationSeconds":2,"headline":"Fast"}
	]}` + "\n```"
	srv := llmServer(t, content)
	defer srv.Close()

	author := NewScriptAuthor(newTestLLM(srv.URL), 30)
	script, err := author.Author(context.Background(), &pipeline.AuthorRequest{
		Product:      &models.ProductData{Name: "Acme"},
		FPS:          30,
		TargetFrames: 300,
		SceneCount:   3,
		Recordings: []models.ScreenRecording{{
			ID:         "rec-1",
			TrimStart:  1,
			TrimEnd:    9,
			ZoomPoints: []models.ZoomPoint{{Time: 0.5}, {Time: 3}},
		}},
	})
	if err != nil {
		t.Fatalf("Author() error = %v", err)
	}

	if len(script.Scenes) != 3 {
		t.Fatalf("scenes = %d, want 3", len(script.Scenes))
	}
	if script.TotalDuration != 300 {
		t.Errorf("TotalDuration = %d, want 300", script.TotalDuration)
	}
	if script.Scenes[2].Type != models.SceneFeature {
		t.Errorf("unknown type should fall back to feature, got %q", script.Scenes[2].Type)
	}
	zp := script.Scenes[1].Content.ZoomPoints
	if len(zp) != 1 || zp[0].Time != 2 {
		t.Errorf("zoom points not clipped to trim: %+v", zp)
	}
	if err := script.Validate(); err != nil {
		t.Errorf("script invalid: %v", err)
	}
}

func TestScriptAuthorRejectsProse(t *testing.T) {
	srv := llmServer(t, "Sure! Here is your script.")
	defer srv.Close()

	author := NewScriptAuthor(newTestLLM(srv.URL), 30)
	if _, err := author.Author(context.Background(), &pipeline.AuthorRequest{FPS: 30, TargetFrames: 300}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestScriptAuthorEditKeepsIDs(t *testing.T) {
	srv := llmServer(t, `{"scenes":[{"id":"b","type":"cta","durationSeconds":2,"headline":"Try it"},{"id":"a","type":"intro","durationSeconds":3,"headline":"Hi"}]}`)
	defer srv.Close()

	script := &models.VideoScript{FPS: 30, Scenes: []models.Scene{
		{ID: "a", Type: models.SceneIntro, EndFrame: 90},
		{ID: "b", Type: models.SceneCTA, EndFrame: 60},
	}}
	script.Repack()

	edited, err := NewScriptAuthor(newTestLLM(srv.URL), 30).Edit(context.Background(), "swap the scenes", script, &models.ProductData{Name: "Acme"})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.Scenes[0].ID != "b" || edited.Scenes[1].StartFrame != 60 {
		t.Errorf("unexpected edit result: %+v", edited.Scenes)
	}
}

func TestScriptAuthorEditKeepsZoomPoints(t *testing.T) {
	srv := llmServer(t, `{"scenes":[
		{"id":"a","type":"intro","durationSeconds":3,"headline":"Hi"},
		{"id":"b","type":"recording","durationSeconds":6,"headline":"Deploy faster","recordingId":"rec-1"},
		{"type":"recording","durationSeconds":4,"headline":"Again","recordingId":"rec-1"}
	]}`)
	defer srv.Close()

	points := []models.ZoomPoint{{Time: 1.5, X: 0.4, Y: 0.6, Scale: 1.5, Duration: 2}}
	script := &models.VideoScript{FPS: 30, Scenes: []models.Scene{
		{ID: "a", Type: models.SceneIntro, EndFrame: 90},
		{ID: "b", Type: models.SceneRecording, EndFrame: 150, Content: models.SceneContent{
			RecordingID: "rec-1",
			ZoomPoints:  points,
		}},
	}}
	script.Repack()

	edited, err := NewScriptAuthor(newTestLLM(srv.URL), 30).Edit(context.Background(), "make the demo longer", script, nil)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	tests := []struct {
		name  string
		scene int
		want  int
	}{
		{"intro has none", 0, 0},
		{"matched by scene id", 1, 1},
		{"matched by recording id", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := edited.Scenes[tt.scene].Content.ZoomPoints
			if len(got) != tt.want {
				t.Fatalf("zoom points = %+v, want %d", got, tt.want)
			}
			if tt.want > 0 && got[0] != points[0] {
				t.Errorf("zoom point = %+v, want %+v", got[0], points[0])
			}
		})
	}
}

func TestCodeGeneratorStripsFences(t *testing.T) {
	srv := llmServer(t, "```tsx\nexport const Video = () => null;\n```")
	defer srv.Close()

	code, err := NewCodeGenerator(newTestLLM(srv.URL)).Generate(context.Background(), &pipeline.CodeRequest{
		Script:  &models.VideoScript{},
		Product: &models.ProductData{Name: "Acme"},
		BeatMap: &models.BeatMap{BPM: 120, Beats: []int{0, 15}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if code != "export const Video = () => null;" {
		t.Errorf("code = %q", code)
	}
}

func TestCVStatusClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/recordings/rec-1/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"complete","progress":100,"cursorData":[{"type":"click","x":10,"y":20,"timestamp":1500}]}`))
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RequestsPerSecond = 50
	resp, err := NewCVStatusClient(opts).RecordingStatus(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("RecordingStatus() error = %v", err)
	}
	if resp.Status != models.ProcessingComplete || len(resp.CursorData) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.CursorData[0].Timestamp != 1500 {
		t.Errorf("timestamp = %d", resp.CursorData[0].Timestamp)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
