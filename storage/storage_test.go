package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"recordings/abc/video.webm", "recordings/abc/video.webm", false},
		{"/recordings//abc", "recordings/abc", false},
		{"../../etc/passwd", "etc/passwd", false},
		{`runs\abc.json`, "runs/abc.json", false},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"demo.webm", "demo.webm"},
		{"../my demo (1).mp4", "my_demo__1_.mp4"},
		{"..", "upload"},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/files/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	url, err := store.Put(ctx, "recordings/r1/demo.webm", strings.NewReader("video"), 5, "video/webm")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if url != "http://localhost:8080/files/recordings/r1/demo.webm" {
		t.Errorf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "recordings", "r1", "demo.webm"))
	if err != nil || string(data) != "video" {
		t.Errorf("stored data = %q, %v", data, err)
	}

	type payload struct {
		Name string `json:"name"`
	}
	if _, err := store.PutJSON(ctx, "runs/r1.json", payload{Name: "Acme"}); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}
	var got payload
	if err := store.GetJSON(ctx, "runs/r1.json", &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Name != "Acme" {
		t.Errorf("Name = %q", got.Name)
	}

	if err := store.GetJSON(ctx, "runs/missing.json", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON(missing) error = %v, want ErrNotFound", err)
	}
}
