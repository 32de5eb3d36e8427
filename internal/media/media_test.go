package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deckhand-dev/deckhand/internal/logging"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantURL  string
		wantType Type
		wantAlt  string
	}{
		{
			name:     "html img double quotes",
			body:     `Some text <img src="https://example.com/image.png" alt="Test"> more text`,
			wantURL:  "https://example.com/image.png",
			wantType: TypeImage,
			wantAlt:  "Test",
		},
		{
			name:     "html img single quotes",
			body:     `<img src='https://example.com/image.jpg' />`,
			wantURL:  "https://example.com/image.jpg",
			wantType: TypeImage,
		},
		{
			name:     "html img with other attributes first",
			body:     `<img width="800" height="600" src="https://github.com/user-attachments/assets/abc123.png" alt="Screenshot">`,
			wantURL:  "https://github.com/user-attachments/assets/abc123.png",
			wantType: TypeImage,
			wantAlt:  "Screenshot",
		},
		{
			name:     "html video",
			body:     `<video src="https://example.com/demo.mp4"></video>`,
			wantURL:  "https://example.com/demo.mp4",
			wantType: TypeVideo,
		},
		{
			name:     "markdown image",
			body:     "Check out this ![screenshot](https://example.com/img.png) here",
			wantURL:  "https://example.com/img.png",
			wantType: TypeImage,
			wantAlt:  "screenshot",
		},
		{
			name:     "markdown video by extension",
			body:     "Demo: ![video](https://example.com/demo.mp4)",
			wantURL:  "https://example.com/demo.mp4",
			wantType: TypeVideo,
			wantAlt:  "video",
		},
		{
			name:     "github user attachment",
			body:     `<img width="1844" height="669" alt="Image" src="https://github.com/user-attachments/assets/6ad6bd37-7044-4a5d-8c74-cb7576e415c2" />`,
			wantURL:  "https://github.com/user-attachments/assets/6ad6bd37-7044-4a5d-8c74-cb7576e415c2",
			wantType: TypeImage,
			wantAlt:  "Image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := ExtractURLs(tt.body)
			if len(items) != 1 {
				t.Fatalf("ExtractURLs() returned %d items, want 1: %+v", len(items), items)
			}
			if items[0].URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", items[0].URL, tt.wantURL)
			}
			if items[0].Type != tt.wantType {
				t.Errorf("Type = %q, want %q", items[0].Type, tt.wantType)
			}
			if items[0].AltText != tt.wantAlt {
				t.Errorf("AltText = %q, want %q", items[0].AltText, tt.wantAlt)
			}
		})
	}
}

func TestExtractURLsMultiple(t *testing.T) {
	body := `
		First image: ![img1](https://example.com/1.png)
		Second: <img src="https://example.com/2.jpg">
		Video: <video src="https://example.com/3.mp4"></video>
	`
	items := ExtractURLs(body)
	if len(items) != 3 {
		t.Errorf("ExtractURLs() returned %d items, want 3: %+v", len(items), items)
	}
}

func TestExtractURLsNoMedia(t *testing.T) {
	if items := ExtractURLs("Just some plain text without any images or videos."); len(items) != 0 {
		t.Errorf("ExtractURLs() = %+v, want none", items)
	}
}

func TestExtractURLsDeduplicates(t *testing.T) {
	body := `
		![img](https://example.com/same.png)
		<img src="https://example.com/same.png">
	`
	items := ExtractURLs(body)
	if len(items) != 1 {
		t.Errorf("ExtractURLs() returned %d items, want 1 (same URL in HTML and markdown)", len(items))
	}
}

func TestIsVideoURL(t *testing.T) {
	videos := []string{
		"https://example.com/video.mp4",
		"https://example.com/video.MP4",
		"https://example.com/video.webm",
		"https://example.com/video.mov",
		"https://example.com/video.mp4?token=abc",
	}
	for _, url := range videos {
		if !isVideoURL(url) {
			t.Errorf("isVideoURL(%q) = false, want true", url)
		}
	}

	images := []string{
		"https://example.com/image.png",
		"https://example.com/image.jpg",
	}
	for _, url := range images {
		if isVideoURL(url) {
			t.Errorf("isVideoURL(%q) = true, want false", url)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"", "image/png", "png"},
		{"", "image/jpeg", "jpg"},
		{"", "video/mp4", "mp4"},
		{"https://example.com/img.png", "", "png"},
		{"https://example.com/img.PNG", "", "png"},
		{"https://example.com/img.png?token=abc", "", "png"},
		{"https://example.com/no-extension", "", "png"},
		{"https://example.com/archive.tar.gz", "", "png"},
	}
	for _, tt := range tests {
		if got := extension(tt.url, tt.contentType); got != tt.want {
			t.Errorf("extension(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}

func TestExtractAssetID(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{
			url:    "https://github.com/user-attachments/assets/6ad6bd37-7044-4a5d-8c74-cb7576e415c2",
			want:   "6ad6bd37-7044-4a5d-8c74-cb7576e415c2",
			wantOK: true,
		},
		{
			url:    "https://private-user-images.githubusercontent.com/812199/535780376-6ad6bd37-7044-4a5d-8c74-cb7576e415c2.png?jwt=eyJ",
			want:   "6ad6bd37-7044-4a5d-8c74-cb7576e415c2",
			wantOK: true,
		},
		{
			url:    "https://example.com/image.png",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		got, ok := extractAssetID(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("extractAssetID(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestProcessBodyWithHTMLUsesSignedURLs(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	// The raw body carries the unauthenticated attachment URL; the
	// rendered body carries a signed URL for the same asset UUID.
	body := `Before <img src="https://github.com/user-attachments/assets/6ad6bd37-7044-4a5d-8c74-cb7576e415c2" /> after`
	bodyHTML := `<p>Before <img src="` + srv.URL + `/signed/535780376-6ad6bd37-7044-4a5d-8c74-cb7576e415c2.png?jwt=tok" /> after</p>`

	dest := t.TempDir()
	p := NewProcessor(logging.Default())
	processed, err := p.ProcessBodyWithHTML(context.Background(), body, bodyHTML, dest)
	if err != nil {
		t.Fatalf("ProcessBodyWithHTML() error = %v", err)
	}

	if !strings.Contains(requestedPath, "signed") {
		t.Errorf("download hit %q, want the signed URL", requestedPath)
	}

	wantFile := filepath.Join(dest, "image-0.png")
	data, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("downloaded content = %q", data)
	}

	if strings.Contains(processed, "user-attachments") {
		t.Errorf("original URL still present in processed body:\n%s", processed)
	}
	if !strings.Contains(processed, wantFile) {
		t.Errorf("local path missing from processed body:\n%s", processed)
	}
	if !strings.HasPrefix(processed, "Before ") || !strings.HasSuffix(processed, " after") {
		t.Errorf("surrounding text damaged:\n%s", processed)
	}
}

func TestProcessBodyKeepsOriginalOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	body := "Look: ![shot](" + srv.URL + "/gone.png)"
	p := NewProcessor(logging.Default())
	processed, err := p.ProcessBody(context.Background(), body, t.TempDir())
	if err != nil {
		t.Fatalf("ProcessBody() error = %v", err)
	}
	if processed != body {
		t.Errorf("body changed despite failed download:\n%s", processed)
	}
}

func TestProcessBodyVideoAnnotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	body := `<video src="` + srv.URL + `/demo.mp4"></video>`
	dest := t.TempDir()
	p := NewProcessor(logging.Default())
	processed, err := p.ProcessBody(context.Background(), body, dest)
	if err != nil {
		t.Fatalf("ProcessBody() error = %v", err)
	}

	if !strings.Contains(processed, "[Video - not readable by Claude]") {
		t.Errorf("video annotation missing:\n%s", processed)
	}
	if !strings.Contains(processed, filepath.Join(dest, "video-0.mp4")) {
		t.Errorf("local video path missing:\n%s", processed)
	}
}

func TestProcessBodyNoMediaUntouched(t *testing.T) {
	p := NewProcessor(logging.Default())
	body := "No media here."
	processed, err := p.ProcessBody(context.Background(), body, t.TempDir())
	if err != nil {
		t.Fatalf("ProcessBody() error = %v", err)
	}
	if processed != body {
		t.Errorf("ProcessBody() = %q, want unchanged", processed)
	}
}
