// Package media extracts image and video links from issue bodies,
// downloads them next to the job's daemon state, and rewrites the body
// to local paths so the agent can actually open them. GitHub
// user-attachments need the signed URLs from the rendered body; the raw
// URLs return 404 under token auth.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/logging"
)

// Type distinguishes media the agent can read from media it cannot.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Item is one media reference found in an issue body.
type Item struct {
	// URL is the link target.
	URL string
	// Type of media, detected from tag or extension.
	Type Type
	// AltText from the markdown alt or img alt attribute, if any.
	AltText string
	// OriginalMatch is the full matched text, kept for replacement.
	OriginalMatch string
}

var (
	imgTagRe   = regexp.MustCompile(`<img\s+[^>]*?/?>`)
	srcAttrRe  = regexp.MustCompile(`src\s*=\s*["']([^"']+)["']`)
	altAttrRe  = regexp.MustCompile(`alt\s*=\s*["']([^"']*)["']`)
	videoTagRe = regexp.MustCompile(`<video\s+[^>]*?src\s*=\s*["']([^"']+)["'][^>]*?/?>`)
	mdImageRe  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	assetIDRe  = regexp.MustCompile(`([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)
)

// ExtractURLs finds all media references in a body: HTML img tags, HTML
// video tags, and markdown images. A URL appearing both as HTML and
// markdown is reported once.
func ExtractURLs(body string) []Item {
	var items []Item

	for _, tag := range imgTagRe.FindAllString(body, -1) {
		src := srcAttrRe.FindStringSubmatch(tag)
		if src == nil {
			continue
		}
		var alt string
		if m := altAttrRe.FindStringSubmatch(tag); m != nil {
			alt = m[1]
		}
		items = append(items, Item{
			URL:           src[1],
			Type:          TypeImage,
			AltText:       alt,
			OriginalMatch: tag,
		})
	}

	for _, m := range videoTagRe.FindAllStringSubmatch(body, -1) {
		items = append(items, Item{
			URL:           m[1],
			Type:          TypeVideo,
			OriginalMatch: m[0],
		})
	}

	for _, m := range mdImageRe.FindAllStringSubmatch(body, -1) {
		url := m[2]
		mediaType := TypeImage
		if isVideoURL(url) {
			mediaType = TypeVideo
		}

		duplicate := false
		for _, existing := range items {
			if existing.URL == url {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		items = append(items, Item{
			URL:           url,
			Type:          mediaType,
			AltText:       m[1],
			OriginalMatch: m[0],
		})
	}

	return items
}

// isVideoURL reports whether a URL points at a video by extension.
func isVideoURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".mp4", ".webm", ".mov", ".avi", ".mkv"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, ext := range []string{".mp4?", ".webm?", ".mov?"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// extension picks a file extension, preferring the content type over the
// URL, defaulting to png.
func extension(url, contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	}

	path := url
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext := strings.ToLower(path[i+1:])
		switch ext {
		case "png", "jpg", "jpeg", "gif", "webp", "svg", "mp4", "webm", "mov", "avi", "mkv":
			return ext
		}
	}

	return "png"
}

// extractAssetID pulls the UUID out of a GitHub user-attachments URL, in
// either the raw form (.../assets/UUID) or the signed form
// (...-UUID.png?jwt=...). The UUID is what ties the two forms together.
func extractAssetID(url string) (string, bool) {
	m := assetIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Processor downloads media and rewrites issue bodies.
type Processor struct {
	client *http.Client
	logger *logging.Logger
}

// NewProcessor creates a Processor. No auth headers are sent: signed
// attachment URLs carry their own JWT, and public URLs need none.
func NewProcessor(logger *logging.Logger) *Processor {
	return &Processor{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

// download fetches one item into destDir and returns the local path.
func (p *Processor) download(ctx context.Context, item Item, destDir string, index int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", item.URL, err)
	}
	req.Header.Set("User-Agent", "deckhand-media-downloader")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch media from %s: %w", item.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to download media from %s: HTTP %d", item.URL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)

	filename := fmt.Sprintf("%s-%d.%s", item.Type, index, extension(item.URL, contentType))
	destPath := filepath.Join(destDir, filename)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read media bytes from %s: %w", item.URL, err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media to %s: %w", destPath, err)
	}

	p.logger.Debug("downloaded media", zap.String("url", item.URL), zap.String("path", destPath))
	return destPath, nil
}

// replacement renders the local reference substituted into the body.
func replacement(mediaType Type, localPath string) string {
	if mediaType == TypeVideo {
		return localPath + " [Video - not readable by Claude]"
	}
	return localPath
}

// ProcessBody downloads every media item referenced in body into destDir
// and rewrites the references to local paths. A failed download keeps
// the original URL; the rest of the body is still processed.
func (p *Processor) ProcessBody(ctx context.Context, body, destDir string) (string, error) {
	items := ExtractURLs(body)
	if len(items) == 0 {
		return body, nil
	}

	p.logger.Info("found media in issue body", zap.Int("count", len(items)))

	processed := body
	for index, item := range items {
		localPath, err := p.download(ctx, item, destDir, index)
		if err != nil {
			p.logger.Warn("failed to download media, keeping original URL",
				zap.String("url", item.URL), zap.Error(err))
			continue
		}
		processed = strings.ReplaceAll(processed, item.OriginalMatch, replacement(item.Type, localPath))
	}
	return processed, nil
}

// ProcessBodyWithHTML downloads media using the signed URLs found in the
// rendered HTML body, then rewrites the raw body. Items are matched
// across the two bodies by attachment UUID; an item with no signed
// counterpart is fetched by its raw URL.
func (p *Processor) ProcessBodyWithHTML(ctx context.Context, body, bodyHTML, destDir string) (string, error) {
	htmlItems := ExtractURLs(bodyHTML)
	if len(htmlItems) == 0 {
		return body, nil
	}

	p.logger.Info("found media with signed URLs in rendered body", zap.Int("count", len(htmlItems)))

	signed := make(map[string]Item, len(htmlItems))
	for _, item := range htmlItems {
		if id, ok := extractAssetID(item.URL); ok {
			signed[id] = item
		}
	}

	processed := body
	downloadIndex := 0
	for _, bodyItem := range ExtractURLs(body) {
		downloadItem := bodyItem
		if id, ok := extractAssetID(bodyItem.URL); ok {
			if signedItem, ok := signed[id]; ok {
				downloadItem = signedItem
			}
		}

		localPath, err := p.download(ctx, downloadItem, destDir, downloadIndex)
		if err != nil {
			p.logger.Warn("failed to download media, keeping original URL",
				zap.String("url", bodyItem.URL), zap.Error(err))
			continue
		}

		processed = strings.ReplaceAll(processed, bodyItem.OriginalMatch, replacement(bodyItem.Type, localPath))
		downloadIndex++
	}
	return processed, nil
}
