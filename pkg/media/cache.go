// Package media is the bridge's media cache: remote images referenced
// by canonical messages are fetched once per URL and kept on disk,
// keyed by the md5 of the URL, so repeated references to the same
// remote image never trigger a second download.
package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/picoclaw-bridge/bridge/pkg/logger"
)

// extByContentType pins the extension for the content types this
// bridge actually expects to carry (adapters upload chat images, not
// arbitrary files).
var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Cache fetches and persists remote media by URL.
type Cache struct {
	dir    string
	client *http.Client
}

// NewCache creates a Cache rooted at dir, creating the directory if
// necessary.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create cache dir: %w", err)
	}
	return &Cache{dir: dir, client: &http.Client{}}, nil
}

// Fetch returns the local path for url, downloading it first if it is
// not already cached. Concurrent calls for the same URL may race and
// download twice; the loser's file is simply left on disk unreferenced
// by the return value, which is harmless for a content-addressed cache.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	key := md5Hex(url)

	if existing, ok := c.existing(key); ok {
		return existing, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("media: build request for %s: %w", url, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media: fetch %s: status %d", url, resp.StatusCode)
	}

	ext := extFor(resp.Header.Get("Content-Type"))
	path := filepath.Join(c.dir, key+ext)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("media: create %s: %w", path, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("media: write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("media: close %s: %w", path, err)
	}

	logger.DebugCF("media", "fetched and cached", map[string]any{"url": url, "path": path})
	return path, nil
}

// WriteBytes persists raw bytes (e.g. a platform SDK handed us an
// attachment as a byte slice rather than a URL) under a content-addressed
// name, returning the local path.
func (c *Cache) WriteBytes(data []byte, contentType string) (string, error) {
	key := md5HexBytes(data)
	ext := extFor(contentType)
	path := filepath.Join(c.dir, key+ext)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %s: %w", path, err)
	}
	return path, nil
}

func (c *Cache) existing(key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, key+"*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5HexBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func extFor(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	if ext, ok := extByContentType[contentType]; ok {
		return ext
	}
	if idx := strings.Index(contentType, "/"); idx >= 0 {
		if subtype := contentType[idx+1:]; subtype != "" {
			return "." + subtype
		}
	}
	return ""
}
