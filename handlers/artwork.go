package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// Artwork hosts the catalog sources serve images from. Anything else is
// refused so the proxy cannot be used as an open relay.
var allowedArtworkHosts = map[string]bool{
	"image.tmdb.org":         true,
	"s4.anilist.co":          true,
	"covers.openlibrary.org": true,
	"via.placeholder.com":    true,
}

// ArtworkHandler proxies poster and backdrop images with resize and an
// on-disk cache, so clients never hit the image CDNs directly.
type ArtworkHandler struct {
	cacheDir   string
	httpc      *http.Client
	mu         sync.RWMutex
	inProgress map[string]chan struct{} // Prevent duplicate fetches
}

// NewArtworkHandler creates a new artwork proxy handler
func NewArtworkHandler(cacheDir string) *ArtworkHandler {
	imgCacheDir := filepath.Join(cacheDir, "artwork")
	if err := os.MkdirAll(imgCacheDir, 0755); err != nil {
		log.Printf("[artwork] Warning: could not create cache dir %s: %v", imgCacheDir, err)
	}

	return &ArtworkHandler{
		cacheDir: imgCacheDir,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		inProgress: make(map[string]chan struct{}),
	}
}

// Proxy handles artwork proxy requests
// Query params:
//   - url: source image URL (required, must be an allowed artwork host)
//   - w: target width (optional, default: original)
//   - q: JPEG quality 1-100 (optional, default: 80)
func (h *ArtworkHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")

	if sourceURL == "" {
		http.Error(w, "url parameter required", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(sourceURL)
	if err != nil || !allowedArtworkHosts[parsed.Host] {
		http.Error(w, "URL not allowed", http.StatusForbidden)
		return
	}

	// Parse target width (0 = original size)
	targetWidth := 0
	if wStr := r.URL.Query().Get("w"); wStr != "" {
		if w, err := strconv.Atoi(wStr); err == nil && w > 0 && w <= 2000 {
			targetWidth = w
		}
	}

	// JPEG quality (default 80, good balance of size and quality)
	quality := 80
	if qStr := r.URL.Query().Get("q"); qStr != "" {
		if q, err := strconv.Atoi(qStr); err == nil && q >= 1 && q <= 100 {
			quality = q
		}
	}

	// Generate cache key from URL + width + quality
	cacheKey := h.cacheKey(sourceURL, targetWidth, quality)
	cachePath := filepath.Join(h.cacheDir, cacheKey+".jpg")

	// Check cache first
	if data, err := os.ReadFile(cachePath); err == nil {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
		w.Header().Set("X-Cache", "HIT")
		w.Write(data)
		return
	}

	// Prevent duplicate fetches for the same image
	h.mu.Lock()
	if ch, exists := h.inProgress[cacheKey]; exists {
		h.mu.Unlock()
		// Wait for other request to finish
		<-ch
		// Now try to serve from cache
		if data, err := os.ReadFile(cachePath); err == nil {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			w.Header().Set("X-Cache", "HIT")
			w.Write(data)
			return
		}
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}
	// Mark as in progress
	ch := make(chan struct{})
	h.inProgress[cacheKey] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inProgress, cacheKey)
		close(ch)
		h.mu.Unlock()
	}()

	// Fetch the image
	resp, err := h.httpc.Get(sourceURL)
	if err != nil {
		log.Printf("[artwork] Fetch error for %s: %v", sourceURL, err)
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[artwork] Fetch returned %d for %s", resp.StatusCode, sourceURL)
		http.Error(w, "Image source error", resp.StatusCode)
		return
	}

	// Decode the image
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		log.Printf("[artwork] Decode error for %s: %v", sourceURL, err)
		http.Error(w, "Failed to decode image", http.StatusInternalServerError)
		return
	}

	// Resize if requested
	if targetWidth > 0 {
		bounds := img.Bounds()
		origWidth := bounds.Dx()
		origHeight := bounds.Dy()

		// Only resize if target is smaller than original
		if targetWidth < origWidth {
			ratio := float64(targetWidth) / float64(origWidth)
			targetHeight := int(float64(origHeight) * ratio)

			dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))

			// Use CatmullRom for high quality downscaling
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
			img = dst
		}
	}

	// Encode as JPEG for consistent output and better compression
	tmpPath := cachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		log.Printf("[artwork] Cache create error: %v", err)
		// Still serve the image, just don't cache
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Cache", "MISS-NOCACHE")
		jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		return
	}

	// Encode to temp file
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		log.Printf("[artwork] Encode error: %v", err)
		http.Error(w, "Failed to encode image", http.StatusInternalServerError)
		return
	}
	f.Close()

	// Atomic rename
	if err := os.Rename(tmpPath, cachePath); err != nil {
		os.Remove(tmpPath)
		log.Printf("[artwork] Cache rename error: %v", err)
	}

	// Serve from cache
	data, err := os.ReadFile(cachePath)
	if err != nil {
		http.Error(w, "Failed to read cached image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
	w.Header().Set("X-Cache", "MISS")
	w.Write(data)
}

// cacheKey generates a unique cache key for the image
func (h *ArtworkHandler) cacheKey(url string, width, quality int) string {
	data := fmt.Sprintf("%s|%d|%d", url, width, quality)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16]) // 32 char hex string
}

// Options handles CORS preflight
func (h *ArtworkHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ClearCache removes all cached images
func (h *ArtworkHandler) ClearCache() error {
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil {
		return err
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			if err := os.Remove(filepath.Join(h.cacheDir, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to remove %d files", len(errs))
	}
	return nil
}

// CacheStats returns cache statistics
func (h *ArtworkHandler) CacheStats() (count int, sizeBytes int64) {
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil {
		return 0, 0
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			count++
			if info, err := entry.Info(); err == nil {
				sizeBytes += info.Size()
			}
		}
	}
	return
}
