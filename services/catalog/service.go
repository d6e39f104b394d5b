package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"mediatrack/models"
	"mediatrack/utils/similarity"
)

var (
	// ErrQueryRequired indicates an empty search query.
	ErrQueryRequired = errors.New("search query is required")
	// ErrUnsupportedMediaType indicates a media type no source can serve.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrAllSourcesFailed indicates every requested source errored.
	ErrAllSourcesFailed = errors.New("all catalog sources failed")
)

// Titles from different sources are considered the same release when
// their normalized titles are at least this similar and the years agree.
const dedupeThreshold = 0.92

// Config holds the catalog service configuration.
type Config struct {
	TMDBAPIKey        string
	Language          string
	CacheDir          string
	TTLHours          int
	RequestTimeoutSec int
	SearchPerSource   int
}

// Service aggregates search, trending and detail lookups across TMDB,
// AniList and OpenLibrary, with a shared bbolt response cache.
type Service struct {
	// clientMu guards tmdb, which is swapped wholesale on settings
	// changes while searches may be in flight.
	clientMu sync.RWMutex
	tmdb     *tmdbClient

	anilist *anilistClient
	books   *openLibraryClient
	cache   *responseCache

	perSource int

	// In-flight deduplication so concurrent identical searches hit
	// upstream once.
	inflightMu       sync.Mutex
	inflightRequests map[string]*inflightRequest
}

type inflightRequest struct {
	wg   sync.WaitGroup
	page *models.SearchPage
	err  error
}

// NewService creates the catalog service. The cache lives in a dedicated
// subdirectory so it can be pruned without touching other data.
func NewService(cfg Config) (*Service, error) {
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpc := &http.Client{Timeout: timeout}

	cache, err := newResponseCache(filepath.Join(cfg.CacheDir, "catalog"), cfg.TTLHours)
	if err != nil {
		return nil, fmt.Errorf("open catalog cache: %w", err)
	}

	perSource := cfg.SearchPerSource
	if perSource <= 0 {
		perSource = 20
	}

	return &Service{
		tmdb:             newTMDBClient(cfg.TMDBAPIKey, cfg.Language, httpc),
		anilist:          newAniListClient(httpc),
		books:            newOpenLibraryClient(httpc),
		cache:            cache,
		perSource:        perSource,
		inflightRequests: make(map[string]*inflightRequest),
	}, nil
}

// Close releases the cache database.
func (s *Service) Close() error {
	return s.cache.Close()
}

// UpdateAPIKeys swaps the TMDB credentials when settings change.
func (s *Service) UpdateAPIKeys(tmdbAPIKey, language string) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	next := newTMDBClient(tmdbAPIKey, language, s.tmdb.httpc)
	next.baseURL = s.tmdb.baseURL
	next.minInterval = s.tmdb.minInterval
	s.tmdb = next
}

func (s *Service) currentTMDB() *tmdbClient {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.tmdb
}

// PruneCache drops expired cache entries and returns how many were removed.
func (s *Service) PruneCache() (int, error) {
	return s.cache.Prune()
}

// ClearCache drops every cached response.
func (s *Service) ClearCache() error {
	return s.cache.Clear()
}

// Search fans out to every source that can serve one of the requested
// media types, merges and dedupes the hits, and returns one page sorted
// by popularity. A failing source only degrades the result set; the call
// errors only when every source fails.
func (s *Service) Search(ctx context.Context, query string, types []models.MediaType, page, perPage int) (*models.SearchPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	if len(types) == 0 {
		types = []models.MediaType{models.MediaTypeMovie, models.MediaTypeTV, models.MediaTypeAnime, models.MediaTypeManga, models.MediaTypeBook}
	}
	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, t)
		}
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > s.perSource {
		perPage = s.perSource
	}

	key := cacheKey("search", query, joinTypes(types), strconv.Itoa(page), strconv.Itoa(perPage))

	var cached models.SearchPage
	if s.cache.get(key, &cached) {
		return &cached, nil
	}

	// Coalesce concurrent identical searches.
	s.inflightMu.Lock()
	if inflight, exists := s.inflightRequests[key]; exists {
		s.inflightMu.Unlock()
		inflight.wg.Wait()
		return inflight.page, inflight.err
	}
	inflight := &inflightRequest{}
	inflight.wg.Add(1)
	s.inflightRequests[key] = inflight
	s.inflightMu.Unlock()

	result, err := s.searchActual(ctx, query, types, page, perPage)

	inflight.page = result
	inflight.err = err
	inflight.wg.Done()

	s.inflightMu.Lock()
	delete(s.inflightRequests, key)
	s.inflightMu.Unlock()

	if err == nil {
		s.cache.set(key, result)
	}
	return result, err
}

func (s *Service) searchActual(ctx context.Context, query string, types []models.MediaType, page, perPage int) (*models.SearchPage, error) {
	tmdb := s.currentTMDB()

	var (
		mu        sync.Mutex
		collected []models.SearchResult
		total     int
		maxPages  int
		sources   int
		failed    int
	)

	var wg conc.WaitGroup
	run := func(name string, fetch func() ([]models.SearchResult, int, error)) {
		sources++
		wg.Go(func() {
			results, sourceTotal, err := fetch()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[catalog] %s search failed query=%q: %v", name, query, err)
				failed++
				return
			}
			collected = append(collected, results...)
			total += sourceTotal
			if pages := (sourceTotal + perPage - 1) / perPage; pages > maxPages {
				maxPages = pages
			}
		})
	}

	if hasType(types, models.MediaTypeMovie) {
		run("tmdb movie", func() ([]models.SearchResult, int, error) {
			return tmdb.search(ctx, models.MediaTypeMovie, query, page)
		})
	}
	if hasType(types, models.MediaTypeTV) {
		run("tmdb tv", func() ([]models.SearchResult, int, error) {
			return tmdb.search(ctx, models.MediaTypeTV, query, page)
		})
	}
	if hasType(types, models.MediaTypeAnime) {
		run("anilist anime", func() ([]models.SearchResult, int, error) {
			return s.anilist.search(ctx, models.MediaTypeAnime, query, page, perPage)
		})
	}
	if hasType(types, models.MediaTypeManga) {
		run("anilist manga", func() ([]models.SearchResult, int, error) {
			return s.anilist.search(ctx, models.MediaTypeManga, query, page, perPage)
		})
	}
	if hasType(types, models.MediaTypeBook) {
		run("openlibrary", func() ([]models.SearchResult, int, error) {
			return s.books.search(ctx, query, page, perPage)
		})
	}

	wg.Wait()

	if sources > 0 && failed == sources {
		return nil, ErrAllSourcesFailed
	}

	merged := dedupeResults(collected)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Popularity > merged[j].Popularity
	})
	for i := range merged {
		merged[i].PosterURL = posterOrPlaceholder(merged[i].PosterURL)
	}

	return &models.SearchPage{
		Results:    merged,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: maxPages,
	}, nil
}

// Detail routes a detail lookup to the source owning the media type.
func (s *Service) Detail(ctx context.Context, mediaType models.MediaType, id string) (*models.MediaDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("media id is required")
	}

	key := cacheKey("detail", string(mediaType), id)
	var cached models.MediaDetail
	if s.cache.get(key, &cached) {
		return &cached, nil
	}

	var (
		detail *models.MediaDetail
		err    error
	)
	switch mediaType {
	case models.MediaTypeMovie, models.MediaTypeTV:
		detail, err = s.currentTMDB().details(ctx, mediaType, id)
	case models.MediaTypeAnime, models.MediaTypeManga:
		detail, err = s.anilist.details(ctx, mediaType, id)
	case models.MediaTypeBook:
		detail, err = s.books.details(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	if err != nil {
		return nil, err
	}

	detail.PosterURL = posterOrPlaceholder(detail.PosterURL)
	s.cache.set(key, detail)
	return detail, nil
}

// Trending returns popular titles for one media type. Books have no
// trending source.
func (s *Service) Trending(ctx context.Context, mediaType models.MediaType, limit int) ([]models.SearchResult, error) {
	if limit <= 0 || limit > s.perSource {
		limit = s.perSource
	}

	key := cacheKey("trending", string(mediaType), strconv.Itoa(limit))
	var cached []models.SearchResult
	if s.cache.get(key, &cached) {
		return cached, nil
	}

	var (
		results []models.SearchResult
		err     error
	)
	switch mediaType {
	case models.MediaTypeMovie, models.MediaTypeTV:
		results, err = s.currentTMDB().trending(ctx, mediaType)
	case models.MediaTypeAnime, models.MediaTypeManga:
		results, err = s.anilist.trending(ctx, mediaType, limit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	if err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].PosterURL = posterOrPlaceholder(results[i].PosterURL)
	}

	s.cache.set(key, results)
	return results, nil
}

// dedupeResults drops hits that are near-identical to an already kept
// one from another source (same kind of release, matching year, highly
// similar title). The more popular hit wins because the input is scanned
// in insertion order and popularity sorting happens afterwards; ties are
// broken by keeping the first.
func dedupeResults(results []models.SearchResult) []models.SearchResult {
	kept := make([]models.SearchResult, 0, len(results))
	for _, candidate := range results {
		duplicate := false
		for _, existing := range kept {
			if existing.Source == candidate.Source {
				continue
			}
			if mergeKind(existing) != mergeKind(candidate) {
				continue
			}
			if !yearsCompatible(existing.Year, candidate.Year) {
				continue
			}
			if similarity.Similarity(existing.Title, candidate.Title) >= dedupeThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// mergeKind groups media types that can describe the same release across
// sources: an AniList anime and a TMDB tv entry may collide, a manga and
// a book may not.
func mergeKind(r models.SearchResult) string {
	switch r.MediaType {
	case models.MediaTypeMovie:
		return "film"
	case models.MediaTypeTV, models.MediaTypeAnime:
		return "series"
	default:
		return string(r.MediaType)
	}
}

func yearsCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

func hasType(types []models.MediaType, t models.MediaType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func joinTypes(types []models.MediaType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
