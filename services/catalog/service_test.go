package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediatrack/models"
)

// newTestService builds a Service with every client pointed at the given
// test servers and throttling disabled.
func newTestService(t *testing.T, tmdbURL, anilistURL, booksURL string) *Service {
	t.Helper()
	svc, err := NewService(Config{
		TMDBAPIKey:      "test-key",
		CacheDir:        t.TempDir(),
		SearchPerSource: 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	if tmdbURL != "" {
		svc.tmdb.baseURL = tmdbURL
	}
	svc.tmdb.minInterval = 0
	if anilistURL != "" {
		svc.anilist.endpoint = anilistURL
	}
	svc.anilist.minInterval = 0
	if booksURL != "" {
		svc.books.baseURL = booksURL
	}
	svc.books.minInterval = 0
	return svc
}

func tmdbSearchPayload(results ...tmdbListResult) tmdbSearchResponse {
	return tmdbSearchResponse{
		Page:         1,
		TotalPages:   1,
		TotalResults: len(results),
		Results:      results,
	}
}

func anilistSearchPayload(media ...anilistMedia) anilistResponse {
	var resp anilistResponse
	resp.Data.Page.Media = media
	resp.Data.Page.PageInfo.Total = len(media)
	return resp
}

func jsonHandler(t *testing.T, hits *int64, payload func(r *http.Request) any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload(r)); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestSearchMergesAndDedupesSources(t *testing.T) {
	tmdb := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		if r.URL.Path == "/search/tv" {
			return tmdbSearchPayload(tmdbListResult{
				ID:               1,
				Name:             "Inuyasha",
				OriginalLanguage: "ja",
				OriginCountry:    []string{"JP"},
				GenreIDs:         []int{16},
				FirstAirDate:     "2000-10-16",
				Popularity:       80,
			})
		}
		return tmdbSearchPayload()
	}))
	defer tmdb.Close()

	anilist := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		inuyasha := anilistMedia{ID: 100, Popularity: 90}
		inuyasha.Title.English = "Inuyasha"
		inuyasha.StartDate.Year = 2000
		yashahime := anilistMedia{ID: 101, Popularity: 40}
		yashahime.Title.English = "Yashahime"
		yashahime.StartDate.Year = 2020
		return anilistSearchPayload(inuyasha, yashahime)
	}))
	defer anilist.Close()

	svc := newTestService(t, tmdb.URL, anilist.URL, "")

	page, err := svc.Search(context.Background(), "inuyasha", []models.MediaType{models.MediaTypeTV, models.MediaTypeAnime}, 1, 20)
	require.NoError(t, err)

	// The TMDB and AniList Inuyasha hits describe the same series and
	// must collapse into one entry.
	require.Len(t, page.Results, 2)
	assert.Equal(t, "Inuyasha", page.Results[0].Title)
	assert.Equal(t, "Yashahime", page.Results[1].Title)
	assert.Equal(t, 3, page.Total)

	// Both sources resolve the display country for the same series.
	assert.Equal(t, "JP", page.Results[0].Country)

	// Missing posters get the placeholder.
	assert.Equal(t, models.PlaceholderPosterURL, page.Results[1].PosterURL)
}

func TestSearchToleratesPartialSourceFailure(t *testing.T) {
	tmdb := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		return tmdbSearchPayload(tmdbListResult{ID: 1, Title: "Dune", ReleaseDate: "2021-10-22", Popularity: 10})
	}))
	defer tmdb.Close()

	books := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer books.Close()

	svc := newTestService(t, tmdb.URL, "", books.URL)

	page, err := svc.Search(context.Background(), "dune", []models.MediaType{models.MediaTypeMovie, models.MediaTypeBook}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Dune", page.Results[0].Title)
}

func TestSearchCarriesBookPageCounts(t *testing.T) {
	books := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		return map[string]any{
			"numFound": 1,
			"docs": []map[string]any{{
				"key":                    "/works/OL45883W",
				"title":                  "The Hobbit",
				"first_publish_year":     1937,
				"number_of_pages_median": 310,
			}},
		}
	}))
	defer books.Close()

	svc := newTestService(t, "", "", books.URL)

	page, err := svc.Search(context.Background(), "hobbit", []models.MediaType{models.MediaTypeBook}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 310, page.Results[0].PageCount)
}

func TestSearchAllSourcesFailed(t *testing.T) {
	tmdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer tmdb.Close()

	svc := newTestService(t, tmdb.URL, "", "")

	_, err := svc.Search(context.Background(), "anything", []models.MediaType{models.MediaTypeMovie}, 1, 20)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestSearchValidatesInput(t *testing.T) {
	svc := newTestService(t, "", "", "")

	_, err := svc.Search(context.Background(), "   ", nil, 1, 20)
	assert.ErrorIs(t, err, ErrQueryRequired)

	_, err = svc.Search(context.Background(), "dune", []models.MediaType{"podcast"}, 1, 20)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestSearchServesSecondCallFromCache(t *testing.T) {
	var hits int64
	tmdb := httptest.NewServer(jsonHandler(t, &hits, func(r *http.Request) any {
		return tmdbSearchPayload(tmdbListResult{ID: 1, Title: "Heat", ReleaseDate: "1995-12-15"})
	}))
	defer tmdb.Close()

	svc := newTestService(t, tmdb.URL, "", "")

	_, err := svc.Search(context.Background(), "heat", []models.MediaType{models.MediaTypeMovie}, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt64(&hits))

	page, err := svc.Search(context.Background(), "heat", []models.MediaType{models.MediaTypeMovie}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits), "second search must be served from cache")
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Heat", page.Results[0].Title)
}

func TestDetailRoutesByMediaType(t *testing.T) {
	tmdb := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		assert.Equal(t, "/tv/42", r.URL.Path)
		return tmdbDetailResponse{
			ID:               42,
			Name:             "Signal",
			OriginalLanguage: "ko",
			OriginCountry:    []string{"KR"},
			FirstAirDate:     "2016-01-22",
			NumberOfSeasons:  1,
			NumberOfEpisodes: 16,
		}
	}))
	defer tmdb.Close()

	anilist := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		m := anilistMedia{ID: 30002, Volumes: 72, Chapters: 700}
		m.Title.English = "Berserk"
		var resp anilistResponse
		resp.Data.Media = &m
		return resp
	}))
	defer anilist.Close()

	books := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		switch r.URL.Path {
		case "/works/OL45883W.json":
			return openLibraryWorkResponse{
				Title:       "The Hobbit",
				Description: json.RawMessage(`"There and back again."`),
				Covers:      []int64{123},
			}
		case "/search.json":
			assert.Equal(t, "key:/works/OL45883W", r.URL.Query().Get("q"))
			return map[string]any{
				"numFound": 1,
				"docs":     []map[string]any{{"number_of_pages_median": 310}},
			}
		default:
			t.Errorf("unexpected openlibrary path %s", r.URL.Path)
			return map[string]any{}
		}
	}))
	defer books.Close()

	svc := newTestService(t, tmdb.URL, anilist.URL, books.URL)
	ctx := context.Background()

	tv, err := svc.Detail(ctx, models.MediaTypeTV, "42")
	require.NoError(t, err)
	assert.Equal(t, "Signal", tv.Title)
	assert.Equal(t, models.CategoryKDrama, tv.Category)
	assert.Equal(t, "KR", tv.Country)
	assert.Equal(t, 1, tv.TotalSeasons)
	assert.Equal(t, 16, tv.TotalEpisodes)

	manga, err := svc.Detail(ctx, models.MediaTypeManga, "30002")
	require.NoError(t, err)
	assert.Equal(t, "Berserk", manga.Title)
	assert.Equal(t, 72, manga.TotalSeasons, "manga volumes ride the season field")
	assert.Equal(t, 700, manga.TotalEpisodes, "manga chapters ride the episode field")

	book, err := svc.Detail(ctx, models.MediaTypeBook, "OL45883W")
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", book.Title)
	assert.Equal(t, "There and back again.", book.Overview)
	assert.Contains(t, book.PosterURL, "123-L.jpg")
	assert.Equal(t, 310, book.PageCount)
	assert.Equal(t, 310, book.TotalEpisodes, "book pages ride the episode field")

	_, err = svc.Detail(ctx, "podcast", "1")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)

	_, err = svc.Detail(ctx, models.MediaTypeTV, "  ")
	assert.Error(t, err)
}

func TestUpdateAPIKeysDuringSearch(t *testing.T) {
	tmdb := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		return tmdbSearchPayload()
	}))
	defer tmdb.Close()

	svc := newTestService(t, tmdb.URL, "", "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		query := fmt.Sprintf("query-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Search(context.Background(), query, []models.MediaType{models.MediaTypeMovie}, 1, 20)
		}()
		go func() {
			defer wg.Done()
			svc.UpdateAPIKeys("rotated-key", "en")
		}()
	}
	wg.Wait()

	assert.Equal(t, "rotated-key", svc.currentTMDB().apiKey)
	assert.Equal(t, tmdb.URL, svc.currentTMDB().baseURL, "swapped client keeps its endpoint")
}

func TestTrendingBooksUnsupported(t *testing.T) {
	svc := newTestService(t, "", "", "")

	_, err := svc.Trending(context.Background(), models.MediaTypeBook, 10)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestTrendingCapsAtLimit(t *testing.T) {
	tmdb := httptest.NewServer(jsonHandler(t, nil, func(r *http.Request) any {
		assert.Equal(t, "/trending/movie/week", r.URL.Path)
		return tmdbSearchPayload(
			tmdbListResult{ID: 1, Title: "One"},
			tmdbListResult{ID: 2, Title: "Two"},
			tmdbListResult{ID: 3, Title: "Three"},
		)
	}))
	defer tmdb.Close()

	svc := newTestService(t, tmdb.URL, "", "")

	results, err := svc.Trending(context.Background(), models.MediaTypeMovie, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDedupeResults(t *testing.T) {
	results := []models.SearchResult{
		{Source: models.SourceTMDB, MediaType: models.MediaTypeTV, Title: "Inuyasha", Year: 2000},
		{Source: models.SourceAniList, MediaType: models.MediaTypeAnime, Title: "Inuyasha", Year: 2000},
		// Same title but a film, so it survives alongside the series.
		{Source: models.SourceTMDB, MediaType: models.MediaTypeMovie, Title: "Inuyasha", Year: 2001},
		// Same source never dedupes against itself.
		{Source: models.SourceTMDB, MediaType: models.MediaTypeTV, Title: "Inuyasha", Year: 2000},
		// Year too far apart.
		{Source: models.SourceAniList, MediaType: models.MediaTypeAnime, Title: "Inuyasha", Year: 2009},
	}

	kept := dedupeResults(results)
	assert.Len(t, kept, 4)
}

func TestMergeKind(t *testing.T) {
	assert.Equal(t, "film", mergeKind(models.SearchResult{MediaType: models.MediaTypeMovie}))
	assert.Equal(t, "series", mergeKind(models.SearchResult{MediaType: models.MediaTypeTV}))
	assert.Equal(t, "series", mergeKind(models.SearchResult{MediaType: models.MediaTypeAnime}))
	assert.Equal(t, "manga", mergeKind(models.SearchResult{MediaType: models.MediaTypeManga}))
	assert.Equal(t, "book", mergeKind(models.SearchResult{MediaType: models.MediaTypeBook}))
}

func TestYearsCompatible(t *testing.T) {
	assert.True(t, yearsCompatible(2000, 2000))
	assert.True(t, yearsCompatible(2000, 2001))
	assert.True(t, yearsCompatible(0, 2001))
	assert.False(t, yearsCompatible(2000, 2002))
}
