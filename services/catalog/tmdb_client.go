package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"mediatrack/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	// Use optimized image sizes instead of "original" to reduce memory usage
	// Posters: w500 = 500px wide (plenty for cards ~200-300px)
	// Backdrops: w1280 = 1280px wide (good for 1080p backgrounds)
	tmdbPosterSize   = "w500"
	tmdbBackdropSize = "w1280"
)

// Genre names for the IDs returned by TMDB search endpoints. Detail
// endpoints return full genre objects, search only returns IDs.
var tmdbGenreNames = map[int]string{
	28: "Action", 12: "Adventure", 16: "Animation", 35: "Comedy", 80: "Crime",
	99: "Documentary", 18: "Drama", 10751: "Family", 14: "Fantasy", 36: "History",
	27: "Horror", 10402: "Music", 9648: "Mystery", 10749: "Romance",
	878: "Science Fiction", 10770: "TV Movie", 53: "Thriller", 10752: "War", 37: "Western",
	10759: "Action & Adventure", 10762: "Kids", 10763: "News", 10764: "Reality",
	10765: "Sci-Fi & Fantasy", 10766: "Soap", 10767: "Talk", 10768: "War & Politics",
}

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    language,
		baseURL:     tmdbBaseURL,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

func (c *tmdbClient) throttle() {
	c.throttleMu.Lock()
	since := time.Since(c.lastRequest)
	if since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
	c.throttleMu.Unlock()
}

// doGET performs a rate-limited GET with retry and backoff on 429/5xx.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, query url.Values, v any) error {
	if !c.isConfigured() {
		return errors.New("tmdb api key not configured")
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	if lang := strings.TrimSpace(c.language); lang != "" {
		query.Set("language", normalizeLanguage(lang))
	} else {
		query.Set("language", "en-US")
	}

	return retry.Do(
		func() error {
			c.throttle()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("tmdb request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

type tmdbSearchResponse struct {
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
	Results      []tmdbListResult `json:"results"`
}

type tmdbListResult struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Overview         string   `json:"overview"`
	OriginalLanguage string   `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
	GenreIDs         []int    `json:"genre_ids"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	Popularity       float64  `json:"popularity"`
	VoteAverage      float64  `json:"vote_average"`
	FirstAirDate     string   `json:"first_air_date"`
	ReleaseDate      string   `json:"release_date"`
}

// search queries /search/movie or /search/tv and normalizes the hits.
func (c *tmdbClient) search(ctx context.Context, mediaType models.MediaType, query string, page int) ([]models.SearchResult, int, error) {
	apiType := "movie"
	if mediaType == models.MediaTypeTV {
		apiType = "tv"
	}
	endpoint, err := url.JoinPath(c.baseURL, "search", apiType)
	if err != nil {
		return nil, 0, err
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}

	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint, q, &payload); err != nil {
		return nil, 0, err
	}

	results := make([]models.SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, c.normalizeResult(mediaType, r))
	}
	return results, payload.TotalResults, nil
}

// trending fetches the weekly trending list for movie or tv.
func (c *tmdbClient) trending(ctx context.Context, mediaType models.MediaType) ([]models.SearchResult, error) {
	apiType := "movie"
	if mediaType == models.MediaTypeTV {
		apiType = "tv"
	}
	endpoint, err := url.JoinPath(c.baseURL, "trending", apiType, "week")
	if err != nil {
		return nil, err
	}

	var payload tmdbSearchResponse
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, c.normalizeResult(mediaType, r))
	}
	return results, nil
}

func (c *tmdbClient) normalizeResult(mediaType models.MediaType, r tmdbListResult) models.SearchResult {
	genres := genreNames(r.GenreIDs)
	return models.SearchResult{
		Source:      models.SourceTMDB,
		SourceID:    strconv.FormatInt(r.ID, 10),
		MediaType:   mediaType,
		Category:    classifyTMDB(mediaType, r.OriginalLanguage, r.OriginCountry, genres),
		Title:       pickTMDBName(mediaType, r.Name, r.Title),
		Year:        parseTMDBYear(r.ReleaseDate, r.FirstAirDate),
		Language:    r.OriginalLanguage,
		Country:     primaryCountry(r.OriginCountry, r.OriginalLanguage),
		Countries:   r.OriginCountry,
		Genres:      genres,
		PosterURL:   buildTMDBImage(r.PosterPath, tmdbPosterSize),
		BackdropURL: buildTMDBImage(r.BackdropPath, tmdbBackdropSize),
		Overview:    r.Overview,
		Rating:      r.VoteAverage,
		Popularity:  r.Popularity,
	}
}

type tmdbDetailResponse struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Overview         string   `json:"overview"`
	OriginalLanguage string   `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	FirstAirDate     string  `json:"first_air_date"`
	ReleaseDate      string  `json:"release_date"`
	NumberOfSeasons  int     `json:"number_of_seasons"`
	NumberOfEpisodes int     `json:"number_of_episodes"`
}

// details fetches full movie or TV details including season/episode totals.
func (c *tmdbClient) details(ctx context.Context, mediaType models.MediaType, id string) (*models.MediaDetail, error) {
	apiType := "movie"
	if mediaType == models.MediaTypeTV {
		apiType = "tv"
	}
	endpoint, err := url.JoinPath(c.baseURL, apiType, id)
	if err != nil {
		return nil, err
	}

	var payload tmdbDetailResponse
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	genres := make([]string, 0, len(payload.Genres))
	for _, g := range payload.Genres {
		genres = append(genres, g.Name)
	}

	detail := &models.MediaDetail{
		SearchResult: models.SearchResult{
			Source:      models.SourceTMDB,
			SourceID:    strconv.FormatInt(payload.ID, 10),
			MediaType:   mediaType,
			Category:    classifyTMDB(mediaType, payload.OriginalLanguage, payload.OriginCountry, genres),
			Title:       pickTMDBName(mediaType, payload.Name, payload.Title),
			Year:        parseTMDBYear(payload.ReleaseDate, payload.FirstAirDate),
			Language:    payload.OriginalLanguage,
			Country:     primaryCountry(payload.OriginCountry, payload.OriginalLanguage),
			Countries:   payload.OriginCountry,
			Genres:      genres,
			PosterURL:   buildTMDBImage(payload.PosterPath, tmdbPosterSize),
			BackdropURL: buildTMDBImage(payload.BackdropPath, tmdbBackdropSize),
			Overview:    payload.Overview,
			Rating:      payload.VoteAverage,
			Popularity:  payload.Popularity,
		},
		TotalSeasons:  payload.NumberOfSeasons,
		TotalEpisodes: payload.NumberOfEpisodes,
	}
	return detail, nil
}

func genreNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := tmdbGenreNames[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

func pickTMDBName(mediaType models.MediaType, seriesName, movieTitle string) string {
	if mediaType == models.MediaTypeMovie && movieTitle != "" {
		return movieTitle
	}
	if seriesName != "" {
		return seriesName
	}
	return movieTitle
}

func parseTMDBYear(movieDate, seriesDate string) int {
	date := movieDate
	if date == "" {
		date = seriesDate
	}
	if date == "" {
		return 0
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}

func buildTMDBImage(imagePath, size string) string {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return ""
	}
	fullPath := path.Join(size, strings.TrimPrefix(trimmed, "/"))
	return fmt.Sprintf("%s/%s", tmdbImageBaseURL, fullPath)
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(lang, "_", "-")
	if len(lang) == 2 {
		return strings.ToLower(lang) + "-US"
	}
	if len(lang) >= 5 {
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return "en-US"
}
