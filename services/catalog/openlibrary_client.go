package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"mediatrack/models"
)

const (
	openLibraryBaseURL  = "https://openlibrary.org"
	openLibraryCoverURL = "https://covers.openlibrary.org/b/id"
)

type openLibraryClient struct {
	baseURL string
	httpc   *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newOpenLibraryClient(httpc *http.Client) *openLibraryClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &openLibraryClient{
		baseURL:     openLibraryBaseURL,
		httpc:       httpc,
		minInterval: 500 * time.Millisecond,
	}
}

func (c *openLibraryClient) throttle() {
	c.throttleMu.Lock()
	since := time.Since(c.lastRequest)
	if since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
	c.throttleMu.Unlock()
}

func (c *openLibraryClient) doGET(ctx context.Context, endpoint string, query url.Values, v any) error {
	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return retry.Do(
		func() error {
			c.throttle()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("openlibrary request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("openlibrary request failed: %s", resp.Status))
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

type openLibrarySearchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Key              string   `json:"key"` // "/works/OL45883W"
		Title            string   `json:"title"`
		FirstPublishYear int      `json:"first_publish_year"`
		AuthorName       []string `json:"author_name"`
		CoverID          int64    `json:"cover_i"`
		Language         []string `json:"language"`
		Subject          []string `json:"subject"`
		RatingsAverage   float64  `json:"ratings_average"`
		PagesMedian      int      `json:"number_of_pages_median"`
	} `json:"docs"`
}

// search queries the works search endpoint.
func (c *openLibraryClient) search(ctx context.Context, query string, page, limit int) ([]models.SearchResult, int, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	q.Set("fields", "key,title,first_publish_year,author_name,cover_i,language,subject,ratings_average,number_of_pages_median")

	var payload openLibrarySearchResponse
	if err := c.doGET(ctx, c.baseURL+"/search.json", q, &payload); err != nil {
		return nil, 0, err
	}

	results := make([]models.SearchResult, 0, len(payload.Docs))
	for _, doc := range payload.Docs {
		workID := strings.TrimPrefix(doc.Key, "/works/")
		if workID == "" || doc.Title == "" {
			continue
		}

		overview := ""
		if len(doc.AuthorName) > 0 {
			overview = "By " + strings.Join(doc.AuthorName, ", ")
		}

		results = append(results, models.SearchResult{
			Source:     models.SourceOpenLibrary,
			SourceID:   workID,
			MediaType:  models.MediaTypeBook,
			Category:   models.CategoryBook,
			Title:      doc.Title,
			Year:       doc.FirstPublishYear,
			Genres:     topSubjects(doc.Subject, 5),
			PosterURL:  openLibraryCover(doc.CoverID),
			Overview:   overview,
			Rating:     doc.RatingsAverage * 2, // 5-point scale -> 10-point
			Popularity: float64(doc.RatingsAverage),
			PageCount:  doc.PagesMedian,
		})
	}
	return results, payload.NumFound, nil
}

type openLibraryWorkResponse struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"` // string or {"type","value"}
	Subjects    []string        `json:"subjects"`
	Covers      []int64         `json:"covers"`
}

// details fetches one work record. Work records carry no page data, so
// the median page count is recovered from the search index by key. The
// page count rides the episode field like every stepwise total.
func (c *openLibraryClient) details(ctx context.Context, workID string) (*models.MediaDetail, error) {
	var payload openLibraryWorkResponse
	endpoint := fmt.Sprintf("%s/works/%s.json", c.baseURL, url.PathEscape(workID))
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	poster := ""
	if len(payload.Covers) > 0 {
		poster = openLibraryCover(payload.Covers[0])
	}

	pages, err := c.pagesForWork(ctx, workID)
	if err != nil {
		log.Printf("[catalog] openlibrary page count lookup failed for %s: %v", workID, err)
		pages = 0
	}

	return &models.MediaDetail{
		SearchResult: models.SearchResult{
			Source:    models.SourceOpenLibrary,
			SourceID:  workID,
			MediaType: models.MediaTypeBook,
			Category:  models.CategoryBook,
			Title:     payload.Title,
			Genres:    topSubjects(payload.Subjects, 5),
			PosterURL: poster,
			Overview:  decodeOLDescription(payload.Description),
			PageCount: pages,
		},
		TotalEpisodes: pages,
	}, nil
}

// pagesForWork looks up the median page count for one work via the
// search index.
func (c *openLibraryClient) pagesForWork(ctx context.Context, workID string) (int, error) {
	q := url.Values{}
	q.Set("q", "key:/works/"+workID)
	q.Set("limit", "1")
	q.Set("fields", "number_of_pages_median")

	var payload openLibrarySearchResponse
	if err := c.doGET(ctx, c.baseURL+"/search.json", q, &payload); err != nil {
		return 0, err
	}
	if len(payload.Docs) == 0 {
		return 0, nil
	}
	return payload.Docs[0].PagesMedian, nil
}

func openLibraryCover(coverID int64) string {
	if coverID <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/%d-L.jpg", openLibraryCoverURL, coverID)
}

func topSubjects(subjects []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

// decodeOLDescription handles both description encodings OpenLibrary uses.
func decodeOLDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Value)
	}
	return ""
}
