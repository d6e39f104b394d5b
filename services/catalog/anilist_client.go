package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"mediatrack/models"
)

const anilistGraphQLURL = "https://graphql.anilist.co"

const anilistMediaFields = `
id
title { romaji english }
format
status
episodes
chapters
volumes
averageScore
popularity
countryOfOrigin
genres
description(asHtml: false)
startDate { year }
coverImage { large extraLarge }
bannerImage`

const anilistSearchQuery = `
query ($search: String, $type: MediaType, $page: Int, $perPage: Int, $sort: [MediaSort]) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { total perPage currentPage lastPage hasNextPage }
    media(search: $search, type: $type, sort: $sort) {` + anilistMediaFields + `
    }
  }
}`

const anilistDetailQuery = `
query ($id: Int, $type: MediaType) {
  Media(id: $id, type: $type) {` + anilistMediaFields + `
  }
}`

type anilistClient struct {
	endpoint string
	httpc    *http.Client

	// AniList allows ~90 requests/minute; stay well under it.
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newAniListClient(httpc *http.Client) *anilistClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &anilistClient{
		endpoint:    anilistGraphQLURL,
		httpc:       httpc,
		minInterval: 700 * time.Millisecond,
	}
}

type anilistMedia struct {
	ID    int64 `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
	} `json:"title"`
	Format          string   `json:"format"`
	Status          string   `json:"status"`
	Episodes        int      `json:"episodes"`
	Chapters        int      `json:"chapters"`
	Volumes         int      `json:"volumes"`
	AverageScore    int      `json:"averageScore"`
	Popularity      int      `json:"popularity"`
	CountryOfOrigin string   `json:"countryOfOrigin"`
	Genres          []string `json:"genres"`
	Description     string   `json:"description"`
	StartDate       struct {
		Year int `json:"year"`
	} `json:"startDate"`
	CoverImage struct {
		Large      string `json:"large"`
		ExtraLarge string `json:"extraLarge"`
	} `json:"coverImage"`
	BannerImage string `json:"bannerImage"`
}

type anilistResponse struct {
	Data struct {
		Page struct {
			PageInfo struct {
				Total       int  `json:"total"`
				PerPage     int  `json:"perPage"`
				CurrentPage int  `json:"currentPage"`
				LastPage    int  `json:"lastPage"`
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Media []anilistMedia `json:"media"`
		} `json:"Page"`
		Media *anilistMedia `json:"Media"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *anilistClient) throttle() {
	c.throttleMu.Lock()
	since := time.Since(c.lastRequest)
	if since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
	c.throttleMu.Unlock()
}

// query posts a GraphQL document with retry and backoff on 429/5xx.
func (c *anilistClient) query(ctx context.Context, document string, variables map[string]any) (*anilistResponse, error) {
	body, err := json.Marshal(map[string]any{
		"query":     document,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}

	var payload anilistResponse
	err = retry.Do(
		func() error {
			c.throttle()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("anilist request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("anilist request failed: %s", resp.Status))
			}
			payload = anilistResponse{}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
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
	if err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("anilist: %s", payload.Errors[0].Message)
	}
	return &payload, nil
}

// search queries ANIME or MANGA media sorted by search relevance.
func (c *anilistClient) search(ctx context.Context, mediaType models.MediaType, query string, page, perPage int) ([]models.SearchResult, int, error) {
	payload, err := c.query(ctx, anilistSearchQuery, map[string]any{
		"search":  query,
		"type":    anilistMediaType(mediaType),
		"page":    page,
		"perPage": perPage,
		"sort":    []string{"SEARCH_MATCH"},
	})
	if err != nil {
		return nil, 0, err
	}

	results := make([]models.SearchResult, 0, len(payload.Data.Page.Media))
	for _, m := range payload.Data.Page.Media {
		results = append(results, normalizeAniList(mediaType, m))
	}
	return results, payload.Data.Page.PageInfo.Total, nil
}

// trending returns the most popular ANIME or MANGA titles.
func (c *anilistClient) trending(ctx context.Context, mediaType models.MediaType, perPage int) ([]models.SearchResult, error) {
	payload, err := c.query(ctx, anilistSearchQuery, map[string]any{
		"type":    anilistMediaType(mediaType),
		"page":    1,
		"perPage": perPage,
		"sort":    []string{"TRENDING_DESC"},
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(payload.Data.Page.Media))
	for _, m := range payload.Data.Page.Media {
		results = append(results, normalizeAniList(mediaType, m))
	}
	return results, nil
}

// details fetches one media entry by AniList ID.
func (c *anilistClient) details(ctx context.Context, mediaType models.MediaType, id string) (*models.MediaDetail, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid anilist id %q", id)
	}

	payload, err := c.query(ctx, anilistDetailQuery, map[string]any{
		"id":   numericID,
		"type": anilistMediaType(mediaType),
	})
	if err != nil {
		return nil, err
	}
	if payload.Data.Media == nil {
		return nil, fmt.Errorf("anilist media %s not found", id)
	}

	m := *payload.Data.Media
	detail := &models.MediaDetail{SearchResult: normalizeAniList(mediaType, m)}
	if mediaType == models.MediaTypeManga {
		// Volumes and chapters ride the season/episode fields.
		detail.TotalSeasons = m.Volumes
		detail.TotalEpisodes = m.Chapters
	} else {
		detail.TotalSeasons = 1
		detail.TotalEpisodes = m.Episodes
	}
	return detail, nil
}

func anilistMediaType(mediaType models.MediaType) string {
	if mediaType == models.MediaTypeManga {
		return "MANGA"
	}
	return "ANIME"
}

func normalizeAniList(mediaType models.MediaType, m anilistMedia) models.SearchResult {
	category := models.CategoryAnime
	if mediaType == models.MediaTypeManga {
		category = models.CategoryManga
	}

	poster := m.CoverImage.ExtraLarge
	if poster == "" {
		poster = m.CoverImage.Large
	}

	country := strings.ToUpper(strings.TrimSpace(m.CountryOfOrigin))
	var countries []string
	if country != "" {
		countries = []string{country}
	}

	return models.SearchResult{
		Source:      models.SourceAniList,
		SourceID:    strconv.FormatInt(m.ID, 10),
		MediaType:   mediaType,
		Category:    category,
		Title:       pickAniListTitle(m),
		Year:        m.StartDate.Year,
		Language:    "ja",
		Country:     primaryCountry(countries, "ja"),
		Countries:   countries,
		Genres:      m.Genres,
		PosterURL:   poster,
		BackdropURL: m.BannerImage,
		Overview:    stripAniListMarkup(m.Description),
		Rating:      float64(m.AverageScore) / 10.0,
		Popularity:  float64(m.Popularity),
	}
}

func pickAniListTitle(m anilistMedia) string {
	if t := strings.TrimSpace(m.Title.English); t != "" {
		return t
	}
	return strings.TrimSpace(m.Title.Romaji)
}

// stripAniListMarkup removes the line-break tags AniList embeds in
// descriptions even when HTML is disabled.
func stripAniListMarkup(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "<i>", "")
	s = strings.ReplaceAll(s, "</i>", "")
	return strings.TrimSpace(s)
}
