package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gorilla/mux"

	"mediatrack/models"
	catalogpkg "mediatrack/services/catalog"
)

type fakeCatalogService struct {
	searchResp   *models.SearchPage
	searchErr    error
	detailResp   *models.MediaDetail
	detailErr    error
	trendingResp []models.SearchResult
	trendingErr  error

	lastQuery     string
	lastTypes     []models.MediaType
	lastPage      int
	lastPerPage   int
	lastMediaType models.MediaType
	lastID        string
	lastLimit     int
}

func (f *fakeCatalogService) Search(_ context.Context, query string, types []models.MediaType, page, perPage int) (*models.SearchPage, error) {
	f.lastQuery = query
	f.lastTypes = types
	f.lastPage = page
	f.lastPerPage = perPage
	return f.searchResp, f.searchErr
}

func (f *fakeCatalogService) Detail(_ context.Context, mediaType models.MediaType, id string) (*models.MediaDetail, error) {
	f.lastMediaType = mediaType
	f.lastID = id
	return f.detailResp, f.detailErr
}

func (f *fakeCatalogService) Trending(_ context.Context, mediaType models.MediaType, limit int) ([]models.SearchResult, error) {
	f.lastMediaType = mediaType
	f.lastLimit = limit
	return f.trendingResp, f.trendingErr
}

func TestCatalogHandler_Search(t *testing.T) {
	fake := &fakeCatalogService{
		searchResp: &models.SearchPage{
			Results: []models.SearchResult{{Title: "Inuyasha", MediaType: models.MediaTypeAnime}},
			Page:    2,
			Total:   1,
		},
	}
	handler := NewCatalogHandler(fake)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/search?query=inuyasha&types=anime,tv,podcast&page=2&perPage=10", nil)
	rec := httptest.NewRecorder()

	handler.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if fake.lastQuery != "inuyasha" {
		t.Fatalf("unexpected query %q", fake.lastQuery)
	}
	// Unknown types are dropped, not rejected.
	if want := []models.MediaType{models.MediaTypeAnime, models.MediaTypeTV}; !reflect.DeepEqual(fake.lastTypes, want) {
		t.Fatalf("unexpected types %v", fake.lastTypes)
	}
	if fake.lastPage != 2 || fake.lastPerPage != 10 {
		t.Fatalf("unexpected paging page=%d perPage=%d", fake.lastPage, fake.lastPerPage)
	}

	var payload models.SearchPage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].Title != "Inuyasha" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCatalogHandler_SearchShortParamFallback(t *testing.T) {
	fake := &fakeCatalogService{searchResp: &models.SearchPage{}}
	handler := NewCatalogHandler(fake)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/search?q=dune", nil)
	rec := httptest.NewRecorder()

	handler.Search(rec, req)

	if fake.lastQuery != "dune" {
		t.Fatalf("expected q param fallback, got %q", fake.lastQuery)
	}
}

func TestCatalogHandler_SearchErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing query", catalogpkg.ErrQueryRequired, http.StatusBadRequest},
		{"bad media type", catalogpkg.ErrUnsupportedMediaType, http.StatusBadRequest},
		{"upstream down", catalogpkg.ErrAllSourcesFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCatalogHandler(&fakeCatalogService{searchErr: tt.err})

			req := httptest.NewRequest(http.MethodGet, "/api/catalog/search?query=x", nil)
			rec := httptest.NewRecorder()

			handler.Search(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload["error"] == "" {
				t.Fatalf("expected error message, got %v", payload)
			}
		})
	}
}

func TestCatalogHandler_Detail(t *testing.T) {
	fake := &fakeCatalogService{
		detailResp: &models.MediaDetail{
			SearchResult:  models.SearchResult{Title: "Signal", MediaType: models.MediaTypeTV},
			TotalSeasons:  1,
			TotalEpisodes: 16,
		},
	}
	handler := NewCatalogHandler(fake)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/tv/42", nil)
	req = mux.SetURLVars(req, map[string]string{"mediaType": "tv", "id": "42"})
	rec := httptest.NewRecorder()

	handler.Detail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if fake.lastMediaType != models.MediaTypeTV || fake.lastID != "42" {
		t.Fatalf("unexpected captured values type=%q id=%q", fake.lastMediaType, fake.lastID)
	}

	var payload models.MediaDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Title != "Signal" || payload.TotalEpisodes != 16 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCatalogHandler_DetailBadMediaType(t *testing.T) {
	handler := NewCatalogHandler(&fakeCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/podcast/42", nil)
	req = mux.SetURLVars(req, map[string]string{"mediaType": "podcast", "id": "42"})
	rec := httptest.NewRecorder()

	handler.Detail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCatalogHandler_DetailUpstreamError(t *testing.T) {
	handler := NewCatalogHandler(&fakeCatalogService{detailErr: errors.New("anilist down")})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/anime/1", nil)
	req = mux.SetURLVars(req, map[string]string{"mediaType": "anime", "id": "1"})
	rec := httptest.NewRecorder()

	handler.Detail(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestCatalogHandler_Trending(t *testing.T) {
	fake := &fakeCatalogService{
		trendingResp: []models.SearchResult{{Title: "Frieren"}, {Title: "Dandadan"}},
	}
	handler := NewCatalogHandler(fake)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/trending?type=anime&limit=2", nil)
	rec := httptest.NewRecorder()

	handler.Trending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if fake.lastMediaType != models.MediaTypeAnime || fake.lastLimit != 2 {
		t.Fatalf("unexpected captured values type=%q limit=%d", fake.lastMediaType, fake.lastLimit)
	}

	var payload TrendingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Total != 2 || len(payload.Items) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCatalogHandler_TrendingEmptyIsArray(t *testing.T) {
	handler := NewCatalogHandler(&fakeCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/trending?type=movie", nil)
	rec := httptest.NewRecorder()

	handler.Trending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var payload TrendingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Items == nil {
		t.Fatal("expected empty items array, got null")
	}
}
