package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mediatrack/models"
	catalogpkg "mediatrack/services/catalog"

	"github.com/gorilla/mux"
)

type catalogService interface {
	Search(ctx context.Context, query string, types []models.MediaType, page, perPage int) (*models.SearchPage, error)
	Detail(ctx context.Context, mediaType models.MediaType, id string) (*models.MediaDetail, error)
	Trending(ctx context.Context, mediaType models.MediaType, limit int) ([]models.SearchResult, error)
}

var _ catalogService = (*catalogpkg.Service)(nil)

type CatalogHandler struct {
	Service catalogService
}

func NewCatalogHandler(s catalogService) *CatalogHandler {
	return &CatalogHandler{Service: s}
}

// Search merges results from every catalog source that can answer the
// requested media types.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	trimAndParseInt := func(value string) int {
		value = strings.TrimSpace(value)
		if value == "" {
			return 0
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return parsed
	}

	q := strings.TrimSpace(query.Get("query"))
	if q == "" {
		q = strings.TrimSpace(query.Get("q"))
	}
	types := parseMediaTypes(query.Get("types"))
	page := trimAndParseInt(query.Get("page"))
	perPage := trimAndParseInt(query.Get("perPage"))

	results, err := h.Service.Search(r.Context(), q, types, page, perPage)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, catalogpkg.ErrQueryRequired), errors.Is(err, catalogpkg.ErrUnsupportedMediaType):
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Detail returns full metadata for one title, including the totals the
// progress tracker needs.
func (h *CatalogHandler) Detail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	mediaType := models.MediaType(strings.ToLower(strings.TrimSpace(vars["mediaType"])))
	id := strings.TrimSpace(vars["id"])

	if !mediaType.Valid() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported media type"})
		return
	}
	if id == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "id parameter required"})
		return
	}

	detail, err := h.Service.Detail(r.Context(), mediaType, id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// TrendingResponse wraps trending items with a total for the shelf UI.
type TrendingResponse struct {
	Items []models.SearchResult `json:"items"`
	Total int                   `json:"total"`
}

func (h *CatalogHandler) Trending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	mediaType := models.MediaType(strings.ToLower(strings.TrimSpace(query.Get("type"))))
	if !mediaType.Valid() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported media type"})
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.Service.Trending(r.Context(), mediaType, limit)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	if items == nil {
		items = []models.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TrendingResponse{Items: items, Total: len(items)})
}

// parseMediaTypes splits a comma separated types parameter, dropping
// anything unknown. An empty result means search everything.
func parseMediaTypes(raw string) []models.MediaType {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var types []models.MediaType
	for _, part := range strings.Split(raw, ",") {
		mt := models.MediaType(strings.ToLower(strings.TrimSpace(part)))
		if mt.Valid() {
			types = append(types, mt)
		}
	}
	return types
}
