package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediatrack/models"
	librarypkg "mediatrack/services/library"

	"github.com/gorilla/mux"
)

type libraryService interface {
	Add(ctx context.Context, profileID string, input models.LibraryUpsert) (models.LibraryItem, error)
	Get(ctx context.Context, profileID, itemID string) (models.LibraryItem, error)
	List(ctx context.Context, profileID string, filter models.LibraryFilter) (models.LibraryPage, error)
	SetStatus(ctx context.Context, profileID, itemID string, status models.Status) (models.LibraryItem, error)
	SetProgress(ctx context.Context, profileID, itemID string, progress models.ProgressUpdate) (models.LibraryItem, error)
	Reorder(ctx context.Context, profileID string, category models.Category, orderedIDs []string) error
	Remove(ctx context.Context, profileID, itemID string) error
	WriteCSV(ctx context.Context, profileID string, w io.Writer) (int, error)
	ReadCSV(ctx context.Context, profileID string, r io.Reader) (int, error)
}

var _ libraryService = (*librarypkg.Service)(nil)

type LibraryHandler struct {
	Service libraryService
}

func NewLibraryHandler(service libraryService) *LibraryHandler {
	return &LibraryHandler{Service: service}
}

func writeLibraryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, librarypkg.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, librarypkg.ErrProfileIDRequired),
		errors.Is(err, librarypkg.ErrInvalidUpsert),
		errors.Is(err, librarypkg.ErrInvalidStatus),
		errors.Is(err, librarypkg.ErrNoProgressTracking),
		errors.Is(err, librarypkg.ErrUnknownItemInOrder):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// List returns a page of the profile's collection, optionally narrowed by
// category and status.
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])

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

	filter := models.LibraryFilter{
		Category: models.Category(strings.TrimSpace(query.Get("category"))),
		Status:   models.Status(strings.TrimSpace(query.Get("status"))),
		Limit:    trimAndParseInt(query.Get("limit")),
		Offset:   trimAndParseInt(query.Get("offset")),
	}

	page, err := h.Service.List(r.Context(), profileID, filter)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// Add inserts a title into the profile's collection, or refreshes its
// metadata when it is already shelved.
func (h *LibraryHandler) Add(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])

	var input models.LibraryUpsert
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.Service.Add(r.Context(), profileID, input)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}

// Get returns a single library item.
func (h *LibraryHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])
	itemID := strings.TrimSpace(vars["itemID"])

	item, err := h.Service.Get(r.Context(), profileID, itemID)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// SetStatus moves an item between queue states.
func (h *LibraryHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])
	itemID := strings.TrimSpace(vars["itemID"])

	var body struct {
		Status models.Status `json:"status"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.Service.SetStatus(r.Context(), profileID, itemID, body.Status)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// SetProgress records where the profile is in an episodic title.
func (h *LibraryHandler) SetProgress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])
	itemID := strings.TrimSpace(vars["itemID"])

	var progress models.ProgressUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&progress); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.Service.SetProgress(r.Context(), profileID, itemID, progress)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// Reorder rewrites the manual sort order of one category shelf.
func (h *LibraryHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])

	var body struct {
		Category models.Category `json:"category"`
		ItemIDs  []string        `json:"itemIds"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.Reorder(r.Context(), profileID, body.Category, body.ItemIDs); err != nil {
		writeLibraryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remove deletes an item from the collection.
func (h *LibraryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])
	itemID := strings.TrimSpace(vars["itemID"])

	if err := h.Service.Remove(r.Context(), profileID, itemID); err != nil {
		writeLibraryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Export streams the profile's collection as a CSV download.
func (h *LibraryHandler) Export(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])

	filename := fmt.Sprintf("library-%s-%s.csv", profileID, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if _, err := h.Service.WriteCSV(r.Context(), profileID, w); err != nil {
		// Headers are already written; the truncated body signals failure.
		return
	}
}

// ImportResponse reports how many rows an import added.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// Import loads a CSV export into the profile's collection.
func (h *LibraryHandler) Import(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	profileID := strings.TrimSpace(vars["profileID"])

	imported, err := h.Service.ReadCSV(r.Context(), profileID, r.Body)
	if err != nil {
		writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ImportResponse{Imported: imported})
}
