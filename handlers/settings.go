package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"mediatrack/config"
	"mediatrack/services/catalog"
)

type SettingsHandler struct {
	Manager        *config.Manager
	CatalogService *catalog.Service
	Artwork        *ArtworkHandler
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// SetCatalogService sets the catalog service for hot reloading API keys
func (h *SettingsHandler) SetCatalogService(cs *catalog.Service) {
	h.CatalogService = cs
}

// SetArtworkHandler lets the cache clear endpoint drop cached images too
func (h *SettingsHandler) SetArtworkHandler(a *ArtworkHandler) {
	h.Artwork = a
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	dec := json.NewDecoder(r.Body)
	// Allow unknown fields for backward compatibility with old configs
	if err := dec.Decode(&s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err := h.Manager.Save(s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	// Hot reload services that cache configuration at startup
	if h.CatalogService != nil {
		h.CatalogService.UpdateAPIKeys(s.Catalog.TMDBAPIKey, s.Catalog.Language)
		log.Printf("[settings] reloaded catalog service API keys")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s)
}

// ClearCaches drops every cached catalog response and cached artwork
func (h *SettingsHandler) ClearCaches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.CatalogService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "catalog service not available"})
		return
	}
	if err := h.CatalogService.ClearCache(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if h.Artwork != nil {
		if err := h.Artwork.ClearCache(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
	}
	log.Printf("[settings] caches cleared by user request")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "Caches cleared"})
}
