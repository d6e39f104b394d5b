package models

import "time"

// LibraryItem is one row of a profile's collection. Progress fields are
// overloaded by media type: tv/anime use seasons and episodes, manga uses
// volumes and chapters, books use pages (episode fields only).
type LibraryItem struct {
	ID             string    `json:"id"`
	ProfileID      string    `json:"profileId"`
	Source         Source    `json:"source"`
	SourceID       string    `json:"sourceId"`
	MediaType      MediaType `json:"mediaType"`
	Category       Category  `json:"category"`
	Title          string    `json:"title"`
	Country        string    `json:"country,omitempty"`
	Status         Status    `json:"status"`
	Genres         []string  `json:"genres,omitempty"`
	PosterURL      string    `json:"posterUrl,omitempty"`
	BackdropURL    string    `json:"backdropUrl,omitempty"`
	Overview       string    `json:"overview,omitempty"`
	Rating         float64   `json:"rating,omitempty"`
	CurrentSeason  int       `json:"currentSeason,omitempty"`
	CurrentEpisode int       `json:"currentEpisode,omitempty"`
	TotalSeasons   int       `json:"totalSeasons,omitempty"`
	TotalEpisodes  int       `json:"totalEpisodes,omitempty"`
	SortOrder      int       `json:"sortOrder"`
	AddedAt        time.Time `json:"addedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Key returns a stable identifier combining source and external ID.
func (i LibraryItem) Key() string {
	return string(i.Source) + ":" + i.SourceID
}

// HasEpisodeProgress reports whether the media type tracks stepwise
// progress at all. Movies are done or not done.
func (i LibraryItem) HasEpisodeProgress() bool {
	switch i.MediaType {
	case MediaTypeMovie:
		return false
	}
	return i.Category != CategoryAnimeMovie
}

// LibraryUpsert captures data required to insert or refresh a library item.
type LibraryUpsert struct {
	Source        Source    `json:"source"`
	SourceID      string    `json:"sourceId"`
	MediaType     MediaType `json:"mediaType"`
	Category      Category  `json:"category,omitempty"`
	Title         string    `json:"title"`
	Country       string    `json:"country,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
	PosterURL     string    `json:"posterUrl,omitempty"`
	BackdropURL   string    `json:"backdropUrl,omitempty"`
	Overview      string    `json:"overview,omitempty"`
	Rating        float64   `json:"rating,omitempty"`
	TotalSeasons  int       `json:"totalSeasons,omitempty"`
	TotalEpisodes int       `json:"totalEpisodes,omitempty"`
}

// ProgressUpdate carries a progress change for one item. Zero values are
// applied as-is; the service clamps against known totals.
type ProgressUpdate struct {
	CurrentSeason  int `json:"currentSeason"`
	CurrentEpisode int `json:"currentEpisode"`
}

// LibraryFilter narrows a List call.
type LibraryFilter struct {
	Category Category
	Status   Status
	Limit    int
	Offset   int
}

// LibraryPage is one page of a profile's collection.
type LibraryPage struct {
	Items      []LibraryItem `json:"items"`
	Total      int           `json:"total"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
	TotalPages int           `json:"totalPages"`
}
