package models

// MediaType identifies which kind of title an entry refers to and which
// catalog source can resolve it.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
	MediaTypeAnime MediaType = "anime"
	MediaTypeManga MediaType = "manga"
	MediaTypeBook  MediaType = "book"
)

// Valid reports whether the media type is one of the supported values.
func (m MediaType) Valid() bool {
	switch m {
	case MediaTypeMovie, MediaTypeTV, MediaTypeAnime, MediaTypeManga, MediaTypeBook:
		return true
	}
	return false
}

// Category is the display bucket a title is shelved under. It is derived
// from the source metadata (language, origin country, genres), never
// entered by the user directly.
type Category string

const (
	CategoryMovie      Category = "Movie"
	CategoryAnimeMovie Category = "Anime Movie"
	CategoryTVSeries   Category = "TV Series"
	CategoryKDrama     Category = "K-Drama"
	CategoryCDrama     Category = "C-Drama"
	CategoryJDrama     Category = "J-Drama"
	CategoryAnime      Category = "Anime"
	CategoryManga      Category = "Manga"
	CategoryBook       Category = "Book"
)

// Categories lists every display category in shelf order.
func Categories() []Category {
	return []Category{
		CategoryMovie,
		CategoryAnimeMovie,
		CategoryTVSeries,
		CategoryKDrama,
		CategoryCDrama,
		CategoryJDrama,
		CategoryAnime,
		CategoryManga,
		CategoryBook,
	}
}

// Status tracks where a library item sits in the user's queue.
type Status string

const (
	StatusPlanToWatch Status = "Plan to Watch"
	StatusWatching    Status = "Watching"
	StatusCompleted   Status = "Completed"
	StatusDropped     Status = "Dropped"
)

// Valid reports whether the status is one of the supported values.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanToWatch, StatusWatching, StatusCompleted, StatusDropped:
		return true
	}
	return false
}

// Source identifies the external catalog a title came from.
type Source string

const (
	SourceTMDB        Source = "tmdb"
	SourceAniList     Source = "anilist"
	SourceOpenLibrary Source = "openlibrary"
)

// PlaceholderPosterURL is substituted when a source yields no usable artwork.
const PlaceholderPosterURL = "https://via.placeholder.com/200x300?text=No+Image"

// SearchResult is a normalized hit from any catalog source.
type SearchResult struct {
	Source      Source    `json:"source"`
	SourceID    string    `json:"sourceId"`
	MediaType   MediaType `json:"mediaType"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Year        int       `json:"year,omitempty"`
	Language    string    `json:"language,omitempty"`
	Country     string    `json:"country,omitempty"`
	Countries   []string  `json:"countries,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	PosterURL   string    `json:"posterUrl,omitempty"`
	BackdropURL string    `json:"backdropUrl,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	Popularity  float64   `json:"popularity,omitempty"`
	// PageCount is the median page count; books only.
	PageCount int `json:"pageCount,omitempty"`
}

// Key returns a stable identifier combining source and external ID.
func (r SearchResult) Key() string {
	return string(r.Source) + ":" + r.SourceID
}

// SearchPage is one page of merged multi-source search results.
type SearchPage struct {
	Results    []SearchResult `json:"results"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

// MediaDetail extends a search result with counts needed for progress
// tracking. For manga the episode/season fields carry chapters/volumes;
// for books TotalEpisodes carries the page count.
type MediaDetail struct {
	SearchResult
	TotalSeasons  int `json:"totalSeasons,omitempty"`
	TotalEpisodes int `json:"totalEpisodes,omitempty"`
}
