package catalog

import (
	"strings"

	"golang.org/x/text/language"

	"mediatrack/models"
)

// The tracker shelves titles by where they were produced, not by raw
// media type: a Korean series is a K-Drama, a Japanese animated series
// is Anime, everything else falls back to the generic bucket. AniList
// and OpenLibrary results carry their category implicitly.

// classifyTMDB derives the display category for a TMDB result from its
// original language, origin countries and genre names.
func classifyTMDB(mediaType models.MediaType, lang string, countries, genres []string) models.Category {
	base := baseLanguage(lang)
	animated := hasGenre(genres, "Animation")

	if mediaType == models.MediaTypeMovie {
		if base == "ja" && animated {
			return models.CategoryAnimeMovie
		}
		return models.CategoryMovie
	}

	if base == "ja" && animated {
		return models.CategoryAnime
	}
	if base == "ko" || hasCountry(countries, "KR") {
		return models.CategoryKDrama
	}
	if base == "zh" || hasCountry(countries, "CN", "TW", "HK") {
		return models.CategoryCDrama
	}
	if base == "ja" || hasCountry(countries, "JP") {
		return models.CategoryJDrama
	}
	return models.CategoryTVSeries
}

// baseLanguage reduces a BCP 47 tag to its base language ("ko-KR" -> "ko").
// Unparseable tags fall back to the part before the first separator.
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if t, err := language.Parse(tag); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

func hasGenre(genres []string, name string) bool {
	for _, g := range genres {
		if strings.EqualFold(strings.TrimSpace(g), name) {
			return true
		}
	}
	return false
}

func hasCountry(countries []string, codes ...string) bool {
	for _, c := range countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		for _, code := range codes {
			if c == code {
				return true
			}
		}
	}
	return false
}

// primaryCountry picks the display country for a result, preferring the
// first origin country and falling back to the language region.
func primaryCountry(countries []string, lang string) string {
	for _, c := range countries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			return c
		}
	}
	switch baseLanguage(lang) {
	case "ko":
		return "KR"
	case "ja":
		return "JP"
	case "zh":
		return "CN"
	case "en":
		return "US"
	}
	return ""
}

// posterOrPlaceholder substitutes the stock placeholder when a source
// yields no usable artwork URL.
func posterOrPlaceholder(url string) string {
	if !strings.HasPrefix(strings.TrimSpace(url), "http") {
		return models.PlaceholderPosterURL
	}
	return url
}
