package library

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"mediatrack/models"
)

// CSV layout follows the original tracking sheet so old exports import
// cleanly. "Type" is the display category; the source is inferred from it.
var csvHeader = []string{
	"Title", "Type", "Country", "Status", "Genres", "Image", "Overview",
	"Rating", "Backdrop", "Current_Season", "Current_Ep", "Total_Eps",
	"Total_Seasons", "ID",
}

// WriteCSV streams the profile's collection as CSV.
func (s *Service) WriteCSV(ctx context.Context, profileID string, w io.Writer) (int, error) {
	page, err := s.List(ctx, profileID, models.LibraryFilter{Limit: 1 << 20})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, item := range page.Items {
		record := []string{
			item.Title,
			string(item.Category),
			item.Country,
			string(item.Status),
			joinGenres(item.Genres),
			item.PosterURL,
			item.Overview,
			strconv.FormatFloat(item.Rating, 'f', -1, 64),
			item.BackdropURL,
			strconv.Itoa(item.CurrentSeason),
			strconv.Itoa(item.CurrentEpisode),
			strconv.Itoa(item.TotalEpisodes),
			strconv.Itoa(item.TotalSeasons),
			item.SourceID,
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(page.Items), cw.Error()
}

// ExportCSV writes the profile's collection to a file on the given
// filesystem.
func (s *Service) ExportCSV(ctx context.Context, fs afero.Fs, path, profileID string) (int, error) {
	f, err := fs.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.WriteCSV(ctx, profileID, f)
}

// ImportCSV loads rows from a sheet export into the profile's collection.
// Returns how many rows were imported; malformed rows abort the import.
func (s *Service) ImportCSV(ctx context.Context, fs afero.Fs, path, profileID string) (int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.ReadCSV(ctx, profileID, f)
}

// ReadCSV is the reader-based core of ImportCSV.
func (s *Service) ReadCSV(ctx context.Context, profileID string, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	if !strings.EqualFold(header[0], "Title") {
		return 0, fmt.Errorf("unexpected csv header %q", header[0])
	}

	imported := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, err
		}
		if err := s.importRecord(ctx, profileID, record); err != nil {
			return imported, fmt.Errorf("row %d: %w", imported+2, err)
		}
		imported++
	}
	return imported, nil
}

func (s *Service) importRecord(ctx context.Context, profileID string, record []string) error {
	category := models.Category(strings.TrimSpace(record[1]))
	mediaType, source := mediaTypeForCategory(category)

	rating, _ := strconv.ParseFloat(record[7], 64)
	currentSeason, _ := strconv.Atoi(record[9])
	currentEpisode, _ := strconv.Atoi(record[10])
	totalEpisodes, _ := strconv.Atoi(record[11])
	totalSeasons, _ := strconv.Atoi(record[12])

	item, err := s.Add(ctx, profileID, models.LibraryUpsert{
		Source:        source,
		SourceID:      strings.TrimSpace(record[13]),
		MediaType:     mediaType,
		Category:      category,
		Title:         record[0],
		Country:       record[2],
		Genres:        splitGenres(record[4]),
		PosterURL:     record[5],
		BackdropURL:   record[8],
		Overview:      record[6],
		Rating:        rating,
		TotalSeasons:  totalSeasons,
		TotalEpisodes: totalEpisodes,
	})
	if err != nil {
		return err
	}

	status := models.Status(strings.TrimSpace(record[3]))
	if !status.Valid() {
		status = models.StatusPlanToWatch
	}

	// Apply status and progress verbatim; imported sheets are trusted.
	_, err = s.db.ExecContext(ctx,
		`UPDATE library_items SET status = ?, current_season = ?, current_episode = ?, updated_at = ? WHERE id = ?`,
		status, currentSeason, currentEpisode, time.Now().UTC(), item.ID,
	)
	return err
}

// mediaTypeForCategory recovers media type and source from the sheet's
// display category, the only type information the original export kept.
func mediaTypeForCategory(category models.Category) (models.MediaType, models.Source) {
	switch category {
	case models.CategoryAnime:
		return models.MediaTypeAnime, models.SourceAniList
	case models.CategoryManga:
		return models.MediaTypeManga, models.SourceAniList
	case models.CategoryBook:
		return models.MediaTypeBook, models.SourceOpenLibrary
	case models.CategoryMovie, models.CategoryAnimeMovie:
		return models.MediaTypeMovie, models.SourceTMDB
	default:
		return models.MediaTypeTV, models.SourceTMDB
	}
}
