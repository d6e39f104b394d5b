package library

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"mediatrack/models"
)

var (
	// ErrProfileIDRequired indicates a missing profile identifier.
	ErrProfileIDRequired = errors.New("profile id is required")
	// ErrItemNotFound indicates the item does not exist for the profile.
	ErrItemNotFound = errors.New("library item not found")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNoProgressTracking indicates the item's media type has no
	// stepwise progress (movies are done or not done).
	ErrNoProgressTracking = errors.New("item does not track progress")
	// ErrInvalidUpsert indicates a structurally invalid add request.
	ErrInvalidUpsert = errors.New("invalid library item")
	// ErrUnknownItemInOrder indicates a reorder request referencing an
	// item outside the category.
	ErrUnknownItemInOrder = errors.New("reorder references unknown item")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 100

// Service persists per-profile collections in SQLite.
type Service struct {
	db *sql.DB
}

// NewService opens (creating if needed) the library database and runs
// pending migrations.
func NewService(dbPath string) (*Service, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create library dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate library db: %w", err)
	}

	return &Service{db: db}, nil
}

// Close releases the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

const itemColumns = `id, profile_id, source, source_id, media_type, category, title, country,
	status, genres, poster_url, backdrop_url, overview, rating,
	current_season, current_episode, total_seasons, total_episodes,
	sort_order, added_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (models.LibraryItem, error) {
	var item models.LibraryItem
	var genres string
	err := row.Scan(
		&item.ID, &item.ProfileID, &item.Source, &item.SourceID, &item.MediaType,
		&item.Category, &item.Title, &item.Country, &item.Status, &genres,
		&item.PosterURL, &item.BackdropURL, &item.Overview, &item.Rating,
		&item.CurrentSeason, &item.CurrentEpisode, &item.TotalSeasons, &item.TotalEpisodes,
		&item.SortOrder, &item.AddedAt, &item.UpdatedAt,
	)
	if err != nil {
		return models.LibraryItem{}, err
	}
	item.Genres = splitGenres(genres)
	return item, nil
}

func joinGenres(genres []string) string {
	cleaned := make([]string, 0, len(genres))
	for _, g := range genres {
		if g = strings.TrimSpace(g); g != "" {
			cleaned = append(cleaned, g)
		}
	}
	return strings.Join(cleaned, ", ")
}

func splitGenres(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}

// defaultCategory maps a media type to its generic shelf when the caller
// did not provide a derived category.
func defaultCategory(mediaType models.MediaType) models.Category {
	switch mediaType {
	case models.MediaTypeMovie:
		return models.CategoryMovie
	case models.MediaTypeTV:
		return models.CategoryTVSeries
	case models.MediaTypeAnime:
		return models.CategoryAnime
	case models.MediaTypeManga:
		return models.CategoryManga
	case models.MediaTypeBook:
		return models.CategoryBook
	}
	return models.CategoryMovie
}

// Add inserts a title into the profile's collection, or refreshes the
// stored metadata when the title is already present. Status, progress
// and manual ordering survive a re-add.
func (s *Service) Add(ctx context.Context, profileID string, input models.LibraryUpsert) (models.LibraryItem, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return models.LibraryItem{}, ErrProfileIDRequired
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.SourceID) == "" || !input.MediaType.Valid() {
		return models.LibraryItem{}, ErrInvalidUpsert
	}
	if input.Source == "" {
		return models.LibraryItem{}, ErrInvalidUpsert
	}

	category := input.Category
	if category == "" {
		category = defaultCategory(input.MediaType)
	}
	poster := input.PosterURL
	if !strings.HasPrefix(strings.TrimSpace(poster), "http") {
		poster = models.PlaceholderPosterURL
	}

	now := time.Now().UTC()

	// Refresh path: keep status, progress and sort order.
	existing, err := s.getBySource(ctx, profileID, input.Source, input.SourceID)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE library_items
			SET title = ?, country = ?, genres = ?, poster_url = ?, backdrop_url = ?,
			    overview = ?, rating = ?, total_seasons = ?, total_episodes = ?, updated_at = ?
			WHERE id = ?`,
			input.Title, input.Country, joinGenres(input.Genres), poster, input.BackdropURL,
			input.Overview, input.Rating, maxInt(input.TotalSeasons, existing.TotalSeasons),
			maxInt(input.TotalEpisodes, existing.TotalEpisodes), now, existing.ID,
		)
		if err != nil {
			return models.LibraryItem{}, err
		}
		return s.Get(ctx, profileID, existing.ID)
	}
	if !errors.Is(err, ErrItemNotFound) {
		return models.LibraryItem{}, err
	}

	var nextOrder int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM library_items WHERE profile_id = ? AND category = ?`,
		profileID, category,
	).Scan(&nextOrder); err != nil {
		return models.LibraryItem{}, err
	}

	item := models.LibraryItem{
		ID:            uuid.NewString(),
		ProfileID:     profileID,
		Source:        input.Source,
		SourceID:      input.SourceID,
		MediaType:     input.MediaType,
		Category:      category,
		Title:         input.Title,
		Country:       input.Country,
		Status:        models.StatusPlanToWatch,
		Genres:        input.Genres,
		PosterURL:     poster,
		BackdropURL:   input.BackdropURL,
		Overview:      input.Overview,
		Rating:        input.Rating,
		TotalSeasons:  input.TotalSeasons,
		TotalEpisodes: input.TotalEpisodes,
		SortOrder:     nextOrder,
		AddedAt:       now,
		UpdatedAt:     now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO library_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProfileID, item.Source, item.SourceID, item.MediaType,
		item.Category, item.Title, item.Country, item.Status, joinGenres(item.Genres),
		item.PosterURL, item.BackdropURL, item.Overview, item.Rating,
		item.CurrentSeason, item.CurrentEpisode, item.TotalSeasons, item.TotalEpisodes,
		item.SortOrder, item.AddedAt, item.UpdatedAt,
	)
	if err != nil {
		return models.LibraryItem{}, err
	}
	return item, nil
}

func (s *Service) getBySource(ctx context.Context, profileID string, source models.Source, sourceID string) (models.LibraryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM library_items WHERE profile_id = ? AND source = ? AND source_id = ?`,
		profileID, source, sourceID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LibraryItem{}, ErrItemNotFound
	}
	return item, err
}

// Get returns one item owned by the profile.
func (s *Service) Get(ctx context.Context, profileID, itemID string) (models.LibraryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM library_items WHERE profile_id = ? AND id = ?`,
		profileID, itemID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LibraryItem{}, ErrItemNotFound
	}
	return item, err
}

// List returns a filtered, manually-ordered page of the collection.
func (s *Service) List(ctx context.Context, profileID string, filter models.LibraryFilter) (models.LibraryPage, error) {
	if strings.TrimSpace(profileID) == "" {
		return models.LibraryPage{}, ErrProfileIDRequired
	}

	where := "WHERE profile_id = ?"
	args := []any{profileID}
	if filter.Category != "" {
		where += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return models.LibraryPage{}, ErrInvalidStatus
		}
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM library_items "+where, args...).Scan(&total); err != nil {
		return models.LibraryPage{}, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM library_items "+where+" ORDER BY category, sort_order, added_at LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return models.LibraryPage{}, err
	}
	defer rows.Close()

	items := make([]models.LibraryItem, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return models.LibraryPage{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return models.LibraryPage{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return models.LibraryPage{
		Items:      items,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		TotalPages: totalPages,
	}, nil
}

// SetStatus updates an item's queue status. Completing an episodic item
// with known totals snaps progress to the end.
func (s *Service) SetStatus(ctx context.Context, profileID, itemID string, status models.Status) (models.LibraryItem, error) {
	if !status.Valid() {
		return models.LibraryItem{}, ErrInvalidStatus
	}
	item, err := s.Get(ctx, profileID, itemID)
	if err != nil {
		return models.LibraryItem{}, err
	}

	season, episode := item.CurrentSeason, item.CurrentEpisode
	if status == models.StatusCompleted && item.HasEpisodeProgress() {
		if item.TotalSeasons > 0 {
			season = item.TotalSeasons
		}
		if item.TotalEpisodes > 0 {
			episode = item.TotalEpisodes
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE library_items SET status = ?, current_season = ?, current_episode = ?, updated_at = ? WHERE id = ?`,
		status, season, episode, time.Now().UTC(), item.ID,
	)
	if err != nil {
		return models.LibraryItem{}, err
	}
	return s.Get(ctx, profileID, itemID)
}

// SetProgress updates stepwise progress. Movies reject progress updates;
// values are clamped to known totals.
func (s *Service) SetProgress(ctx context.Context, profileID, itemID string, progress models.ProgressUpdate) (models.LibraryItem, error) {
	item, err := s.Get(ctx, profileID, itemID)
	if err != nil {
		return models.LibraryItem{}, err
	}
	if !item.HasEpisodeProgress() {
		return models.LibraryItem{}, ErrNoProgressTracking
	}

	season := clamp(progress.CurrentSeason, item.TotalSeasons)
	episode := clamp(progress.CurrentEpisode, item.TotalEpisodes)

	// First progress on a planned item moves it to watching.
	status := item.Status
	if status == models.StatusPlanToWatch && (season > 0 || episode > 0) {
		status = models.StatusWatching
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE library_items SET current_season = ?, current_episode = ?, status = ?, updated_at = ? WHERE id = ?`,
		season, episode, status, time.Now().UTC(), item.ID,
	)
	if err != nil {
		return models.LibraryItem{}, err
	}
	return s.Get(ctx, profileID, itemID)
}

// Reorder rewrites the manual sort order of one category. Listed items
// take positions 0..n-1 in the given order; unlisted items keep their
// relative order after them.
func (s *Service) Reorder(ctx context.Context, profileID string, category models.Category, orderedIDs []string) error {
	if strings.TrimSpace(profileID) == "" {
		return ErrProfileIDRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM library_items WHERE profile_id = ? AND category = ? ORDER BY sort_order, added_at`,
		profileID, category,
	)
	if err != nil {
		return err
	}
	existing := make([]string, 0, 16)
	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, id)
		known[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	listed := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrUnknownItemInOrder, id)
		}
		listed[id] = true
	}

	final := make([]string, 0, len(existing))
	final = append(final, orderedIDs...)
	for _, id := range existing {
		if !listed[id] {
			final = append(final, id)
		}
	}

	now := time.Now().UTC()
	for position, id := range final {
		if _, err := tx.ExecContext(ctx,
			`UPDATE library_items SET sort_order = ?, updated_at = ? WHERE id = ?`,
			position, now, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Remove deletes one item from the profile's collection.
func (s *Service) Remove(ctx context.Context, profileID, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM library_items WHERE profile_id = ? AND id = ?`,
		profileID, itemID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ListByStatus returns items in one status across all profiles, used by
// the background refresh task.
func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]models.LibraryItem, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM library_items WHERE status = ? ORDER BY updated_at`,
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LibraryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateTotals refreshes season/episode totals fetched from a catalog.
func (s *Service) UpdateTotals(ctx context.Context, itemID string, totalSeasons, totalEpisodes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE library_items SET total_seasons = ?, total_episodes = ?, updated_at = ? WHERE id = ?`,
		totalSeasons, totalEpisodes, time.Now().UTC(), itemID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func clamp(v, total int) int {
	if v < 0 {
		return 0
	}
	if total > 0 && v > total {
		return total
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
