package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediatrack/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seriesUpsert(sourceID, title string) models.LibraryUpsert {
	return models.LibraryUpsert{
		Source:        models.SourceTMDB,
		SourceID:      sourceID,
		MediaType:     models.MediaTypeTV,
		Category:      models.CategoryKDrama,
		Title:         title,
		Country:       "KR",
		Genres:        []string{"Drama", "Thriller"},
		PosterURL:     "https://image.tmdb.org/t/p/w500/poster.jpg",
		Rating:        8.4,
		TotalSeasons:  2,
		TotalEpisodes: 32,
	}
}

func TestAddAssignsDefaultsAndOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.StatusPlanToWatch, first.Status)
	assert.Equal(t, 0, first.SortOrder)
	assert.Equal(t, []string{"Drama", "Thriller"}, first.Genres)

	second, err := svc.Add(ctx, "default", seriesUpsert("101", "Stranger"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.SortOrder)

	// A poster that is not a URL gets the placeholder.
	noPoster := seriesUpsert("102", "My Mister")
	noPoster.PosterURL = "N/A"
	third, err := svc.Add(ctx, "default", noPoster)
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderPosterURL, third.PosterURL)
}

func TestBookPagesPersistAndClamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", models.LibraryUpsert{
		Source:        models.SourceOpenLibrary,
		SourceID:      "OL45883W",
		MediaType:     models.MediaTypeBook,
		Title:         "The Hobbit",
		TotalEpisodes: 310,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryBook, item.Category)
	assert.Equal(t, 310, item.TotalEpisodes)

	// A page past the end clamps to the final page.
	item, err = svc.SetProgress(ctx, "default", item.ID, models.ProgressUpdate{CurrentEpisode: 500})
	require.NoError(t, err)
	assert.Equal(t, 310, item.CurrentEpisode)
	assert.Equal(t, models.StatusWatching, item.Status)
}

func TestAddRefreshKeepsStatusAndProgress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)

	_, err = svc.SetProgress(ctx, "default", item.ID, models.ProgressUpdate{CurrentSeason: 1, CurrentEpisode: 8})
	require.NoError(t, err)

	refresh := seriesUpsert("100", "Signal")
	refresh.Rating = 8.9
	refresh.TotalEpisodes = 48
	refresh.TotalSeasons = 1 // stale totals never shrink the stored ones

	updated, err := svc.Add(ctx, "default", refresh)
	require.NoError(t, err)
	assert.Equal(t, item.ID, updated.ID)
	assert.Equal(t, models.StatusWatching, updated.Status)
	assert.Equal(t, 1, updated.CurrentSeason)
	assert.Equal(t, 8, updated.CurrentEpisode)
	assert.Equal(t, 8.9, updated.Rating)
	assert.Equal(t, 48, updated.TotalEpisodes)
	assert.Equal(t, 2, updated.TotalSeasons)
}

func TestAddValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "  ", seriesUpsert("100", "Signal"))
	assert.ErrorIs(t, err, ErrProfileIDRequired)

	missingTitle := seriesUpsert("100", "  ")
	_, err = svc.Add(ctx, "default", missingTitle)
	assert.ErrorIs(t, err, ErrInvalidUpsert)

	badType := seriesUpsert("100", "Signal")
	badType.MediaType = "podcast"
	_, err = svc.Add(ctx, "default", badType)
	assert.ErrorIs(t, err, ErrInvalidUpsert)

	noSource := seriesUpsert("100", "Signal")
	noSource.Source = ""
	_, err = svc.Add(ctx, "default", noSource)
	assert.ErrorIs(t, err, ErrInvalidUpsert)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	drama, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, "default", seriesUpsert("101", "Stranger"))
	require.NoError(t, err)

	movie := seriesUpsert("200", "Heat")
	movie.MediaType = models.MediaTypeMovie
	movie.Category = models.CategoryMovie
	_, err = svc.Add(ctx, "default", movie)
	require.NoError(t, err)

	// Another profile's items never leak in.
	_, err = svc.Add(ctx, "other", seriesUpsert("300", "Dark"))
	require.NoError(t, err)

	page, err := svc.List(ctx, "default", models.LibraryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = svc.List(ctx, "default", models.LibraryFilter{Category: models.CategoryKDrama})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = svc.SetStatus(ctx, "default", drama.ID, models.StatusWatching)
	require.NoError(t, err)
	page, err = svc.List(ctx, "default", models.LibraryFilter{Status: models.StatusWatching})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Signal", page.Items[0].Title)

	_, err = svc.List(ctx, "default", models.LibraryFilter{Status: "binging"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	page, err = svc.List(ctx, "default", models.LibraryFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	_, err = svc.List(ctx, "", models.LibraryFilter{})
	assert.ErrorIs(t, err, ErrProfileIDRequired)
}

func TestSetStatusCompletedSnapsProgress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)

	done, err := svc.SetStatus(ctx, "default", item.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.CurrentSeason)
	assert.Equal(t, 32, done.CurrentEpisode)

	// Movies carry no stepwise progress, completing leaves it at zero.
	movie := seriesUpsert("200", "Heat")
	movie.MediaType = models.MediaTypeMovie
	movie.Category = models.CategoryMovie
	movieItem, err := svc.Add(ctx, "default", movie)
	require.NoError(t, err)

	doneMovie, err := svc.SetStatus(ctx, "default", movieItem.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0, doneMovie.CurrentEpisode)

	_, err = svc.SetStatus(ctx, "default", item.ID, "binging")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.SetStatus(ctx, "default", "missing", models.StatusDropped)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestSetProgressClampsAndPromotes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)

	updated, err := svc.SetProgress(ctx, "default", item.ID, models.ProgressUpdate{CurrentSeason: 9, CurrentEpisode: 99})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentSeason, "season clamps to the known total")
	assert.Equal(t, 32, updated.CurrentEpisode, "episode clamps to the known total")
	assert.Equal(t, models.StatusWatching, updated.Status, "first progress promotes plan-to-watch")

	updated, err = svc.SetProgress(ctx, "default", item.ID, models.ProgressUpdate{CurrentSeason: -1, CurrentEpisode: -5})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CurrentSeason)
	assert.Equal(t, 0, updated.CurrentEpisode)

	movie := seriesUpsert("200", "Heat")
	movie.MediaType = models.MediaTypeMovie
	movie.Category = models.CategoryMovie
	movieItem, err := svc.Add(ctx, "default", movie)
	require.NoError(t, err)

	_, err = svc.SetProgress(ctx, "default", movieItem.ID, models.ProgressUpdate{CurrentEpisode: 1})
	assert.ErrorIs(t, err, ErrNoProgressTracking)
}

func TestReorder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)
	b, err := svc.Add(ctx, "default", seriesUpsert("101", "Stranger"))
	require.NoError(t, err)
	c, err := svc.Add(ctx, "default", seriesUpsert("102", "My Mister"))
	require.NoError(t, err)

	// Partial order: listed items go first, the rest keep their order.
	require.NoError(t, svc.Reorder(ctx, "default", models.CategoryKDrama, []string{c.ID, a.ID}))

	page, err := svc.List(ctx, "default", models.LibraryFilter{Category: models.CategoryKDrama})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, c.ID, page.Items[0].ID)
	assert.Equal(t, a.ID, page.Items[1].ID)
	assert.Equal(t, b.ID, page.Items[2].ID)

	err = svc.Reorder(ctx, "default", models.CategoryKDrama, []string{"missing"})
	assert.ErrorIs(t, err, ErrUnknownItemInOrder)

	assert.ErrorIs(t, svc.Reorder(ctx, " ", models.CategoryKDrama, nil), ErrProfileIDRequired)
}

func TestRemove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "default", item.ID))

	_, err = svc.Get(ctx, "default", item.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	assert.ErrorIs(t, svc.Remove(ctx, "default", item.ID), ErrItemNotFound)
}

func TestListByStatusSpansProfiles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)
	b, err := svc.Add(ctx, "other", seriesUpsert("101", "Stranger"))
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "default", a.ID, models.StatusWatching)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "other", b.ID, models.StatusWatching)
	require.NoError(t, err)

	items, err := svc.ListByStatus(ctx, models.StatusWatching)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = svc.ListByStatus(ctx, "binging")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateTotals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Add(ctx, "default", seriesUpsert("100", "Signal"))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTotals(ctx, item.ID, 3, 48))

	got, err := svc.Get(ctx, "default", item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalSeasons)
	assert.Equal(t, 48, got.TotalEpisodes)

	assert.ErrorIs(t, svc.UpdateTotals(ctx, "missing", 1, 1), ErrItemNotFound)
}
