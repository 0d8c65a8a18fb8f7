package catalog

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/catalog/internal/models"
	"github.com/estatehub/catalog/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (r *recordingNotifier) Notify(event models.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) all() []models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChangeEvent(nil), r.events...)
}

func newTestEngine(t *testing.T) (*Engine, *recordingNotifier) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notifier := &recordingNotifier{}
	return NewEngine(st, notifier, 12, 100, logger), notifier
}

func seed(t *testing.T, e *Engine, properties ...*models.Property) {
	t.Helper()
	for _, p := range properties {
		_, err := e.Create(p)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEngine_QueryPaginationInvariants(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := 0; i < 7; i++ {
		seed(t, e, &models.Property{Title: "Home", Price: float64(i)})
	}

	result, err := e.Query(FilterSpec{Limit: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Properties), 3)
	assert.Equal(t, int64(7), result.Pagination.Total)
	assert.Equal(t, 3, result.Pagination.Pages, "pages must be ceil(total/limit)")

	// Last partial page
	result, err = e.Query(FilterSpec{Page: 3, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, result.Properties, 1)
}

func TestEngine_QueryPastLastPageIsEmptyNotError(t *testing.T) {
	e, _ := newTestEngine(t)
	seed(t, e, &models.Property{Title: "Only One"})

	result, err := e.Query(FilterSpec{Page: 99})
	require.NoError(t, err)
	assert.Empty(t, result.Properties)
	assert.Equal(t, 99, result.Pagination.Page)
}

func TestEngine_QueryInvalidFilter(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Query(FilterSpec{Page: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = e.Query(FilterSpec{MinPrice: floatPtr(10), MaxPrice: floatPtr(5)})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestEngine_QuerySortedNewestFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	seed(t, e,
		&models.Property{Title: "First"},
		&models.Property{Title: "Second"},
		&models.Property{Title: "Third"},
	)

	result, err := e.Query(FilterSpec{})
	require.NoError(t, err)
	require.Len(t, result.Properties, 3)
	assert.Equal(t, "Third", result.Properties[0].Title)
	for i := 1; i < len(result.Properties); i++ {
		assert.False(t, result.Properties[i-1].CreatedAt.Before(result.Properties[i].CreatedAt),
			"results must be sorted by createdAt descending")
	}
}

func TestEngine_CatalogScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	seed(t, e,
		&models.Property{Title: "City Apartment", PropertyType: "apartment", Featured: true},
		&models.Property{Title: "Garden Villa", PropertyType: "villa", Featured: true},
		&models.Property{Title: "Suburban House", PropertyType: "house"},
	)

	featured, err := e.FindFeatured(6)
	require.NoError(t, err)
	require.Len(t, featured, 2)
	assert.Equal(t, "Garden Villa", featured[0].Title, "newest featured first")
	assert.Equal(t, "City Apartment", featured[1].Title)

	found, err := e.Search("villa")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Garden Villa", found[0].Title)

	result, err := e.Query(FilterSpec{Status: "active", PropertyType: "villa"})
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	assert.Equal(t, "Garden Villa", result.Properties[0].Title)
}

func TestEngine_QueryStatusAllSentinel(t *testing.T) {
	e, _ := newTestEngine(t)
	seed(t, e,
		&models.Property{Title: "Active Home"},
		&models.Property{Title: "Sold Home", Status: "sold"},
	)

	// Default scope is active only
	result, err := e.Query(FilterSpec{})
	require.NoError(t, err)
	assert.Len(t, result.Properties, 1)

	// The explicit sentinel widens the scope to every status
	result, err = e.Query(FilterSpec{Status: StatusAll})
	require.NoError(t, err)
	assert.Len(t, result.Properties, 2)
}

func TestEngine_QueryPropertyTypeExactMatch(t *testing.T) {
	e, _ := newTestEngine(t)
	seed(t, e,
		&models.Property{Title: "Cased", PropertyType: "Villa"},
		&models.Property{Title: "Lowercased", PropertyType: "apartment"},
	)

	result, err := e.Query(FilterSpec{PropertyType: "Villa"})
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	assert.Equal(t, "Cased", result.Properties[0].Title)

	// Every value reported by the distinct listing must round-trip
	// through the type filter
	types, err := e.PropertyTypes()
	require.NoError(t, err)
	require.NotEmpty(t, types)
	for _, pt := range types {
		result, err := e.Query(FilterSpec{PropertyType: pt})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Properties, "distinct type %q must be queryable", pt)
	}
}

func TestEngine_CreateNotifies(t *testing.T) {
	e, notifier := newTestEngine(t)

	created, err := e.Create(&models.Property{Title: "Announced"})
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPropertyCreated, events[0].Type)
	assert.Equal(t, created.ID, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestEngine_CreateRejectsNegativePrice(t *testing.T) {
	e, notifier := newTestEngine(t)

	_, err := e.Create(&models.Property{Title: "Bad", Price: -1})
	assert.ErrorIs(t, err, ErrInvalidProperty)
	assert.Empty(t, notifier.all(), "no event on rejected mutation")
}

func TestEngine_UpdateNotifiesWithAffectedFields(t *testing.T) {
	e, notifier := newTestEngine(t)
	created, err := e.Create(&models.Property{Title: "Original", Price: 100})
	require.NoError(t, err)

	changed, err := e.UpdateByID(created.ID, map[string]interface{}{
		"price": 200.0,
		"title": "Renamed",
		"id":    "ignored",
	})
	require.NoError(t, err)
	assert.True(t, changed)

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventPropertyUpdated, events[1].Type)
	assert.Equal(t, created.ID, events[1].ID)
	assert.Equal(t, []string{"price", "title"}, events[1].Fields)
}

func TestEngine_UpdateMissingRecordEmitsNothing(t *testing.T) {
	e, notifier := newTestEngine(t)

	changed, err := e.UpdateByID("no-such-id", map[string]interface{}{"title": "x"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, notifier.all())
}

func TestEngine_DeleteNotifies(t *testing.T) {
	e, notifier := newTestEngine(t)
	created, err := e.Create(&models.Property{Title: "Removed"})
	require.NoError(t, err)

	deleted, err := e.DeleteByID(created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventPropertyDeleted, events[1].Type)

	// Deleting again is not a change and emits nothing
	deleted, err = e.DeleteByID(created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, notifier.all(), 2)
}

func TestEngine_FindByIDNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.FindByID("missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_FindNearby(t *testing.T) {
	e, _ := newTestEngine(t)

	bole := &models.Property{Title: "Bole Home", Latitude: floatPtr(8.9936), Longitude: floatPtr(38.7870)}
	cmc := &models.Property{Title: "CMC Home", Latitude: floatPtr(9.0192), Longitude: floatPtr(38.8293)}
	noCoords := &models.Property{Title: "Unmapped Home"}
	seed(t, e, bole, cmc, noCoords)

	// Origin near Bole; 3km catches only the Bole home
	results, err := e.FindNearby(8.99, 38.79, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Bole Home", results[0].Title)

	// 10km catches both, nearest first
	results, err = e.FindNearby(8.99, 38.79, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Bole Home", results[0].Title)
	assert.Less(t, results[0].DistanceKm, results[1].DistanceKm)

	_, err = e.FindNearby(200, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}
