package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/models"
	"github.com/estatehub/catalog/internal/store"
)

// ErrInvalidProperty rejects a mutation payload that violates a record
// invariant before it reaches the store.
var ErrInvalidProperty = errors.New("invalid property")

// Notifier receives a change event after every accepted mutation.
// Implementations must never block the write path; delivery failures
// are theirs to log and swallow.
type Notifier interface {
	Notify(event models.ChangeEvent)
}

// NopNotifier discards events. Used when no subscription hub is wired.
type NopNotifier struct{}

func (NopNotifier) Notify(models.ChangeEvent) {}

// Engine translates filter specifications into deterministic paginated
// result sets and is the trigger point for change notifications on the
// write path. It is purely read-side otherwise and needs no locking.
type Engine struct {
	store        *store.Store
	notifier     Notifier
	logger       *logrus.Logger
	defaultLimit int
	maxLimit     int
}

func NewEngine(st *store.Store, notifier Notifier, defaultLimit, maxLimit int, logger *logrus.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		store:        st,
		notifier:     notifier,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// NormalizeSpec applies the engine's configured defaults and bounds to
// a raw filter spec. The result is canonical: its CacheKey identifies
// the query.
func (e *Engine) NormalizeSpec(spec FilterSpec) (FilterSpec, error) {
	return spec.Normalize(e.defaultLimit, e.maxLimit)
}

// Query returns one page of properties matching the spec plus the
// pagination metadata. A page beyond the last one yields an empty
// result, never an error.
func (e *Engine) Query(spec FilterSpec) (*models.PageResult, error) {
	spec, err := spec.Normalize(e.defaultLimit, e.maxLimit)
	if err != nil {
		return nil, err
	}

	// The store treats an empty status as "no filter"; the public
	// sentinel is translated here so it has a single definition.
	status := spec.Status
	if status == StatusAll {
		status = ""
	}

	properties, total, err := e.store.List(store.ListQuery{
		Status:       status,
		PropertyType: spec.PropertyType,
		Location:     spec.Location,
		MinPrice:     spec.MinPrice,
		MaxPrice:     spec.MaxPrice,
		Featured:     spec.Featured,
		Offset:       (spec.Page - 1) * spec.Limit,
		Limit:        spec.Limit,
	})
	if err != nil {
		return nil, err
	}

	pages := int((total + int64(spec.Limit) - 1) / int64(spec.Limit))
	if properties == nil {
		properties = []models.Property{}
	}
	return &models.PageResult{
		Properties: properties,
		Pagination: models.Pagination{
			Page:  spec.Page,
			Limit: spec.Limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

func (e *Engine) FindByID(id string) (*models.Property, error) {
	return e.store.GetByID(id)
}

func (e *Engine) FindBySlug(slug string) (*models.Property, error) {
	return e.store.GetBySlug(slug)
}

func (e *Engine) FindFeatured(limit int) ([]models.Property, error) {
	if limit <= 0 || limit > e.maxLimit {
		limit = e.defaultLimit
	}
	return e.store.Featured(limit)
}

// Search matches active properties whose title, description or location
// contains the text. The result is unpaginated; callers paginate
// client-side on this path.
func (e *Engine) Search(text string) ([]models.Property, error) {
	if text == "" {
		return []models.Property{}, nil
	}
	return e.store.Search(text)
}

func (e *Engine) PropertyTypes() ([]string, error) {
	return e.store.DistinctPropertyTypes()
}

func (e *Engine) Locations() ([]string, error) {
	return e.store.DistinctLocations()
}

func (e *Engine) Stats() (*models.CatalogStats, error) {
	return e.store.Stats()
}

// NearbyResult is a property annotated with its distance from the
// search origin.
type NearbyResult struct {
	models.Property
	DistanceKm float64 `json:"distance_km"`
}

// FindNearby returns active properties with stored coordinates within
// radiusKm of the origin, nearest first.
func (e *Engine) FindNearby(lat, lon, radiusKm float64) ([]NearbyResult, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidFilter)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidFilter)
	}

	candidates, err := e.store.WithCoordinates()
	if err != nil {
		return nil, err
	}

	origin := orb.Point{lon, lat}
	results := make([]NearbyResult, 0, len(candidates))
	for _, p := range candidates {
		dist := geo.DistanceHaversine(origin, orb.Point{*p.Longitude, *p.Latitude})
		if dist <= radiusKm*1000 {
			results = append(results, NearbyResult{Property: p, DistanceKm: dist / 1000})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	return results, nil
}

// Create inserts a property and then notifies. The write is complete
// once the store accepts it; notification is best-effort and never
// rolls the mutation back.
func (e *Engine) Create(p *models.Property) (*models.Property, error) {
	if p.Price < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidProperty)
	}
	if err := e.store.Create(p); err != nil {
		return nil, err
	}

	e.logger.WithField("property_id", p.ID).Info("Property created")
	e.notifier.Notify(models.ChangeEvent{
		Type:      models.EventPropertyCreated,
		ID:        p.ID,
		Timestamp: time.Now().UTC(),
	})
	return p, nil
}

// UpdateByID applies a partial patch and reports whether a change
// occurred. No event is emitted when nothing matched.
func (e *Engine) UpdateByID(id string, patch map[string]interface{}) (bool, error) {
	fields := make([]string, 0, len(patch))
	for k := range patch {
		switch k {
		case "id", "slug", "created_at", "updated_at":
			// server-owned, the store discards these from the patch
		default:
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	changed, err := e.store.UpdateByID(id, patch)
	if err != nil || !changed {
		return changed, err
	}

	e.logger.WithField("property_id", id).Info("Property updated")
	e.notifier.Notify(models.ChangeEvent{
		Type:      models.EventPropertyUpdated,
		ID:        id,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	})
	return true, nil
}

// DeleteByID removes a property and reports whether it existed.
func (e *Engine) DeleteByID(id string) (bool, error) {
	deleted, err := e.store.DeleteByID(id)
	if err != nil || !deleted {
		return deleted, err
	}

	e.logger.WithField("property_id", id).Info("Property deleted")
	e.notifier.Notify(models.ChangeEvent{
		Type:      models.EventPropertyDeleted,
		ID:        id,
		Timestamp: time.Now().UTC(),
	})
	return true, nil
}
