package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/internal/cache"
	"github.com/estatehub/catalog/internal/catalog"
	"github.com/estatehub/catalog/internal/models"
	"github.com/estatehub/catalog/internal/store"
)

type Handler struct {
	engine    *catalog.Engine
	pageCache *cache.PageCache
	logger    *logrus.Logger
}

func NewHandler(engine *catalog.Engine, pageCache *cache.PageCache, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Handler{
		engine:    engine,
		pageCache: pageCache,
		logger:    logger,
	}
}

// GetProperties serves the filtered, paginated catalog listing, read
// through the server-side page cache when one is configured.
func (h *Handler) GetProperties(c *gin.Context) {
	var spec catalog.FilterSpec
	if err := c.ShouldBindQuery(&spec); err != nil {
		h.logger.WithError(err).Warn("Failed to parse filter spec")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter parameters"})
		return
	}

	spec, err := h.engine.NormalizeSpec(spec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := spec.CacheKey()
	if payload, ok := h.pageCache.Get(c.Request.Context(), key); ok {
		c.Data(http.StatusOK, "application/json", payload)
		return
	}

	result, err := h.engine.Query(spec)
	if err != nil {
		h.respondError(c, err, "Failed to query properties")
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode page result")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode response"})
		return
	}
	h.pageCache.Set(c.Request.Context(), key, payload)
	c.Data(http.StatusOK, "application/json", payload)
}

func (h *Handler) GetProperty(c *gin.Context) {
	property, err := h.engine.FindByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get property")
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *Handler) GetPropertyBySlug(c *gin.Context) {
	property, err := h.engine.FindBySlug(c.Param("slug"))
	if err != nil {
		h.respondError(c, err, "Failed to get property by slug")
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *Handler) GetFeatured(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "6"))
	properties, err := h.engine.FindFeatured(limit)
	if err != nil {
		h.respondError(c, err, "Failed to get featured properties")
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *Handler) Search(c *gin.Context) {
	properties, err := h.engine.Search(c.Query("q"))
	if err != nil {
		h.respondError(c, err, "Search failed")
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *Handler) GetNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radius", "5"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid radius"})
		return
	}

	results, err := h.engine.FindNearby(lat, lon, radius)
	if err != nil {
		h.respondError(c, err, "Nearby search failed")
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) GetPropertyTypes(c *gin.Context) {
	types, err := h.engine.PropertyTypes()
	if err != nil {
		h.respondError(c, err, "Failed to get property types")
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) GetLocations(c *gin.Context) {
	locations, err := h.engine.Locations()
	if err != nil {
		h.respondError(c, err, "Failed to get locations")
		return
	}
	c.JSON(http.StatusOK, locations)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.respondError(c, err, "Failed to get catalog stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) CreateProperty(c *gin.Context) {
	var property models.Property
	if err := c.ShouldBindJSON(&property); err != nil {
		h.logger.WithError(err).Warn("Invalid property payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property payload"})
		return
	}

	created, err := h.engine.Create(&property)
	if err != nil {
		h.respondError(c, err, "Failed to create property")
		return
	}

	go h.pageCache.InvalidateAll(context.Background())
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateProperty(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.WithError(err).Warn("Invalid update payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update payload"})
		return
	}

	updated, err := h.engine.UpdateByID(c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err, "Failed to update property")
		return
	}

	if updated {
		go h.pageCache.InvalidateAll(context.Background())
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) DeleteProperty(c *gin.Context) {
	deleted, err := h.engine.DeleteByID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to delete property")
		return
	}

	if deleted {
		go h.pageCache.InvalidateAll(context.Background())
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// respondError maps the error taxonomy onto HTTP statuses: invalid
// filters are the caller's fault, missing records are 404, everything
// else is a server-side failure surfaced unchanged in the logs.
func (h *Handler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, catalog.ErrInvalidFilter), errors.Is(err, catalog.ErrInvalidProperty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
	case errors.Is(err, store.ErrUnavailable):
		h.logger.WithError(err).Error(message)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
	default:
		h.logger.WithError(err).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
