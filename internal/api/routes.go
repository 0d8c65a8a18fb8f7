package api

import (
	"github.com/gin-gonic/gin"

	"github.com/estatehub/catalog/internal/events"
)

func SetupRoutes(router *gin.Engine, handler *Handler, ws *events.WSServer) {
	api := router.Group("/api")
	{
		api.GET("/properties", handler.GetProperties)
		api.GET("/properties/featured", handler.GetFeatured)
		api.GET("/properties/nearby", handler.GetNearby)
		api.GET("/properties/slug/:slug", handler.GetPropertyBySlug)
		api.GET("/properties/:id", handler.GetProperty)
		api.POST("/properties", handler.CreateProperty)
		api.PUT("/properties/:id", handler.UpdateProperty)
		api.DELETE("/properties/:id", handler.DeleteProperty)

		api.GET("/search", handler.Search)
		api.GET("/meta/types", handler.GetPropertyTypes)
		api.GET("/meta/locations", handler.GetLocations)
		api.GET("/stats", handler.GetStats)
	}

	router.GET("/ws", ws.Handle)
}
