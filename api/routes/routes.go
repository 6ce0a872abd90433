package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/catalog-ingestor/api/handlers"
	"github.com/feichai0017/catalog-ingestor/api/middleware"
	"github.com/feichai0017/catalog-ingestor/internal/agent/document/image"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// SetupRoutes registers every route. outputDir is served under the
// extracted image prefix.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, outputDir string, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS())

	r.GET("/health", handlers.Health)
	r.Static(image.LocalURLPrefix, outputDir)

	v1 := r.Group("/api/v1")
	v1.GET("/capabilities", h.Catalog.Capabilities)

	catalog := v1.Group("/catalog")
	{
		catalog.POST("/upload", h.Catalog.Upload)
		catalog.GET("/progress/:sessionId", h.Catalog.Progress)
		catalog.GET("/status/:sessionId", h.Catalog.Status)
		catalog.GET("/products", h.Catalog.Products)
	}
}
