package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type Handlers struct {
	Catalog *CatalogHandler
}

func NewHandlers(service CatalogService, logger logger.Logger) *Handlers {
	return &Handlers{
		Catalog: NewCatalogHandler(service, logger),
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
