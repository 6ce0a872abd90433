package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/catalog-ingestor/internal/capability"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	catalogsvc "github.com/feichai0017/catalog-ingestor/internal/service/catalog"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/progress"
)

const (
	EventConnected = "connected"
	EventProgress  = "progress"
	EventPing      = "ping"

	// DefaultHeartbeat is the interval of keep-alive pings on idle streams.
	DefaultHeartbeat = 15 * time.Second
)

// CatalogService is what the HTTP layer needs from the catalog service.
type CatalogService interface {
	Submit(ctx context.Context, header *multipart.FileHeader, vendorID, sessionID string) (*catalogsvc.Submission, error)
	Subscribe(ctx context.Context, sessionID string) (*progress.Subscription, error)
	GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error)
	ListProducts(ctx context.Context, limit int) ([]models.Product, error)
	Capabilities() capability.Table
}

type CatalogHandler struct {
	service   CatalogService
	logger    logger.Logger
	heartbeat time.Duration
}

func NewCatalogHandler(service CatalogService, log logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		service:   service,
		logger:    log.Named("handler"),
		heartbeat: DefaultHeartbeat,
	}
}

// Upload accepts a catalog document and starts its ingestion. The result
// is delivered on the progress stream only.
func (h *CatalogHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "No file provided", err)
		return
	}

	sub, err := h.service.Submit(c.Request.Context(), header, c.PostForm("vendor_id"), c.PostForm("session_id"))
	if err != nil {
		if errors.Is(err, models.ErrUploadInvalid) {
			h.handleError(c, http.StatusBadRequest, "Invalid upload", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to start processing", err)
		return
	}

	c.JSON(http.StatusAccepted, sub)
}

// Progress streams the session's progress events as server-sent events.
// The stream opens with a connected event and ends after a terminal event,
// when the client goes away, or when a newer listener replaces this one.
func (h *CatalogHandler) Progress(c *gin.Context) {
	sessionID := c.Param("sessionId")

	sub, err := h.service.Subscribe(c.Request.Context(), sessionID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to subscribe", err)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent(EventConnected, gin.H{"sessionId": sessionID, "status": EventConnected})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-sub.Events():
			c.SSEvent(EventProgress, ev)
			return !ev.Terminal()
		case <-heartbeat.C:
			c.SSEvent(EventPing, gin.H{"time": time.Now().Unix()})
			return true
		case <-sub.Done():
			return false
		case <-ctx.Done():
			return false
		}
	})

	logger.FromContext(ctx, h.logger).Debug("Progress stream closed", logger.String("session_id", sessionID))
}

// Status returns the last known state of a session.
func (h *CatalogHandler) Status(c *gin.Context) {
	sessionID := c.Param("sessionId")

	status, err := h.service.GetStatus(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Session not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Products lists the newest persisted products.
func (h *CatalogHandler) Products(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.handleError(c, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	products, err := h.service.ListProducts(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// Capabilities reports the facilities detected at startup.
func (h *CatalogHandler) Capabilities(c *gin.Context) {
	caps := h.service.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"capabilities": caps,
		"summary":      caps.String(),
	})
}

func (h *CatalogHandler) handleError(c *gin.Context, status int, message string, err error) {
	log := logger.FromContext(c.Request.Context(), h.logger)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
