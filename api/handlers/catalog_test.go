package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/api/middleware"
	"github.com/feichai0017/catalog-ingestor/internal/capability"
	"github.com/feichai0017/catalog-ingestor/internal/models"
	catalogsvc "github.com/feichai0017/catalog-ingestor/internal/service/catalog"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/progress"
)

type fakeService struct {
	hub *progress.MemoryHub

	submitErr   error
	submitted   []string
	statuses    map[string]*models.SessionStatus
	products    []models.Product
	listedLimit int
	caps        capability.Table
}

func (s *fakeService) Submit(ctx context.Context, header *multipart.FileHeader, vendorID, sessionID string) (*catalogsvc.Submission, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, vendorID+"/"+sessionID+"/"+header.Filename)
	return &catalogsvc.Submission{
		SessionID: sessionID,
		Status:    "processing",
		FileName:  header.Filename,
		FileSize:  header.Size,
	}, nil
}

func (s *fakeService) Subscribe(ctx context.Context, sessionID string) (*progress.Subscription, error) {
	return s.hub.Subscribe(ctx, sessionID)
}

func (s *fakeService) GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	if st, ok := s.statuses[sessionID]; ok {
		return st, nil
	}
	return nil, models.ErrNotFound
}

func (s *fakeService) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	s.listedLimit = limit
	return s.products, nil
}

func (s *fakeService) Capabilities() capability.Table {
	return s.caps
}

func setupRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger()

	h := NewHandlers(svc, log)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/health", Health)
	v1 := r.Group("/api/v1")
	v1.GET("/capabilities", h.Catalog.Capabilities)
	v1.POST("/catalog/upload", h.Catalog.Upload)
	v1.GET("/catalog/progress/:sessionId", h.Catalog.Progress)
	v1.GET("/catalog/status/:sessionId", h.Catalog.Status)
	v1.GET("/catalog/products", h.Catalog.Products)
	return r
}

func newFakeService() *fakeService {
	return &fakeService{
		hub:      progress.NewMemoryHub(logger.NewTestLogger()),
		statuses: map[string]*models.SessionStatus{},
	}
}

func multipartRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload_Accepted(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)

	req := multipartRequest(t, map[string]string{"vendor_id": "v1", "session_id": "s1"}, "spring.pdf", []byte("%PDF-1.4"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp catalogsvc.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "spring.pdf", resp.FileName)
	assert.Equal(t, []string{"v1/s1/spring.pdf"}, svc.submitted)
}

func TestUpload_MissingFile(t *testing.T) {
	svc := newFakeService()
	r := setupRouter(svc)

	sub, err := svc.hub.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer sub.Close()

	req := multipartRequest(t, map[string]string{"session_id": "s1"}, "", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.submitted)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "No file provided", resp.Message)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected progress event %+v", ev)
	default:
	}
}

func TestUpload_InvalidFile(t *testing.T) {
	svc := newFakeService()
	svc.submitErr = fmt.Errorf("%w: file type \".exe\" is not allowed", models.ErrUploadInvalid)
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, nil, "tool.exe", []byte("MZ")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not allowed")
}

func TestUpload_DispatchError(t *testing.T) {
	svc := newFakeService()
	svc.submitErr = errors.New("failed to dispatch session: redis down")
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, nil, "a.pdf", []byte("%PDF")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	svc.statuses["s1"] = &models.SessionStatus{SessionID: "s1", Status: models.RunCompleted, Progress: 100, TotalProducts: 4}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/status/s1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var status models.SessionStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.RunCompleted, status.Status)
	assert.Equal(t, 4, status.TotalProducts)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/status/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts(t *testing.T) {
	svc := newFakeService()
	svc.products = []models.Product{{ID: "p1", Name: "Modern Oak Table", Price: 899.99}}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products?limit=5", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.listedLimit)

	var resp struct {
		Products []models.Product `json:"products"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Modern Oak Table", resp.Products[0].Name)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, svc.listedLimit)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapabilities(t *testing.T) {
	svc := newFakeService()
	svc.caps = capability.Table{DirectText: true, Rasterizer: true}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Capabilities capability.Table `json:"capabilities"`
		Summary      string           `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Capabilities.DirectText)
	assert.True(t, resp.Capabilities.Rasterizer)
	assert.Contains(t, resp.Summary, "pdftoppm=true")
}

func TestHealthAndRequestID(t *testing.T) {
	r := setupRouter(newFakeService())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))
}

type sseEvent struct {
	name string
	data string
}

// readEvent reads one server-sent event from the scanner.
func readEvent(t *testing.T, sc *bufio.Scanner) (sseEvent, bool) {
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && ev.name != "":
			return ev, true
		}
	}
	return ev, false
}

func TestProgress_StreamsUntilTerminal(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(setupRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/catalog/progress/s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	first, ok := readEvent(t, sc)
	require.True(t, ok)
	assert.Equal(t, EventConnected, first.name)
	assert.Contains(t, first.data, `"sessionId":"s1"`)

	ctx := context.Background()
	svc.hub.Publish(ctx, models.ProgressEvent{SessionID: "s1", Step: 1, Status: models.EventActive, Progress: 5})
	svc.hub.Publish(ctx, models.ProgressEvent{SessionID: "s1", Step: 5, Status: models.EventComplete, Progress: 100})

	var received []models.ProgressEvent
	for {
		ev, ok := readEvent(t, sc)
		if !ok {
			break
		}
		require.Equal(t, EventProgress, ev.name)
		var pe models.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(ev.data), &pe))
		received = append(received, pe)
	}

	require.Len(t, received, 2)
	assert.Equal(t, 5, received[0].Progress)
	assert.Equal(t, 100, received[1].Progress)
	assert.True(t, received[1].Terminal())

	deadline := time.Now().Add(time.Second)
	for svc.hub.Listeners() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, svc.hub.Listeners())
}

func TestProgress_ErrorEventEndsStream(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(setupRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/catalog/progress/s2")
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	_, ok := readEvent(t, sc)
	require.True(t, ok)

	svc.hub.Publish(context.Background(), models.ProgressEvent{SessionID: "s2", Step: 0, Status: models.EventError, Progress: 70, Message: "Saving catalog failed"})

	ev, ok := readEvent(t, sc)
	require.True(t, ok)
	assert.Contains(t, ev.data, "Saving catalog failed")

	_, ok = readEvent(t, sc)
	assert.False(t, ok)
}
