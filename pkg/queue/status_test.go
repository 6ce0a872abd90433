package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

func TestMemoryStatusStore(t *testing.T) {
	store := NewMemoryStatusStore(time.Hour)
	ctx := context.Background()

	_, err := store.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.SaveStatus(ctx, &models.SessionStatus{SessionID: "s1", Status: models.RunRunning, Progress: 25}))
	require.NoError(t, store.SaveStatus(ctx, &models.SessionStatus{SessionID: "s1", Status: models.RunCompleted, Progress: 100}))

	got, err := store.GetStatus(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestMemoryStatusStore_Expiry(t *testing.T) {
	store := NewMemoryStatusStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveStatus(context.Background(), &models.SessionStatus{SessionID: "s1"}))

	now = now.Add(2 * time.Minute)
	_, err := store.GetStatus(context.Background(), "s1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisStatusStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStatusStore(client, time.Minute)
	session := uuid.NewString()

	_, err := store.GetStatus(context.Background(), session)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.SaveStatus(context.Background(), &models.SessionStatus{SessionID: session, Status: models.RunFailed, Error: "persistence failed"}))
	got, err := store.GetStatus(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "persistence failed", got.Error)
}

func TestDecodeTask(t *testing.T) {
	_, err := DecodeTask([]byte(`{"session":{"sessionId":"s1"}}`))
	assert.Error(t, err)

	task, err := DecodeTask([]byte(`{"priority":2,"session":{"sessionId":"s1","filePath":"uploads/s1/c.pdf"}}`))
	require.NoError(t, err)
	assert.Equal(t, "s1", task.ID())
	assert.Equal(t, QueueDefault, queueFor(task.Priority))
}
