package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

const statusKeyPrefix = "catalog_status:"

// StatusStore keeps the last known status of each session.
type StatusStore interface {
	SaveStatus(ctx context.Context, status *models.SessionStatus) error
	// GetStatus returns models.ErrNotFound for unknown sessions.
	GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error)
}

// RedisStatusStore stores statuses as JSON with a TTL.
type RedisStatusStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStatusStore(client redis.UniversalClient, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatusStore{client: client, ttl: ttl}
}

func (s *RedisStatusStore) SaveStatus(ctx context.Context, status *models.SessionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.client.Set(ctx, statusKeyPrefix+status.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (s *RedisStatusStore) GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	data, err := s.client.Get(ctx, statusKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var status models.SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// MemoryStatusStore is the in-process StatusStore. Entries expire after ttl.
type MemoryStatusStore struct {
	mu      sync.RWMutex
	entries map[string]memoryStatus
	ttl     time.Duration
	now     func() time.Time
}

type memoryStatus struct {
	status    models.SessionStatus
	expiresAt time.Time
}

func NewMemoryStatusStore(ttl time.Duration) *MemoryStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStatusStore{
		entries: make(map[string]memoryStatus),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStatusStore) SaveStatus(ctx context.Context, status *models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[status.SessionID] = memoryStatus{status: *status, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStatusStore) GetStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok || s.now().After(e.expiresAt) {
		return nil, models.ErrNotFound
	}
	status := e.status
	return &status, nil
}
