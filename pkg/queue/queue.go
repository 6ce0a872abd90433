package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/catalog-ingestor/internal/models"
)

// TaskTypeCatalogIngest runs the ingestion pipeline for one upload.
const TaskTypeCatalogIngest = "catalog:ingest"

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue set shared by client and worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// Queue hands ingestion sessions to out-of-process workers.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error)
	CancelTask(ctx context.Context, sessionID string) error
	Close() error
}

// Task is the serialized asynq payload.
type Task struct {
	Priority  int                      `json:"priority"`
	Session   models.ExtractionSession `json:"session"`
	CreatedAt time.Time                `json:"createdAt"`
}

// ID is the asynq task id; one task per session.
func (t *Task) ID() string {
	return t.Session.SessionID
}

// DecodeTask parses an asynq payload.
func DecodeTask(payload []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.Session.SessionID == "" || task.Session.FilePath == "" {
		return nil, errors.New("invalid task data: missing session id or file path")
	}
	return &task, nil
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

// AsynqQueue is the redis-backed Queue.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	config    *QueueConfig
}

func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		config:    cfg,
	}
}

// Enqueue schedules the ingestion task.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.Timeout(q.config.ProcessTimeout),
		asynq.TaskID(task.ID()),
		asynq.Queue(queueFor(task.Priority)),
	}

	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeCatalogIngest, payload), opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func queueFor(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// GetTaskStatus reports a task that has not recorded a final status yet.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	var lastErr error
	for queueName := range Queues {
		info, err := q.inspector.GetTaskInfo(queueName, sessionID)
		if err == nil {
			return convertAsynqStatus(sessionID, info), nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: task not found in any queue: %v", models.ErrNotFound, lastErr)
}

// CancelTask removes a task that has not started.
func (q *AsynqQueue) CancelTask(ctx context.Context, sessionID string) error {
	var lastErr error
	for queueName := range Queues {
		err := q.inspector.DeleteTask(queueName, sessionID)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}

func convertAsynqStatus(sessionID string, info *asynq.TaskInfo) *models.SessionStatus {
	status := &models.SessionStatus{
		SessionID: sessionID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = models.RunPending
	case asynq.TaskStateActive:
		status.Status = models.RunRunning
	case asynq.TaskStateCompleted:
		status.Status = models.RunCompleted
		status.Progress = 100
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry:
		status.Status = models.RunRunning
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = models.RunFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	default:
		status.Status = models.RunPending
	}
	return status
}
