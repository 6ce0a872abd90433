package models

import (
	"time"
)

// EventStatus is the status carried by a ProgressEvent.
type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventComplete EventStatus = "complete"
	EventError    EventStatus = "error"
)

// ProgressEvent is one message on a session's progress stream.
type ProgressEvent struct {
	SessionID string      `json:"sessionId"`
	Step      int         `json:"step"`
	StepName  string      `json:"stepName"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message"`
	Progress  int         `json:"progress"`
	Payload   interface{} `json:"data,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e ProgressEvent) Terminal() bool {
	return e.Status == EventError || (e.Status == EventComplete && e.Progress >= 100)
}

// ProductPreview is the short product form sent in the completion payload.
type ProductPreview struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	SKU      string  `json:"sku"`
	Category string  `json:"category"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// CompletionPayload summarizes a finished run.
type CompletionPayload struct {
	UploadID         string           `json:"uploadId,omitempty"`
	TotalProducts    int              `json:"totalProducts"`
	TotalImages      int              `json:"totalImages"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod,omitempty"`
	Products         []ProductPreview `json:"products"`
}

// RunStatus is the coarse state reported by the status endpoint.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SessionStatus is the last known state of a run.
type SessionStatus struct {
	SessionID     string    `json:"sessionId"`
	Status        RunStatus `json:"status"`
	Progress      int       `json:"progress"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	UploadID      string    `json:"uploadId,omitempty"`
	TotalProducts int       `json:"totalProducts"`
	TotalImages   int       `json:"totalImages"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt,omitempty"`
}
