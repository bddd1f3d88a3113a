package models

import "time"

// Job statuses for the async extraction queue.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a queued extraction request processed by the worker pool.
type Job struct {
	ID           string     `json:"id"`
	Instruction  string     `json:"instruction"`
	URL          string     `json:"url"`
	Provider     string     `json:"provider,omitempty"`
	Status       string     `json:"status"`
	ResultJSON   string     `json:"-"`
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
