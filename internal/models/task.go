package models

import (
	"encoding/json"
	"time"
)

// Async task lifecycle states.
const (
	TaskPending = "Pending"
	TaskRunning = "Running"
	TaskSuccess = "Success"
	TaskError   = "Error"
)

// AsyncTask is one queued background work item. The status is persisted
// before and after execution so a crash mid-task is observable (the task
// stays Running) and recoverable by the next process's startup sweep.
type AsyncTask struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    string          `json:"status"`
	Host      string          `json:"host,omitempty"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
