package domain

import "time"

// TaskStatus enumerates in-flight generation lifecycle states.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	// TaskStatusRefunding is held between winning the task and the ledger
	// confirming the refund. The watchdog retries tasks stuck here.
	TaskStatusRefunding TaskStatus = "refunding"
	TaskStatusRefunded  TaskStatus = "refunded"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusRefunded
}

// Source returns the status a task must hold to move to s. Processing and
// unknown statuses have no source.
func (s TaskStatus) Source() (TaskStatus, bool) {
	switch s {
	case TaskStatusCompleted, TaskStatusRefunding:
		return TaskStatusProcessing, true
	case TaskStatusRefunded:
		return TaskStatusRefunding, true
	}
	return "", false
}

// Task tracks one paid generation attempt between reservation and its
// terminal outcome.
type Task struct {
	ID        string
	UserID    int64
	Cost      int64
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
