// Package model defines the persisted record types shared by the store,
// the HTTP surface, and the guard client.
package model

import "time"

// SchemaVersion is stamped on every persisted record so that a future
// format change can be detected on read.
const SchemaVersion = 1

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskBlocked    TaskStatus = "blocked"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCanceled   TaskStatus = "canceled"
)

// Agent is a participating client process within a team.
type Agent struct {
	ID    string  `json:"id"`
	Role  string  `json:"role"`
	Model *string `json:"model,omitempty"`
}

// Team is the named scope that owns a workspace directory.
type Team struct {
	SchemaVersion int            `json:"schemaVersion"`
	ID            string         `json:"id"`
	Agents        []Agent        `json:"agents"`
	BudgetHints   map[string]any `json:"budgetHints,omitempty"`
}

// Lease is the time-bounded exclusive right an agent holds over a task.
type Lease struct {
	Holder    string    `json:"holder"`
	Epoch     int       `json:"epoch"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the lease has passed its expiry at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return l == nil || !now.Before(l.ExpiresAt)
}

// Task is a unit of work tracked by the daemon.
type Task struct {
	SchemaVersion int        `json:"schemaVersion"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`
	Owner         string     `json:"owner,omitempty"`
	Dependencies  []string   `json:"dependencies,omitempty"`
	Resources     []string   `json:"resources,omitempty"`
	Lease         *Lease     `json:"lease,omitempty"`
	Epoch         int        `json:"epoch"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// Thread is a durable discussion channel.
type Thread struct {
	SchemaVersion int       `json:"schemaVersion"`
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Participants  []string  `json:"participants"`
	TaskID        string    `json:"taskId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ThreadMessage is a single append-only post within a thread.
type ThreadMessage struct {
	SchemaVersion int       `json:"schemaVersion"`
	ID            string    `json:"id"`
	ThreadID      string    `json:"threadId"`
	Author        string    `json:"author"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
}

// InboxEvent is one notification delivered to an agent's inbox.
type InboxEvent struct {
	Cursor    int64     `json:"cursor"`
	Type      string    `json:"type"`
	TaskID    string    `json:"taskId,omitempty"`
	ThreadID  string    `json:"threadId,omitempty"`
	Actor     string    `json:"actor"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Inbox is the per-agent notification cache.
type Inbox struct {
	SchemaVersion int          `json:"schemaVersion"`
	NextCursor    int64        `json:"nextCursor"`
	Events        []InboxEvent `json:"events"`
}

// AuditEvent is an append-only record of a state transition.
type AuditEvent struct {
	SchemaVersion int       `json:"schemaVersion"`
	ID            string    `json:"id"`
	Actor         string    `json:"actor"`
	Type          string    `json:"type"`
	TaskID        string    `json:"taskId,omitempty"`
	ThreadID      string    `json:"threadId,omitempty"`
	Data          any       `json:"data,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// IdempotencyRecord maps an opaque client key to the task it produced.
type IdempotencyRecord struct {
	TaskID    string    `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RuntimeDescriptor is published at daemon startup.
type RuntimeDescriptor struct {
	SchemaVersion int    `json:"schemaVersion"`
	URL           string `json:"url"`
	Token         string `json:"token"`
	PID           int    `json:"pid"`
}

// LockPayload is the JSON body of the per-team lock file.
type LockPayload struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"startedAt"`
	SchemaVersion int       `json:"schemaVersion"`
}
