package store

import (
	"github.com/google/uuid"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

// newMessageID mints a collision-resistant id for a thread message. Thread
// messages are not addressed sequentially by clients, so a random v4 UUID
// is used instead of a second on-disk counter scan.
func newMessageID() string {
	return uuid.NewString()
}

// appendAudit writes one record to the team's append-only audit log. It
// must be called, and must succeed, before a mutation's effects are
// considered observable — callers invoke it from inside the mutation
// queue, before returning the mutated record.
func (s *Store) appendAudit(teamID, actor, typ, taskID, threadID string, data any) error {
	path, err := s.auditFile(teamID)
	if err != nil {
		return err
	}
	ev := model.AuditEvent{
		SchemaVersion: model.SchemaVersion,
		ID:            uuid.NewString(),
		Actor:         actor,
		Type:          typ,
		TaskID:        taskID,
		ThreadID:      threadID,
		Data:          data,
		Timestamp:     s.now(),
	}
	if err := fsutil.AppendLine(path, ev); err != nil {
		return errInternal("append audit: %v", err)
	}
	return nil
}

// AuditTail returns the most recent audit events for a team, oldest first,
// capped at limit (0 means no cap). It backs no HTTP route and no CLI
// command; it is a direct store read for in-process callers.
func (s *Store) AuditTail(teamID string, limit int) ([]model.AuditEvent, error) {
	path, err := s.auditFile(teamID)
	if err != nil {
		return nil, err
	}
	events, err := fsutil.ReadTail[model.AuditEvent](path)
	if err != nil {
		return nil, errInternal("read audit log: %v", err)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
