package store

import (
	"os"
	"strings"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

func (s *Store) loadThreadIndex(teamID string) ([]model.Thread, string, error) {
	path, err := s.threadsIndexFile(teamID)
	if err != nil {
		return nil, "", err
	}
	var threads []model.Thread
	if err := fsutil.ReadJSON(path, &threads); err != nil && !os.IsNotExist(err) {
		return nil, "", err
	}
	return threads, path, nil
}

func findThread(threads []model.Thread, id string) (model.Thread, int) {
	for i, t := range threads {
		if t.ID == id {
			return t, i
		}
	}
	return model.Thread{}, -1
}

// StartThread creates a new discussion thread, optionally linked to a task.
// A thread with no explicit participants is given the originator as its
// sole participant.
func (s *Store) StartThread(teamID, title string, participants []string, taskID, originator string) (model.Thread, error) {
	if len(participants) == 0 {
		if originator == "" {
			return model.Thread{}, errInvalidThread("thread requires at least one participant")
		}
		participants = []string{originator}
	}
	for _, p := range participants {
		if !ValidID(p) {
			return model.Thread{}, errInvalidAgentID("participant id %q is not in [A-Za-z0-9._-]+", p)
		}
	}

	val, err := s.mutate(func() (any, error) {
		if taskID != "" {
			if _, err := s.GetTask(teamID, taskID); err != nil {
				return nil, err
			}
		}
		threads, path, err := s.loadThreadIndex(teamID)
		if err != nil {
			return nil, errInternal("load thread index: %v", err)
		}
		ids := make([]string, len(threads))
		for i, t := range threads {
			ids[i] = t.ID
		}
		id := mintIDFromList("thread", ids)

		now := s.now()
		thread := model.Thread{
			SchemaVersion: model.SchemaVersion,
			ID:            id,
			Title:         title,
			Participants:  dedupe(participants),
			TaskID:        taskID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		threads = append(threads, thread)
		if err := fsutil.WriteJSONAtomic(path, threads); err != nil {
			return nil, errInternal("write thread index: %v", err)
		}
		if err := s.appendAudit(teamID, originator, "thread_started", taskID, id, map[string]any{"title": title}); err != nil {
			return nil, err
		}
		return thread, nil
	})
	if err != nil {
		return model.Thread{}, err
	}
	return val.(model.Thread), nil
}

// GetThread returns a single thread record, read-only.
func (s *Store) GetThread(teamID, threadID string) (model.Thread, error) {
	threads, _, err := s.loadThreadIndex(teamID)
	if err != nil {
		return model.Thread{}, errInternal("load thread index: %v", err)
	}
	thread, idx := findThread(threads, threadID)
	if idx < 0 {
		return model.Thread{}, errThreadNotFound("thread %q not found", threadID)
	}
	return thread, nil
}

// PostMessage appends a message to a thread and fans it out to every
// other participant's inbox.
func (s *Store) PostMessage(teamID, threadID, agentID, body string) (model.ThreadMessage, error) {
	if strings.TrimSpace(body) == "" {
		return model.ThreadMessage{}, errInvalidThreadMessage("message body is required")
	}
	if !ValidID(agentID) {
		return model.ThreadMessage{}, errInvalidAgentID("agent id %q is not in [A-Za-z0-9._-]+", agentID)
	}

	val, err := s.mutate(func() (any, error) {
		threads, indexPath, err := s.loadThreadIndex(teamID)
		if err != nil {
			return nil, errInternal("load thread index: %v", err)
		}
		thread, idx := findThread(threads, threadID)
		if idx < 0 {
			return nil, errThreadNotFound("thread %q not found", threadID)
		}

		msg := model.ThreadMessage{
			SchemaVersion: model.SchemaVersion,
			ID:            newMessageID(),
			ThreadID:      threadID,
			Author:        agentID,
			Body:          body,
			Timestamp:     s.now(),
		}
		logPath, err := s.threadLogFile(teamID, threadID)
		if err != nil {
			return nil, err
		}
		if err := fsutil.AppendLine(logPath, msg); err != nil {
			return nil, errInternal("append thread message: %v", err)
		}

		thread.UpdatedAt = msg.Timestamp
		threads[idx] = thread
		if err := fsutil.WriteJSONAtomic(indexPath, threads); err != nil {
			return nil, errInternal("write thread index: %v", err)
		}

		if err := s.appendAudit(teamID, agentID, "thread_message_posted", thread.TaskID, threadID, map[string]any{"messageId": msg.ID}); err != nil {
			return nil, err
		}
		if err := s.notifyThreadMessage(teamID, threadID, thread.Participants, msg); err != nil {
			return nil, err
		}
		return msg, nil
	})
	if err != nil {
		return model.ThreadMessage{}, err
	}
	return val.(model.ThreadMessage), nil
}

// ThreadTailResult is the payload for ThreadTail.
type ThreadTailResult struct {
	Thread   model.Thread
	Messages []model.ThreadMessage
}

// ThreadTail returns a thread and its most recent messages, oldest first,
// capped at limit (0 means no cap).
func (s *Store) ThreadTail(teamID, threadID string, limit int) (ThreadTailResult, error) {
	thread, err := s.GetThread(teamID, threadID)
	if err != nil {
		return ThreadTailResult{}, err
	}
	logPath, err := s.threadLogFile(teamID, threadID)
	if err != nil {
		return ThreadTailResult{}, err
	}
	messages, err := fsutil.ReadTail[model.ThreadMessage](logPath)
	if err != nil {
		return ThreadTailResult{}, errInternal("read thread log: %v", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return ThreadTailResult{Thread: thread, Messages: messages}, nil
}

// SearchThreads returns threads whose title or participant list matches
// query (case-insensitive substring). An empty query matches everything.
func (s *Store) SearchThreads(teamID, query string) ([]model.Thread, error) {
	threads, _, err := s.loadThreadIndex(teamID)
	if err != nil {
		return nil, errInternal("load thread index: %v", err)
	}
	if query == "" {
		return threads, nil
	}
	q := strings.ToLower(query)
	var out []model.Thread
	for _, t := range threads {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
			continue
		}
		for _, p := range t.Participants {
			if strings.Contains(strings.ToLower(p), q) {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// LinkThread associates an existing thread with an existing task.
func (s *Store) LinkThread(teamID, threadID, taskID, actor string) (model.Thread, error) {
	val, err := s.mutate(func() (any, error) {
		if _, err := s.GetTask(teamID, taskID); err != nil {
			return nil, err
		}
		threads, path, err := s.loadThreadIndex(teamID)
		if err != nil {
			return nil, errInternal("load thread index: %v", err)
		}
		thread, idx := findThread(threads, threadID)
		if idx < 0 {
			return nil, errThreadNotFound("thread %q not found", threadID)
		}
		thread.TaskID = taskID
		thread.UpdatedAt = s.now()
		threads[idx] = thread
		if err := fsutil.WriteJSONAtomic(path, threads); err != nil {
			return nil, errInternal("write thread index: %v", err)
		}
		if err := s.appendAudit(teamID, actor, "thread_linked", taskID, threadID, nil); err != nil {
			return nil, err
		}
		return thread, nil
	})
	if err != nil {
		return model.Thread{}, err
	}
	return val.(model.Thread), nil
}

func dedupe(ss []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
