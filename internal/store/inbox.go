package store

import (
	"os"
	"strings"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

func (s *Store) loadInbox(teamID, agentID string) (model.Inbox, string, error) {
	path, err := s.inboxFile(teamID, agentID)
	if err != nil {
		return model.Inbox{}, "", err
	}
	inbox := model.Inbox{SchemaVersion: model.SchemaVersion}
	if err := fsutil.ReadJSON(path, &inbox); err != nil && !os.IsNotExist(err) {
		return model.Inbox{}, "", err
	}
	return inbox, path, nil
}

// deliverInboxEvent appends one event to agentID's inbox, minting the next
// cursor value. Must be called from inside a mutation.
func (s *Store) deliverInboxEvent(teamID, agentID string, ev model.InboxEvent) error {
	inbox, path, err := s.loadInbox(teamID, agentID)
	if err != nil {
		return errInternal("load inbox for %s: %v", agentID, err)
	}
	ev.Cursor = inbox.NextCursor
	inbox.NextCursor++
	inbox.Events = append(inbox.Events, ev)
	if err := fsutil.WriteJSONAtomic(path, inbox); err != nil {
		return errInternal("write inbox for %s: %v", agentID, err)
	}
	return nil
}

// knownAgents is the union of the team's configured agent roster and every
// agent id that already has an inbox file on disk, so a broadcast still
// reaches an agent who was never listed on the team but has been
// addressed before.
func (s *Store) knownAgents(teamID string) ([]string, error) {
	seen := map[string]struct{}{}

	team, err := s.GetTeam(teamID)
	if err != nil {
		if se, ok := err.(*Error); !ok || se.Code != "TEAM_NOT_FOUND" {
			return nil, err
		}
	} else {
		for _, a := range team.Agents {
			seen[a.ID] = struct{}{}
		}
	}

	dir, err := s.teamDir(teamID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir + "/inboxes")
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if ValidID(name) {
			seen[name] = struct{}{}
		}
	}

	agents := make([]string, 0, len(seen))
	for a := range seen {
		agents = append(agents, a)
	}
	return sortedStrings(agents), nil
}

// broadcastTaskEvent fans a task state change out to every known agent.
func (s *Store) broadcastTaskEvent(teamID, actor, typ, taskID, summary string) error {
	agents, err := s.knownAgents(teamID)
	if err != nil {
		return err
	}
	ev := model.InboxEvent{
		Type:      typ,
		TaskID:    taskID,
		Actor:     actor,
		Summary:   summary,
		Timestamp: s.now(),
	}
	for _, agent := range agents {
		if err := s.deliverInboxEvent(teamID, agent, ev); err != nil {
			return err
		}
	}
	return nil
}

// notifyThreadMessage fans a thread message out to every participant
// except its author.
func (s *Store) notifyThreadMessage(teamID, threadID string, participants []string, msg model.ThreadMessage) error {
	summary := msg.Body
	if len(summary) > 120 {
		summary = summary[:120]
	}
	ev := model.InboxEvent{
		Type:      "thread_message",
		ThreadID:  threadID,
		Actor:     msg.Author,
		Summary:   summary,
		Content:   msg.Body,
		Timestamp: s.now(),
	}
	for _, p := range participants {
		if p == msg.Author {
			continue
		}
		if err := s.deliverInboxEvent(teamID, p, ev); err != nil {
			return err
		}
	}
	return nil
}

// Inbox returns events whose cursor is at or after since (0 means from the
// start) and the cursor the caller should pass next, which is one past the
// last cursor minted for this agent.
func (s *Store) Inbox(teamID, agentID string, since int64) ([]model.InboxEvent, int64, error) {
	if !ValidID(agentID) {
		return nil, 0, errInvalidAgentID("agent id %q is not in [A-Za-z0-9._-]+", agentID)
	}
	inbox, _, err := s.loadInbox(teamID, agentID)
	if err != nil {
		return nil, 0, errInternal("load inbox: %v", err)
	}
	var out []model.InboxEvent
	for _, ev := range inbox.Events {
		if ev.Cursor >= since {
			out = append(out, ev)
		}
	}
	return out, inbox.NextCursor, nil
}
