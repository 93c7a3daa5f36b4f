package guard

import (
	"context"
	"strings"
	"time"

	"github.com/highbeam/teamd/internal/model"
)

// Summary is a compact, newline-free rendering of an inbox event suitable
// for forwarding to a host agent's steering channel. The full event body
// is never included, even when the event carries Content.
type Summary struct {
	Cursor int64
	Line   string
}

// Summarize renders ev as a single line: "INBOX: <type> <ref> by <actor>",
// where ref is the event's task id if set, else its thread id. Any
// newlines present in the underlying fields are stripped.
func Summarize(ev model.InboxEvent) string {
	ref := ev.TaskID
	if ref == "" {
		ref = ev.ThreadID
	}
	line := "INBOX: " + ev.Type + " " + ref + " by " + ev.Actor
	return stripNewlines(line)
}

func stripNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

// Poll repeatedly fetches new inbox events on interval and invokes onEvent
// once per event in order, until ctx is cancelled. It does not return an
// error on a failed fetch; it logs nothing and simply retries on the next
// tick, since a transient daemon hiccup should not crash the host agent's
// polling loop.
func (c *Client) Poll(ctx context.Context, interval time.Duration, onEvent func(Summary)) error {
	var since int64
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			events, nextSince, err := c.Inbox(ctx, since)
			if err != nil {
				continue
			}
			for _, ev := range events {
				onEvent(Summary{Cursor: ev.Cursor, Line: Summarize(ev)})
			}
			since = nextSince
		}
	}
}
