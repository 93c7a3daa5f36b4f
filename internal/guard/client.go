package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/highbeam/teamd/internal/model"
)

// Client talks to a discovered daemon over its HTTP API. Outbound calls are
// throttled with a generous local limiter so a runaway host-agent loop
// cannot hammer the daemon; this is a safety valve, not a remote-API quota.
type Client struct {
	identity   *Identity
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Client for the given identity.
func NewClient(identity *Identity) *Client {
	return &Client{
		identity:   identity,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(50), 20),
	}
}

type apiError struct {
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, headers ...string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("guard: rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("guard: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.identity.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("guard: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.identity.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] != "" {
			req.Header.Set(headers[i], headers[i+1])
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("guard: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("guard: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var parsed struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Code != "" {
			return &apiError{Code: parsed.Error.Code, Message: parsed.Error.Message}
		}
		return fmt.Errorf("guard: %s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// CanWrite asks the daemon whether the identity's agent currently holds an
// active lease covering path.
func (c *Client) CanWrite(ctx context.Context, path string) (CanWriteResult, error) {
	var result CanWriteResult
	q := url.Values{"teamId": {c.identity.TeamID}, "agentId": {c.identity.AgentID}, "path": {path}}
	if err := c.do(ctx, http.MethodGet, "/v1/can-write", q, nil, &result); err != nil {
		return CanWriteResult{}, err
	}
	return result, nil
}

// CanWriteResult mirrors the daemon's structured write-permission decision.
type CanWriteResult struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// CreateTaskInput is the payload for CreateTask.
type CreateTaskInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Resources      []string `json:"resources,omitempty"`
	IdempotencyKey string   `json:"-"`
}

func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (model.Task, bool, error) {
	var result struct {
		Task    model.Task `json:"task"`
		Created bool       `json:"created"`
	}
	body := map[string]any{
		"teamId":       c.identity.TeamID,
		"title":        in.Title,
		"description":  in.Description,
		"dependencies": in.Dependencies,
		"resources":    in.Resources,
	}
	err := c.do(ctx, http.MethodPost, "/v1/tasks", nil, body, &result, "Idempotency-Key", in.IdempotencyKey)
	return result.Task, result.Created, err
}

// ListTasks lists tasks in the identity's team, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]model.Task, error) {
	var result struct {
		Tasks []model.Task `json:"tasks"`
	}
	q := url.Values{"teamId": {c.identity.TeamID}}
	if status != "" {
		q.Set("status", status)
	}
	err := c.do(ctx, http.MethodGet, "/v1/tasks", q, nil, &result)
	return result.Tasks, err
}

// ClaimTask claims taskID for the identity's agent with the given TTL.
func (c *Client) ClaimTask(ctx context.Context, taskID string, ttl time.Duration) (model.Task, error) {
	var result struct {
		Task model.Task `json:"task"`
	}
	body := map[string]any{"teamId": c.identity.TeamID, "agentId": c.identity.AgentID, "ttlMs": ttl.Milliseconds()}
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/claim", nil, body, &result)
	return result.Task, err
}

// RenewTask extends a currently-held lease.
func (c *Client) RenewTask(ctx context.Context, taskID string, epoch int, ttl time.Duration) (model.Task, error) {
	var result struct {
		Task model.Task `json:"task"`
	}
	body := map[string]any{"teamId": c.identity.TeamID, "agentId": c.identity.AgentID, "epoch": epoch, "ttlMs": ttl.Milliseconds()}
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/renew", nil, body, &result)
	return result.Task, err
}

// CompleteTask finalizes taskID as completed.
func (c *Client) CompleteTask(ctx context.Context, taskID string, epoch int) (model.Task, error) {
	var result struct {
		Task model.Task `json:"task"`
	}
	body := map[string]any{"teamId": c.identity.TeamID, "agentId": c.identity.AgentID, "epoch": epoch}
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/complete", nil, body, &result)
	return result.Task, err
}

// FailTask finalizes taskID as failed.
func (c *Client) FailTask(ctx context.Context, taskID string, epoch int) (model.Task, error) {
	var result struct {
		Task model.Task `json:"task"`
	}
	body := map[string]any{"teamId": c.identity.TeamID, "agentId": c.identity.AgentID, "epoch": epoch}
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/fail", nil, body, &result)
	return result.Task, err
}

// StartThread creates a discussion thread.
func (c *Client) StartThread(ctx context.Context, title string, participants []string, taskID string) (model.Thread, error) {
	var result struct {
		Thread model.Thread `json:"thread"`
	}
	body := map[string]any{
		"teamId":       c.identity.TeamID,
		"title":        title,
		"participants": participants,
		"taskId":       taskID,
		"originator":   c.identity.AgentID,
	}
	err := c.do(ctx, http.MethodPost, "/v1/threads", nil, body, &result)
	return result.Thread, err
}

// PostMessage appends a message to threadID.
func (c *Client) PostMessage(ctx context.Context, threadID, body string) (model.ThreadMessage, error) {
	var result struct {
		Message model.ThreadMessage `json:"message"`
	}
	payload := map[string]any{"teamId": c.identity.TeamID, "agentId": c.identity.AgentID, "body": body}
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages", nil, payload, &result)
	return result.Message, err
}

// ThreadTail reads the most recent messages on threadID.
func (c *Client) ThreadTail(ctx context.Context, threadID string, limit int) (model.Thread, []model.ThreadMessage, error) {
	var result struct {
		Thread   model.Thread          `json:"thread"`
		Messages []model.ThreadMessage `json:"messages"`
	}
	q := url.Values{"teamId": {c.identity.TeamID}}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	err := c.do(ctx, http.MethodGet, "/v1/threads/"+threadID+"/tail", q, nil, &result)
	return result.Thread, result.Messages, err
}

// SearchThreads searches thread titles and participants.
func (c *Client) SearchThreads(ctx context.Context, query string) ([]model.Thread, error) {
	var result struct {
		Threads []model.Thread `json:"threads"`
	}
	q := url.Values{"teamId": {c.identity.TeamID}, "q": {query}}
	err := c.do(ctx, http.MethodGet, "/v1/threads/search", q, nil, &result)
	return result.Threads, err
}

// LinkThread associates threadID with taskID.
func (c *Client) LinkThread(ctx context.Context, threadID, taskID string) (model.Thread, error) {
	var result struct {
		Thread model.Thread `json:"thread"`
	}
	body := map[string]any{"teamId": c.identity.TeamID, "taskId": taskID, "actor": c.identity.AgentID}
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/link", nil, body, &result)
	return result.Thread, err
}

// Inbox fetches events delivered to the identity's agent since the given cursor.
func (c *Client) Inbox(ctx context.Context, since int64) ([]model.InboxEvent, int64, error) {
	var result struct {
		Events    []model.InboxEvent `json:"events"`
		NextSince int64              `json:"nextSince"`
	}
	q := url.Values{"teamId": {c.identity.TeamID}, "agentId": {c.identity.AgentID}}
	if since > 0 {
		q.Set("since", fmt.Sprintf("%d", since))
	}
	err := c.do(ctx, http.MethodGet, "/v1/inbox", q, nil, &result)
	return result.Events, result.NextSince, err
}
