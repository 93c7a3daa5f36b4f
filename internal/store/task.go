package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

const maxLeaseTTL = 24 * time.Hour

// CreateTaskInput is the payload for CreateTask.
type CreateTaskInput struct {
	Title          string
	Description    string
	Dependencies   []string
	Resources      []string
	IdempotencyKey string
}

// CreateTaskResult reports whether this call minted the task or returned
// an existing one recorded under the same idempotency key.
type CreateTaskResult struct {
	Task    model.Task
	Created bool
}

// CreateTask mints or replays a task under the given team.
func (s *Store) CreateTask(teamID string, in CreateTaskInput) (CreateTaskResult, error) {
	if strings.TrimSpace(in.Title) == "" {
		return CreateTaskResult{}, errInvalidTask("title is required")
	}
	resources := make([]string, len(in.Resources))
	for i, r := range in.Resources {
		resources[i] = normalizeResource(r)
	}

	val, err := s.mutate(func() (any, error) {
		if _, err := s.teamDir(teamID); err != nil {
			return nil, err
		}

		if existingID, ok, err := s.idempotentTaskID(teamID, in.IdempotencyKey); err != nil {
			return nil, errInternal("load idempotency table: %v", err)
		} else if ok {
			task, err := s.getTaskLocked(teamID, existingID)
			if err != nil {
				return nil, err
			}
			return CreateTaskResult{Task: task, Created: false}, nil
		}

		dir, err := s.taskDir(teamID)
		if err != nil {
			return nil, err
		}
		id, err := mintID(dir, "task", ".json")
		if err != nil {
			return nil, errInternal("mint task id: %v", err)
		}

		status := model.TaskPending
		if blocked, err := s.hasIncompleteDeps(teamID, in.Dependencies); err != nil {
			return nil, err
		} else if blocked {
			status = model.TaskBlocked
		}

		task := model.Task{
			SchemaVersion: model.SchemaVersion,
			ID:            id,
			Title:         in.Title,
			Description:   in.Description,
			Status:        status,
			Dependencies:  in.Dependencies,
			Resources:     resources,
			Epoch:         0,
			CreatedAt:     s.now(),
		}
		if err := s.writeTask(teamID, task); err != nil {
			return nil, err
		}
		if err := s.recordIdempotency(teamID, in.IdempotencyKey, id); err != nil {
			return nil, err
		}
		if err := s.appendAudit(teamID, "system", "task_created", id, "", map[string]any{"status": string(status)}); err != nil {
			return nil, err
		}
		return CreateTaskResult{Task: task, Created: true}, nil
	})
	if err != nil {
		return CreateTaskResult{}, err
	}
	return val.(CreateTaskResult), nil
}

// GetTask reads a single task, read-only.
func (s *Store) GetTask(teamID, taskID string) (model.Task, error) {
	path, err := s.taskFile(teamID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	var task model.Task
	if err := fsutil.ReadJSON(path, &task); err != nil {
		if os.IsNotExist(err) {
			return model.Task{}, errTaskNotFound("task %q not found", taskID)
		}
		return model.Task{}, errInternal("read task: %v", err)
	}
	return task, nil
}

// getTaskLocked is GetTask called from inside a mutation closure, so an
// absent idempotency target is an internal inconsistency, not a 404.
func (s *Store) getTaskLocked(teamID, taskID string) (model.Task, error) {
	task, err := s.GetTask(teamID, taskID)
	if err != nil {
		if se, ok := err.(*Error); ok && se.Code == "TASK_NOT_FOUND" {
			return model.Task{}, errInternal("idempotency record points at missing task %q", taskID)
		}
		return model.Task{}, err
	}
	return task, nil
}

// ListTasks returns every task for a team, optionally filtered by status,
// sorted by id.
func (s *Store) ListTasks(teamID, status string) ([]model.Task, error) {
	dir, err := s.taskDir(teamID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errInternal("list tasks: %v", err)
	}
	var ids []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(ids)

	var tasks []model.Task
	for _, id := range ids {
		task, err := s.GetTask(teamID, id)
		if err != nil {
			if se, ok := err.(*Error); ok && se.Code == "TASK_NOT_FOUND" {
				continue
			}
			return nil, err
		}
		if status != "" && string(task.Status) != status {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Store) writeTask(teamID string, task model.Task) error {
	path, err := s.taskFile(teamID, task.ID)
	if err != nil {
		return err
	}
	if err := fsutil.WriteJSONAtomic(path, task); err != nil {
		return errInternal("write task %s: %v", task.ID, err)
	}
	return nil
}

func (s *Store) hasIncompleteDeps(teamID string, deps []string) (bool, error) {
	for _, depID := range deps {
		dep, err := s.GetTask(teamID, depID)
		if err != nil {
			return false, err
		}
		if dep.Status != model.TaskCompleted {
			return true, nil
		}
	}
	return false, nil
}

// ClaimTask transitions a pending task to in_progress under a fresh
// lease, minting a new epoch.
func (s *Store) ClaimTask(teamID, taskID, agentID string, ttl time.Duration) (model.Task, error) {
	if !ValidID(agentID) {
		return model.Task{}, errInvalidAgentID("agent id %q is not in [A-Za-z0-9._-]+", agentID)
	}
	if err := validateTTL(ttl); err != nil {
		return model.Task{}, err
	}

	val, err := s.mutate(func() (any, error) {
		task, err := s.GetTask(teamID, taskID)
		if err != nil {
			return nil, err
		}
		if task.Lease != nil && task.Lease.Expired(s.now()) {
			task.Lease = nil
			task.Status = model.TaskPending
			task.Owner = ""
		}
		if task.Status != model.TaskPending {
			return nil, errTaskNotClaimable("task %q is %s, not pending", taskID, task.Status)
		}

		now := s.now()
		task.Epoch++
		task.Lease = &model.Lease{Holder: agentID, Epoch: task.Epoch, ExpiresAt: now.Add(ttl)}
		task.Status = model.TaskInProgress
		task.Owner = agentID
		if task.StartedAt == nil {
			task.StartedAt = &now
		}

		if err := s.writeTask(teamID, task); err != nil {
			return nil, err
		}
		if err := s.appendAudit(teamID, agentID, "task_claimed", taskID, "", map[string]any{"epoch": task.Epoch}); err != nil {
			return nil, err
		}
		if err := s.broadcastTaskEvent(teamID, agentID, "task_claimed", taskID,
			fmt.Sprintf("Task %s claimed by %s", taskID, agentID)); err != nil {
			return nil, err
		}
		return task, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return val.(model.Task), nil
}

// RenewTask extends an in-progress task's lease without changing its epoch.
func (s *Store) RenewTask(teamID, taskID, agentID string, epoch int, ttl time.Duration) (model.Task, error) {
	if err := validateTTL(ttl); err != nil {
		return model.Task{}, err
	}
	val, err := s.mutate(func() (any, error) {
		task, err := s.checkLeaseHolder(teamID, taskID, agentID, epoch)
		if err != nil {
			return nil, err
		}
		task.Lease.ExpiresAt = s.now().Add(ttl)
		if err := s.writeTask(teamID, task); err != nil {
			return nil, err
		}
		if err := s.appendAudit(teamID, agentID, "task_renewed", taskID, "", map[string]any{"epoch": epoch}); err != nil {
			return nil, err
		}
		return task, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return val.(model.Task), nil
}

// CompleteTask finalizes a task as completed, unblocking dependents.
func (s *Store) CompleteTask(teamID, taskID, agentID string, epoch int) (model.Task, error) {
	return s.finalizeTask(teamID, taskID, agentID, epoch, model.TaskCompleted)
}

// FailTask finalizes a task as failed.
func (s *Store) FailTask(teamID, taskID, agentID string, epoch int) (model.Task, error) {
	return s.finalizeTask(teamID, taskID, agentID, epoch, model.TaskFailed)
}

func (s *Store) finalizeTask(teamID, taskID, agentID string, epoch int, terminal model.TaskStatus) (model.Task, error) {
	val, err := s.mutate(func() (any, error) {
		task, err := s.checkLeaseHolder(teamID, taskID, agentID, epoch)
		if err != nil {
			return nil, err
		}
		now := s.now()
		task.Lease = nil
		task.Status = terminal
		if terminal == model.TaskCompleted {
			task.CompletedAt = &now
		} else {
			task.FailedAt = &now
		}
		if err := s.writeTask(teamID, task); err != nil {
			return nil, err
		}
		eventType := "task_failed"
		if terminal == model.TaskCompleted {
			eventType = "task_completed"
		}
		if err := s.appendAudit(teamID, agentID, eventType, taskID, "", map[string]any{"epoch": epoch}); err != nil {
			return nil, err
		}
		if err := s.broadcastTaskEvent(teamID, agentID, eventType, taskID,
			fmt.Sprintf("Task %s %s by %s", taskID, terminal, agentID)); err != nil {
			return nil, err
		}
		if terminal == model.TaskCompleted {
			if err := s.unblockDependents(teamID, taskID, agentID); err != nil {
				return nil, err
			}
		}
		return task, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return val.(model.Task), nil
}

// checkLeaseHolder loads task and validates it is in_progress, held by
// agentID, at the given epoch, and not expired. Must run inside mutate.
func (s *Store) checkLeaseHolder(teamID, taskID, agentID string, epoch int) (model.Task, error) {
	task, err := s.GetTask(teamID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status != model.TaskInProgress || task.Lease == nil {
		return model.Task{}, errTaskNotInProgress("task %q is %s, not in_progress", taskID, task.Status)
	}
	if task.Lease.Expired(s.now()) {
		return model.Task{}, errLeaseExpired("lease for task %q expired at %s", taskID, task.Lease.ExpiresAt)
	}
	if task.Lease.Holder != agentID {
		return model.Task{}, errLeaseHolderMismatch("task %q is held by %q, not %q", taskID, task.Lease.Holder, agentID)
	}
	if task.Lease.Epoch != epoch {
		return model.Task{}, errEpochMismatch("task %q is at epoch %d, not %d", taskID, task.Lease.Epoch, epoch)
	}
	return task, nil
}

// unblockDependents scans every task in the team and moves any blocked
// task whose dependencies are now all completed back to pending.
func (s *Store) unblockDependents(teamID, completedTaskID, actor string) error {
	dir, err := s.taskDir(teamID)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errInternal("scan tasks for unblock: %v", err)
	}
	for _, e := range entries {
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		task, err := s.GetTask(teamID, id)
		if err != nil {
			continue
		}
		if task.Status != model.TaskBlocked {
			continue
		}
		dependsOnCompleted := false
		for _, d := range task.Dependencies {
			if d == completedTaskID {
				dependsOnCompleted = true
				break
			}
		}
		if !dependsOnCompleted {
			continue
		}
		blocked, err := s.hasIncompleteDeps(teamID, task.Dependencies)
		if err != nil {
			return err
		}
		if blocked {
			continue
		}
		task.Status = model.TaskPending
		if err := s.writeTask(teamID, task); err != nil {
			return err
		}
		if err := s.appendAudit(teamID, actor, "task_unblocked", task.ID, "", nil); err != nil {
			return err
		}
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return errInvalidTask("lease TTL must be positive")
	}
	if ttl > maxLeaseTTL {
		return errInvalidTask("lease TTL must not exceed %s", maxLeaseTTL)
	}
	return nil
}

// normalizeResource converts a raw resource path to the stored form:
// forward slashes, no leading "./" or "/", no trailing "/".
func normalizeResource(raw string) string {
	p := filepath.ToSlash(raw)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	return p
}
