package httpapi

import (
	"net/http"
	"time"

	"github.com/highbeam/teamd/internal/store"
)

type createTaskRequest struct {
	TeamID       string   `json:"teamId"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	Resources    []string `json:"resources,omitempty"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		teamID := r.URL.Query().Get("teamId")
		status := r.URL.Query().Get("status")
		tasks, err := s.store.ListTasks(teamID, status)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})

	case http.MethodPost:
		var req createTaskRequest
		if err := decodeJSON(r, &req); err != nil {
			invalidJSON(w)
			return
		}
		key := r.Header.Get("Idempotency-Key")
		result, err := s.store.CreateTask(req.TeamID, store.CreateTaskInput{
			Title:          req.Title,
			Description:    req.Description,
			Dependencies:   req.Dependencies,
			Resources:      req.Resources,
			IdempotencyKey: key,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		status := http.StatusCreated
		if !result.Created {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{"task": result.Task, "created": result.Created})

	default:
		notFound(w)
	}
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	teamID := r.URL.Query().Get("teamId")
	task, err := s.store.GetTask(teamID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type claimRequest struct {
	TeamID  string `json:"teamId"`
	AgentID string `json:"agentId"`
	TTLMs   int64  `json:"ttlMs"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		notFound(w)
		return
	}
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidJSON(w)
		return
	}
	task, err := s.store.ClaimTask(req.TeamID, r.PathValue("id"), req.AgentID, time.Duration(req.TTLMs)*time.Millisecond)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "lease": task.Lease})
}

type renewRequest struct {
	TeamID  string `json:"teamId"`
	AgentID string `json:"agentId"`
	Epoch   int    `json:"epoch"`
	TTLMs   int64  `json:"ttlMs"`
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		notFound(w)
		return
	}
	var req renewRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidJSON(w)
		return
	}
	task, err := s.store.RenewTask(req.TeamID, r.PathValue("id"), req.AgentID, req.Epoch, time.Duration(req.TTLMs)*time.Millisecond)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "lease": task.Lease})
}

type finalizeRequest struct {
	TeamID  string `json:"teamId"`
	AgentID string `json:"agentId"`
	Epoch   int    `json:"epoch"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !decodeFinalize(w, r, &req) {
		return
	}
	task, err := s.store.CompleteTask(req.TeamID, r.PathValue("id"), req.AgentID, req.Epoch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !decodeFinalize(w, r, &req) {
		return
	}
	task, err := s.store.FailTask(req.TeamID, r.PathValue("id"), req.AgentID, req.Epoch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

// decodeFinalize checks the method and decodes the request body, writing
// the appropriate error response itself and reporting false if the caller
// should stop.
func decodeFinalize(w http.ResponseWriter, r *http.Request, req *finalizeRequest) bool {
	if r.Method != http.MethodPost {
		notFound(w)
		return false
	}
	if err := decodeJSON(r, req); err != nil {
		invalidJSON(w)
		return false
	}
	return true
}
