package httpapi

import (
	"net/http"
	"strconv"
)

type startThreadRequest struct {
	TeamID       string   `json:"teamId"`
	Title        string   `json:"title"`
	Participants []string `json:"participants,omitempty"`
	TaskID       string   `json:"taskId,omitempty"`
	Originator   string   `json:"originator"`
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		notFound(w)
		return
	}
	var req startThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidJSON(w)
		return
	}
	thread, err := s.store.StartThread(req.TeamID, req.Title, req.Participants, req.TaskID, req.Originator)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"thread": thread})
}

func (s *Server) handleThreadSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	teamID := r.URL.Query().Get("teamId")
	query := r.URL.Query().Get("q")
	threads, err := s.store.SearchThreads(teamID, query)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

type postMessageRequest struct {
	TeamID  string `json:"teamId"`
	AgentID string `json:"agentId"`
	Body    string `json:"body"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		notFound(w)
		return
	}
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidJSON(w)
		return
	}
	msg, err := s.store.PostMessage(req.TeamID, r.PathValue("id"), req.AgentID, req.Body)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *Server) handleThreadTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	teamID := r.URL.Query().Get("teamId")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	result, err := s.store.ThreadTail(teamID, r.PathValue("id"), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": result.Thread, "messages": result.Messages})
}

type linkThreadRequest struct {
	TeamID string `json:"teamId"`
	TaskID string `json:"taskId"`
	Actor  string `json:"actor"`
}

func (s *Server) handleLinkThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		notFound(w)
		return
	}
	var req linkThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidJSON(w)
		return
	}
	thread, err := s.store.LinkThread(req.TeamID, r.PathValue("id"), req.TaskID, req.Actor)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": thread})
}
