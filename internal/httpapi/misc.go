package httpapi

import (
	"net/http"
	"strconv"
)

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	teamID := r.URL.Query().Get("teamId")
	agentID := r.URL.Query().Get("agentId")
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			since = n
		}
	}
	events, nextSince, err := s.store.Inbox(teamID, agentID, since)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "nextSince": nextSince})
}

func (s *Server) handleCanWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	teamID := r.URL.Query().Get("teamId")
	agentID := r.URL.Query().Get("agentId")
	path := r.URL.Query().Get("path")
	result, err := s.store.CanWrite(teamID, agentID, path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
