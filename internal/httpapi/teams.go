package httpapi

import (
	"net/http"

	"github.com/highbeam/teamd/internal/model"
)

type createTeamRequest struct {
	ID          string         `json:"id"`
	Agents      []model.Agent  `json:"agents"`
	BudgetHints map[string]any `json:"budgetHints,omitempty"`
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		teams, err := s.store.ListTeams()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teams})

	case http.MethodPost:
		var req createTeamRequest
		if err := decodeJSON(r, &req); err != nil {
			invalidJSON(w)
			return
		}
		team := model.Team{ID: req.ID, Agents: req.Agents, BudgetHints: req.BudgetHints}
		result, err := s.store.CreateTeam(team)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		status := http.StatusCreated
		if !result.Created {
			status = http.StatusOK
		}
		writeJSON(w, status, result.Team)

	default:
		notFound(w)
	}
}

func (s *Server) handleTeamByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	team, err := s.store.GetTeam(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}
