package store

import (
	"os"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/model"
)

// CreateTeamResult reports whether CreateTeam minted a new team record or
// returned the one already on disk.
type CreateTeamResult struct {
	Team    model.Team
	Created bool
}

// CreateTeam stores the given team record, scaffolding its workspace
// directory. A team that already exists is left untouched (no-op, not an
// overwrite) so a restart that replays its own bootstrap call is harmless.
func (s *Store) CreateTeam(team model.Team) (CreateTeamResult, error) {
	if !ValidID(team.ID) {
		return CreateTeamResult{}, errInvalidTeamID("team id %q is not in [A-Za-z0-9._-]+", team.ID)
	}
	for _, a := range team.Agents {
		if !ValidID(a.ID) {
			return CreateTeamResult{}, errInvalidAgentID("agent id %q is not in [A-Za-z0-9._-]+", a.ID)
		}
	}

	val, err := s.mutate(func() (any, error) {
		if err := s.EnsureTeamDir(team.ID); err != nil {
			return nil, errInternal("ensure team dir: %v", err)
		}
		path, err := s.teamFile(team.ID)
		if err != nil {
			return nil, err
		}
		if existing, ok, err := s.readTeamFile(path); err != nil {
			return nil, errInternal("read existing team: %v", err)
		} else if ok {
			return CreateTeamResult{Team: existing, Created: false}, nil
		}

		team.SchemaVersion = model.SchemaVersion
		if err := fsutil.WriteJSONAtomic(path, team); err != nil {
			return nil, errInternal("write team: %v", err)
		}
		if err := s.appendAudit(team.ID, "system", "team_created", "", "", map[string]any{"teamId": team.ID}); err != nil {
			return nil, err
		}
		return CreateTeamResult{Team: team, Created: true}, nil
	})
	if err != nil {
		return CreateTeamResult{}, err
	}
	return val.(CreateTeamResult), nil
}

// GetTeam returns the named team, read directly from disk.
func (s *Store) GetTeam(teamID string) (model.Team, error) {
	path, err := s.teamFile(teamID)
	if err != nil {
		return model.Team{}, err
	}
	team, ok, err := s.readTeamFile(path)
	if err != nil {
		return model.Team{}, errInternal("read team: %v", err)
	}
	if !ok {
		return model.Team{}, errTeamNotFound("team %q not found", teamID)
	}
	return team, nil
}

// ListTeams returns every team under the workspace root, in id order.
func (s *Store) ListTeams() ([]model.Team, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errInternal("list teams: %v", err)
	}
	var teams []model.Team
	for _, e := range entries {
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		team, err := s.GetTeam(e.Name())
		if err != nil {
			if se, ok := err.(*Error); ok && se.Code == "TEAM_NOT_FOUND" {
				continue
			}
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (s *Store) readTeamFile(path string) (model.Team, bool, error) {
	var team model.Team
	err := fsutil.ReadJSON(path, &team)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Team{}, false, nil
		}
		return model.Team{}, false, err
	}
	return team, true, nil
}
