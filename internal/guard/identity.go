// Package guard is the in-agent component that enforces lease-gated writes
// by probing the coordination daemon before a file-mutating tool runs. It
// discovers the running daemon from environment hints and the runtime
// descriptor it publishes, never assumes a daemon is reachable, and always
// fails closed.
package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/highbeam/teamd/internal/model"
)

// Environ is the subset of the process environment the guard client reads.
// Passed explicitly (rather than read via os.Getenv inline) so discovery is
// testable without mutating the real environment.
type Environ struct {
	WorkspaceRoot string
	TeamID        string
	AgentID       string
	URL           string
	Token         string
	TokenFile     string
}

// EnvironFromOS reads the recognized environment variables.
func EnvironFromOS() Environ {
	return Environ{
		WorkspaceRoot: os.Getenv("TEAM_WORKSPACE_ROOT"),
		TeamID:        os.Getenv("TEAM_ID"),
		AgentID:       os.Getenv("AGENT_ID"),
		URL:           os.Getenv("TEAMD_URL"),
		Token:         os.Getenv("TEAMD_TOKEN"),
		TokenFile:     os.Getenv("TEAMD_TOKEN_FILE"),
	}
}

// Identity is everything the guard client needs to talk to a daemon:
// where it is, who is calling, and what credential to present.
type Identity struct {
	TeamID  string
	AgentID string
	URL     string
	Token   string
}

type tokenFileContents struct {
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
}

// Discover resolves an Identity following the precedence chain: explicit
// environment variables win; a token file pointed to by the environment
// fills any gaps; failing that, the workspace root (or the current
// directory) is scanned for the most recently modified runtime descriptor.
// If no agent id is configured anywhere, a stable local id is synthesized.
func Discover(env Environ) (*Identity, error) {
	id := &Identity{TeamID: env.TeamID, AgentID: env.AgentID, URL: env.URL, Token: env.Token}

	if (id.URL == "" || id.Token == "") && env.TokenFile != "" {
		fileURL, fileToken, err := readTokenFile(env.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("guard: read token file %s: %w", env.TokenFile, err)
		}
		if id.URL == "" {
			id.URL = fileURL
		}
		if id.Token == "" {
			id.Token = fileToken
		}
	}

	if id.URL == "" || id.Token == "" {
		root := env.WorkspaceRoot
		if root == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("guard: resolve cwd: %w", err)
			}
			root = cwd
		}
		desc, foundTeam, err := scanForRuntimeDescriptor(root, env.TeamID)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			if id.URL == "" {
				id.URL = desc.URL
			}
			if id.Token == "" {
				id.Token = desc.Token
			}
			if id.TeamID == "" {
				id.TeamID = foundTeam
			}
		}
	}

	if id.AgentID == "" {
		id.AgentID = localAutoAgentID()
	}

	return id, nil
}

func readTokenFile(path string) (url, token string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", "", fmt.Errorf("empty token file")
	}
	if trimmed[0] == '{' {
		var parsed tokenFileContents
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return "", "", fmt.Errorf("parse json token file: %w", err)
		}
		return parsed.URL, parsed.Token, nil
	}
	return "", strings.SplitN(trimmed, "\n", 2)[0], nil
}

// scanForRuntimeDescriptor looks under root for */runtime.json files and
// returns the most recently modified one. When teamID is non-empty, only
// that team's subdirectory is considered.
func scanForRuntimeDescriptor(root, teamID string) (*model.RuntimeDescriptor, string, error) {
	var candidates []string

	if teamID != "" {
		p := filepath.Join(root, teamID, "runtime.json")
		if _, err := os.Stat(p); err == nil {
			candidates = append(candidates, p)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, "", nil
			}
			return nil, "", fmt.Errorf("guard: scan workspace root %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			p := filepath.Join(root, e.Name(), "runtime.json")
			if _, err := os.Stat(p); err == nil {
				candidates = append(candidates, p)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, "", nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		ti := mtime(candidates[i])
		tj := mtime(candidates[j])
		return ti.After(tj)
	})

	best := candidates[0]
	var desc model.RuntimeDescriptor
	data, err := os.ReadFile(best)
	if err != nil {
		return nil, "", fmt.Errorf("guard: read runtime descriptor %s: %w", best, err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, "", fmt.Errorf("guard: parse runtime descriptor %s: %w", best, err)
	}
	return &desc, filepath.Base(filepath.Dir(best)), nil
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func localAutoAgentID() string {
	u, err := user.Current()
	name := "unknown"
	if err == nil && u.Username != "" {
		name = u.Username
	}
	return name + "-auto"
}
