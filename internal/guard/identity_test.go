package guard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/highbeam/teamd/internal/model"
)

func TestDiscoverPrefersExplicitEnv(t *testing.T) {
	env := Environ{TeamID: "team-1", AgentID: "worker_a", URL: "http://127.0.0.1:9999", Token: "tok"}
	id, err := Discover(env)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id.URL != env.URL || id.Token != env.Token || id.TeamID != env.TeamID || id.AgentID != env.AgentID {
		t.Fatalf("Discover = %+v, want explicit env values", id)
	}
}

func TestDiscoverFillsFromTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token.json")
	contents := tokenFileContents{Token: "file-token", URL: "http://127.0.0.1:8000"}
	data, err := json.Marshal(contents)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(tokenFile, data, 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	env := Environ{TeamID: "team-1", TokenFile: tokenFile}
	id, err := Discover(env)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id.URL != contents.URL || id.Token != contents.Token {
		t.Fatalf("Discover = %+v, want url/token from file", id)
	}
	if id.AgentID == "" {
		t.Error("expected a synthesized agent id")
	}
}

func TestDiscoverScansWorkspaceRootByMtime(t *testing.T) {
	root := t.TempDir()

	writeDescriptor := func(team string, desc model.RuntimeDescriptor, at time.Time) {
		dir := filepath.Join(root, team)
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		data, err := json.Marshal(desc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path := filepath.Join(dir, "runtime.json")
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		if err := os.Chtimes(path, at, at); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	now := time.Now()
	writeDescriptor("team-old", model.RuntimeDescriptor{URL: "http://old", Token: "old-token"}, now.Add(-time.Hour))
	writeDescriptor("team-new", model.RuntimeDescriptor{URL: "http://new", Token: "new-token"}, now)

	env := Environ{WorkspaceRoot: root}
	id, err := Discover(env)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id.URL != "http://new" || id.Token != "new-token" || id.TeamID != "team-new" {
		t.Fatalf("Discover = %+v, want the most recently modified descriptor", id)
	}
}

func TestDiscoverNarrowsToTeamIDWhenSet(t *testing.T) {
	root := t.TempDir()

	for _, team := range []string{"team-a", "team-b"} {
		dir := filepath.Join(root, team)
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		desc := model.RuntimeDescriptor{URL: "http://" + team, Token: team + "-token"}
		data, err := json.Marshal(desc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "runtime.json"), data, 0600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	env := Environ{WorkspaceRoot: root, TeamID: "team-b"}
	id, err := Discover(env)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id.URL != "http://team-b" {
		t.Fatalf("Discover = %+v, want team-b's descriptor", id)
	}
}
