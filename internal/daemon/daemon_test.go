package daemon

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/highbeam/teamd/internal/config"
	"github.com/highbeam/teamd/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.WorkspaceRoot = filepath.Join(dir, "workspace")
	cfg.ListenPort = 0
	cfg.LogLevel = "error"
	if err := os.MkdirAll(cfg.WorkspaceRoot, 0700); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}
	return cfg
}

func TestBootstrapPublishesRuntimeDescriptor(t *testing.T) {
	cfg := testConfig(t)
	d, err := Bootstrap(cfg, "team-1")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer d.Close()

	descPath := filepath.Join(cfg.WorkspaceRoot, "team-1", "runtime.json")
	var desc model.RuntimeDescriptor
	data, err := os.ReadFile(descPath)
	if err != nil {
		t.Fatalf("read runtime descriptor: %v", err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		t.Fatalf("unmarshal runtime descriptor: %v", err)
	}
	if desc.Token == "" {
		t.Error("expected a minted token")
	}
	if desc.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", desc.PID, os.Getpid())
	}

	info, err := os.Stat(descPath)
	if err != nil {
		t.Fatalf("stat runtime descriptor: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("runtime descriptor mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestBootstrapRejectsSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	d1, err := Bootstrap(cfg, "team-1")
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	defer d1.Close()

	if _, err := Bootstrap(cfg, "team-1"); err == nil {
		t.Fatal("expected second Bootstrap against the same team to fail")
	}
}

func TestBootstrapReclaimsStaleLock(t *testing.T) {
	cfg := testConfig(t)
	teamDir := filepath.Join(cfg.WorkspaceRoot, "team-1")
	if err := os.MkdirAll(teamDir, 0700); err != nil {
		t.Fatalf("mkdir team dir: %v", err)
	}

	stale := model.LockPayload{PID: 999999, StartedAt: time.Now().UTC(), SchemaVersion: model.SchemaVersion}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal stale lock: %v", err)
	}
	lockPath := filepath.Join(teamDir, lockFileName)
	if err := os.WriteFile(lockPath, data, 0600); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	d, err := Bootstrap(cfg, "team-1")
	if err != nil {
		t.Fatalf("Bootstrap should reclaim a lock held by a dead pid: %v", err)
	}
	defer d.Close()

	var held model.LockPayload
	lockData, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if err := json.Unmarshal(lockData, &held); err != nil {
		t.Fatalf("unmarshal lock: %v", err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("lock pid = %d, want %d", held.PID, os.Getpid())
	}
}

func TestCloseRemovesLockAndDescriptor(t *testing.T) {
	cfg := testConfig(t)
	d, err := Bootstrap(cfg, "team-1")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	lockPath := d.lockPath
	descPath := filepath.Join(d.teamDir, "runtime.json")

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed")
	}
	if _, err := os.Stat(descPath); !os.IsNotExist(err) {
		t.Error("expected runtime descriptor to be removed")
	}

	// Close must be idempotent.
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBootstrappedServerServesHealthz(t *testing.T) {
	cfg := testConfig(t)
	d, err := Bootstrap(cfg, "team-1")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer d.Close()

	url := "http://" + d.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 20; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
