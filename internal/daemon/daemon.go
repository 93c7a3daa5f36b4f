// Package daemon bootstraps and shuts down the coordination daemon: the
// single-instance lock with stale-holder reclamation, credential minting,
// workspace scaffolding, runtime-descriptor publication, and the HTTP
// listener lifecycle.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/teamd/internal/config"
	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/httpapi"
	"github.com/highbeam/teamd/internal/logging"
	"github.com/highbeam/teamd/internal/model"
	"github.com/highbeam/teamd/internal/store"
)

const lockFileName = ".teamd.lock"

// Daemon is a running instance bound to one team's workspace directory.
type Daemon struct {
	cfg      *config.Config
	teamID   string
	teamDir  string
	lockPath string

	store    *store.Store
	http     *httpapi.Server
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	log zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Bootstrap performs the full daemon startup sequence for one team and
// returns a handle whose Close both stops the listener and releases the
// lock. If startup fails partway through, no handle is returned; the lock
// and listener acquired so far are released before Bootstrap returns.
func Bootstrap(cfg *config.Config, teamID string) (*Daemon, error) {
	logging.Init(logging.Config{Level: cfg.LogLevel})
	log := logging.For("daemon")

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("daemon: ensure data dir: %w", err)
	}

	st, err := store.New(cfg.WorkspaceRoot, time.Now)
	if err != nil {
		return nil, fmt.Errorf("daemon: open store: %w", err)
	}

	d := &Daemon{cfg: cfg, teamID: teamID, store: st, log: log}
	d.ctx, d.cancel = signalContext(context.Background())

	if err := d.setup(); err != nil {
		st.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) setup() error {
	if err := d.store.EnsureTeamDir(d.teamID); err != nil {
		return fmt.Errorf("daemon: scaffold team dir: %w", err)
	}
	teamDir, err := fsutil.SafeJoin(d.cfg.WorkspaceRoot, d.teamID)
	if err != nil {
		return fmt.Errorf("daemon: resolve team dir: %w", err)
	}
	d.teamDir = teamDir
	d.lockPath = teamDir + string(os.PathSeparator) + lockFileName

	if _, err := d.store.CreateTeam(model.Team{ID: d.teamID}); err != nil {
		return fmt.Errorf("daemon: ensure team record: %w", err)
	}

	if err := d.acquireLock(); err != nil {
		return err
	}

	token := d.cfg.Token
	if token == "" {
		minted, err := mintToken()
		if err != nil {
			d.releaseLock()
			return fmt.Errorf("daemon: mint credential: %w", err)
		}
		token = minted
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", d.cfg.ListenPort))
	if err != nil {
		d.releaseLock()
		return fmt.Errorf("daemon: bind listener: %w", err)
	}
	d.listener = ln

	d.http = httpapi.NewServer(d.store, httpapi.Options{Token: token})

	descriptor := model.RuntimeDescriptor{
		SchemaVersion: model.SchemaVersion,
		URL:           "http://" + ln.Addr().String(),
		Token:         token,
		PID:           os.Getpid(),
	}
	descriptorPath := d.teamDir + string(os.PathSeparator) + "runtime.json"
	if err := fsutil.WriteJSONAtomic(descriptorPath, descriptor); err != nil {
		d.listener.Close()
		d.releaseLock()
		return fmt.Errorf("daemon: publish runtime descriptor: %w", err)
	}
	if err := fsutil.EnsureFile0600(descriptorPath); err != nil {
		d.log.Warn().Err(err).Msg("could not tighten runtime descriptor permission")
	}

	go func() {
		if err := d.http.Serve(ln); err != nil {
			d.log.Error().Err(err).Msg("http server stopped")
		}
	}()

	d.log.Info().Str("team", d.teamID).Str("url", descriptor.URL).Msg("daemon started")
	return nil
}

// Addr returns the loopback address the HTTP listener is bound to.
func (d *Daemon) Addr() net.Addr {
	return d.listener.Addr()
}

// Context is cancelled when SIGTERM or SIGINT is received.
func (d *Daemon) Context() context.Context {
	return d.ctx
}

// Store returns the daemon's backing store, for use by a foreground CLI
// sharing the same process.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Close stops accepting connections, drains the store's mutation queue,
// removes the lock file, and removes the runtime descriptor. Safe to call
// more than once.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.cancel()

	if d.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.http.Shutdown(ctx); err != nil {
			d.log.Warn().Err(err).Msg("http shutdown")
		}
	}
	if d.store != nil {
		d.store.Close()
	}
	if d.teamDir != "" {
		_ = os.Remove(d.teamDir + string(os.PathSeparator) + "runtime.json")
	}
	d.releaseLock()

	d.log.Info().Msg("daemon stopped")
	return nil
}

// --- lock file ---------------------------------------------------------

func (d *Daemon) acquireLock() error {
	if err := d.tryCreateLock(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("daemon: create lock %s: %w", d.lockPath, err)
	}

	var existing model.LockPayload
	if err := fsutil.ReadJSON(d.lockPath, &existing); err != nil {
		return fmt.Errorf("daemon: read existing lock %s: %w", d.lockPath, err)
	}

	if !processIsDead(existing.PID) {
		return fmt.Errorf("daemon: lock %s is held by running process %d", d.lockPath, existing.PID)
	}

	if err := os.Remove(d.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove stale lock %s: %w", d.lockPath, err)
	}

	if err := d.tryCreateLock(); err != nil {
		return fmt.Errorf("daemon: retry lock %s after reclaiming stale holder %d: %w", d.lockPath, existing.PID, err)
	}
	return nil
}

func (d *Daemon) tryCreateLock() error {
	f, err := os.OpenFile(d.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	payload := model.LockPayload{PID: os.Getpid(), StartedAt: time.Now().UTC(), SchemaVersion: model.SchemaVersion}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func (d *Daemon) releaseLock() {
	if d.lockPath == "" {
		return
	}
	if err := os.Remove(d.lockPath); err != nil && !os.IsNotExist(err) {
		d.log.Warn().Err(err).Msg("could not remove lock file")
	}
}

// processIsDead kill-probes pid with signal 0: no error means the process
// exists (and we can signal it); ESRCH means it does not.
func processIsDead(pid int) bool {
	if pid <= 0 {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	return err == syscall.ESRCH
}

func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
