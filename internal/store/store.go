// Package store is the authoritative, file-backed model of teams, tasks,
// threads, inboxes, and audit history. Every mutation is funneled through
// a single serial queue so the on-disk state observes one total order of
// writes; reads go straight to disk and are never blocked by it.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/teamd/internal/fsutil"
	"github.com/highbeam/teamd/internal/logging"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidID reports whether id is composed only of the wire-allowed character class.
func ValidID(id string) bool {
	return id != "" && idPattern.MatchString(id)
}

// Store owns a workspace root directory containing one subdirectory per team.
type Store struct {
	root  string
	clock func() time.Time
	log   zerolog.Logger

	queue chan job
	done  chan struct{}
}

type job struct {
	fn     func() (any, error)
	result chan jobResult
}

type jobResult struct {
	val any
	err error
}

// New opens a store rooted at root, creating it with mode 0700 if absent,
// and starts the background mutation-queue worker.
func New(root string, clock func() time.Time) (*Store, error) {
	if clock == nil {
		clock = time.Now
	}
	if err := fsutil.EnsureDir0700(root); err != nil {
		return nil, fmt.Errorf("store: open root %s: %w", root, err)
	}
	s := &Store{
		root:  root,
		clock: clock,
		log:   logging.For("store"),
		queue: make(chan job, 64),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Close drains and stops the mutation queue. Safe to call once.
func (s *Store) Close() {
	close(s.queue)
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)
	for j := range s.queue {
		val, err := j.fn()
		j.result <- jobResult{val: val, err: err}
	}
}

// mutate enqueues fn on the serial queue and blocks for its result. Every
// mutating store operation goes through this; read-only operations read
// the filesystem directly and never touch the queue.
func (s *Store) mutate(fn func() (any, error)) (any, error) {
	j := job{fn: fn, result: make(chan jobResult, 1)}
	s.queue <- j
	r := <-j.result
	return r.val, r.err
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// --- path layout -----------------------------------------------------

var teamScaffold = []string{"tasks", "threads", "inboxes", "audit", "artifacts", "idempotency"}

func (s *Store) teamDir(teamID string) (string, error) {
	if !ValidID(teamID) {
		return "", errInvalidTeamID("team id %q is not in [A-Za-z0-9._-]+", teamID)
	}
	return fsutil.SafeJoin(s.root, teamID)
}

// EnsureTeamDir scaffolds a team's on-disk layout: the team directory at
// 0700 and its fixed set of subdirectories. Called both by CreateTeam and
// by daemon bootstrap so the layout exists before the HTTP surface opens.
func (s *Store) EnsureTeamDir(teamID string) error {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir0700(dir); err != nil {
		return err
	}
	for _, sub := range teamScaffold {
		if err := fsutil.EnsureDir0700(filepath.Join(dir, sub)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) teamFile(teamID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "team.json"), nil
}

func (s *Store) taskFile(teamID, taskID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tasks", taskID+".json"), nil
}

func (s *Store) taskDir(teamID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tasks"), nil
}

func (s *Store) threadsIndexFile(teamID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads", "index.json"), nil
}

func (s *Store) threadLogFile(teamID, threadID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads", threadID+".jsonl"), nil
}

func (s *Store) inboxFile(teamID, agentID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "inboxes", agentID+".json"), nil
}

func (s *Store) auditFile(teamID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit", "events.jsonl"), nil
}

func (s *Store) idempotencyFile(teamID string) (string, error) {
	dir, err := s.teamDir(teamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "idempotency", "create-task.json"), nil
}

// --- id minting --------------------------------------------------------

// mintID returns prefix + one-plus-the-max-numeric-suffix seen among
// existing, zero-padded to 4 digits, by scanning dir for files matching
// prefix-NNNN<suffix>.
func mintID(dir, prefix, fileSuffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s-%04d", prefix, 1), nil
		}
		return "", err
	}
	max := 0
	want := prefix + "-"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, want) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, want), fileSuffix)
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%04d", prefix, max+1), nil
}

// mintIDFromList applies the same one-plus-max-suffix rule to an in-memory
// list of existing ids (used for thread ids, which live inside a single
// index file rather than one file per record).
func mintIDFromList(prefix string, existing []string) string {
	max := 0
	want := prefix + "-"
	for _, id := range existing {
		if !strings.HasPrefix(id, want) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, want))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%04d", prefix, max+1)
}

func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
