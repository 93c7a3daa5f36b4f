package store

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/highbeam/teamd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), time.Now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	if _, err := s.CreateTeam(model.Team{ID: "team-1"}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return s
}

func TestFencingExpiredLeaseRejectsFinalize(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateTask("team-1", CreateTaskInput{Title: "do thing"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	claimed, err := s.ClaimTask("team-1", created.Task.ID, "worker_a", 25*time.Millisecond)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	_, err = s.CompleteTask("team-1", created.Task.ID, "worker_a", claimed.Lease.Epoch)
	se, ok := err.(*Error)
	if !ok || se.Code != "LEASE_EXPIRED" {
		t.Fatalf("CompleteTask after expiry = %v, want LEASE_EXPIRED", err)
	}

	reclaimed, err := s.ClaimTask("team-1", created.Task.ID, "worker_b", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed.Lease.Epoch <= claimed.Lease.Epoch {
		t.Fatalf("epoch did not strictly increase: %d -> %d", claimed.Lease.Epoch, reclaimed.Lease.Epoch)
	}
}

func TestDependencyUnblock(t *testing.T) {
	s := newTestStore(t)

	dep, err := s.CreateTask("team-1", CreateTaskInput{Title: "first"})
	if err != nil {
		t.Fatalf("CreateTask dep: %v", err)
	}
	blocked, err := s.CreateTask("team-1", CreateTaskInput{Title: "second", Dependencies: []string{dep.Task.ID}})
	if err != nil {
		t.Fatalf("CreateTask blocked: %v", err)
	}
	if blocked.Task.Status != model.TaskBlocked {
		t.Fatalf("status = %s, want blocked", blocked.Task.Status)
	}

	claimed, err := s.ClaimTask("team-1", dep.Task.ID, "a", time.Minute)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if _, err := s.CompleteTask("team-1", dep.Task.ID, "a", claimed.Lease.Epoch); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	after, err := s.GetTask("team-1", blocked.Task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if after.Status != model.TaskPending {
		t.Fatalf("status after unblock = %s, want pending", after.Status)
	}
}

func TestIdempotentCreation(t *testing.T) {
	s := newTestStore(t)

	first, err := s.CreateTask("team-1", CreateTaskInput{Title: "once", IdempotencyKey: "create-task-1"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !first.Created {
		t.Fatal("first call should have Created=true")
	}

	second, err := s.CreateTask("team-1", CreateTaskInput{Title: "once again, different title", IdempotencyKey: "create-task-1"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Created {
		t.Fatal("second call should have Created=false")
	}
	if second.Task.ID != first.Task.ID {
		t.Fatalf("ids differ: %s vs %s", first.Task.ID, second.Task.ID)
	}

	tasks, err := s.ListTasks("team-1", "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
}

func TestRaceClaimExactlyOneWinner(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateTask("team-1", CreateTaskInput{Title: "contested"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, agent := range []string{"worker_a", "worker_b"} {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			_, err := s.ClaimTask("team-1", created.Task.ID, agent, time.Minute)
			results <- err
		}(agent)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		se, ok := err.(*Error)
		if !ok || se.Code != "TASK_NOT_CLAIMABLE" {
			t.Fatalf("unexpected error: %v", err)
		}
		conflicts++
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins=%d conflicts=%d, want 1 and 1", wins, conflicts)
	}
}

func TestFinalizeRejectsStaleEpoch(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateTask("team-1", CreateTaskInput{Title: "t"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	claimed, err := s.ClaimTask("team-1", created.Task.ID, "a", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	staleEpoch := claimed.Lease.Epoch

	time.Sleep(20 * time.Millisecond)

	reclaimed, err := s.ClaimTask("team-1", created.Task.ID, "a", time.Minute)
	if err != nil {
		t.Fatalf("reclaim after expiry: %v", err)
	}
	if reclaimed.Lease.Epoch == staleEpoch {
		t.Fatal("reclaim should have minted a new epoch")
	}

	_, err = s.CompleteTask("team-1", created.Task.ID, "a", staleEpoch)
	se, ok := err.(*Error)
	if !ok || se.Code != "EPOCH_MISMATCH" {
		t.Fatalf("stale-epoch complete = %v, want EPOCH_MISMATCH", err)
	}
}

func TestCanWriteRequiresActiveLease(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateTask("team-1", CreateTaskInput{Title: "t", Resources: []string{"/src/pkg/"}})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	before, err := s.CanWrite("team-1", "worker_a", "src/pkg/file.go")
	if err != nil {
		t.Fatalf("CanWrite: %v", err)
	}
	if before.Allow {
		t.Fatal("expected no active lease before claim")
	}
	if before.Reason != "no_active_lease_for_path" {
		t.Fatalf("reason = %s", before.Reason)
	}

	if _, err := s.ClaimTask("team-1", created.Task.ID, "worker_a", time.Minute); err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}

	after, err := s.CanWrite("team-1", "worker_a", "src/pkg/file.go")
	if err != nil {
		t.Fatalf("CanWrite: %v", err)
	}
	if !after.Allow || after.Reason != "lease_active_for_resource" {
		t.Fatalf("CanWrite after claim = %+v", after)
	}

	outside, err := s.CanWrite("team-1", "worker_a", "../escape")
	if err != nil {
		t.Fatalf("CanWrite: %v", err)
	}
	if outside.Allow || outside.Reason != "path_traversal_denied" {
		t.Fatalf("CanWrite traversal = %+v", outside)
	}
}

func TestThreadRequiresParticipant(t *testing.T) {
	s := newTestStore(t)
	thread, err := s.StartThread("team-1", "design review", nil, "", "worker_a")
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	if len(thread.Participants) != 1 || thread.Participants[0] != "worker_a" {
		t.Fatalf("participants = %v, want [worker_a]", thread.Participants)
	}

	_, err = s.StartThread("team-1", "orphaned", nil, "", "")
	se, ok := err.(*Error)
	if !ok || se.Code != "INVALID_THREAD" {
		t.Fatalf("empty participants with no originator = %v, want INVALID_THREAD", err)
	}
}

func TestThreadTailSurvivesCrashInterruptedAppend(t *testing.T) {
	s := newTestStore(t)
	thread, err := s.StartThread("team-1", "ops", []string{"worker_a", "worker_b"}, "", "worker_a")
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	if _, err := s.PostMessage("team-1", thread.ID, "worker_a", "first message"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	logPath, err := s.threadLogFile("team-1", thread.ID)
	if err != nil {
		t.Fatalf("threadLogFile: %v", err)
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString(`{"partial":`); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	f.Close()

	res, err := s.ThreadTail("team-1", thread.ID, 0)
	if err != nil {
		t.Fatalf("ThreadTail: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Body != "first message" {
		t.Fatalf("messages = %+v, want exactly the original message", res.Messages)
	}
}

func TestLeaseTTLBounds(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateTask("team-1", CreateTaskInput{Title: "t"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := s.ClaimTask("team-1", created.Task.ID, "a", 0); err == nil {
		t.Fatal("zero TTL should be rejected")
	}
	if _, err := s.ClaimTask("team-1", created.Task.ID, "a", 48*time.Hour); err == nil {
		t.Fatal("over-long TTL should be rejected")
	}
}
