package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/locking"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]*models.AsyncTask
	order    []string
	resets   int
	listErr  error
	statuses map[string][]string
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		tasks:    make(map[string]*models.AsyncTask),
		statuses: make(map[string][]string),
	}
}

func (s *fakeTaskStore) add(task *models.AsyncTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
}

func (s *fakeTaskStore) ListPending(ctx context.Context, limit int) ([]*models.AsyncTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.AsyncTask
	for _, id := range s.order {
		task := s.tasks[id]
		if task.Status != models.TaskPending {
			continue
		}
		clone := *task
		out = append(out, &clone)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeTaskStore) ResetRunning(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	var count int64
	for _, task := range s.tasks {
		if task.Status == models.TaskRunning {
			task.Status = models.TaskPending
			count++
		}
	}
	return count, nil
}

func (s *fakeTaskStore) SetStatus(ctx context.Context, id, status, host, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	task.Status = status
	task.Host = host
	task.LastError = lastError
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *fakeTaskStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].Status
}

func (s *fakeTaskStore) transitions(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses[id]...)
}

type fakeLockStore struct {
	mu   sync.Mutex
	rows map[string]bool
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{rows: make(map[string]bool)}
}

func (s *fakeLockStore) InsertIfAbsent(ctx context.Context, lock locking.Lock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[lock.ID] {
		return false, nil
	}
	s.rows[lock.ID] = true
	return true, nil
}

func (s *fakeLockStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rows[id] {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func (s *fakeLockStore) hold(t *testing.T, taskID string) {
	t.Helper()
	lock, err := locking.ForAsyncTask(taskID)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	s.mu.Lock()
	s.rows[lock.ID] = true
	s.mu.Unlock()
}

func newTestRunner(store *fakeTaskStore, locks *fakeLockStore) *Runner {
	manager := locking.NewManager(locks, zap.NewNop())
	return NewRunner(store, manager, 2, time.Hour, zap.NewNop())
}

func TestRunnerExecutesPendingTask(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "sync-station", Status: models.TaskPending})

	runner := newTestRunner(store, newFakeLockStore())
	var handled int
	var mu sync.Mutex
	runner.Register("sync-station", func(ctx context.Context, task *models.AsyncTask) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})

	runner.drain(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if handled != 1 {
		t.Fatalf("expected the task handled once, got %d", handled)
	}
	if got := store.status("task-1"); got != models.TaskSuccess {
		t.Fatalf("expected Success, got %s", got)
	}
	if got := store.transitions("task-1"); len(got) != 2 || got[0] != models.TaskRunning || got[1] != models.TaskSuccess {
		t.Fatalf("expected Running then Success, got %v", got)
	}
}

func TestRunnerRecordsHandlerFailure(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "sync-station", Status: models.TaskPending})

	runner := newTestRunner(store, newFakeLockStore())
	runner.Register("sync-station", func(ctx context.Context, task *models.AsyncTask) error {
		return errors.New("remote unavailable")
	})

	runner.drain(context.Background())

	if got := store.status("task-1"); got != models.TaskError {
		t.Fatalf("expected Error, got %s", got)
	}
	store.mu.Lock()
	lastError := store.tasks["task-1"].LastError
	store.mu.Unlock()
	if lastError != "remote unavailable" {
		t.Fatalf("expected the failure recorded, got %q", lastError)
	}
}

func TestRunnerFailsUnregisteredTask(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "unknown-kind", Status: models.TaskPending})

	runner := newTestRunner(store, newFakeLockStore())
	runner.drain(context.Background())

	if got := store.status("task-1"); got != models.TaskError {
		t.Fatalf("expected Error for unregistered task, got %s", got)
	}
}

func TestRunnerRecoversFromHandlerPanic(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "sync-station", Status: models.TaskPending})

	runner := newTestRunner(store, newFakeLockStore())
	runner.Register("sync-station", func(ctx context.Context, task *models.AsyncTask) error {
		panic("boom")
	})

	runner.drain(context.Background())

	if got := store.status("task-1"); got != models.TaskError {
		t.Fatalf("expected Error after panic, got %s", got)
	}
}

func TestRunnerSkipsTaskHeldElsewhere(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "sync-station", Status: models.TaskPending})
	store.add(&models.AsyncTask{ID: "task-2", Name: "sync-station", Status: models.TaskPending})

	locks := newFakeLockStore()
	locks.hold(t, "task-1")

	runner := newTestRunner(store, locks)
	runner.Register("sync-station", func(ctx context.Context, task *models.AsyncTask) error {
		return nil
	})

	runner.drain(context.Background())

	if got := store.status("task-1"); got != models.TaskPending {
		t.Fatalf("held task must stay Pending, got %s", got)
	}
	if got := store.status("task-2"); got != models.TaskSuccess {
		t.Fatalf("free task should still run, got %s", got)
	}
}

func TestRunnerStartupSweepRequeuesOrphans(t *testing.T) {
	store := newFakeTaskStore()
	store.add(&models.AsyncTask{ID: "task-1", Name: "sync-station", Status: models.TaskRunning})

	runner := newTestRunner(store, newFakeLockStore())
	var mu sync.Mutex
	handled := false
	runner.Register("sync-station", func(ctx context.Context, task *models.AsyncTask) error {
		mu.Lock()
		handled = true
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled
	})
	cancel()
	runner.Trigger()
	<-done

	if got := store.status("task-1"); got != models.TaskSuccess {
		t.Fatalf("orphaned task should be requeued and finished, got %s", got)
	}
}
