package locking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
)

type fakeLockStore struct {
	mu        sync.Mutex
	rows      map[string]Lock
	insertErr error
	deleteErr error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{rows: make(map[string]Lock)}
}

func (s *fakeLockStore) InsertIfAbsent(ctx context.Context, lock Lock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.rows[lock.ID]; exists {
		return false, nil
	}
	s.rows[lock.ID] = lock
	return true, nil
}

func (s *fakeLockStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if _, exists := s.rows[id]; !exists {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func TestBuildFingerprintDeterministic(t *testing.T) {
	a, err := Build("session-cleanup-station-1", TypeExclusive, "tenant-a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Build("session-cleanup-station-1", TypeExclusive, "tenant-a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("same key must fingerprint identically: %q vs %q", a.ID, b.ID)
	}
	if len(a.ID) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a.ID))
	}
}

func TestBuildFingerprintCaseInsensitiveName(t *testing.T) {
	a, _ := Build("Billing-Cycle", TypeExclusive, "tenant-a")
	b, _ := Build("billing-cycle", TypeExclusive, "tenant-a")
	if a.ID != b.ID {
		t.Fatal("name casing must not change the fingerprint")
	}
}

func TestBuildFingerprintVariesByTenant(t *testing.T) {
	a, _ := Build("billing-cycle", TypeExclusive, "tenant-a")
	b, _ := Build("billing-cycle", TypeExclusive, "tenant-b")
	if a.ID == b.ID {
		t.Fatal("different tenants must not collide")
	}
}

func TestBuildRequiresName(t *testing.T) {
	_, err := Build("  ", TypeExclusive, "tenant-a")
	if !errs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	store := newFakeLockStore()
	manager := NewManager(store, zap.NewNop())

	lock, err := ForStaleTransactionSweep("tenant-a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !manager.Acquire(context.Background(), &lock) {
		t.Fatal("first acquire should win")
	}
	if lock.Hostname == "" {
		t.Fatal("acquire should stamp the hostname")
	}

	second := lock
	if manager.Acquire(context.Background(), &second) {
		t.Fatal("second acquire must lose while held")
	}

	if !manager.Release(context.Background(), lock) {
		t.Fatal("release should succeed")
	}
	if manager.Release(context.Background(), lock) {
		t.Fatal("double release must report false")
	}

	if !manager.Acquire(context.Background(), &lock) {
		t.Fatal("acquire should win again after release")
	}
}

func TestAcquireTreatsStoreErrorAsContention(t *testing.T) {
	store := newFakeLockStore()
	store.insertErr = errors.New("connection refused")
	manager := NewManager(store, zap.NewNop())

	lock, _ := ForBillingCycle("tenant-a")
	if manager.Acquire(context.Background(), &lock) {
		t.Fatal("store failure must report the lock as not acquired")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	store := newFakeLockStore()
	manager := NewManager(store, zap.NewNop())

	const racers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := ForSessionCleanup("tenant-a", "station-1")
			if err != nil {
				t.Errorf("build: %v", err)
				return
			}
			if manager.Acquire(context.Background(), &lock) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}
