// Package locking provides cross-process mutual exclusion over shared
// storage. A lock's identity is a deterministic fingerprint of its logical
// key, so independent processes racing for the same key always collide on
// the same row. There is no lease: a crashed holder orphans its lock until
// a startup sweep or an operator clears it.
package locking

import (
	"context"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
)

// Type discriminates lock semantics. Only mutual exclusion exists today.
type Type string

// TypeExclusive is the mutually-exclusive lock type.
const TypeExclusive Type = "E"

// Lock is one logical mutual-exclusion key.
type Lock struct {
	ID        string
	Name      string
	Type      Type
	TenantID  string
	Hostname  string
	CreatedAt time.Time
}

// Build computes the lock fingerprint for (name, type, tenant). Pure, no I/O.
func Build(name string, t Type, tenantID string) (Lock, error) {
	if strings.TrimSpace(name) == "" {
		return Lock{}, errs.New(errs.KindInvalidArgument, "locking: lock name is required")
	}
	key := strings.ToLower(name) + "~" + string(t) + "~" + tenantID
	sum := blake2b.Sum256([]byte(key))
	return Lock{
		ID:       hex.EncodeToString(sum[:16]),
		Name:     name,
		Type:     t,
		TenantID: tenantID,
	}, nil
}

// Store is the shared-storage operations the manager needs.
type Store interface {
	// InsertIfAbsent atomically inserts the lock row keyed by its id and
	// reports whether the insert created a row.
	InsertIfAbsent(ctx context.Context, lock Lock) (bool, error)
	// Delete removes the row by id and reports whether a row existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// Manager acquires and releases locks against a Store.
type Manager struct {
	store    Store
	hostname string
	logger   *zap.Logger
}

// NewManager builds a lock manager owned by this host.
func NewManager(store Store, logger *zap.Logger) *Manager {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Manager{store: store, hostname: hostname, logger: logger}
}

// Acquire attempts to take the lock. Contention is not an error: any insert
// failure, including a duplicate key, reports false. The caller must skip its
// work for this cycle when false is returned.
func (m *Manager) Acquire(ctx context.Context, lock *Lock) bool {
	lock.Hostname = m.hostname
	lock.CreatedAt = time.Now().UTC()

	inserted, err := m.store.InsertIfAbsent(ctx, *lock)
	if err != nil {
		m.logger.Debug("lock acquire failed",
			zap.String("lock_id", lock.ID),
			zap.String("lock_name", lock.Name),
			zap.Error(err))
		return false
	}
	if !inserted {
		m.logger.Debug("lock held elsewhere",
			zap.String("lock_id", lock.ID),
			zap.String("lock_name", lock.Name),
			zap.String("tenant_id", lock.TenantID))
	}
	return inserted
}

// Release deletes the lock row. A vanished row (double release, operator
// sweep) is logged and reported as false, never escalated.
func (m *Manager) Release(ctx context.Context, lock Lock) bool {
	deleted, err := m.store.Delete(ctx, lock.ID)
	if err != nil {
		m.logger.Warn("lock release failed",
			zap.String("lock_id", lock.ID),
			zap.String("lock_name", lock.Name),
			zap.Error(err))
		return false
	}
	if !deleted {
		m.logger.Warn("lock already released",
			zap.String("lock_id", lock.ID),
			zap.String("lock_name", lock.Name))
	}
	return deleted
}
