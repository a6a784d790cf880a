package repository

import (
	"context"
	"database/sql"

	"github.com/sap-labs-france/ev-server-sub011/internal/locking"
)

// LockRepository is the shared-storage backend for the lock primitive. The
// lock row's primary key is the deterministic fingerprint, so racing
// processes collide on the same row and exactly one insert wins.
type LockRepository struct {
	db *sql.DB
}

// NewLockRepository returns the repository.
func NewLockRepository(db *sql.DB) *LockRepository {
	return &LockRepository{db: db}
}

// InsertIfAbsent atomically inserts the lock row and reports whether the
// insert created it.
func (r *LockRepository) InsertIfAbsent(ctx context.Context, lock locking.Lock) (bool, error) {
	const query = `
		INSERT INTO locks (id, name, type, tenant_id, hostname, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		lock.ID, lock.Name, string(lock.Type), lock.TenantID, lock.Hostname, lock.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Delete removes the lock row by id and reports whether it existed.
func (r *LockRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM locks WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
