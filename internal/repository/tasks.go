package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

const taskColumns = `id, tenant_id, name, payload, status, host, last_error, created_at, updated_at`

// TaskRepository persists async task rows.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository returns the repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Enqueue inserts a new Pending task.
func (r *TaskRepository) Enqueue(ctx context.Context, task *models.AsyncTask) error {
	const query = `
		INSERT INTO async_tasks (id, tenant_id, name, payload, status, host, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.TenantID, task.Name, []byte(task.Payload), task.Status,
		task.Host, task.LastError, task.CreatedAt, task.UpdatedAt)
	return err
}

// ListPending returns Pending tasks oldest first, capped at limit.
func (r *TaskRepository) ListPending(ctx context.Context, limit int) ([]*models.AsyncTask, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM async_tasks
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, models.TaskPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.AsyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ResetRunning flips every Running task back to Pending and returns how many
// rows changed. Called once at startup to recover tasks orphaned by a crash.
func (r *TaskRepository) ResetRunning(ctx context.Context) (int64, error) {
	const query = `
		UPDATE async_tasks
		SET status = $1, updated_at = $2
		WHERE status = $3
	`
	result, err := r.db.ExecContext(ctx, query, models.TaskPending, time.Now().UTC(), models.TaskRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetStatus records a task transition along with the executing host and the
// failure message when there is one.
func (r *TaskRepository) SetStatus(ctx context.Context, id, status, host, lastError string) error {
	const query = `
		UPDATE async_tasks
		SET status = $2, host = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, host, lastError, time.Now().UTC())
	return err
}

func scanTask(row rowScanner) (*models.AsyncTask, error) {
	var task models.AsyncTask
	var payload []byte
	err := row.Scan(
		&task.ID, &task.TenantID, &task.Name, &payload, &task.Status,
		&task.Host, &task.LastError, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Payload = payload
	return &task, nil
}
