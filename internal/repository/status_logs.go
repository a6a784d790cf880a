package repository

import (
	"context"
	"database/sql"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// StatusLogRepository appends connector status history.
type StatusLogRepository struct {
	db *sql.DB
}

// NewStatusLogRepository returns the repository.
func NewStatusLogRepository(db *sql.DB) *StatusLogRepository {
	return &StatusLogRepository{db: db}
}

// Append stores one status notification record.
func (r *StatusLogRepository) Append(ctx context.Context, record *models.StatusNotification) error {
	const query = `
		INSERT INTO status_notifications (tenant_id, station_id, connector_id, status, error_code, info, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		record.TenantID, record.StationID, record.ConnectorID,
		record.Status, record.ErrorCode, record.Info, record.Timestamp,
	).Scan(&record.ID)
}
