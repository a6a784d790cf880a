package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

const transactionColumns = `
	id, tenant_id, station_id, connector_id, tag_id, user_id, meter_start, started_at,
	current_power_w, current_energy_wh, current_inactivity_secs, current_price, currency_code,
	current_soc, start_soc, end_soc, last_sample_at, last_sample_value,
	remote_stop_tag_id, remote_stop_at, extra_inactivity_secs, extra_inactivity_applied,
	stop_tag_id, stop_user_id, stop_meter, stopped_at,
	stop_total_energy_wh, stop_total_inactivity_secs, stop_total_duration_secs,
	stop_price, stop_currency_code, stop_pricing_source`

// TransactionRepository manages charging sessions. A NULL stopped_at column
// marks an active transaction.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns the repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction and assigns its id.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO transactions (tenant_id, station_id, connector_id, tag_id, user_id,
			meter_start, started_at, last_sample_at, last_sample_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		tx.TenantID, tx.StationID, tx.ConnectorID, tx.TagID, tx.UserID,
		tx.MeterStart, tx.StartedAt, nullTime(tx.LastSampleAt), tx.LastSampleValue,
	).Scan(&tx.ID)
}

// Update writes the whole transaction back.
func (r *TransactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	const query = `
		UPDATE transactions SET
			tag_id = $3, user_id = $4, meter_start = $5, started_at = $6,
			current_power_w = $7, current_energy_wh = $8, current_inactivity_secs = $9,
			current_price = $10, currency_code = $11,
			current_soc = $12, start_soc = $13, end_soc = $14,
			last_sample_at = $15, last_sample_value = $16,
			remote_stop_tag_id = $17, remote_stop_at = $18,
			extra_inactivity_secs = $19, extra_inactivity_applied = $20,
			stop_tag_id = $21, stop_user_id = $22, stop_meter = $23, stopped_at = $24,
			stop_total_energy_wh = $25, stop_total_inactivity_secs = $26,
			stop_total_duration_secs = $27, stop_price = $28,
			stop_currency_code = $29, stop_pricing_source = $30,
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	var stopTag, stopUser, stopCurrency, stopSource sql.NullString
	var stopMeter sql.NullInt64
	var stoppedAt sql.NullTime
	var stopEnergy, stopInactivity, stopDuration, stopPrice sql.NullFloat64
	if tx.Stop != nil {
		stopTag = sql.NullString{String: tx.Stop.TagID, Valid: true}
		stopUser = sql.NullString{String: tx.Stop.UserID, Valid: true}
		stopMeter = sql.NullInt64{Int64: tx.Stop.MeterStop, Valid: true}
		stoppedAt = sql.NullTime{Time: tx.Stop.StoppedAt, Valid: true}
		stopEnergy = sql.NullFloat64{Float64: tx.Stop.TotalEnergyWh, Valid: true}
		stopInactivity = sql.NullFloat64{Float64: tx.Stop.TotalInactivitySecs, Valid: true}
		stopDuration = sql.NullFloat64{Float64: tx.Stop.TotalDurationSecs, Valid: true}
		stopPrice = sql.NullFloat64{Float64: tx.Stop.Price, Valid: true}
		stopCurrency = sql.NullString{String: tx.Stop.CurrencyCode, Valid: true}
		stopSource = sql.NullString{String: tx.Stop.PricingSource, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		tx.TenantID, tx.ID,
		tx.TagID, tx.UserID, tx.MeterStart, tx.StartedAt,
		tx.CurrentPowerW, tx.CurrentEnergyWh, tx.CurrentInactivitySecs,
		tx.CurrentPrice, tx.CurrencyCode,
		tx.CurrentStateOfCharge, tx.StartStateOfCharge, tx.EndStateOfCharge,
		nullTime(tx.LastSampleAt), tx.LastSampleValue,
		tx.RemoteStopTagID, nullTime(tx.RemoteStopAt),
		tx.ExtraInactivitySecs, tx.ExtraInactivityApplied,
		stopTag, stopUser, stopMeter, stoppedAt,
		stopEnergy, stopInactivity, stopDuration, stopPrice,
		stopCurrency, stopSource)
	return err
}

// Delete removes a transaction.
func (r *TransactionRepository) Delete(ctx context.Context, tenantID string, id int64) error {
	const query = `DELETE FROM transactions WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, query, tenantID, id)
	return err
}

// Get returns one transaction, or (nil, nil) when it does not exist.
func (r *TransactionRepository) Get(ctx context.Context, tenantID string, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = $1 AND id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, tenantID, id))
}

// FindActiveByConnector returns the active transaction on a connector, if any.
func (r *TransactionRepository) FindActiveByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = $1 AND station_id = $2 AND connector_id = $3 AND stopped_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, tenantID, stationID, connectorID))
}

// FindLastFinishedByConnector returns the most recently stopped transaction
// on a connector, if any.
func (r *TransactionRepository) FindLastFinishedByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = $1 AND station_id = $2 AND connector_id = $3 AND stopped_at IS NOT NULL
		ORDER BY stopped_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, tenantID, stationID, connectorID))
}

// FindStaleActive lists active transactions whose last sample is older than
// the given cutoff.
func (r *TransactionRepository) FindStaleActive(ctx context.Context, tenantID string, lastSeenBefore time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = $1 AND stopped_at IS NULL AND COALESCE(last_sample_at, started_at) < $2
		ORDER BY started_at
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, lastSeenBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		tx, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// CountByStation counts all transactions ever recorded on a station.
func (r *TransactionRepository) CountByStation(ctx context.Context, tenantID, stationID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE tenant_id = $1 AND station_id = $2`
	var count int64
	err := r.db.QueryRowContext(ctx, query, tenantID, stationID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TransactionRepository) scanOne(row *sql.Row) (*models.Transaction, error) {
	tx, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (r *TransactionRepository) scan(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var lastSampleAt, remoteStopAt, stoppedAt sql.NullTime
	var stopTag, stopUser, stopCurrency, stopSource sql.NullString
	var stopMeter sql.NullInt64
	var stopEnergy, stopInactivity, stopDuration, stopPrice sql.NullFloat64

	err := row.Scan(&tx.ID, &tx.TenantID, &tx.StationID, &tx.ConnectorID, &tx.TagID, &tx.UserID,
		&tx.MeterStart, &tx.StartedAt,
		&tx.CurrentPowerW, &tx.CurrentEnergyWh, &tx.CurrentInactivitySecs, &tx.CurrentPrice, &tx.CurrencyCode,
		&tx.CurrentStateOfCharge, &tx.StartStateOfCharge, &tx.EndStateOfCharge,
		&lastSampleAt, &tx.LastSampleValue,
		&tx.RemoteStopTagID, &remoteStopAt, &tx.ExtraInactivitySecs, &tx.ExtraInactivityApplied,
		&stopTag, &stopUser, &stopMeter, &stoppedAt,
		&stopEnergy, &stopInactivity, &stopDuration,
		&stopPrice, &stopCurrency, &stopSource)
	if err != nil {
		return nil, err
	}

	if lastSampleAt.Valid {
		tx.LastSampleAt = lastSampleAt.Time
	}
	if remoteStopAt.Valid {
		tx.RemoteStopAt = remoteStopAt.Time
	}
	if stoppedAt.Valid {
		tx.Stop = &models.TransactionStop{
			TagID:               stopTag.String,
			UserID:              stopUser.String,
			MeterStop:           stopMeter.Int64,
			StoppedAt:           stoppedAt.Time,
			TotalEnergyWh:       stopEnergy.Float64,
			TotalInactivitySecs: stopInactivity.Float64,
			TotalDurationSecs:   stopDuration.Float64,
			Price:               stopPrice.Float64,
			CurrencyCode:        stopCurrency.String,
			PricingSource:       stopSource.String,
		}
	}
	return &tx, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
