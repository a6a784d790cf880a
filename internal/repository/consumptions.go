package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

const consumptionColumns = `
	id, tenant_id, transaction_id, station_id, connector_id, started_at, ended_at,
	energy_delta_wh, instant_power_w, cumulated_energy_wh, cumulated_inactivity_secs,
	cumulated_duration_secs, state_of_charge, amount, rounded_amount, cumulated_amount,
	currency_code, pricing_source`

// ConsumptionRepository manages derived consumption records. The unique key
// on (transaction_id, ended_at) makes Save merge a same-instant
// state-of-charge record into the consumption-carrying one instead of
// duplicating it.
type ConsumptionRepository struct {
	db *sql.DB
}

// NewConsumptionRepository returns the repository.
func NewConsumptionRepository(db *sql.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// Save inserts the record, merging on a same-instant conflict.
func (r *ConsumptionRepository) Save(ctx context.Context, c *models.Consumption) error {
	const query = `
		INSERT INTO consumptions (tenant_id, transaction_id, station_id, connector_id,
			started_at, ended_at, energy_delta_wh, instant_power_w,
			cumulated_energy_wh, cumulated_inactivity_secs, cumulated_duration_secs,
			state_of_charge, amount, rounded_amount, cumulated_amount,
			currency_code, pricing_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (transaction_id, ended_at) DO UPDATE SET
			started_at = LEAST(consumptions.started_at, EXCLUDED.started_at),
			energy_delta_wh = GREATEST(consumptions.energy_delta_wh, EXCLUDED.energy_delta_wh),
			instant_power_w = GREATEST(consumptions.instant_power_w, EXCLUDED.instant_power_w),
			cumulated_energy_wh = GREATEST(consumptions.cumulated_energy_wh, EXCLUDED.cumulated_energy_wh),
			cumulated_inactivity_secs = GREATEST(consumptions.cumulated_inactivity_secs, EXCLUDED.cumulated_inactivity_secs),
			cumulated_duration_secs = GREATEST(consumptions.cumulated_duration_secs, EXCLUDED.cumulated_duration_secs),
			state_of_charge = COALESCE(EXCLUDED.state_of_charge, consumptions.state_of_charge),
			amount = GREATEST(consumptions.amount, EXCLUDED.amount),
			rounded_amount = GREATEST(consumptions.rounded_amount, EXCLUDED.rounded_amount),
			cumulated_amount = GREATEST(consumptions.cumulated_amount, EXCLUDED.cumulated_amount),
			currency_code = CASE WHEN EXCLUDED.currency_code <> '' THEN EXCLUDED.currency_code ELSE consumptions.currency_code END,
			pricing_source = CASE WHEN EXCLUDED.pricing_source <> '' THEN EXCLUDED.pricing_source ELSE consumptions.pricing_source END
		RETURNING id
	`
	var soc sql.NullInt64
	if c.StateOfCharge != nil {
		soc = sql.NullInt64{Int64: int64(*c.StateOfCharge), Valid: true}
	}
	return r.db.QueryRowContext(ctx, query,
		c.TenantID, c.TransactionID, c.StationID, c.ConnectorID,
		c.StartedAt, c.EndedAt, c.EnergyDeltaWh, c.InstantPowerW,
		c.CumulatedEnergyWh, c.CumulatedInactivitySecs, c.CumulatedDurationSecs,
		soc, c.Amount, c.RoundedAmount, c.CumulatedAmount,
		c.CurrencyCode, c.PricingSource,
	).Scan(&c.ID)
}

// Delete removes one record by id.
func (r *ConsumptionRepository) Delete(ctx context.Context, tenantID string, id int64) error {
	const query = `DELETE FROM consumptions WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, query, tenantID, id)
	return err
}

// DeleteByTransaction removes every record of one transaction.
func (r *ConsumptionRepository) DeleteByTransaction(ctx context.Context, tenantID string, transactionID int64) error {
	const query = `DELETE FROM consumptions WHERE tenant_id = $1 AND transaction_id = $2`
	_, err := r.db.ExecContext(ctx, query, tenantID, transactionID)
	return err
}

// GetLastByTransaction returns the most recent record of a transaction, or
// (nil, nil) when none exists.
func (r *ConsumptionRepository) GetLastByTransaction(ctx context.Context, tenantID string, transactionID int64) (*models.Consumption, error) {
	query := `
		SELECT ` + consumptionColumns + `
		FROM consumptions
		WHERE tenant_id = $1 AND transaction_id = $2
		ORDER BY ended_at DESC
		LIMIT 1
	`
	c, err := scanConsumption(r.db.QueryRowContext(ctx, query, tenantID, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByTransaction returns every record of a transaction in time order.
func (r *ConsumptionRepository) ListByTransaction(ctx context.Context, tenantID string, transactionID int64) ([]models.Consumption, error) {
	query := `
		SELECT ` + consumptionColumns + `
		FROM consumptions
		WHERE tenant_id = $1 AND transaction_id = $2
		ORDER BY ended_at
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Consumption
	for rows.Next() {
		c, err := scanConsumption(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanConsumption(row rowScanner) (*models.Consumption, error) {
	var c models.Consumption
	var soc sql.NullInt64
	err := row.Scan(&c.ID, &c.TenantID, &c.TransactionID, &c.StationID, &c.ConnectorID,
		&c.StartedAt, &c.EndedAt, &c.EnergyDeltaWh, &c.InstantPowerW,
		&c.CumulatedEnergyWh, &c.CumulatedInactivitySecs, &c.CumulatedDurationSecs,
		&soc, &c.Amount, &c.RoundedAmount, &c.CumulatedAmount,
		&c.CurrencyCode, &c.PricingSource)
	if err != nil {
		return nil, err
	}
	if soc.Valid {
		v := int(soc.Int64)
		c.StateOfCharge = &v
	}
	return &c, nil
}
