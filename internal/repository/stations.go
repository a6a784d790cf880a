// Package repository holds the Postgres persistence for every entity type.
// Each repository owns its SQL; no query strings leak out of this package.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// StationRepository manages charging station documents. The connector list
// is stored as one JSON document so the station is always read-modify-written
// as a whole.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns the repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// Get loads one station, or (nil, nil) when it does not exist.
func (r *StationRepository) Get(ctx context.Context, tenantID, stationID string) (*models.ChargingStation, error) {
	const query = `
		SELECT id, tenant_id, vendor, model, serial_number, box_serial_number,
		       firmware_version, ocpp_version, last_heartbeat, latitude, longitude,
		       can_charge_in_parallel, deleted, connectors
		FROM charging_stations
		WHERE tenant_id = $1 AND id = $2
	`
	row := r.db.QueryRowContext(ctx, query, tenantID, stationID)

	var s models.ChargingStation
	var lat, lon sql.NullFloat64
	var connectors []byte
	err := row.Scan(&s.ID, &s.TenantID, &s.Vendor, &s.Model, &s.SerialNumber, &s.BoxSerialNumber,
		&s.FirmwareVersion, &s.OCPPVersion, &s.LastHeartbeat, &lat, &lon,
		&s.CanChargeInParallel, &s.Deleted, &connectors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		s.Latitude = &lat.Float64
	}
	if lon.Valid {
		s.Longitude = &lon.Float64
	}
	if len(connectors) > 0 {
		if err := json.Unmarshal(connectors, &s.Connectors); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Save stores or updates the whole station document.
func (r *StationRepository) Save(ctx context.Context, station *models.ChargingStation) error {
	const query = `
		INSERT INTO charging_stations (id, tenant_id, vendor, model, serial_number, box_serial_number,
			firmware_version, ocpp_version, last_heartbeat, latitude, longitude,
			can_charge_in_parallel, deleted, connectors, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			box_serial_number = EXCLUDED.box_serial_number,
			firmware_version = EXCLUDED.firmware_version,
			ocpp_version = EXCLUDED.ocpp_version,
			last_heartbeat = EXCLUDED.last_heartbeat,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			can_charge_in_parallel = EXCLUDED.can_charge_in_parallel,
			deleted = EXCLUDED.deleted,
			connectors = EXCLUDED.connectors,
			updated_at = NOW()
	`
	if station.LastHeartbeat.IsZero() {
		station.LastHeartbeat = time.Now().UTC()
	}
	connectors, err := json.Marshal(station.Connectors)
	if err != nil {
		return err
	}

	var lat, lon sql.NullFloat64
	if station.Latitude != nil {
		lat = sql.NullFloat64{Float64: *station.Latitude, Valid: true}
	}
	if station.Longitude != nil {
		lon = sql.NullFloat64{Float64: *station.Longitude, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		station.ID, station.TenantID, station.Vendor, station.Model, station.SerialNumber, station.BoxSerialNumber,
		station.FirmwareVersion, station.OCPPVersion, station.LastHeartbeat, lat, lon,
		station.CanChargeInParallel, station.Deleted, connectors)
	return err
}

// Delete physically removes a station document.
func (r *StationRepository) Delete(ctx context.Context, tenantID, stationID string) error {
	const query = `DELETE FROM charging_stations WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, query, tenantID, stationID)
	return err
}

// ListTenants returns the distinct tenants with registered stations.
func (r *StationRepository) ListTenants(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT tenant_id FROM charging_stations WHERE NOT deleted ORDER BY tenant_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}
