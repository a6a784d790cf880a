package tasks

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// Queued task names.
const (
	TaskDeleteStation  = "station.delete"
	TaskOCPITenantSync = "ocpi.tenant-sync"
)

// DeleteStationPayload identifies the station a queued delete targets. The
// tenant comes from the task itself.
type DeleteStationPayload struct {
	StationID string `json:"stationId"`
}

// StationDeleter removes a station, keeping it as a logically deleted
// document when charging history exists.
type StationDeleter interface {
	DeleteStation(ctx context.Context, station *models.ChargingStation) error
}

// NewDeleteStationHandler resolves a queued station delete.
func NewDeleteStationHandler(stations service.StationRepository, deleter StationDeleter, logger *zap.Logger) Handler {
	return func(ctx context.Context, task *models.AsyncTask) error {
		var payload DeleteStationPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return errs.Newf(errs.KindInvalidArgument, "delete station task %s: bad payload: %v", task.ID, err)
		}
		if payload.StationID == "" {
			return errs.Newf(errs.KindInvalidArgument, "delete station task %s: stationId is required", task.ID)
		}

		station, err := stations.Get(ctx, task.TenantID, payload.StationID)
		if err != nil {
			return err
		}
		if station == nil {
			// Already gone, nothing to resolve.
			logger.Debug("queued delete for a missing station",
				zap.String("tenant_id", task.TenantID),
				zap.String("station_id", payload.StationID))
			return nil
		}
		return deleter.DeleteStation(ctx, station)
	}
}

// NewOCPITenantSyncHandler pushes one tenant's roaming data on demand.
func NewOCPITenantSyncHandler(ocpi OCPISyncer) Handler {
	return func(ctx context.Context, task *models.AsyncTask) error {
		return ocpi.SyncTenant(ctx, task.TenantID)
	}
}
