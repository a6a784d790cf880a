package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// NewBootNotificationHandler registers or updates the station on boot. An
// unknown station is created; a known one re-registering with a different
// vendor or model is rejected.
func NewBootNotificationHandler(stations service.StationRepository, heartbeatInterval time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		reject := protocol.BootNotificationResponse{
			Status:      protocol.RegistrationRejected,
			CurrentTime: now,
			Interval:    int(heartbeatInterval.Seconds()),
		}

		station, err := stations.Get(ctx, id.TenantID, id.StationID)
		if err != nil {
			return nil, err
		}

		if station == nil {
			version := id.ProtocolVersion
			if version == "" {
				version = protocol.Version16
			}
			station = &models.ChargingStation{
				ID:          id.StationID,
				TenantID:    id.TenantID,
				OCPPVersion: version,
			}
			logger.Info("registering new charging station",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.String("vendor", req.ChargePointVendor))
		} else {
			if station.Deleted {
				logger.Warn("boot from deleted station",
					zap.String("tenant_id", id.TenantID),
					zap.String("station_id", id.StationID))
				return reject, nil
			}
			if station.Vendor != "" && (station.Vendor != req.ChargePointVendor || station.Model != req.ChargePointModel) {
				logger.Warn("boot vendor or model mismatch",
					zap.String("tenant_id", id.TenantID),
					zap.String("station_id", id.StationID),
					zap.String("known_vendor", station.Vendor),
					zap.String("reported_vendor", req.ChargePointVendor))
				return reject, nil
			}
			if id.ProtocolVersion != "" {
				station.OCPPVersion = id.ProtocolVersion
			}
		}

		station.Vendor = req.ChargePointVendor
		station.Model = req.ChargePointModel
		station.SerialNumber = req.ChargePointSerialNumber
		station.BoxSerialNumber = req.ChargeBoxSerialNumber
		station.FirmwareVersion = req.FirmwareVersion
		station.LastHeartbeat = now

		if err := stations.Save(ctx, station); err != nil {
			return nil, err
		}

		return protocol.BootNotificationResponse{
			Status:      protocol.RegistrationAccepted,
			CurrentTime: now,
			Interval:    int(heartbeatInterval.Seconds()),
		}, nil
	}
}
