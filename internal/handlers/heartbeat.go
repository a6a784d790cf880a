package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// NewHeartbeatHandler refreshes the station's last-seen timestamp and
// answers with server time.
func NewHeartbeatHandler(stations service.StationRepository, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		now := time.Now().UTC()

		station, err := stations.Get(ctx, id.TenantID, id.StationID)
		if err != nil {
			return nil, err
		}
		if station != nil {
			station.LastHeartbeat = now
			if err := stations.Save(ctx, station); err != nil {
				return nil, err
			}
		} else {
			logger.Debug("heartbeat from unregistered station",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID))
		}

		return protocol.HeartbeatResponse{CurrentTime: now}, nil
	}
}
