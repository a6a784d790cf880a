package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// NewStatusNotificationHandler routes connector status changes to the
// tracker.
func NewStatusNotificationHandler(stations service.StationRepository, tracker *service.ConnectorTracker, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		station, err := stations.Get(ctx, id.TenantID, id.StationID)
		if err != nil {
			return nil, err
		}
		if station == nil {
			return nil, errs.Newf(errs.KindNotFound, "unknown charging station %s", id.StationID)
		}

		if req.Status == "" {
			req.Status = protocol.StatusAvailable
		}
		if req.ErrorCode == "" {
			req.ErrorCode = protocol.ErrorCodeNoError
		}

		if err := tracker.UpdateStatus(ctx, station, req.ConnectorID, req.Status, req.ErrorCode, req.Info, req.Timestamp); err != nil {
			logger.Error("connector status update failed",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.Int("connector_id", req.ConnectorID),
				zap.Error(err))
			return nil, err
		}

		return protocol.StatusNotificationResponse{}, nil
	}
}
