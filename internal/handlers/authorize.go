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

// NewAuthorizeHandler answers badge authorization requests. A rejected tag
// is a normal Invalid response, not a transport error.
func NewAuthorizeHandler(stations service.StationRepository, authorizer service.Authorizer, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}
		if req.IdTag == "" {
			return nil, errs.New(errs.KindInvalidArgument, "authorize: idTag is required")
		}

		station, err := stations.Get(ctx, id.TenantID, id.StationID)
		if err != nil {
			return nil, err
		}
		if station == nil {
			return nil, errs.Newf(errs.KindNotFound, "unknown charging station %s", id.StationID)
		}

		if _, err := authorizer.AuthorizeTag(ctx, station, req.IdTag, protocol.ActionAuthorize); err != nil {
			logger.Info("tag rejected",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.String("tag_id", req.IdTag),
				zap.Error(err))
			return protocol.AuthorizeResponse{
				IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationInvalid},
			}, nil
		}

		return protocol.AuthorizeResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
