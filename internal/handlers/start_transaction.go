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

// NewStartTransactionHandler opens a charging session.
func NewStartTransactionHandler(stations service.StationRepository, transactions *service.TransactionService, authorizer service.Authorizer, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
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

		user, err := authorizer.AuthorizeTag(ctx, station, req.IdTag, protocol.ActionStartTransaction)
		if err != nil {
			logger.Info("start rejected for tag",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.String("tag_id", req.IdTag),
				zap.Error(err))
			return protocol.StartTransactionResponse{
				IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationInvalid},
			}, nil
		}

		tx, err := transactions.Start(ctx, station, req.ConnectorID, req.IdTag, user, req.MeterStart, req.Timestamp)
		if err != nil {
			return nil, err
		}

		return protocol.StartTransactionResponse{
			TransactionID: tx.ID,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
