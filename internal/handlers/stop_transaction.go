package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/meter"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// NewStopTransactionHandler closes a charging session. Any transactionData
// readings attached to the stop are folded in before the stop itself.
func NewStopTransactionHandler(stations service.StationRepository, transactionRepo service.TransactionRepository, transactions *service.TransactionService, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
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

		tx, err := transactionRepo.Get(ctx, id.TenantID, req.TransactionID)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			logger.Warn("stop for unknown transaction",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.Int64("transaction_id", req.TransactionID))
			return protocol.StopTransactionResponse{
				IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationInvalid},
			}, nil
		}

		if len(req.TransactionData) > 0 && tx.IsActive() {
			samples := meter.Normalize(protocol.MeterValuesRequest{
				ConnectorID:   tx.ConnectorID,
				TransactionID: tx.ID,
				MeterValue:    req.TransactionData,
			}, station.OCPPVersion)
			samples = meter.FilterClockSamples(samples, station.Vendor)
			if err := transactions.ApplyMeterValues(ctx, station, tx, samples); err != nil {
				return nil, err
			}
		}

		if err := transactions.Stop(ctx, station, tx, req.IdTag, req.MeterStop, req.Timestamp); err != nil {
			if errs.IsUnauthorized(err) {
				logger.Info("alternate user stop rejected",
					zap.String("tenant_id", id.TenantID),
					zap.String("station_id", id.StationID),
					zap.Int64("transaction_id", tx.ID),
					zap.Error(err))
				return protocol.StopTransactionResponse{
					IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationInvalid},
				}, nil
			}
			return nil, err
		}

		return protocol.StopTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.AuthorizationAccepted},
		}, nil
	}
}
