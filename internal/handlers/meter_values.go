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

// NewMeterValuesHandler normalizes raw readings and folds them into the
// owning transaction. Readings that cannot be attributed to an active
// transaction are acknowledged and dropped.
func NewMeterValuesHandler(stations service.StationRepository, transactionRepo service.TransactionRepository, transactions *service.TransactionService, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, id ocpp.Identity, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
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

		if req.ConnectorID == 0 {
			// Phantom connector-0 readings carry no usable transaction link.
			logger.Debug("dropping connector 0 meter values",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID))
			return protocol.MeterValuesResponse{}, nil
		}

		transactionID := req.TransactionID
		if transactionID == 0 {
			if connector := station.ConnectorByID(req.ConnectorID); connector != nil {
				transactionID = connector.ActiveTransactionID
			}
		}
		if transactionID == 0 {
			logger.Warn("meter values without transaction context",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.Int("connector_id", req.ConnectorID))
			return protocol.MeterValuesResponse{}, nil
		}

		tx, err := transactionRepo.Get(ctx, id.TenantID, transactionID)
		if err != nil {
			return nil, err
		}
		if tx == nil || !tx.IsActive() {
			logger.Warn("meter values for missing or finished transaction",
				zap.String("tenant_id", id.TenantID),
				zap.String("station_id", id.StationID),
				zap.Int64("transaction_id", transactionID))
			return protocol.MeterValuesResponse{}, nil
		}

		samples := meter.Normalize(req, station.OCPPVersion)
		samples = meter.FilterClockSamples(samples, station.Vendor)
		if len(samples) == 0 {
			return protocol.MeterValuesResponse{}, nil
		}

		if err := transactions.ApplyMeterValues(ctx, station, tx, samples); err != nil {
			return nil, err
		}

		return protocol.MeterValuesResponse{}, nil
	}
}
