package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

// Vendors whose firmware broadcasts connector-0 status updates that must be
// ignored wholesale.
var broadcastIgnoredVendors = map[string]bool{
	"EV-BOX": true,
}

// ConnectorTracker owns per-connector status and its link to the active
// transaction, reconciling device status broadcasts against session state.
type ConnectorTracker struct {
	stations     StationRepository
	transactions TransactionRepository
	statusLogs   StatusLogRepository
	txService    *TransactionService
	notifier     Notifier
	gauges       GaugePublisher
	logger       *zap.Logger
}

// NewConnectorTracker wires the tracker. notifier and gauges may be nil.
func NewConnectorTracker(
	stations StationRepository,
	transactions TransactionRepository,
	statusLogs StatusLogRepository,
	txService *TransactionService,
	notifier Notifier,
	gauges GaugePublisher,
	logger *zap.Logger,
) *ConnectorTracker {
	return &ConnectorTracker{
		stations:     stations,
		transactions: transactions,
		statusLogs:   statusLogs,
		txService:    txService,
		notifier:     notifier,
		gauges:       gauges,
		logger:       logger,
	}
}

// UpdateStatus applies one status notification. Connector 0 fans out to
// every real connector, except for vendors whose broadcast is a known quirk
// to ignore.
func (t *ConnectorTracker) UpdateStatus(ctx context.Context, station *models.ChargingStation, connectorID int, status, errorCode, info string, ts time.Time) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if connectorID == 0 {
		if broadcastIgnoredVendors[station.Vendor] {
			t.logger.Debug("ignoring connector 0 broadcast",
				zap.String("station_id", station.ID),
				zap.String("vendor", station.Vendor))
			return nil
		}
		changed := false
		for i := range station.Connectors {
			didChange, err := t.applyStatus(ctx, station, &station.Connectors[i], status, errorCode, info, ts, true)
			if err != nil {
				return err
			}
			changed = changed || didChange
		}
		if !changed {
			return nil
		}
		return t.stations.Save(ctx, station)
	}

	connector := station.EnsureConnector(connectorID)
	if connector == nil {
		t.logger.Warn("status for invalid connector",
			zap.String("station_id", station.ID),
			zap.Int("connector_id", connectorID))
		return nil
	}
	changed, err := t.applyStatus(ctx, station, connector, status, errorCode, info, ts, false)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := t.stations.Save(ctx, station); err != nil {
		return err
	}
	t.publishConnector(ctx, station, *connector)
	return nil
}

func (t *ConnectorTracker) applyStatus(ctx context.Context, station *models.ChargingStation, connector *models.Connector, status, errorCode, info string, ts time.Time, isBroadcast bool) (bool, error) {
	if connector.Status == status && connector.ErrorCode == errorCode {
		// Devices re-send identical status; dropping them avoids a write
		// amplification storm.
		t.logger.Debug("connector status unchanged",
			zap.String("station_id", station.ID),
			zap.Int("connector_id", connector.ID),
			zap.String("status", status))
		return false, nil
	}

	previousStatus := connector.Status
	connector.Status = status
	connector.ErrorCode = errorCode
	connector.Info = info
	connector.StatusUpdatedAt = ts

	if err := t.statusLogs.Append(ctx, &models.StatusNotification{
		TenantID:    station.TenantID,
		StationID:   station.ID,
		ConnectorID: connector.ID,
		Status:      status,
		ErrorCode:   errorCode,
		Info:        info,
		Timestamp:   ts,
	}); err != nil {
		return false, err
	}

	if !isBroadcast && connector.ActiveTransactionID != 0 &&
		(status == protocol.StatusAvailable || status == protocol.StatusFinishing) {
		if err := t.reconcileGhostTransaction(ctx, station, connector); err != nil {
			return false, err
		}
	}

	if previousStatus == protocol.StatusFinishing && status == protocol.StatusAvailable {
		if err := t.applyExtraInactivity(ctx, station, connector, ts); err != nil {
			return false, err
		}
	}

	if errorCode != "" && errorCode != protocol.ErrorCodeNoError && t.notifier != nil {
		t.notifier.StationStatusError(ctx, station, connector.ID, errorCode)
	}

	return true, nil
}

// reconcileGhostTransaction handles firmware that reports the socket free
// without ever sending StopTransaction: the still-referenced transaction is
// forced to a terminal state.
func (t *ConnectorTracker) reconcileGhostTransaction(ctx context.Context, station *models.ChargingStation, connector *models.Connector) error {
	tx, err := t.transactions.Get(ctx, station.TenantID, connector.ActiveTransactionID)
	if err != nil {
		return err
	}
	if tx == nil || !tx.IsActive() {
		connector.ActiveTransactionID = 0
		return nil
	}
	t.logger.Warn("connector freed with active transaction",
		zap.String("station_id", station.ID),
		zap.Int("connector_id", connector.ID),
		zap.Int64("transaction_id", tx.ID))
	return t.txService.FinalizeGhost(ctx, station, tx)
}

// applyExtraInactivity records, once, the gap between a transaction's stop
// and the connector becoming available again: dead time the stop event
// itself could not know about.
func (t *ConnectorTracker) applyExtraInactivity(ctx context.Context, station *models.ChargingStation, connector *models.Connector, ts time.Time) error {
	tx, err := t.transactions.FindLastFinishedByConnector(ctx, station.TenantID, station.ID, connector.ID)
	if err != nil {
		return err
	}
	if tx == nil || tx.Stop == nil || tx.ExtraInactivityApplied {
		return nil
	}
	extra := ts.Sub(tx.Stop.StoppedAt).Seconds()
	if extra <= 0 {
		return nil
	}
	tx.ExtraInactivitySecs = extra
	tx.ExtraInactivityApplied = true
	if err := t.transactions.Update(ctx, tx); err != nil {
		return err
	}
	t.logger.Debug("recorded extra inactivity",
		zap.String("station_id", station.ID),
		zap.Int64("transaction_id", tx.ID),
		zap.Float64("extra_inactivity_secs", extra))
	return nil
}

func (t *ConnectorTracker) publishConnector(ctx context.Context, station *models.ChargingStation, connector models.Connector) {
	if t.gauges == nil {
		return
	}
	if err := t.gauges.PublishConnector(ctx, station.TenantID, station.ID, connector); err != nil {
		t.logger.Debug("gauge publish failed",
			zap.String("station_id", station.ID),
			zap.Int("connector_id", connector.ID),
			zap.Error(err))
	}
}
