package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/meter"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

// remoteStopTagWindow is how long a remote-stop marker stays authoritative
// for stop tag attribution.
const remoteStopTagWindow = 60 * time.Second

// TransactionService owns the charging session lifecycle: active until the
// stop fields are committed, immutable afterwards.
type TransactionService struct {
	stations     StationRepository
	transactions TransactionRepository
	consumptions ConsumptionRepository
	engine       *ConsumptionEngine
	authorizer   Authorizer
	notifier     Notifier
	gauges       GaugePublisher
	logger       *zap.Logger

	now func() time.Time
}

// NewTransactionService wires the state machine. notifier and gauges may be
// nil.
func NewTransactionService(
	stations StationRepository,
	transactions TransactionRepository,
	consumptions ConsumptionRepository,
	engine *ConsumptionEngine,
	authorizer Authorizer,
	notifier Notifier,
	gauges GaugePublisher,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		stations:     stations,
		transactions: transactions,
		consumptions: consumptions,
		engine:       engine,
		authorizer:   authorizer,
		notifier:     notifier,
		gauges:       gauges,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a new transaction on the given connector. Any still-active
// transaction on that connector is resolved first.
func (s *TransactionService) Start(ctx context.Context, station *models.ChargingStation, connectorID int, tagID string, user *models.User, meterStart int64, ts time.Time) (*models.Transaction, error) {
	connector := station.ConnectorByID(connectorID)
	if connector == nil {
		return nil, errs.Newf(errs.KindInvalidArgument, "station %s has no connector %d", station.ID, connectorID)
	}

	if err := s.ResolveDanglingActiveTransaction(ctx, station, connectorID); err != nil {
		return nil, err
	}

	if ts.IsZero() {
		ts = s.now()
	}
	tx := &models.Transaction{
		TenantID:        station.TenantID,
		StationID:       station.ID,
		ConnectorID:     connectorID,
		TagID:           tagID,
		MeterStart:      meterStart,
		StartedAt:       ts,
		LastSampleAt:    ts,
		LastSampleValue: float64(meterStart),
	}
	if user != nil {
		tx.UserID = user.ID
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	start := s.engine.BuildStartConsumption(ctx, tx)
	if err := s.consumptions.Save(ctx, start); err != nil {
		return nil, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, err
	}

	connector = station.ConnectorByID(connectorID)
	connector.ActiveTransactionID = tx.ID
	connector.CurrentPowerW = 0
	connector.TotalEnergyWh = 0
	connector.CurrentStateOfCharge = 0
	if err := s.stations.Save(ctx, station); err != nil {
		return nil, err
	}
	s.publishConnector(ctx, station, *connector)

	if s.notifier != nil {
		s.notifier.TransactionStarted(ctx, tx)
	}

	s.logger.Info("transaction started",
		zap.String("tenant_id", tx.TenantID),
		zap.String("station_id", tx.StationID),
		zap.Int("connector_id", tx.ConnectorID),
		zap.Int64("transaction_id", tx.ID))
	return tx, nil
}

// ApplyMeterValues folds normalized samples into the transaction, in arrival
// order. Transaction.Begin/End state-of-charge readings set the session
// boundaries directly; everything else goes through the derivation engine.
func (s *TransactionService) ApplyMeterValues(ctx context.Context, station *models.ChargingStation, tx *models.Transaction, samples []meter.Sample) error {
	var drafts []*models.Consumption
	for _, sample := range samples {
		if meter.IsStateOfChargeSample(sample) {
			switch sample.Attribute.Context {
			case protocol.ContextTransactionBegin:
				tx.StartStateOfCharge = int(sample.Value)
				tx.CurrentStateOfCharge = int(sample.Value)
				continue
			case protocol.ContextTransactionEnd:
				tx.EndStateOfCharge = int(sample.Value)
				continue
			}
		} else if !meter.IsConsumptionSample(sample) {
			continue
		}

		draft := s.engine.Advance(ctx, tx, sample)
		if draft == nil {
			continue
		}
		if n := len(drafts); n > 0 && drafts[n-1].EndedAt.Equal(draft.EndedAt) {
			mergeSameInstant(drafts[n-1], draft)
			continue
		}
		drafts = append(drafts, draft)
	}

	for _, draft := range drafts {
		if err := s.consumptions.Save(ctx, draft); err != nil {
			return err
		}
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return err
	}

	if tx.IsActive() {
		if connector := station.ConnectorByID(tx.ConnectorID); connector != nil {
			connector.CurrentPowerW = tx.CurrentPowerW
			connector.TotalEnergyWh = tx.CurrentEnergyWh
			connector.CurrentStateOfCharge = tx.CurrentStateOfCharge
			if err := s.stations.Save(ctx, station); err != nil {
				return err
			}
			s.publishConnector(ctx, station, *connector)
		}
	}
	return nil
}

// Stop commits the stop fields. Fails with a conflict when the transaction
// is already finished.
func (s *TransactionService) Stop(ctx context.Context, station *models.ChargingStation, tx *models.Transaction, tagID string, meterStop int64, ts time.Time) error {
	if !tx.IsActive() {
		return errs.Newf(errs.KindConflict, "transaction %d is already stopped", tx.ID)
	}
	if ts.IsZero() {
		ts = s.now()
	}

	stopTag := resolveStopTag(tx, tagID, ts)
	stopUserID := tx.UserID
	if stopTag != tx.TagID {
		user, err := s.authorizer.AuthorizeTag(ctx, station, stopTag, protocol.ActionStopTransaction)
		if err != nil {
			return errs.Wrap(errs.KindUnauthorized, err)
		}
		if !s.authorizer.CanStopOthersSession(ctx, station, user) {
			return errs.Newf(errs.KindUnauthorized, "tag %s may not stop transaction %d", stopTag, tx.ID)
		}
		stopUserID = user.ID
	}

	return s.finalize(ctx, station, tx, stopTag, stopUserID, meterStop, ts)
}

// SoftStop forces an active transaction to finished from server-side logic,
// using the last known meter sample as the stop meter. Authorization is
// bypassed: nobody is at the device.
func (s *TransactionService) SoftStop(ctx context.Context, station *models.ChargingStation, tx *models.Transaction) error {
	if !tx.IsActive() {
		return nil
	}
	ts := tx.LastSampleAt
	if ts.IsZero() {
		ts = s.now()
	}
	s.logger.Info("soft stopping transaction",
		zap.String("tenant_id", tx.TenantID),
		zap.String("station_id", tx.StationID),
		zap.Int64("transaction_id", tx.ID))
	return s.finalize(ctx, station, tx, tx.TagID, tx.UserID, int64(tx.LastSampleValue), ts)
}

func (s *TransactionService) finalize(ctx context.Context, station *models.ChargingStation, tx *models.Transaction, stopTag, stopUserID string, meterStop int64, ts time.Time) error {
	final := s.engine.BuildStopConsumption(ctx, tx, meterStop, ts)

	// When the last recorded interval delivered no energy, the stop boundary
	// extends it instead of appending a second idle record.
	last, err := s.consumptions.GetLastByTransaction(ctx, tx.TenantID, tx.ID)
	if err == nil && last != nil &&
		last.EnergyDeltaWh == 0 && last.InstantPowerW == 0 &&
		last.EndedAt.After(tx.StartedAt) && last.EndedAt.Before(final.EndedAt) {
		final.StartedAt = last.StartedAt
		if final.StateOfCharge == nil {
			final.StateOfCharge = last.StateOfCharge
		}
		if err := s.consumptions.Delete(ctx, tx.TenantID, last.ID); err != nil {
			return err
		}
	}
	if err := s.consumptions.Save(ctx, final); err != nil {
		return err
	}

	durationSecs := ts.Sub(tx.StartedAt).Seconds()
	inactivitySecs := tx.CurrentInactivitySecs
	if durationSecs <= 0 {
		// No usable timestamps were ever recorded. Fall back to wall clock.
		durationSecs = s.now().Sub(tx.StartedAt).Seconds()
		if tx.CurrentEnergyWh == 0 {
			inactivitySecs = durationSecs
		}
	}

	tx.Stop = &models.TransactionStop{
		TagID:               stopTag,
		UserID:              stopUserID,
		MeterStop:           meterStop,
		StoppedAt:           ts,
		TotalEnergyWh:       tx.CurrentEnergyWh,
		TotalInactivitySecs: inactivitySecs,
		TotalDurationSecs:   durationSecs,
		Price:               tx.CurrentPrice,
		CurrencyCode:        tx.CurrencyCode,
		PricingSource:       final.PricingSource,
	}
	tx.ClearRunningFields()

	if err := s.transactions.Update(ctx, tx); err != nil {
		return err
	}

	if connector := station.ConnectorByID(tx.ConnectorID); connector != nil && connector.ActiveTransactionID == tx.ID {
		connector.ActiveTransactionID = 0
		connector.CurrentPowerW = 0
		if err := s.stations.Save(ctx, station); err != nil {
			return err
		}
		s.publishConnector(ctx, station, *connector)
	}

	if s.notifier != nil {
		s.notifier.EndOfSession(ctx, tx)
	}

	s.logger.Info("transaction stopped",
		zap.String("tenant_id", tx.TenantID),
		zap.String("station_id", tx.StationID),
		zap.Int64("transaction_id", tx.ID),
		zap.Float64("total_energy_wh", tx.Stop.TotalEnergyWh),
		zap.Float64("total_inactivity_secs", tx.Stop.TotalInactivitySecs))
	return nil
}

// resolveStopTag picks the tag a stop is attributed to: the remote-stop
// marker when the stop arrives shortly after it, otherwise the request's own
// tag, otherwise the session's start tag.
func resolveStopTag(tx *models.Transaction, requestTag string, ts time.Time) string {
	if tx.RemoteStopTagID != "" {
		since := ts.Sub(tx.RemoteStopAt)
		if since >= 0 && since <= remoteStopTagWindow {
			return tx.RemoteStopTagID
		}
	}
	if requestTag != "" {
		return requestTag
	}
	return tx.TagID
}

// MarkRemoteStop records a remote-stop marker used for stop attribution.
func (s *TransactionService) MarkRemoteStop(ctx context.Context, tx *models.Transaction, tagID string) error {
	tx.RemoteStopTagID = tagID
	tx.RemoteStopAt = s.now()
	return s.transactions.Update(ctx, tx)
}

// FinalizeGhost resolves a transaction the device abandoned: deleted outright
// when it accrued no consumption, soft-stopped otherwise.
func (s *TransactionService) FinalizeGhost(ctx context.Context, station *models.ChargingStation, tx *models.Transaction) error {
	if tx.CurrentEnergyWh == 0 {
		if err := s.consumptions.DeleteByTransaction(ctx, tx.TenantID, tx.ID); err != nil {
			return err
		}
		if err := s.transactions.Delete(ctx, tx.TenantID, tx.ID); err != nil {
			return err
		}
		if connector := station.ConnectorByID(tx.ConnectorID); connector != nil && connector.ActiveTransactionID == tx.ID {
			connector.ActiveTransactionID = 0
			connector.CurrentPowerW = 0
			if err := s.stations.Save(ctx, station); err != nil {
				return err
			}
		}
		s.logger.Info("deleted empty abandoned transaction",
			zap.String("tenant_id", tx.TenantID),
			zap.String("station_id", tx.StationID),
			zap.Int64("transaction_id", tx.ID))
		return nil
	}
	return s.SoftStop(ctx, station, tx)
}

// ResolveDanglingActiveTransaction clears any still-active transaction on a
// connector before a new session may start there. The last-seen guard stops
// the loop if resolution fails to clear the active reference.
func (s *TransactionService) ResolveDanglingActiveTransaction(ctx context.Context, station *models.ChargingStation, connectorID int) error {
	var lastSeen int64
	for {
		active, err := s.transactions.FindActiveByConnector(ctx, station.TenantID, station.ID, connectorID)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}
		if active.ID == lastSeen {
			s.logger.Warn("dangling transaction did not resolve",
				zap.String("station_id", station.ID),
				zap.Int64("transaction_id", active.ID))
			return nil
		}
		lastSeen = active.ID
		if err := s.FinalizeGhost(ctx, station, active); err != nil {
			return err
		}
	}
}

// DeleteStation removes a station: logically when it has transaction
// history, physically otherwise.
func (s *TransactionService) DeleteStation(ctx context.Context, station *models.ChargingStation) error {
	count, err := s.transactions.CountByStation(ctx, station.TenantID, station.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		station.Deleted = true
		return s.stations.Save(ctx, station)
	}
	return s.stations.Delete(ctx, station.TenantID, station.ID)
}

func (s *TransactionService) publishConnector(ctx context.Context, station *models.ChargingStation, connector models.Connector) {
	if s.gauges == nil {
		return
	}
	if err := s.gauges.PublishConnector(ctx, station.TenantID, station.ID, connector); err != nil {
		s.logger.Debug("gauge publish failed",
			zap.String("station_id", station.ID),
			zap.Int("connector_id", connector.ID),
			zap.Error(err))
	}
}

func mergeSameInstant(dst, src *models.Consumption) {
	if src.StateOfCharge != nil {
		dst.StateOfCharge = src.StateOfCharge
	}
	// Only a consumption-bearing draft overwrites the accounting fields; a
	// state-of-charge-only draft carries none.
	if src.EnergyDeltaWh > 0 || src.InstantPowerW > 0 || src.PricingSource != "" {
		dst.StartedAt = src.StartedAt
		dst.EnergyDeltaWh = src.EnergyDeltaWh
		dst.InstantPowerW = src.InstantPowerW
		dst.CumulatedEnergyWh = src.CumulatedEnergyWh
		dst.CumulatedInactivitySecs = src.CumulatedInactivitySecs
		dst.CumulatedDurationSecs = src.CumulatedDurationSecs
		dst.Amount = src.Amount
		dst.RoundedAmount = src.RoundedAmount
		dst.CumulatedAmount = src.CumulatedAmount
		dst.CurrencyCode = src.CurrencyCode
		dst.PricingSource = src.PricingSource
	}
}
