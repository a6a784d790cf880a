package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/meter"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

type pricingPhase int

const (
	phaseStart pricingPhase = iota
	phaseUpdate
	phaseStop
)

// ConsumptionEngine folds normalized meter samples into consumption records
// and the transaction's running accounting fields.
type ConsumptionEngine struct {
	pricer Pricer
	logger *zap.Logger
}

// NewConsumptionEngine builds the engine. pricer may be nil.
func NewConsumptionEngine(pricer Pricer, logger *zap.Logger) *ConsumptionEngine {
	return &ConsumptionEngine{pricer: pricer, logger: logger}
}

// Advance processes one normalized sample against the transaction's last
// known sample and returns the resulting consumption draft. The transaction's
// running fields are mutated in place; persisting them is the caller's job.
func (e *ConsumptionEngine) Advance(ctx context.Context, tx *models.Transaction, sample meter.Sample) *models.Consumption {
	if meter.IsStateOfChargeSample(sample) {
		return e.advanceStateOfCharge(tx, sample)
	}
	return e.advanceEnergy(ctx, tx, sample.Timestamp, sample.Value, phaseUpdate)
}

func (e *ConsumptionEngine) advanceStateOfCharge(tx *models.Transaction, sample meter.Sample) *models.Consumption {
	soc := int(math.Round(sample.Value))
	tx.CurrentStateOfCharge = soc

	startedAt := tx.LastSampleAt
	if startedAt.IsZero() {
		startedAt = tx.StartedAt
	}
	return &models.Consumption{
		TenantID:                tx.TenantID,
		TransactionID:           tx.ID,
		StationID:               tx.StationID,
		ConnectorID:             tx.ConnectorID,
		StartedAt:               startedAt,
		EndedAt:                 sample.Timestamp,
		CumulatedEnergyWh:       tx.CurrentEnergyWh,
		CumulatedInactivitySecs: tx.CurrentInactivitySecs,
		CumulatedDurationSecs:   durationSince(tx.StartedAt, sample.Timestamp),
		StateOfCharge:           &soc,
	}
}

func (e *ConsumptionEngine) advanceEnergy(ctx context.Context, tx *models.Transaction, ts time.Time, value float64, phase pricingPhase) *models.Consumption {
	prevAt, prevValue := tx.LastSampleAt, tx.LastSampleValue
	if prevAt.IsZero() {
		prevAt, prevValue = tx.StartedAt, float64(tx.MeterStart)
	}

	diffSecs := ts.Sub(prevAt).Seconds()
	delta := value - prevValue
	if delta < 0 {
		// Meter regressed (device reset or rollover). Zero consumption for
		// the interval, counted as inactivity.
		delta = 0
	}

	var instantPower float64
	if delta > 0 && diffSecs > 0 {
		instantPower = delta * 3600 / diffSecs
	}

	tx.CurrentEnergyWh += delta
	tx.CurrentPowerW = instantPower
	if delta == 0 && diffSecs > 0 {
		tx.CurrentInactivitySecs += diffSecs
	}
	tx.LastSampleAt = ts
	tx.LastSampleValue = value

	c := &models.Consumption{
		TenantID:                tx.TenantID,
		TransactionID:           tx.ID,
		StationID:               tx.StationID,
		ConnectorID:             tx.ConnectorID,
		StartedAt:               prevAt,
		EndedAt:                 ts,
		EnergyDeltaWh:           delta,
		InstantPowerW:           instantPower,
		CumulatedEnergyWh:       tx.CurrentEnergyWh,
		CumulatedInactivitySecs: tx.CurrentInactivitySecs,
		CumulatedDurationSecs:   durationSince(tx.StartedAt, ts),
	}
	e.price(ctx, tx, c, phase)
	return c
}

// BuildStartConsumption synthesizes the boundary draft at meterStart. It
// carries no energy delta and seeds the initial price fields.
func (e *ConsumptionEngine) BuildStartConsumption(ctx context.Context, tx *models.Transaction) *models.Consumption {
	c := &models.Consumption{
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		StationID:     tx.StationID,
		ConnectorID:   tx.ConnectorID,
		StartedAt:     tx.StartedAt,
		EndedAt:       tx.StartedAt,
	}
	e.price(ctx, tx, c, phaseStart)
	return c
}

// BuildStopConsumption synthesizes the final draft spanning from the last
// sample to the stop meter value and timestamp.
func (e *ConsumptionEngine) BuildStopConsumption(ctx context.Context, tx *models.Transaction, meterStop int64, ts time.Time) *models.Consumption {
	return e.advanceEnergy(ctx, tx, ts, float64(meterStop), phaseStop)
}

func (e *ConsumptionEngine) price(ctx context.Context, tx *models.Transaction, c *models.Consumption, phase pricingPhase) {
	if e.pricer == nil {
		return
	}

	var priced *PricedConsumption
	var err error
	switch phase {
	case phaseStart:
		priced, err = e.pricer.StartSession(ctx, tx, c)
	case phaseStop:
		priced, err = e.pricer.StopSession(ctx, tx, c)
	default:
		priced, err = e.pricer.UpdateSession(ctx, tx, c)
	}
	if err != nil {
		// Pricing is upstream of the session, never fatal to it.
		e.logger.Warn("pricing collaborator failed",
			zap.Int64("transaction_id", tx.ID),
			zap.String("tenant_id", tx.TenantID),
			zap.Error(err))
		return
	}
	if priced == nil {
		return
	}

	c.Amount = priced.Amount
	c.RoundedAmount = priced.RoundedAmount
	c.CurrencyCode = priced.CurrencyCode
	c.PricingSource = priced.PricingSource

	cumulated := priced.CumulatedAmount
	if cumulated == 0 {
		cumulated = roundTo(tx.CurrentPrice+priced.Amount, 6)
	}
	c.CumulatedAmount = cumulated
	tx.CurrentPrice = cumulated
	if priced.CurrencyCode != "" {
		tx.CurrencyCode = priced.CurrencyCode
	}
}

func durationSince(start, ts time.Time) float64 {
	d := ts.Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}
