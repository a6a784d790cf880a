package service

import (
	"context"
	"math"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// PricedConsumption is the pricing collaborator's answer for one consumption
// draft. CumulatedAmount may be zero, in which case the engine folds the
// amount onto the transaction's running price itself.
type PricedConsumption struct {
	Amount          float64
	RoundedAmount   float64
	CumulatedAmount float64
	CurrencyCode    string
	PricingSource   string
}

// Pricer prices consumption drafts across the session lifecycle. A nil
// pricer is valid: price fields stay zero and no error is raised.
type Pricer interface {
	StartSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error)
	UpdateSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error)
	StopSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error)
}

const flatRateSource = "flatRate"

// FlatRatePricer prices energy at a fixed tariff per kWh.
type FlatRatePricer struct {
	pricePerKWh float64
	currency    string
}

// NewFlatRatePricer builds the built-in tariff pricer. A zero or negative
// price disables it (returns nil so callers wire no pricer at all).
func NewFlatRatePricer(pricePerKWh float64, currency string) *FlatRatePricer {
	if pricePerKWh <= 0 {
		return nil
	}
	return &FlatRatePricer{pricePerKWh: pricePerKWh, currency: currency}
}

// StartSession prices the start boundary: zero energy, zero amount.
func (p *FlatRatePricer) StartSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error) {
	return p.price(c), nil
}

// UpdateSession prices one running interval.
func (p *FlatRatePricer) UpdateSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error) {
	return p.price(c), nil
}

// StopSession prices the final interval.
func (p *FlatRatePricer) StopSession(ctx context.Context, tx *models.Transaction, c *models.Consumption) (*PricedConsumption, error) {
	return p.price(c), nil
}

func (p *FlatRatePricer) price(c *models.Consumption) *PricedConsumption {
	amount := roundTo(c.EnergyDeltaWh/1000*p.pricePerKWh, 6)
	return &PricedConsumption{
		Amount:        amount,
		RoundedAmount: roundTo(amount, 2),
		CurrencyCode:  p.currency,
		PricingSource: flatRateSource,
	}
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
