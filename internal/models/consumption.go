package models

import "time"

// Consumption is one derived, priced interval of a charging session. Records
// are append-only: the only mutation ever applied is merging a same-timestamp
// state-of-charge-only sample into the consumption-carrying record.
type Consumption struct {
	ID            int64  `json:"id"`
	TenantID      string `json:"tenantId"`
	TransactionID int64  `json:"transactionId"`
	StationID     string `json:"stationId"`
	ConnectorID   int    `json:"connectorId"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`

	EnergyDeltaWh           float64 `json:"energyDeltaWh"`
	InstantPowerW           float64 `json:"instantPowerW"`
	CumulatedEnergyWh       float64 `json:"cumulatedEnergyWh"`
	CumulatedInactivitySecs float64 `json:"cumulatedInactivitySecs"`
	CumulatedDurationSecs   float64 `json:"cumulatedDurationSecs"`
	StateOfCharge           *int    `json:"stateOfCharge,omitempty"`

	Amount          float64 `json:"amount,omitempty"`
	RoundedAmount   float64 `json:"roundedAmount,omitempty"`
	CumulatedAmount float64 `json:"cumulatedAmount,omitempty"`
	CurrencyCode    string  `json:"currencyCode,omitempty"`
	PricingSource   string  `json:"pricingSource,omitempty"`
}
