package models

import "time"

// TransactionStop holds the stop-side fields of a finished transaction.
type TransactionStop struct {
	TagID               string    `json:"tagId"`
	UserID              string    `json:"userId,omitempty"`
	MeterStop           int64     `json:"meterStop"`
	StoppedAt           time.Time `json:"stoppedAt"`
	TotalEnergyWh       float64   `json:"totalEnergyWh"`
	TotalInactivitySecs float64   `json:"totalInactivitySecs"`
	TotalDurationSecs   float64   `json:"totalDurationSecs"`
	Price               float64   `json:"price"`
	CurrencyCode        string    `json:"currencyCode,omitempty"`
	PricingSource       string    `json:"pricingSource,omitempty"`
}

// Transaction is one charging session on a station connector. Running fields
// are live only while the transaction is active and are cleared when the stop
// fields are committed. A finished transaction is immutable except for the
// one-time extra-inactivity correction.
type Transaction struct {
	ID          int64  `json:"id"`
	TenantID    string `json:"tenantId"`
	StationID   string `json:"stationId"`
	ConnectorID int    `json:"connectorId"`

	TagID      string    `json:"tagId"`
	UserID     string    `json:"userId,omitempty"`
	MeterStart int64     `json:"meterStart"`
	StartedAt  time.Time `json:"startedAt"`

	CurrentPowerW         float64 `json:"currentPowerW,omitempty"`
	CurrentEnergyWh       float64 `json:"currentEnergyWh,omitempty"`
	CurrentInactivitySecs float64 `json:"currentInactivitySecs,omitempty"`
	CurrentPrice          float64 `json:"currentPrice,omitempty"`
	CurrencyCode          string  `json:"currencyCode,omitempty"`
	CurrentStateOfCharge  int     `json:"currentStateOfCharge,omitempty"`
	StartStateOfCharge    int     `json:"startStateOfCharge,omitempty"`
	EndStateOfCharge      int     `json:"endStateOfCharge,omitempty"`

	LastSampleAt    time.Time `json:"lastSampleAt,omitempty"`
	LastSampleValue float64   `json:"lastSampleValue,omitempty"`

	RemoteStopTagID string    `json:"remoteStopTagId,omitempty"`
	RemoteStopAt    time.Time `json:"remoteStopAt,omitempty"`

	ExtraInactivitySecs    float64 `json:"extraInactivitySecs,omitempty"`
	ExtraInactivityApplied bool    `json:"extraInactivityApplied,omitempty"`

	Stop *TransactionStop `json:"stop,omitempty"`
}

// IsActive reports whether the transaction has no stop fields yet.
func (t *Transaction) IsActive() bool {
	return t.Stop == nil
}

// ClearRunningFields resets the live accounting fields. Called once the stop
// fields are committed.
func (t *Transaction) ClearRunningFields() {
	t.CurrentPowerW = 0
	t.CurrentEnergyWh = 0
	t.CurrentInactivitySecs = 0
	t.CurrentPrice = 0
	t.CurrentStateOfCharge = 0
	t.LastSampleAt = time.Time{}
	t.LastSampleValue = 0
}
