package models

import "time"

// Connector is one physical socket on a charging station. Connectors are
// value objects owned by their station document and are never persisted
// separately.
type Connector struct {
	ID                   int       `json:"connectorId"`
	Status               string    `json:"status"`
	ErrorCode            string    `json:"errorCode"`
	Info                 string    `json:"info,omitempty"`
	CurrentPowerW        float64   `json:"currentPowerW"`
	TotalEnergyWh        float64   `json:"totalEnergyWh"`
	CurrentStateOfCharge int       `json:"currentStateOfCharge,omitempty"`
	ActiveTransactionID  int64     `json:"activeTransactionId,omitempty"`
	StatusUpdatedAt      time.Time `json:"statusUpdatedAt"`
}

// ChargingStation is the persisted view of one charge point, including its
// ordered connector list.
type ChargingStation struct {
	ID                  string      `json:"id"`
	TenantID            string      `json:"tenantId"`
	Vendor              string      `json:"vendor"`
	Model               string      `json:"model"`
	SerialNumber        string      `json:"serialNumber,omitempty"`
	BoxSerialNumber     string      `json:"boxSerialNumber,omitempty"`
	FirmwareVersion     string      `json:"firmwareVersion,omitempty"`
	OCPPVersion         string      `json:"ocppVersion"`
	LastHeartbeat       time.Time   `json:"lastHeartbeat"`
	Latitude            *float64    `json:"latitude,omitempty"`
	Longitude           *float64    `json:"longitude,omitempty"`
	CanChargeInParallel bool        `json:"canChargeInParallel"`
	Deleted             bool        `json:"deleted"`
	Connectors          []Connector `json:"connectors"`
}

// ConnectorByID returns the connector with the given id, or nil.
func (s *ChargingStation) ConnectorByID(id int) *Connector {
	for i := range s.Connectors {
		if s.Connectors[i].ID == id {
			return &s.Connectors[i]
		}
	}
	return nil
}

// EnsureConnector returns the connector with the given id, appending missing
// connectors up to that id. Stations announce their connector count only
// implicitly, through the highest connector id they ever report.
func (s *ChargingStation) EnsureConnector(id int) *Connector {
	if id <= 0 {
		return nil
	}
	for len(s.Connectors) < id {
		s.Connectors = append(s.Connectors, Connector{ID: len(s.Connectors) + 1})
	}
	return s.ConnectorByID(id)
}
