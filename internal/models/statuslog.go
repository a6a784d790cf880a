package models

import "time"

// StatusNotification is one persisted connector status change. Identical
// re-sends from the device are dropped before a record is appended.
type StatusNotification struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenantId"`
	StationID   string    `json:"stationId"`
	ConnectorID int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Info        string    `json:"info,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
