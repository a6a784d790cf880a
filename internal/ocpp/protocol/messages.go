package protocol

import "time"

// IdTagInfo is the authorization verdict embedded in several responses.
type IdTagInfo struct {
	Status string `json:"status"`
}

// BootNotificationRequest carries station identity on (re)boot.
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

// BootNotificationResponse acknowledges or rejects the registration.
type BootNotificationResponse struct {
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
}

// HeartbeatRequest is empty.
type HeartbeatRequest struct{}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// StatusNotificationRequest reports a connector status change.
type StatusNotificationRequest struct {
	ConnectorID int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Info        string    `json:"info,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	VendorID    string    `json:"vendorId,omitempty"`
	VendorError string    `json:"vendorErrorCode,omitempty"`
}

// StatusNotificationResponse is an empty ack.
type StatusNotificationResponse struct{}

// AuthorizeRequest asks whether a tag may charge.
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// AuthorizeResponse carries the verdict.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest opens a charging session.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	MeterStart    int64     `json:"meterStart"`
	ReservationID *int      `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartTransactionResponse returns the allocated transaction id.
type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest closes a charging session.
type StopTransactionRequest struct {
	TransactionID int64        `json:"transactionId"`
	IdTag         string       `json:"idTag,omitempty"`
	MeterStop     int64        `json:"meterStop"`
	Timestamp     time.Time    `json:"timestamp"`
	Reason        string       `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

// StopTransactionResponse carries the verdict for the stopping tag.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// MeterValuesRequest carries raw meter readings. OCPP 1.6 sends the
// meterValue array, OCPP 1.5 sends values; both shapes are accepted and the
// normalizer flattens them.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID int64        `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue,omitempty"`
	Values        []MeterValue `json:"values,omitempty"`
}

// MeterValuesResponse is an empty ack.
type MeterValuesResponse struct{}

// RemoteStopTransactionRequest asks the station to stop a running session.
type RemoteStopTransactionRequest struct {
	TransactionID int64 `json:"transactionId"`
}

// RemoteStopTransactionResponse reports whether the station accepted the
// command.
type RemoteStopTransactionResponse struct {
	Status string `json:"status"`
}
