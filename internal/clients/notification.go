package clients

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// NotificationClient delivers user-facing notifications through the
// notification service. It implements the fire-and-forget notifier contract:
// errors are swallowed after logging.
type NotificationClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type notificationEvent struct {
	Type          string `json:"type"`
	TenantID      string `json:"tenantId"`
	UserID        string `json:"userId,omitempty"`
	StationID     string `json:"stationId,omitempty"`
	ConnectorID   int    `json:"connectorId,omitempty"`
	TransactionID int64  `json:"transactionId,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
}

// NewNotificationClient returns the HTTP client wrapper. An empty baseURL
// disables the client.
func NewNotificationClient(baseURL string, logger *zap.Logger) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// TransactionStarted notifies the session owner that charging began.
func (c *NotificationClient) TransactionStarted(ctx context.Context, tx *models.Transaction) {
	c.send(ctx, notificationEvent{
		Type:          "session-started",
		TenantID:      tx.TenantID,
		UserID:        tx.UserID,
		StationID:     tx.StationID,
		ConnectorID:   tx.ConnectorID,
		TransactionID: tx.ID,
	})
}

// EndOfSession notifies the session owner that charging finished.
func (c *NotificationClient) EndOfSession(ctx context.Context, tx *models.Transaction) {
	c.send(ctx, notificationEvent{
		Type:          "end-of-session",
		TenantID:      tx.TenantID,
		UserID:        tx.UserID,
		StationID:     tx.StationID,
		ConnectorID:   tx.ConnectorID,
		TransactionID: tx.ID,
	})
}

// StationStatusError reports a faulted connector to the tenant operators.
func (c *NotificationClient) StationStatusError(ctx context.Context, station *models.ChargingStation, connectorID int, errorCode string) {
	c.send(ctx, notificationEvent{
		Type:        "station-status-error",
		TenantID:    station.TenantID,
		StationID:   station.ID,
		ConnectorID: connectorID,
		ErrorCode:   errorCode,
	})
}

func (c *NotificationClient) send(ctx context.Context, event notificationEvent) {
	if c.baseURL == "" {
		return
	}
	if err := post(ctx, c.client, c.logger, "notification", c.baseURL, "/internal/notifications", event); err != nil {
		c.logger.Warn("notification dropped",
			zap.String("type", event.Type),
			zap.String("tenantID", event.TenantID),
			zap.Error(err))
	}
}
