package clients

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// OCPIClient pushes roaming data to the OCPI gateway service.
type OCPIClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type ocpiSessionPush struct {
	TransactionID int64     `json:"transactionId"`
	TenantID      string    `json:"tenantId"`
	StationID     string    `json:"stationId"`
	ConnectorID   int       `json:"connectorId"`
	EnergyWh      float64   `json:"energyWh"`
	StartedAt     time.Time `json:"startedAt"`
	StoppedAt     time.Time `json:"stoppedAt,omitempty"`
}

// NewOCPIClient returns the HTTP client wrapper. An empty baseURL disables
// the client.
func NewOCPIClient(baseURL string, logger *zap.Logger) *OCPIClient {
	return &OCPIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// PushSession mirrors one session update to the roaming platform.
func (c *OCPIClient) PushSession(ctx context.Context, tx *models.Transaction) error {
	if c.baseURL == "" {
		c.logger.Debug("ocpi client disabled, skip session push")
		return nil
	}
	push := ocpiSessionPush{
		TransactionID: tx.ID,
		TenantID:      tx.TenantID,
		StationID:     tx.StationID,
		ConnectorID:   tx.ConnectorID,
		EnergyWh:      tx.CurrentEnergyWh,
		StartedAt:     tx.StartedAt,
	}
	if tx.Stop != nil {
		push.EnergyWh = tx.Stop.TotalEnergyWh
		push.StoppedAt = tx.Stop.StoppedAt
	}
	return post(ctx, c.client, c.logger, "ocpi", c.baseURL, "/internal/sessions", push)
}

// SyncTenant triggers a full location refresh for one tenant.
func (c *OCPIClient) SyncTenant(ctx context.Context, tenantID string) error {
	if c.baseURL == "" {
		c.logger.Debug("ocpi client disabled, skip tenant sync")
		return nil
	}
	return post(ctx, c.client, c.logger, "ocpi", c.baseURL, "/internal/locations/sync", map[string]string{
		"tenantId": tenantID,
	})
}
