// Package clients wraps the outbound HTTP collaborators. Every call is
// best-effort: a failed collaborator is logged, never propagated into the
// transaction flow.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// BillingClient notifies the billing service about finished sessions.
type BillingClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type billingSessionRequest struct {
	TransactionID int64   `json:"transactionId"`
	TenantID      string  `json:"tenantId"`
	UserID        string  `json:"userId,omitempty"`
	EnergyWh      float64 `json:"energyWh"`
	Price         float64 `json:"price"`
	CurrencyCode  string  `json:"currencyCode,omitempty"`
}

// NewBillingClient returns the HTTP client wrapper. An empty baseURL
// disables the client.
func NewBillingClient(baseURL string, logger *zap.Logger) *BillingClient {
	return &BillingClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// BillSession pushes a finished session to the billing service.
func (c *BillingClient) BillSession(ctx context.Context, tx *models.Transaction) error {
	if c.baseURL == "" {
		c.logger.Debug("billing client disabled, skip session")
		return nil
	}
	if tx.Stop == nil {
		return nil
	}
	return post(ctx, c.client, c.logger, "billing", c.baseURL, "/internal/sessions", billingSessionRequest{
		TransactionID: tx.ID,
		TenantID:      tx.TenantID,
		UserID:        tx.UserID,
		EnergyWh:      tx.Stop.TotalEnergyWh,
		Price:         tx.Stop.Price,
		CurrencyCode:  tx.Stop.CurrencyCode,
	})
}

// RunCycle asks the billing service to run the periodic invoicing cycle for
// one tenant.
func (c *BillingClient) RunCycle(ctx context.Context, tenantID string) error {
	if c.baseURL == "" {
		c.logger.Debug("billing client disabled, skip cycle")
		return nil
	}
	return post(ctx, c.client, c.logger, "billing", c.baseURL, "/internal/cycles", map[string]string{
		"tenantId": tenantID,
	})
}

func post(ctx context.Context, client *http.Client, logger *zap.Logger, name, baseURL, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", baseURL, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("client request failed", zap.String("client", name), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("client returned non-success",
			zap.String("client", name), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}
