package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// ConnectorGauge is the cached live view of one connector.
type ConnectorGauge struct {
	TenantID             string    `json:"tenantId"`
	StationID            string    `json:"stationId"`
	ConnectorID          int       `json:"connectorId"`
	Status               string    `json:"status"`
	CurrentPowerW        float64   `json:"currentPowerW"`
	TotalEnergyWh        float64   `json:"totalEnergyWh"`
	CurrentStateOfCharge int       `json:"currentStateOfCharge,omitempty"`
	ActiveTransactionID  int64     `json:"activeTransactionId,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// GaugeStore caches connector gauges with a TTL so stale entries expire on
// their own when a station goes silent.
type GaugeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGaugeStore returns the redis-backed gauge store.
func NewGaugeStore(client *redis.Client, ttl time.Duration) *GaugeStore {
	return &GaugeStore{client: client, ttl: ttl}
}

func (s *GaugeStore) key(tenantID, stationID string, connectorID int) string {
	return fmt.Sprintf("connectors:gauge:%s:%s:%d", tenantID, stationID, connectorID)
}

// PublishConnector caches the connector's live gauges.
func (s *GaugeStore) PublishConnector(ctx context.Context, tenantID, stationID string, connector models.Connector) error {
	gauge := ConnectorGauge{
		TenantID:             tenantID,
		StationID:            stationID,
		ConnectorID:          connector.ID,
		Status:               connector.Status,
		CurrentPowerW:        connector.CurrentPowerW,
		TotalEnergyWh:        connector.TotalEnergyWh,
		CurrentStateOfCharge: connector.CurrentStateOfCharge,
		ActiveTransactionID:  connector.ActiveTransactionID,
		UpdatedAt:            time.Now().UTC(),
	}
	data, err := json.Marshal(gauge)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(tenantID, stationID, connector.ID), data, s.ttl).Err()
}

// GetConnector returns the cached gauge, or (nil, nil) when absent.
func (s *GaugeStore) GetConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*ConnectorGauge, error) {
	result, err := s.client.Get(ctx, s.key(tenantID, stationID, connectorID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var gauge ConnectorGauge
	if err := json.Unmarshal([]byte(result), &gauge); err != nil {
		return nil, err
	}
	return &gauge, nil
}

// DeleteConnector drops the cached gauge.
func (s *GaugeStore) DeleteConnector(ctx context.Context, tenantID, stationID string, connectorID int) error {
	return s.client.Del(ctx, s.key(tenantID, stationID, connectorID)).Err()
}
