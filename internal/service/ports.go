// Package service implements the transaction and metering core: the
// consumption derivation engine, the transaction state machine and the
// connector tracker. Persistence and external collaborators are consumed
// through the interfaces below.
package service

import (
	"context"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// StationRepository persists charging station documents. Stations are
// read-modify-written as a whole, connectors included. Lookups return
// (nil, nil) when no document exists.
type StationRepository interface {
	Get(ctx context.Context, tenantID, stationID string) (*models.ChargingStation, error)
	Save(ctx context.Context, station *models.ChargingStation) error
	Delete(ctx context.Context, tenantID, stationID string) error
	ListTenants(ctx context.Context) ([]string, error)
}

// TransactionRepository persists charging sessions.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Update(ctx context.Context, tx *models.Transaction) error
	Delete(ctx context.Context, tenantID string, id int64) error
	Get(ctx context.Context, tenantID string, id int64) (*models.Transaction, error)
	FindActiveByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error)
	FindLastFinishedByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error)
	FindStaleActive(ctx context.Context, tenantID string, lastSeenBefore time.Time) ([]*models.Transaction, error)
	CountByStation(ctx context.Context, tenantID, stationID string) (int64, error)
}

// ConsumptionRepository persists derived consumption records. Save upserts on
// (transaction, endedAt) so a same-instant state-of-charge sample merges into
// the consumption-carrying record instead of duplicating it.
type ConsumptionRepository interface {
	Save(ctx context.Context, c *models.Consumption) error
	Delete(ctx context.Context, tenantID string, id int64) error
	DeleteByTransaction(ctx context.Context, tenantID string, transactionID int64) error
	GetLastByTransaction(ctx context.Context, tenantID string, transactionID int64) (*models.Consumption, error)
	ListByTransaction(ctx context.Context, tenantID string, transactionID int64) ([]models.Consumption, error)
}

// StatusLogRepository appends connector status history.
type StatusLogRepository interface {
	Append(ctx context.Context, record *models.StatusNotification) error
}

// Authorizer decides tag and stop permissions. Implemented outside the core.
type Authorizer interface {
	// AuthorizeTag resolves the user behind a tag on this station, or a
	// classified error when the tag may not perform the action.
	AuthorizeTag(ctx context.Context, station *models.ChargingStation, tagID, action string) (*models.User, error)
	// CanStopOthersSession reports whether the user may stop a session
	// started by someone else: admins always, others only when the site
	// policy opens session stop to everyone.
	CanStopOthersSession(ctx context.Context, station *models.ChargingStation, user *models.User) bool
}

// Notifier delivers fire-and-forget user notifications. Failures are logged
// by implementations and never propagated.
type Notifier interface {
	TransactionStarted(ctx context.Context, tx *models.Transaction)
	EndOfSession(ctx context.Context, tx *models.Transaction)
	StationStatusError(ctx context.Context, station *models.ChargingStation, connectorID int, errorCode string)
}

// GaugePublisher pushes live connector gauges to a shared cache for quick
// reads. Optional; a nil publisher disables it.
type GaugePublisher interface {
	PublishConnector(ctx context.Context, tenantID, stationID string, connector models.Connector) error
}
