package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/clients"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// sessionFanout is the notifier handed to the core. On top of user
// notifications it mirrors finished sessions to billing and roaming, so the
// core stays unaware of how many downstreams a session end feeds.
type sessionFanout struct {
	notifications *clients.NotificationClient
	billing       *clients.BillingClient
	ocpi          *clients.OCPIClient
	logger        *zap.Logger
}

func newSessionFanout(
	notifications *clients.NotificationClient,
	billing *clients.BillingClient,
	ocpi *clients.OCPIClient,
	logger *zap.Logger,
) *sessionFanout {
	return &sessionFanout{
		notifications: notifications,
		billing:       billing,
		ocpi:          ocpi,
		logger:        logger,
	}
}

func (f *sessionFanout) TransactionStarted(ctx context.Context, tx *models.Transaction) {
	f.notifications.TransactionStarted(ctx, tx)
}

func (f *sessionFanout) EndOfSession(ctx context.Context, tx *models.Transaction) {
	f.notifications.EndOfSession(ctx, tx)
	if err := f.billing.BillSession(ctx, tx); err != nil {
		f.logger.Warn("billing push failed", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}
	if err := f.ocpi.PushSession(ctx, tx); err != nil {
		f.logger.Warn("ocpi push failed", zap.Int64("transaction_id", tx.ID), zap.Error(err))
	}
}

func (f *sessionFanout) StationStatusError(ctx context.Context, station *models.ChargingStation, connectorID int, errorCode string) {
	f.notifications.StationStatusError(ctx, station, connectorID, errorCode)
}
