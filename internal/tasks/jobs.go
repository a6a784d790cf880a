package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/locking"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
)

// SessionStopper force-closes transactions abandoned by their station.
type SessionStopper interface {
	SoftStop(ctx context.Context, station *models.ChargingStation, tx *models.Transaction) error
}

// BillingCycler runs the periodic invoicing cycle for one tenant.
type BillingCycler interface {
	RunCycle(ctx context.Context, tenantID string) error
}

// OCPISyncer refreshes the roaming platform for one tenant.
type OCPISyncer interface {
	SyncTenant(ctx context.Context, tenantID string) error
}

// Jobs bundles the recurring maintenance routines and their dependencies.
// Each routine iterates all tenants and isolates per-tenant failures, so a
// broken tenant never starves the rest.
type Jobs struct {
	stations     service.StationRepository
	transactions service.TransactionRepository
	stopper      SessionStopper
	billing      BillingCycler
	ocpi         OCPISyncer
	locks        *locking.Manager
	staleAge     time.Duration
	logger       *zap.Logger
}

// NewJobs builds the maintenance job set.
func NewJobs(
	stations service.StationRepository,
	transactions service.TransactionRepository,
	stopper SessionStopper,
	billing BillingCycler,
	ocpi OCPISyncer,
	locks *locking.Manager,
	staleAge time.Duration,
	logger *zap.Logger,
) *Jobs {
	return &Jobs{
		stations:     stations,
		transactions: transactions,
		stopper:      stopper,
		billing:      billing,
		ocpi:         ocpi,
		locks:        locks,
		staleAge:     staleAge,
		logger:       logger,
	}
}

// SweepStaleTransactions force-closes active transactions whose station went
// silent. Runs under a per-tenant lock so only one host sweeps each tenant.
func (j *Jobs) SweepStaleTransactions(ctx context.Context) error {
	return j.forEachTenant(ctx, "stale-transaction-sweep", func(ctx context.Context, tenantID string) error {
		lock, err := locking.ForStaleTransactionSweep(tenantID)
		if err != nil {
			return err
		}
		if !j.locks.Acquire(ctx, &lock) {
			return nil
		}
		defer j.locks.Release(ctx, lock)

		cutoff := time.Now().UTC().Add(-j.staleAge)
		stale, err := j.transactions.FindStaleActive(ctx, tenantID, cutoff)
		if err != nil {
			return err
		}
		for _, tx := range stale {
			station, err := j.stations.Get(ctx, tx.TenantID, tx.StationID)
			if err != nil {
				j.logger.Warn("stale sweep station load failed",
					zap.String("tenant_id", tx.TenantID),
					zap.String("station_id", tx.StationID),
					zap.Error(err))
				continue
			}
			if station == nil {
				j.logger.Warn("stale transaction points at a missing station",
					zap.String("tenant_id", tx.TenantID),
					zap.String("station_id", tx.StationID),
					zap.Int64("transaction_id", tx.ID))
				continue
			}
			if err := j.stopper.SoftStop(ctx, station, tx); err != nil {
				j.logger.Warn("stale transaction close failed",
					zap.String("tenant_id", tx.TenantID),
					zap.Int64("transaction_id", tx.ID),
					zap.Error(err))
				continue
			}
			j.logger.Info("stale transaction closed",
				zap.String("tenant_id", tx.TenantID),
				zap.String("station_id", tx.StationID),
				zap.Int64("transaction_id", tx.ID))
		}
		return nil
	})
}

// RunBillingCycles triggers the invoicing cycle per tenant, one host at a
// time.
func (j *Jobs) RunBillingCycles(ctx context.Context) error {
	return j.forEachTenant(ctx, "billing-cycle", func(ctx context.Context, tenantID string) error {
		lock, err := locking.ForBillingCycle(tenantID)
		if err != nil {
			return err
		}
		if !j.locks.Acquire(ctx, &lock) {
			return nil
		}
		defer j.locks.Release(ctx, lock)
		return j.billing.RunCycle(ctx, tenantID)
	})
}

// SyncOCPI refreshes roaming data per tenant, one host at a time.
func (j *Jobs) SyncOCPI(ctx context.Context) error {
	return j.forEachTenant(ctx, "ocpi-sync", func(ctx context.Context, tenantID string) error {
		lock, err := locking.ForOCPISync(tenantID, "default")
		if err != nil {
			return err
		}
		if !j.locks.Acquire(ctx, &lock) {
			return nil
		}
		defer j.locks.Release(ctx, lock)
		return j.ocpi.SyncTenant(ctx, tenantID)
	})
}

func (j *Jobs) forEachTenant(ctx context.Context, job string, fn func(ctx context.Context, tenantID string) error) error {
	tenants, err := j.stations.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(ctx, tenantID); err != nil {
			j.logger.Warn("tenant job failed",
				zap.String("job", job),
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
	}
	return nil
}
