package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

type fakeStationRepo struct {
	mu       sync.Mutex
	stations map[string]*models.ChargingStation
	saves    int
}

func newFakeStationRepo() *fakeStationRepo {
	return &fakeStationRepo{stations: make(map[string]*models.ChargingStation)}
}

func stationKey(tenantID, stationID string) string {
	return tenantID + "/" + stationID
}

func (r *fakeStationRepo) Get(ctx context.Context, tenantID, stationID string) (*models.ChargingStation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stations[stationKey(tenantID, stationID)], nil
}

func (r *fakeStationRepo) Save(ctx context.Context, station *models.ChargingStation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[stationKey(station.TenantID, station.ID)] = station
	r.saves++
	return nil
}

func (r *fakeStationRepo) Delete(ctx context.Context, tenantID, stationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stations, stationKey(tenantID, stationID))
	return nil
}

func (r *fakeStationRepo) ListTenants(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var tenants []string
	for _, s := range r.stations {
		if !seen[s.TenantID] {
			seen[s.TenantID] = true
			tenants = append(tenants, s.TenantID)
		}
	}
	return tenants, nil
}

type fakeTransactionRepo struct {
	mu           sync.Mutex
	nextID       int64
	transactions map[int64]*models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{nextID: 1, transactions: make(map[int64]*models.Transaction)}
}

func (r *fakeTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = r.nextID
	r.nextID++
	clone := *tx
	r.transactions[tx.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) Update(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %d not found", tx.ID)
	}
	clone := *tx
	if tx.Stop != nil {
		stop := *tx.Stop
		clone.Stop = &stop
	}
	r.transactions[tx.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) Delete(ctx context.Context, tenantID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transactions, id)
	return nil
}

func (r *fakeTransactionRepo) Get(ctx context.Context, tenantID string, id int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, nil
	}
	clone := *tx
	return &clone, nil
}

func (r *fakeTransactionRepo) FindActiveByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.TenantID == tenantID && tx.StationID == stationID && tx.ConnectorID == connectorID && tx.IsActive() {
			clone := *tx
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) FindLastFinishedByConnector(ctx context.Context, tenantID, stationID string, connectorID int) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Transaction
	for _, tx := range r.transactions {
		if tx.TenantID != tenantID || tx.StationID != stationID || tx.ConnectorID != connectorID || tx.Stop == nil {
			continue
		}
		if latest == nil || tx.Stop.StoppedAt.After(latest.Stop.StoppedAt) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	stop := *latest.Stop
	clone.Stop = &stop
	return &clone, nil
}

func (r *fakeTransactionRepo) FindStaleActive(ctx context.Context, tenantID string, lastSeenBefore time.Time) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range r.transactions {
		if tx.TenantID != tenantID || !tx.IsActive() {
			continue
		}
		lastSeen := tx.LastSampleAt
		if lastSeen.IsZero() {
			lastSeen = tx.StartedAt
		}
		if lastSeen.Before(lastSeenBefore) {
			clone := *tx
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) CountByStation(ctx context.Context, tenantID, stationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, tx := range r.transactions {
		if tx.TenantID == tenantID && tx.StationID == stationID {
			count++
		}
	}
	return count, nil
}

// fakeConsumptionRepo mirrors the production upsert contract: Save merges
// into an existing record with the same (transaction, endedAt) key.
type fakeConsumptionRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []*models.Consumption
}

func newFakeConsumptionRepo() *fakeConsumptionRepo {
	return &fakeConsumptionRepo{nextID: 1}
}

func (r *fakeConsumptionRepo) Save(ctx context.Context, c *models.Consumption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.TransactionID == c.TransactionID && existing.EndedAt.Equal(c.EndedAt) {
			if c.StartedAt.Before(existing.StartedAt) {
				existing.StartedAt = c.StartedAt
			}
			if c.EnergyDeltaWh > existing.EnergyDeltaWh {
				existing.EnergyDeltaWh = c.EnergyDeltaWh
			}
			if c.InstantPowerW > existing.InstantPowerW {
				existing.InstantPowerW = c.InstantPowerW
			}
			if c.CumulatedEnergyWh > existing.CumulatedEnergyWh {
				existing.CumulatedEnergyWh = c.CumulatedEnergyWh
			}
			if c.StateOfCharge != nil {
				existing.StateOfCharge = c.StateOfCharge
			}
			if c.PricingSource != "" {
				existing.Amount = c.Amount
				existing.RoundedAmount = c.RoundedAmount
				existing.CumulatedAmount = c.CumulatedAmount
				existing.CurrencyCode = c.CurrencyCode
				existing.PricingSource = c.PricingSource
			}
			c.ID = existing.ID
			return nil
		}
	}
	c.ID = r.nextID
	r.nextID++
	clone := *c
	r.records = append(r.records, &clone)
	return nil
}

func (r *fakeConsumptionRepo) Delete(ctx context.Context, tenantID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.records {
		if c.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeConsumptionRepo) DeleteByTransaction(ctx context.Context, tenantID string, transactionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	for _, c := range r.records {
		if c.TransactionID != transactionID {
			kept = append(kept, c)
		}
	}
	r.records = kept
	return nil
}

func (r *fakeConsumptionRepo) GetLastByTransaction(ctx context.Context, tenantID string, transactionID int64) (*models.Consumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.Consumption
	for _, c := range r.records {
		if c.TransactionID != transactionID {
			continue
		}
		if last == nil || c.EndedAt.After(last.EndedAt) {
			last = c
		}
	}
	if last == nil {
		return nil, nil
	}
	clone := *last
	return &clone, nil
}

func (r *fakeConsumptionRepo) ListByTransaction(ctx context.Context, tenantID string, transactionID int64) ([]models.Consumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Consumption
	for _, c := range r.records {
		if c.TransactionID == transactionID {
			out = append(out, *c)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].EndedAt.Before(out[j-1].EndedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

type fakeStatusLogRepo struct {
	mu      sync.Mutex
	records []*models.StatusNotification
}

func (r *fakeStatusLogRepo) Append(ctx context.Context, record *models.StatusNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

func (r *fakeStatusLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeAuthorizer struct {
	users        map[string]*models.User
	canStopOther bool
}

func (a *fakeAuthorizer) AuthorizeTag(ctx context.Context, station *models.ChargingStation, tagID, action string) (*models.User, error) {
	user, ok := a.users[tagID]
	if !ok {
		return nil, errs.Newf(errs.KindUnauthorized, "tag %q is not registered", tagID)
	}
	return user, nil
}

func (a *fakeAuthorizer) CanStopOthersSession(ctx context.Context, station *models.ChargingStation, user *models.User) bool {
	return user.IsAdmin() || a.canStopOther
}

type fakeNotifier struct {
	mu           sync.Mutex
	started      []int64
	ended        []int64
	statusErrors []string
}

func (n *fakeNotifier) TransactionStarted(ctx context.Context, tx *models.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, tx.ID)
}

func (n *fakeNotifier) EndOfSession(ctx context.Context, tx *models.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, tx.ID)
}

func (n *fakeNotifier) StationStatusError(ctx context.Context, station *models.ChargingStation, connectorID int, errorCode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusErrors = append(n.statusErrors, errorCode)
}
