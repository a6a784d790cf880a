package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/meter"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

type serviceFixture struct {
	stations     *fakeStationRepo
	transactions *fakeTransactionRepo
	consumptions *fakeConsumptionRepo
	authorizer   *fakeAuthorizer
	notifier     *fakeNotifier
	svc          *TransactionService
	station      *models.ChargingStation
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		stations:     newFakeStationRepo(),
		transactions: newFakeTransactionRepo(),
		consumptions: newFakeConsumptionRepo(),
		authorizer: &fakeAuthorizer{users: map[string]*models.User{
			"TAG-1":     {ID: "user-1", TenantID: "tenant-a", Role: models.RoleBasic},
			"TAG-ADMIN": {ID: "user-admin", TenantID: "tenant-a", Role: models.RoleAdmin},
			"TAG-OTHER": {ID: "user-2", TenantID: "tenant-a", Role: models.RoleBasic},
		}},
		notifier: &fakeNotifier{},
	}
	engine := NewConsumptionEngine(nil, zap.NewNop())
	f.svc = NewTransactionService(
		f.stations, f.transactions, f.consumptions, engine, f.authorizer, f.notifier, nil, zap.NewNop())

	f.station = &models.ChargingStation{
		ID:       "station-1",
		TenantID: "tenant-a",
		Vendor:   "Schneider",
		Model:    "EVlink",
		Connectors: []models.Connector{
			{ID: 1, Status: "Available"},
			{ID: 2, Status: "Available"},
		},
	}
	if err := f.stations.Save(context.Background(), f.station); err != nil {
		t.Fatalf("seed station: %v", err)
	}
	return f
}

func TestStartTransactionRejectsUnknownConnector(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Start(context.Background(), f.station, 9, "TAG-1", nil, 0, time.Now().UTC())
	if !errs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTransactionLifecycleProducesThreeRecords(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	user := &models.User{ID: "user-1", TenantID: "tenant-a", Role: models.RoleBasic}
	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", user, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.station.ConnectorByID(1).ActiveTransactionID != tx.ID {
		t.Fatalf("connector should reference the active transaction")
	}

	samples := []struct {
		at    time.Duration
		value float64
	}{
		{60 * time.Second, 10},  // charging
		{120 * time.Second, 10}, // idle
	}
	for _, s := range samples {
		err := f.svc.ApplyMeterValues(ctx, f.station, tx,
			[]meter.Sample{energySample(start.Add(s.at), s.value)})
		if err != nil {
			t.Fatalf("meter values: %v", err)
		}
	}

	if err := f.svc.Stop(ctx, f.station, tx, "TAG-1", 10, start.Add(180*time.Second)); err != nil {
		t.Fatalf("stop: %v", err)
	}

	records, err := f.consumptions.ListByTransaction(ctx, "tenant-a", tx.ID)
	if err != nil {
		t.Fatalf("list consumptions: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected exactly 3 consumption records, got %d", len(records))
	}

	boundary := records[0]
	if !boundary.StartedAt.Equal(start) || !boundary.EndedAt.Equal(start) || boundary.EnergyDeltaWh != 0 {
		t.Fatalf("unexpected start boundary record: %+v", boundary)
	}
	charging := records[1]
	if !almostEqual(charging.EnergyDeltaWh, 10) || !almostEqual(charging.InstantPowerW, 600) {
		t.Fatalf("unexpected charging record: %+v", charging)
	}
	final := records[2]
	if !final.StartedAt.Equal(start.Add(60*time.Second)) || !final.EndedAt.Equal(start.Add(180*time.Second)) {
		t.Fatalf("idle tail should merge into the stop record: %+v", final)
	}
	if final.EnergyDeltaWh != 0 {
		t.Fatalf("stop record should carry no energy: %+v", final)
	}

	stored, _ := f.transactions.Get(ctx, "tenant-a", tx.ID)
	if stored.IsActive() {
		t.Fatal("transaction should be finished")
	}
	if !almostEqual(stored.Stop.TotalEnergyWh, 10) {
		t.Fatalf("expected total 10 Wh, got %f", stored.Stop.TotalEnergyWh)
	}
	if !almostEqual(stored.Stop.TotalInactivitySecs, 120) {
		t.Fatalf("expected 120s inactivity, got %f", stored.Stop.TotalInactivitySecs)
	}
	if !almostEqual(stored.Stop.TotalDurationSecs, 180) {
		t.Fatalf("expected 180s duration, got %f", stored.Stop.TotalDurationSecs)
	}
	if stored.CurrentEnergyWh != 0 || stored.CurrentPowerW != 0 {
		t.Fatal("running fields should be cleared after stop")
	}
	if f.station.ConnectorByID(1).ActiveTransactionID != 0 {
		t.Fatal("connector should be freed after stop")
	}
	if len(f.notifier.ended) != 1 {
		t.Fatalf("expected one end-of-session notification, got %d", len(f.notifier.ended))
	}
}

func TestStopAlreadyStoppedIsConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Stop(ctx, f.station, tx, "TAG-1", 0, start.Add(time.Minute)); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	err = f.svc.Stop(ctx, f.station, tx, "TAG-1", 0, start.Add(2*time.Minute))
	if !errs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStopByAlternateTagRequiresPermission(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	err = f.svc.Stop(ctx, f.station, tx, "TAG-OTHER", 0, start.Add(time.Minute))
	if !errs.IsUnauthorized(err) {
		t.Fatalf("basic user must not stop another session, got %v", err)
	}

	// Admins always may.
	if err := f.svc.Stop(ctx, f.station, tx, "TAG-ADMIN", 0, start.Add(time.Minute)); err != nil {
		t.Fatalf("admin stop: %v", err)
	}
	stored, _ := f.transactions.Get(ctx, "tenant-a", tx.ID)
	if stored.Stop.TagID != "TAG-ADMIN" || stored.Stop.UserID != "user-admin" {
		t.Fatalf("stop should be attributed to the admin, got %+v", stored.Stop)
	}
}

func TestResolveStopTagRemoteWindow(t *testing.T) {
	marked := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tx := &models.Transaction{TagID: "TAG-1", RemoteStopTagID: "TAG-REMOTE", RemoteStopAt: marked}

	if got := resolveStopTag(tx, "TAG-DEVICE", marked.Add(30*time.Second)); got != "TAG-REMOTE" {
		t.Fatalf("within the window the remote tag wins, got %q", got)
	}
	if got := resolveStopTag(tx, "TAG-DEVICE", marked.Add(90*time.Second)); got != "TAG-DEVICE" {
		t.Fatalf("outside the window the request tag wins, got %q", got)
	}
	if got := resolveStopTag(tx, "", marked.Add(90*time.Second)); got != "TAG-1" {
		t.Fatalf("without a request tag the start tag wins, got %q", got)
	}
}

func TestStopWithRemoteMarkerAttributesRemoteUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.svc.now = func() time.Time { return start.Add(5 * time.Minute) }
	if err := f.svc.MarkRemoteStop(ctx, tx, "TAG-ADMIN"); err != nil {
		t.Fatalf("mark remote stop: %v", err)
	}

	if err := f.svc.Stop(ctx, f.station, tx, "", 0, start.Add(5*time.Minute+30*time.Second)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	stored, _ := f.transactions.Get(ctx, "tenant-a", tx.ID)
	if stored.Stop.TagID != "TAG-ADMIN" {
		t.Fatalf("expected remote tag attribution, got %q", stored.Stop.TagID)
	}
}

func TestZeroDurationStopFallsBackToWallClock(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.svc.now = func() time.Time { return start.Add(10 * time.Minute) }
	if err := f.svc.Stop(ctx, f.station, tx, "TAG-1", 0, start); err != nil {
		t.Fatalf("stop: %v", err)
	}

	stored, _ := f.transactions.Get(ctx, "tenant-a", tx.ID)
	if !almostEqual(stored.Stop.TotalDurationSecs, 600) {
		t.Fatalf("expected wall clock duration 600s, got %f", stored.Stop.TotalDurationSecs)
	}
	if !almostEqual(stored.Stop.TotalInactivitySecs, 600) {
		t.Fatalf("an empty session is all inactivity, got %f", stored.Stop.TotalInactivitySecs)
	}
}

func TestResolveDanglingDeletesEmptyTransaction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	ghost, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start ghost: %v", err)
	}

	// A new session on the same connector resolves the abandoned one first.
	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-OTHER", nil, 0, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tx.ID == ghost.ID {
		t.Fatal("expected a fresh transaction id")
	}

	gone, _ := f.transactions.Get(ctx, "tenant-a", ghost.ID)
	if gone != nil {
		t.Fatal("empty ghost transaction should be deleted")
	}
	records, _ := f.consumptions.ListByTransaction(ctx, "tenant-a", ghost.ID)
	if len(records) != 0 {
		t.Fatalf("ghost consumption should be purged, got %d records", len(records))
	}
}

func TestResolveDanglingSoftStopsChargedTransaction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	ghost, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start ghost: %v", err)
	}
	err = f.svc.ApplyMeterValues(ctx, f.station, ghost, []meter.Sample{
		energySample(start.Add(time.Minute), 500),
	})
	if err != nil {
		t.Fatalf("meter values: %v", err)
	}

	if _, err := f.svc.Start(ctx, f.station, 1, "TAG-OTHER", nil, 500, start.Add(time.Hour)); err != nil {
		t.Fatalf("start: %v", err)
	}

	stored, _ := f.transactions.Get(ctx, "tenant-a", ghost.ID)
	if stored == nil {
		t.Fatal("charged ghost must be kept")
	}
	if stored.IsActive() {
		t.Fatal("charged ghost must be soft stopped")
	}
	if !almostEqual(stored.Stop.TotalEnergyWh, 500) {
		t.Fatalf("expected 500 Wh, got %f", stored.Stop.TotalEnergyWh)
	}
	if stored.Stop.MeterStop != 500 {
		t.Fatalf("soft stop should use the last sample as meter stop, got %d", stored.Stop.MeterStop)
	}
}

func TestDeleteStationLogicalWithHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tx, err := f.svc.Start(ctx, f.station, 1, "TAG-1", nil, 0, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Stop(ctx, f.station, tx, "TAG-1", 0, start.Add(time.Minute)); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := f.svc.DeleteStation(ctx, f.station); err != nil {
		t.Fatalf("delete station: %v", err)
	}
	stored, _ := f.stations.Get(ctx, "tenant-a", "station-1")
	if stored == nil || !stored.Deleted {
		t.Fatal("station with history must be logically deleted")
	}

	fresh := &models.ChargingStation{ID: "station-2", TenantID: "tenant-a", Connectors: []models.Connector{{ID: 1}}}
	if err := f.stations.Save(ctx, fresh); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.svc.DeleteStation(ctx, fresh); err != nil {
		t.Fatalf("delete fresh station: %v", err)
	}
	gone, _ := f.stations.Get(ctx, "tenant-a", "station-2")
	if gone != nil {
		t.Fatal("station without history must be physically deleted")
	}
}
