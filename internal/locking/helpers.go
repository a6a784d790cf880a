package locking

// Named lock constructors for the logical keys the server coordinates on.
// They are thin factories over Build and add no semantics.

// ForSessionCleanup guards dangling-session resolution on one station.
func ForSessionCleanup(tenantID, stationID string) (Lock, error) {
	return Build("session-cleanup-"+stationID, TypeExclusive, tenantID)
}

// ForStaleTransactionSweep guards the periodic stale-transaction close for a
// tenant.
func ForStaleTransactionSweep(tenantID string) (Lock, error) {
	return Build("stale-transaction-sweep", TypeExclusive, tenantID)
}

// ForBillingCycle guards the per-tenant billing cycle.
func ForBillingCycle(tenantID string) (Lock, error) {
	return Build("billing-cycle", TypeExclusive, tenantID)
}

// ForImport guards bulk imports for a tenant.
func ForImport(tenantID string) (Lock, error) {
	return Build("import", TypeExclusive, tenantID)
}

// ForOCPISync guards OCPI federation sync for a tenant endpoint.
func ForOCPISync(tenantID, endpoint string) (Lock, error) {
	return Build("ocpi-sync-"+endpoint, TypeExclusive, tenantID)
}

// ForAsyncTask guards one async task execution across hosts. Tasks are
// global-scope, keyed only by their id.
func ForAsyncTask(taskID string) (Lock, error) {
	return Build("async-task-"+taskID, TypeExclusive, "")
}
