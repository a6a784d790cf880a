package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
)

type connKey struct {
	tenantID  string
	stationID string
}

// Manager tracks active station connections per tenant and keeps them alive
// with a ping loop.
type Manager struct {
	mu           sync.RWMutex
	connections  map[connKey]*Connection
	pingInterval time.Duration
}

// NewManager builds the connection manager.
func NewManager(pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[connKey]*Connection),
		pingInterval: pingInterval,
	}
}

// Add registers a new connection, replacing a previous one from the same
// station.
func (m *Manager) Add(conn *Connection) {
	key := connKey{conn.Identity().TenantID, conn.Identity().StationID}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[key] = conn
}

// Remove drops a connection.
func (m *Manager) Remove(id ocpp.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, connKey{id.TenantID, id.StationID})
}

// Get returns the live connection for a station, or nil.
func (m *Manager) Get(tenantID, stationID string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connKey{tenantID, stationID}]
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Start runs the keepalive ping loop until the context ends.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, conn := range m.connections {
				_ = conn.Ping()
			}
			m.mu.RUnlock()
		}
	}
}
