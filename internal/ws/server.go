package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

// Server upgrades station HTTP connections to OCPP websockets. The URL path
// carries the identity: /ocpp/{tenantID}/{stationID}. The OCPP version is
// negotiated through the websocket subprotocol, defaulting to 1.6.
type Server struct {
	manager      *Manager
	processor    MessageProcessor
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds the websocket server.
func NewServer(manager *Manager, processor MessageProcessor, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager:      manager,
		processor:    processor,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"ocpp1.6", "ocpp1.5"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for /ocpp/{tenantID}/{stationID}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	tenantID, stationID, ok := parseIdentityPath(r.URL.Path)
	if !ok {
		http.Error(w, "expected path /ocpp/{tenantID}/{stationID}", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	id := ocpp.Identity{
		TenantID:        tenantID,
		StationID:       stationID,
		ProtocolVersion: versionFromSubprotocol(conn.Subprotocol()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(id, conn, s.processor, s.writeTimeout, s.logger, func(id ocpp.Identity) {
		s.manager.Remove(id)
		cancel()
	})
	s.manager.Add(connection)

	go connection.Start(ctx)
	s.logger.Info("station connected",
		zap.String("tenant_id", id.TenantID),
		zap.String("station_id", id.StationID),
		zap.String("ocpp_version", id.ProtocolVersion))
}

func parseIdentityPath(path string) (tenantID, stationID string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "ocpp" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func versionFromSubprotocol(subprotocol string) string {
	if subprotocol == "ocpp1.5" {
		return protocol.Version15
	}
	return protocol.Version16
}
