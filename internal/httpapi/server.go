package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/rediscache"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
	"github.com/sap-labs-france/ev-server-sub011/internal/tasks"
	"github.com/sap-labs-france/ev-server-sub011/internal/ws"
)

// RemoteStopper marks a transaction for remote stop attribution.
type RemoteStopper interface {
	MarkRemoteStop(ctx context.Context, tx *models.Transaction, tagID string) error
}

// TaskQueue persists queued background work.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *models.AsyncTask) error
}

// Server is the operational HTTP API.
type Server struct {
	stations     service.StationRepository
	transactions service.TransactionRepository
	consumptions service.ConsumptionRepository
	remoteStop   RemoteStopper
	queue        TaskQueue
	wake         func()
	gauges       *rediscache.GaugeStore
	connections  *ws.Manager
	tokens       *TokenService
	wsHandler    http.HandlerFunc
	logger       *zap.Logger
}

// NewServer builds the API server. wake nudges the task runner after an
// enqueue; pass a no-op when there is no runner.
func NewServer(
	stations service.StationRepository,
	transactions service.TransactionRepository,
	consumptions service.ConsumptionRepository,
	remoteStop RemoteStopper,
	queue TaskQueue,
	wake func(),
	gauges *rediscache.GaugeStore,
	connections *ws.Manager,
	tokens *TokenService,
	wsHandler http.HandlerFunc,
	logger *zap.Logger,
) *Server {
	if wake == nil {
		wake = func() {}
	}
	return &Server{
		stations:     stations,
		transactions: transactions,
		consumptions: consumptions,
		remoteStop:   remoteStop,
		queue:        queue,
		wake:         wake,
		gauges:       gauges,
		connections:  connections,
		tokens:       tokens,
		wsHandler:    wsHandler,
		logger:       logger,
	}
}

// Routes assembles the router. Station websocket traffic is unauthenticated
// at the HTTP layer; stations identify through their connection path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/ocpp/{tenantID}/{stationID}", s.wsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.tokens, next) })
		r.Get("/stations/{stationID}", s.GetStation)
		r.Delete("/stations/{stationID}", s.DeleteStation)
		r.Get("/stations/{stationID}/connectors/{connectorID}", s.GetConnector)
		r.Get("/transactions/{transactionID}", s.GetTransaction)
		r.Get("/transactions/{transactionID}/consumptions", s.ListConsumptions)
		r.Post("/transactions/{transactionID}/remote-stop", s.RemoteStop)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// GetStation returns the station document.
func (s *Server) GetStation(w http.ResponseWriter, r *http.Request) {
	tenantID := s.tenantFrom(r)
	station, err := s.stations.Get(r.Context(), tenantID, chi.URLParam(r, "stationID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if station == nil || station.Deleted {
		s.writeError(w, errs.New(errs.KindNotFound, "station not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, station)
}

// DeleteStation queues the station removal. The queued task keeps the
// document as a logical delete when charging history exists.
func (s *Server) DeleteStation(w http.ResponseWriter, r *http.Request) {
	tenantID := s.tenantFrom(r)
	stationID := chi.URLParam(r, "stationID")

	station, err := s.stations.Get(r.Context(), tenantID, stationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if station == nil || station.Deleted {
		s.writeError(w, errs.New(errs.KindNotFound, "station not found"))
		return
	}

	payload, err := json.Marshal(tasks.DeleteStationPayload{StationID: stationID})
	if err != nil {
		s.writeError(w, err)
		return
	}
	now := time.Now().UTC()
	task := &models.AsyncTask{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      tasks.TaskDeleteStation,
		Payload:   payload,
		Status:    models.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		s.writeError(w, err)
		return
	}
	s.wake()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"taskId": task.ID})
}

// GetConnector returns the live connector gauges, served from the cache when
// fresh and from the station document otherwise.
func (s *Server) GetConnector(w http.ResponseWriter, r *http.Request) {
	tenantID := s.tenantFrom(r)
	stationID := chi.URLParam(r, "stationID")
	connectorID, err := strconv.Atoi(chi.URLParam(r, "connectorID"))
	if err != nil {
		s.writeError(w, errs.New(errs.KindInvalidArgument, "connector id must be numeric"))
		return
	}

	if s.gauges != nil {
		gauge, err := s.gauges.GetConnector(r.Context(), tenantID, stationID, connectorID)
		if err != nil {
			s.logger.Warn("gauge cache read failed", zap.Error(err))
		} else if gauge != nil {
			s.writeJSON(w, http.StatusOK, gauge)
			return
		}
	}

	station, err := s.stations.Get(r.Context(), tenantID, stationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if station == nil {
		s.writeError(w, errs.New(errs.KindNotFound, "station not found"))
		return
	}
	connector := station.ConnectorByID(connectorID)
	if connector == nil {
		s.writeError(w, errs.New(errs.KindNotFound, "connector not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, connector)
}

// GetTransaction returns one transaction.
func (s *Server) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.loadTransaction(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

// ListConsumptions returns the derived consumption curve of one transaction.
func (s *Server) ListConsumptions(w http.ResponseWriter, r *http.Request) {
	tx, err := s.loadTransaction(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.consumptions.ListByTransaction(r.Context(), tx.TenantID, tx.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []models.Consumption{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

type remoteStopRequest struct {
	TagID string `json:"tagId"`
}

// RemoteStop marks the transaction for remote stop and forwards the command
// to the station over its live connection.
func (s *Server) RemoteStop(w http.ResponseWriter, r *http.Request) {
	tx, err := s.loadTransaction(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !tx.IsActive() {
		s.writeError(w, errs.New(errs.KindConflict, "transaction already stopped"))
		return
	}

	var req remoteStopRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.TagID == "" {
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			req.TagID = claims.UserID
		}
	}

	conn := s.connections.Get(tx.TenantID, tx.StationID)
	if conn == nil {
		s.writeError(w, errs.New(errs.KindConflict, "station is not connected"))
		return
	}

	if err := s.remoteStop.MarkRemoteStop(r.Context(), tx, req.TagID); err != nil {
		s.writeError(w, err)
		return
	}

	frame, err := ocpp.BuildCall(uuid.NewString(), protocol.ActionRemoteStopTransaction,
		protocol.RemoteStopTransactionRequest{TransactionID: tx.ID})
	if err != nil {
		s.writeError(w, err)
		return
	}
	conn.Send(frame)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) loadTransaction(r *http.Request) (*models.Transaction, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "transaction id must be numeric")
	}
	tx, err := s.transactions.Get(r.Context(), s.tenantFrom(r), id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errs.New(errs.KindNotFound, "transaction not found")
	}
	return tx, nil
}

// tenantFrom resolves the caller's tenant, preferring the token claims over
// the header fallback used when authentication is disabled.
func (s *Server) tenantFrom(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return claims.TenantID
	}
	return r.Header.Get("X-Tenant-ID")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindInvalidArgument:
		status = http.StatusBadRequest
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindUnauthorized:
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
