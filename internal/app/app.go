// Package app assembles the dependency graph and owns the process lifecycle.
package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/auth"
	"github.com/sap-labs-france/ev-server-sub011/internal/clients"
	"github.com/sap-labs-france/ev-server-sub011/internal/config"
	"github.com/sap-labs-france/ev-server-sub011/internal/handlers"
	"github.com/sap-labs-france/ev-server-sub011/internal/httpapi"
	"github.com/sap-labs-france/ev-server-sub011/internal/locking"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
	"github.com/sap-labs-france/ev-server-sub011/internal/postgres"
	"github.com/sap-labs-france/ev-server-sub011/internal/rediscache"
	"github.com/sap-labs-france/ev-server-sub011/internal/repository"
	"github.com/sap-labs-france/ev-server-sub011/internal/service"
	"github.com/sap-labs-france/ev-server-sub011/internal/tasks"
	"github.com/sap-labs-france/ev-server-sub011/internal/ws"
)

const gaugeTTL = 10 * time.Minute

// App wires every component of the server.
type App struct {
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
	manager    *ws.Manager
	runner     *tasks.Runner
	scheduler  *tasks.Scheduler
	logger     *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := postgres.New(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	stationRepo := repository.NewStationRepository(sqlDB)
	transactionRepo := repository.NewTransactionRepository(sqlDB)
	consumptionRepo := repository.NewConsumptionRepository(sqlDB)
	statusLogRepo := repository.NewStatusLogRepository(sqlDB)
	userRepo := repository.NewUserRepository(sqlDB)
	lockRepo := repository.NewLockRepository(sqlDB)
	taskRepo := repository.NewTaskRepository(sqlDB)

	// Redis is optional; without it the live gauge cache is disabled.
	var redisClient *redis.Client
	var gauges *rediscache.GaugeStore
	var gaugePublisher service.GaugePublisher
	if cfg.Redis.Addr != "" {
		redisClient, err = rediscache.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		gauges = rediscache.NewGaugeStore(redisClient, gaugeTTL)
		gaugePublisher = gauges
	}

	billingClient := clients.NewBillingClient(cfg.Services.BillingURL, logger)
	ocpiClient := clients.NewOCPIClient(cfg.Services.OCPIURL, logger)
	notificationClient := clients.NewNotificationClient(cfg.Services.NotificationURL, logger)
	notifier := newSessionFanout(notificationClient, billingClient, ocpiClient, logger)

	authorizer := auth.NewAuthorizer(userRepo, cfg.Auth.AnyoneCanStopSessions, logger)

	var pricer service.Pricer
	if flat := service.NewFlatRatePricer(cfg.Pricing.PricePerKWh, cfg.Pricing.Currency); flat != nil {
		pricer = flat
	}
	engine := service.NewConsumptionEngine(pricer, logger)

	txService := service.NewTransactionService(
		stationRepo, transactionRepo, consumptionRepo, engine, authorizer, notifier, gaugePublisher, logger)
	tracker := service.NewConnectorTracker(
		stationRepo, transactionRepo, statusLogRepo, txService, notifier, gaugePublisher, logger)

	router := ocpp.NewRouter()
	parser := ocpp.NewParser()
	processor := ocpp.NewProcessor(parser, router, logger)

	router.Register(protocol.ActionBootNotification, handlers.NewBootNotificationHandler(stationRepo, cfg.HeartbeatInterval(), logger))
	router.Register(protocol.ActionHeartbeat, handlers.NewHeartbeatHandler(stationRepo, logger))
	router.Register(protocol.ActionStatusNotification, handlers.NewStatusNotificationHandler(stationRepo, tracker, logger))
	router.Register(protocol.ActionAuthorize, handlers.NewAuthorizeHandler(stationRepo, authorizer, logger))
	router.Register(protocol.ActionStartTransaction, handlers.NewStartTransactionHandler(stationRepo, txService, authorizer, logger))
	router.Register(protocol.ActionStopTransaction, handlers.NewStopTransactionHandler(stationRepo, transactionRepo, txService, logger))
	router.Register(protocol.ActionMeterValues, handlers.NewMeterValuesHandler(stationRepo, transactionRepo, txService, logger))

	manager := ws.NewManager(cfg.PingInterval())
	wsServer := ws.NewServer(manager, processor, cfg.WriteTimeout(), logger)

	lockManager := locking.NewManager(lockRepo, logger)
	runner := tasks.NewRunner(taskRepo, lockManager, cfg.TaskWorkers(), cfg.TaskInterval(), logger)
	runner.Register(tasks.TaskDeleteStation, tasks.NewDeleteStationHandler(stationRepo, txService, logger))
	runner.Register(tasks.TaskOCPITenantSync, tasks.NewOCPITenantSyncHandler(ocpiClient))

	jobs := tasks.NewJobs(stationRepo, transactionRepo, txService, billingClient, ocpiClient,
		lockManager, cfg.StaleTransactionAge(), logger)
	scheduler := tasks.NewScheduler(logger)
	scheduler.Add(tasks.Job{Name: "stale-transaction-sweep", Interval: cfg.TaskInterval(), Run: jobs.SweepStaleTransactions})
	scheduler.Add(tasks.Job{Name: "billing-cycle", Interval: cfg.BillingInterval(), Run: jobs.RunBillingCycles})
	scheduler.Add(tasks.Job{Name: "ocpi-sync", Interval: cfg.OCPIInterval(), Run: jobs.SyncOCPI})

	var tokens *httpapi.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens = httpapi.NewTokenService(cfg.Auth.JWTSecret, 24*time.Hour)
	} else {
		logger.Warn("jwt secret not set, api authentication disabled")
	}
	apiServer := httpapi.NewServer(
		stationRepo, transactionRepo, consumptionRepo, txService,
		taskRepo, runner.Trigger, gauges, manager, tokens, wsServer.HandleWS, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      apiServer.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		httpServer: httpServer,
		db:         sqlDB,
		redis:      redisClient,
		manager:    manager,
		runner:     runner,
		scheduler:  scheduler,
		logger:     logger,
	}, nil
}

// Run starts the websocket keepalive loop, the background workers and the
// HTTP server, then blocks until the context ends or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.manager.Start(ctx)
	go a.runner.Run(ctx)
	go a.scheduler.Run(ctx)

	go func() {
		a.logger.Info("starting http server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
