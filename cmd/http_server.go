package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gardenfresh/order-payments/internal"
	"github.com/gardenfresh/order-payments/internal/core/events"
	"github.com/gardenfresh/order-payments/internal/gateway"
	"github.com/gardenfresh/order-payments/internal/inventory"
	inventorypg "github.com/gardenfresh/order-payments/internal/inventory/postgres"
	"github.com/gardenfresh/order-payments/internal/payment"
	paymentpg "github.com/gardenfresh/order-payments/internal/payment/postgres"
	"github.com/gardenfresh/order-payments/internal/realtime"
	"github.com/gardenfresh/order-payments/internal/transport"
	"github.com/gardenfresh/order-payments/internal/transport/rest"
	"github.com/gardenfresh/order-payments/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Router    *chi.Mux
	Logger    *slog.Logger
	Publisher *realtime.Publisher
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Publisher.Close()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := "development"
	if cfg.Observability.Logging.Format == "json" {
		env = "production"
	}
	logger.Init(env)
	log := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	orderRepo := paymentpg.NewOrderRepository(gormDB)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	inventoryRepo := inventorypg.NewInventoryRepository(gormDB)

	bus := events.NewEventBus(log)

	var publisher *realtime.Publisher
	if cfg.Realtime.URL != "" {
		publisher, err = realtime.NewPublisher(cfg.Realtime.URL, cfg.Realtime.Exchange, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect realtime broker: %w", err)
		}
		publisher.BindToBus(bus)
	}

	inventoryService := inventory.NewService(inventoryRepo, bus, log)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		ClientID:       cfg.Gateway.ClientID,
		APIKey:         cfg.Gateway.APIKey,
		ChecksumSecret: cfg.Gateway.ChecksumSecret,
		ReturnURL:      cfg.Gateway.ReturnURL,
		CancelURL:      cfg.Gateway.CancelURL,
		RequestTimeout: cfg.Gateway.RequestTimeout,
	}, log)

	policy := payment.Policy{
		TestMode:    cfg.Gateway.TestMode,
		TestAmount:  cfg.Gateway.TestAmount,
		DemoCeiling: cfg.Gateway.DemoCeiling,
	}

	reconciler := payment.NewReconciler(orderRepo, paymentRepo, inventoryService, bus, policy, log)
	mapper := payment.NewMapper(paymentRepo, log)
	intents := payment.NewIntentService(gatewayClient, orderRepo, paymentRepo, cfg.Gateway.MinAmount, log)

	baseHandler := transport.NewBaseHandler(log)
	paymentHandler := payment.NewHandler(baseHandler, intents, reconciler, log)
	webhookHandler := payment.NewWebhookHandler(baseHandler, reconciler, mapper, paymentRepo, cfg.Gateway.ChecksumSecret, log)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, paymentHandler, webhookHandler, cfg, log)

	return &Dependencies{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Router:    router,
		Publisher: publisher,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
