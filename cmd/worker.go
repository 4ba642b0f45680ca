package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gardenfresh/order-payments/internal/core/events"
	"github.com/gardenfresh/order-payments/internal/inventory"
	inventorypg "github.com/gardenfresh/order-payments/internal/inventory/postgres"
	"github.com/gardenfresh/order-payments/internal/payment"
	paymentpg "github.com/gardenfresh/order-payments/internal/payment/postgres"
	"github.com/gardenfresh/order-payments/pkg/logger"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers like the stale payment sweeper.`,
}

// Expiry sweeper command
var expiryWorkerCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Start the stale payment sweeper",
	Long:  `Periodically expires orders stuck awaiting confirmation past the checkout window`,
	Run: func(cmd *cobra.Command, args []string) {
		startExpiryWorker()
	},
}

var (
	sweepInterval time.Duration
	sweepBatch    int
)

func startExpiryWorker() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus(log)
	orderRepo := paymentpg.NewOrderRepository(gormDB)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	inventoryService := inventory.NewService(inventorypg.NewInventoryRepository(gormDB), bus, log)

	policy := payment.Policy{
		TestMode:    cfg.Gateway.TestMode,
		TestAmount:  cfg.Gateway.TestAmount,
		DemoCeiling: cfg.Gateway.DemoCeiling,
	}
	reconciler := payment.NewReconciler(orderRepo, paymentRepo, inventoryService, bus, policy, log)

	ttl := cfg.Client.QRTTLOrDefault()

	log.Info("starting expiry sweeper",
		"interval", sweepInterval,
		"batch_size", sweepBatch,
		"ttl", ttl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			expired, err := reconciler.ExpireStale(ctx, ttl, sweepBatch)
			if err != nil {
				log.Error("sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				log.Info("expired stale payments", "count", expired)
			}
		}
	}
}

func init() {
	expiryWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", time.Minute, "How often to sweep for stale payments")
	expiryWorkerCmd.Flags().IntVar(&sweepBatch, "batch-size", 100, "Maximum orders expired per sweep")

	workerCmd.AddCommand(expiryWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
