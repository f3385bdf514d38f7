package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edulink-id/studyfair-backend/api/routes"
	"github.com/edulink-id/studyfair-backend/internal/bookings"
	"github.com/edulink-id/studyfair-backend/internal/payments"
	midtranswebhook "github.com/edulink-id/studyfair-backend/internal/webhooks/midtrans"
	"github.com/edulink-id/studyfair-backend/pkg/config"
	"github.com/edulink-id/studyfair-backend/pkg/db"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/metrics"
	"github.com/edulink-id/studyfair-backend/pkg/midtrans"
	"github.com/edulink-id/studyfair-backend/pkg/migrate"
	"github.com/edulink-id/studyfair-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := midtrans.NewClient(context.Background(), cfg.Midtrans, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create midtrans client", err)
		os.Exit(1)
	}

	payMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentsRepo := payments.NewRepository(dbClient.DB())
	ledger := payments.NewLedger(dbClient.DB())

	engine, err := payments.NewEngine(payments.EngineParams{
		TxRunner: dbClient,
		Repo:     paymentsRepo,
		Ledger:   ledger,
		Logger:   logg,
		Metrics:  payMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation engine", err)
		os.Exit(1)
	}

	chargeService, err := payments.NewChargeService(payments.ChargeServiceParams{
		Repo:    paymentsRepo,
		Gateway: gatewayClient,
		Logger:  logg,
		Metrics: payMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create charge service", err)
		os.Exit(1)
	}

	checkService, err := payments.NewCheckService(payments.CheckServiceParams{
		Repo:    paymentsRepo,
		Gateway: gatewayClient,
		Logger:  logg,
		Metrics: payMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create check service", err)
		os.Exit(1)
	}

	syncService, err := payments.NewSyncService(payments.SyncServiceParams{
		Engine:  engine,
		Gateway: gatewayClient,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync service", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:           bookings.NewRepository(dbClient.DB()),
		Engine:         engine,
		Logger:         logg,
		PayTokenSecret: cfg.Payments.PayTokenSecret,
		PayTokenTTL:    cfg.Payments.PayTokenTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	webhookGuard, err := midtranswebhook.NewReplayGuard(redisClient, cfg.Payments.WebhookReplayTTL, "midtrans-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook replay guard", err)
		os.Exit(1)
	}

	webhookService, err := midtranswebhook.NewService(midtranswebhook.ServiceParams{
		Engine:   engine,
		Verifier: gatewayClient,
		Guard:    webhookGuard,
		Logger:   logg,
		Metrics:  payMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			bookingService,
			chargeService,
			checkService,
			syncService,
			engine,
			paymentsRepo,
			webhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
