package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edulink-id/studyfair-backend/api/controllers"
	webhookcontrollers "github.com/edulink-id/studyfair-backend/api/controllers/webhooks"
	"github.com/edulink-id/studyfair-backend/api/middleware"
	"github.com/edulink-id/studyfair-backend/internal/bookings"
	"github.com/edulink-id/studyfair-backend/internal/payments"
	midtranswebhook "github.com/edulink-id/studyfair-backend/internal/webhooks/midtrans"
	"github.com/edulink-id/studyfair-backend/pkg/config"
	"github.com/edulink-id/studyfair-backend/pkg/db"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bookingService *bookings.Service,
	chargeService *payments.ChargeService,
	checkService *payments.CheckService,
	syncService *payments.SyncService,
	engine *payments.Engine,
	paymentsRepo payments.Repository,
	webhookService *midtranswebhook.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	chargePolicy := middleware.NewPaymentRateLimitPolicy(
		"charge",
		cfg.RateLimit.ChargeWindow,
		cfg.RateLimit.ChargeIPLimit,
		cfg.RateLimit.ChargeOrderLimit,
	)
	checkPolicy := middleware.NewPaymentRateLimitPolicy(
		"check",
		cfg.RateLimit.CheckWindow,
		cfg.RateLimit.CheckIPLimit,
		cfg.RateLimit.CheckOrderLimit,
	)

	chargeLimit := passthrough
	checkLimit := passthrough
	if redisClient != nil {
		chargeLimit = middleware.PaymentRateLimit(chargePolicy, redisClient, logg)
		checkLimit = middleware.PaymentRateLimit(checkPolicy, redisClient, logg)
	}

	var redisP pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bookings", controllers.CreateBooking(bookingService, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(chargeLimit).Post("/charge", controllers.ChargePayment(cfg, chargeService, logg))
			r.With(checkLimit).Get("/check", controllers.CheckPayment(cfg, checkService, logg))
			r.Post("/reconcile", controllers.ReconcilePayment(cfg, engine, syncService, logg))
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/midtrans", webhookcontrollers.MidtransWebhook(webhookService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin.String(), logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/{bookingId}/cancel", controllers.CancelBooking(bookingService, logg))
			r.Get("/{bookingId}/payment-logs", controllers.AdminBookingPaymentLogs(paymentsRepo, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/charge", controllers.ChargePayment(cfg, chargeService, logg))
			r.Get("/check", controllers.CheckPayment(cfg, checkService, logg))
			r.Post("/reconcile", controllers.ReconcilePayment(cfg, engine, syncService, logg))
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}

type pinger interface {
	Ping(ctx context.Context) error
}
