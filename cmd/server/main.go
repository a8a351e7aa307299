package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/lib/pq"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"eventrental/internal/api"
	"eventrental/internal/clock"
	"eventrental/internal/config"
	"eventrental/internal/db"
	"eventrental/internal/logger"
	"eventrental/internal/repository"
	"eventrental/internal/service"
)

type store interface {
	service.InventoryStore
	service.OrderStore
	service.CatalogStore
	service.AdminStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	stripe.Key = cfg.StripeSecretKey

	availability := service.NewAvailabilityService(st, log, service.WithHoldTTL(cfg.HoldTTL))
	notifier := service.NewNotificationService(
		service.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName),
		service.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber),
		cfg.Currency, log)
	payments := service.NewStripeService(service.StripeConfig{
		Currency:   cfg.Currency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		SessionTTL: cfg.CheckoutSessionTTL,
	}, log)
	checkout := service.NewCheckoutService(st, availability, payments, notifier, log,
		service.WithRetry(cfg.CheckoutMaxAttempts, cfg.CheckoutBackoff),
		service.WithDeliveryFee(cfg.DeliveryFeeCents))
	quotes := service.NewQuoteService(st, cfg.DeliveryFeeCents)
	catalog := service.NewAdminService(st)
	adminAuth := service.NewAdminAuthService(st, cfg.JWTSecret, clock.NewSystem())
	jobs := service.NewJobService(availability, log)

	seedAdmin(adminAuth, cfg, log)

	if err := jobs.Start(cfg.SweepSchedule); err != nil {
		log.Fatal("failed to schedule sweep", zap.Error(err))
	}

	router := api.NewRouter(api.Handlers{
		User:      api.NewUserHandler(availability, checkout, quotes, catalog, log),
		Admin:     api.NewAdminHandler(checkout, catalog, quotes, jobs, log),
		AdminAuth: api.NewAdminAuthHandler(adminAuth, log),
		Stripe:    api.NewStripeWebhookHandler(cfg.StripeWebhookSecret, checkout, log),
	}, cfg.JWTSecret)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.CombinedLoggingHandler(logger.Writer(log), cors(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server running", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	jobs.Stop()
	notifier.Wait()
}

func openStore(cfg *config.Config, log *zap.Logger) (store, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	conn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := db.Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return repository.NewPostgresStore(conn, cfg.DBLockTimeout), func() { _ = conn.Close() }, nil
}

func seedAdmin(auth service.AdminAuthService, cfg *config.Config, log *zap.Logger) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := auth.CreateAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	switch {
	case err == nil:
		log.Info("admin account created", zap.String("email", cfg.AdminEmail))
	case errors.Is(err, repository.ErrAdminExists):
	default:
		log.Error("failed to create admin account", zap.Error(err))
	}
}
