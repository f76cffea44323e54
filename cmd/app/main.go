// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/config"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	notifyAdapters "membership-payments/internal/infra/adapters/notify"
	payAdapters "membership-payments/internal/infra/adapters/payment"
	"membership-payments/internal/infra/api"
	pg "membership-payments/internal/infra/db/postgres"
	"membership-payments/internal/infra/logging"
	"membership-payments/internal/infra/metrics"
	red "membership-payments/internal/infra/redis"
	"membership-payments/internal/infra/sched"
	"membership-payments/internal/infra/worker"
	"membership-payments/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("membership service stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	if cfg.Database.MigrateOnBoot {
		v, err := pg.MigrateUp(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Uint("version", v).Msg("schema migrated")
	}
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis (optional) ----
	var (
		userRedis   red.RedisClient
		statusCache repository.StatusCache
		limiter     api.UserLimiter
		locker      sched.Locker
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		userRedis = redisClient
		statusCache = red.NewStatusCache(redisClient, cfg.Redis.TTL, logger)
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set: no status cache, per-user limits or job locks")
	}

	// ---- Repositories ----
	var userRepo repository.UserRepository = pg.NewPostgresUserRepo(pool)
	if userRedis != nil {
		userRepo = pg.NewUserRepoCacheDecorator(userRepo, userRedis)
	}
	membershipRepo := pg.NewMembershipRepo(pool)
	transactionRepo := pg.NewTransactionRepo(pool)
	eventRepo := pg.NewProviderEventRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	notifLogRepo := pg.NewNotificationLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment provider ----
	var (
		gateway adapter.PaymentGateway
		parser  api.EventParser
	)
	switch cfg.Payment.Provider {
	case "noop":
		logger.Warn().Msg("payment.provider=noop: intents succeed without charging anyone")
		gateway = payAdapters.NewNoopPaymentGateway()
		parser = payAdapters.NoopWebhook{}
	default:
		sg, err := payAdapters.NewStripeGateway(cfg.Payment.Stripe.SecretKey, logger)
		if err != nil {
			return fmt.Errorf("stripe: %w", err)
		}
		gateway = sg
		parser = payAdapters.NewStripeWebhook(cfg.Payment.Stripe.WebhookSecret)
	}

	// ---- Notifications ----
	var notifier adapter.Notifier = notifyAdapters.NewLogNotifier(logger)
	if cfg.Notification.SMTP.Host != "" {
		notifier = notifyAdapters.NewEmailNotifier(cfg.Notification.SMTP, logger)
	}
	var alerter adapter.AdminAlerter = notifyAdapters.NewLogAlerter(logger)
	if tg := cfg.Notification.Telegram; tg.Token != "" {
		ta, err := notifyAdapters.NewTelegramAlerter(tg.Token, tg.AdminChatID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerter disabled")
		} else {
			alerter = ta
		}
	}

	notifyPool := worker.NewPool(cfg.Notification.Workers, logger)
	notifyPool.Start(ctx)
	defer notifyPool.Stop()

	// ---- Use cases ----
	notifUC := usecase.NewNotificationUseCase(userRepo, membershipRepo, notifLogRepo, notifier, notifyPool, logger)
	membershipUC := usecase.NewMembershipUseCase(usecase.MembershipDeps{
		Memberships:   membershipRepo,
		Transactions:  transactionRepo,
		Events:        eventRepo,
		Audit:         auditRepo,
		Users:         userRepo,
		TxManager:     txManager,
		Gateway:       gateway,
		Notifications: notifUC,
		Alerter:       alerter,
		Cache:         statusCache,
		IsAdmin:       usecase.NewAdminPolicy(cfg.Auth.AdminEmails),
	}, usecase.MembershipOptions{
		RefundWindow:       cfg.Payment.RefundWindow,
		ProviderTimeout:    cfg.Payment.ProviderTimeout,
		ExpiringSoonWindow: cfg.Membership.ExpiringSoonWindow,
		AutoRenewWindow:    cfg.Membership.AutoRenewWindow,
	}, logger)

	// ---- Scheduled jobs ----
	m := cfg.Membership
	jobs := []interface{ Run(context.Context) error }{
		sched.NewExpiryWorker(m.SweepInterval, membershipUC, locker, logger),
		sched.NewPaymentReconciler(m.ReconcileInterval, m.StalePendingAfter, membershipUC, locker, logger),
		sched.NewReminderWorker(m.ReminderInterval, m.ExpiringSoonWindow, notifUC, locker, logger),
		sched.NewAutoRenewWorker(m.AutoRenewInterval, membershipUC, locker, logger),
		sched.NewPoolStatsReporter(30*time.Second, pool, logger),
	}
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j interface{ Run(context.Context) error }) {
			defer wg.Done()
			_ = j.Run(ctx)
		}(j)
	}

	// ---- HTTP ----
	srv := api.NewServer(membershipUC, membershipUC, parser, api.NewAuthManager(cfg.Auth.JWTSecret), limiter, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateRequests:   cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("provider", gateway.Name()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	return nil
}
