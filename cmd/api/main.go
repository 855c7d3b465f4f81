package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/libris/internal/http/handlers"
	httpmw "github.com/diagnosis/libris/internal/http/middleware"
	"github.com/diagnosis/libris/internal/notify"
	"github.com/diagnosis/libris/internal/platform/cache"
	"github.com/diagnosis/libris/internal/platform/mailer"
	"github.com/diagnosis/libris/internal/platform/payments"
	"github.com/diagnosis/libris/internal/repo"
	"github.com/diagnosis/libris/internal/repo/memory"
	"github.com/diagnosis/libris/internal/repo/postgres"
	"github.com/diagnosis/libris/internal/service"
	"github.com/diagnosis/libris/pkg/config"
	"github.com/diagnosis/libris/pkg/database"
	"github.com/diagnosis/libris/pkg/events"
	"github.com/diagnosis/libris/pkg/logger"
	mw "github.com/diagnosis/libris/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	// Repositories: Postgres when configured, in-memory otherwise.
	var (
		users    repo.UserRepo
		items    repo.ItemRepo
		loans    repo.LoanRepo
		settings repo.SettingsRepo
	)
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Error("Failed to migrate schema", "error", err)
			os.Exit(1)
		}
		users = postgres.NewUserRepo(pool)
		items = postgres.NewItemRepo(pool)
		loans = postgres.NewLoanRepo(pool)
		settings = postgres.NewSettingsRepo(pool)
		logger.Info("Using Postgres repositories")
	} else {
		users = memory.NewUserRepo()
		items = memory.NewItemRepo()
		loans = memory.NewLoanRepo()
		settings = memory.NewSettingsRepo()
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	// Event bus: NATS when configured.
	var bus events.Publisher = events.NoopBus{}
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nb.Close()
		bus = nb
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// Redis backs rate limiting and idempotency replay when present.
	var idemStore mw.IdempotencyStore = cache.NewMemoryIdempotencyStore()
	var sessionLimiter *httpmw.RateLimiter
	if cfg.Redis.URL != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		idemStore = cache.NewIdempotencyStore(client)
		sessionLimiter = httpmw.NewRateLimiter(client, httpmw.RateLimitConfig{
			Requests: cfg.Library.SessionRateLimit,
			Window:   cfg.Library.SessionRateLimitWindow,
		})
		logger.Info("Connected to redis")
	} else {
		sessionLimiter = httpmw.NewRateLimiter(nil, httpmw.RateLimitConfig{})
		logger.Warn("REDIS_URL not set, session rate limiting disabled")
	}

	mailSvc := newMailer(cfg)
	paySvc := newPayments(cfg)

	svc := service.NewLibraryService(cfg.Library.Name, users, items, loans, settings, bus)
	if err := svc.LoadSettings(ctx); err != nil {
		logger.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	// First boot: persist the configured rate so later restarts agree.
	if v, err := settings.Get(ctx, repo.SettingDailyFineRate); err == nil && v == "" {
		if err := svc.SetDailyFineRate(ctx, decimal.NewFromFloat(cfg.Library.DailyFineRate)); err != nil {
			logger.Warn("Failed to persist initial fine rate", "error", err)
		}
	}

	h := handlers.New(svc, paySvc, cfg.Auth.SessionTTL)
	notifier := notify.New(svc, mailSvc, bus, cfg.Library.OverdueScanInterval)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("libris"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
	r.Use(mw.IdempotencyMiddleware(idemStore))
	r.Mount("/v1", h.Routes(sessionLimiter.Middleware()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("Library API listening", "addr", srv.Addr, "library", cfg.Library.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := notifier.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}
}

func newPayments(cfg *config.Config) payments.Service {
	if cfg.Stripe.SecretKey != "" {
		logger.Info("Stripe payments enabled", "environment", cfg.Stripe.Environment)
		return payments.NewStripeService(cfg.Stripe.SecretKey)
	}
	return payments.NewDevService()
}
