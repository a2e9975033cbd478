package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/config"
	"github.com/tendant/simple-verify/pkg/db"
	"github.com/tendant/simple-verify/pkg/emailverification"
	"github.com/tendant/simple-verify/pkg/emailverification/api"
	"github.com/tendant/simple-verify/pkg/identity"
	"github.com/tendant/simple-verify/pkg/logging"
	"github.com/tendant/simple-verify/pkg/metrics"
	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Format, cfg.Logging.Level, os.Stdout)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	v := cfg.Verification
	slog.Info("Starting email verification service", "persistence", v.Persistence, "notifier", v.Notifier)
	if v.Persistence == "file" {
		slog.Info("Using file persistence", "data_dir", v.DataDir)
	}

	var pool *pgxpool.Pool
	if v.Persistence == "postgres" {
		if err := db.Migrate(cfg.Database.URL, "up"); err != nil {
			slog.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
		pool, err = db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("Database connected")
	}

	directory, err := identity.NewDirectory(v.Persistence, identity.RepositoryConfig{Pool: pool, DataDir: v.DataDir})
	if err != nil {
		slog.Error("Failed to create identity directory", "error", err)
		os.Exit(1)
	}
	seedUsers(ctx, directory, v.SeedUsers)

	auditLog, err := audit.NewLog(v.Persistence, audit.RepositoryConfig{Pool: pool, DataDir: v.DataDir})
	if err != nil {
		slog.Error("Failed to create audit log", "error", err)
		os.Exit(1)
	}

	store, err := emailverification.NewTokenStore(v.Persistence, emailverification.RepositoryConfig{Pool: pool, DataDir: v.DataDir}, v.StoreOptions()...)
	if err != nil {
		slog.Error("Failed to create token store", "error", err)
		os.Exit(1)
	}

	locker, err := ratelimit.NewLocker(v.Persistence, pool)
	if err != nil {
		slog.Error("Failed to create send lock", "error", err)
		os.Exit(1)
	}

	notifier, async, err := newNotifier(cfg)
	if err != nil {
		slog.Error("Failed to initialize notifier", "error", err)
		os.Exit(1)
	}

	opts := append(v.ServiceOptions(cfg.Server.FrontendURL),
		emailverification.WithNotifier(notifier),
		emailverification.WithSendLocker(locker),
	)
	service := emailverification.NewService(
		store,
		directory,
		auditLog,
		ratelimit.NewSendLimiter(auditLog, v.LimiterOptions()...),
		opts...,
	)

	if v.DevVisibleCodes {
		slog.Warn("Verification codes are returned in API responses; do not enable this in production")
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	server := app.DefaultApp()
	setupRoutes(server.R, api.NewHandler(service), reg)

	server.Run()

	if async != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := async.Close(shutdownCtx); err != nil {
			slog.Error("Pending notifications were not delivered", "error", err)
		}
	}
}

func setupRoutes(r *chi.Mux, handler *api.Handler, reg *prometheus.Registry) {
	app.RoutesHealthz(r)
	r.Handle("/metrics", metrics.Handler(reg))

	r.Route("/api/email-verification", func(r chi.Router) {
		r.Use(middleware.RequestID, middleware.RealIP, metrics.Middleware)
		r.Mount("/", handler.Routes())
	})
}

// newNotifier builds the delivery chain selected by VERIFY_NOTIFIER. The
// returned AsyncNotifier is nil when deliveries run inline.
func newNotifier(cfg *config.Config) (notification.Notifier, *notification.AsyncNotifier, error) {
	var transport notification.Transport
	switch cfg.Verification.Notifier {
	case "none":
		return notification.NoopNotifier{}, nil, nil
	case "log":
		transport = notification.NewLogTransport(slog.Default())
	case "smtp":
		smtp, err := notification.NewSMTPTransport(cfg.Email.ToSMTPConfig())
		if err != nil {
			return nil, nil, err
		}
		transport = smtp
	case "resend":
		transport = notification.NewResendTransport(cfg.Resend.APIKey, cfg.Resend.From)
	default:
		return nil, nil, errors.New("unknown notifier " + cfg.Verification.Notifier)
	}

	manager, err := notification.NewNotificationManager(transport, notification.WithDefaultTemplates())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verification.AsyncLimit == 0 {
		return manager, nil, nil
	}
	async := notification.NewAsyncNotifier(manager, cfg.Verification.AsyncLimit)
	return async, async, nil
}

// seedUsers creates the configured accounts that do not exist yet.
func seedUsers(ctx context.Context, dir identity.Directory, emails []string) {
	seeder, ok := dir.(identity.Seeder)
	if !ok || len(emails) == 0 {
		return
	}
	for _, email := range emails {
		_, err := dir.FindByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, identity.ErrUserNotFound) {
			slog.Error("Failed to look up seed user", "email", email, "error", err)
			continue
		}
		if _, err := seeder.Insert(ctx, email); err != nil {
			slog.Error("Failed to seed user", "email", email, "error", err)
			continue
		}
		slog.Info("Seeded user", "email", identity.NormalizeEmail(email))
	}
}
