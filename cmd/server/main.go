package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/api"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/auth"
	"github.com/lalith-99/disruptionhub/internal/config"
	"github.com/lalith-99/disruptionhub/internal/db"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/notify"
	"github.com/lalith-99/disruptionhub/internal/observ"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"github.com/lalith-99/disruptionhub/internal/repository/memory"
	"github.com/lalith-99/disruptionhub/internal/repository/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is everything that differs between the postgres and memory backends.
type stores struct {
	accounts      repository.AccountRepository
	alerts        repository.AlertRepository
	items         repository.ActionItemRepository
	notifications repository.NotificationRepository
	revoked       auth.RevocationSet
	health        func(ctx context.Context) error
	close         func()
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config and create the logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Cancelled on SIGINT/SIGTERM; drives graceful shutdown below.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Storage
	//
	// STORE=postgres uses pgx for all records and Redis for the token
	// revocation set. STORE=memory keeps everything in-process and seeds
	// a demo account; handy for local work, useless across restarts.
	// ---------------------------------------------------------------
	var st *stores
	switch cfg.Store {
	case config.StoreMemory:
		st, err = memoryStores(ctx, logger)
	default:
		st, err = postgresStores(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}
	defer st.close()

	// ---------------------------------------------------------------
	// 3. Metrics
	// ---------------------------------------------------------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observ.NewMetrics(reg)

	// ---------------------------------------------------------------
	// 4. Domain services
	// ---------------------------------------------------------------
	authority := auth.NewAuthority(st.accounts, st.revoked, cfg.JWTSecret, logger, auth.WithTTL(cfg.TokenTTL))
	hub := realtime.NewHub(logger)
	svc := actionhub.NewService(st.items, st.alerts, st.accounts, audit.NewZapSink(logger), hub, logger,
		actionhub.WithMetrics(metrics),
	)
	dispatcher := notify.NewDispatcher(svc, st.accounts, st.alerts, st.notifications,
		notify.NewLogMailer(logger), cfg.AppBaseURL, logger,
		notify.WithConcurrency(cfg.NotifyConcurrency),
		notify.WithMetrics(metrics),
	)

	// ---------------------------------------------------------------
	// 5. HTTP server
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		Authority:      authority,
		Service:        svc,
		Dispatcher:     dispatcher,
		Hub:            hub,
		Accounts:       st.accounts,
		Notifications:  st.notifications,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		HealthCheck:    st.health,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting DisruptionHub",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Store),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Websocket connections are hijacked and not tracked by Shutdown; they
	// end when the process exits.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func postgresStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		database.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", opts.Addr))

	// Every repo shares the pool; it is goroutine-safe.
	pool := database.Pool()
	return &stores{
		accounts:      postgres.NewAccountStore(pool),
		alerts:        postgres.NewAlertStore(pool),
		items:         postgres.NewActionItemStore(pool),
		notifications: postgres.NewNotificationStore(pool),
		revoked:       auth.NewRedisRevocationSet(rdb),
		health: func(ctx context.Context) error {
			if err := database.Health(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		close: func() {
			_ = rdb.Close()
			database.Close()
		},
	}, nil
}

const (
	demoEmail    = "demo@disruptionhub.local"
	demoPassword = "demo-password"
)

func memoryStores(ctx context.Context, logger *zap.Logger) (*stores, error) {
	accounts := memory.NewAccountStore()
	alerts := memory.NewAlertStore()

	hash, err := auth.HashSecret(demoPassword)
	if err != nil {
		return nil, err
	}
	demo := &models.Account{
		ID:           uuid.New(),
		Email:        demoEmail,
		DisplayName:  "Demo Hotel",
		Role:         models.RoleUser,
		Premium:      true,
		Status:       models.AccountActive,
		PasswordHash: hash,
		Collaborators: []models.Collaborator{
			{Email: "manager@disruptionhub.local", Name: "Duty Manager", Role: models.RoleManager, Status: models.CollaboratorActive, CredentialHash: hash},
			{Email: "viewer@disruptionhub.local", Name: "Front Desk", Role: models.RoleViewer, Status: models.CollaboratorActive, CredentialHash: hash},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := accounts.Save(ctx, demo); err != nil {
		return nil, err
	}
	alert := &models.Alert{
		ID:          uuid.New(),
		Title:       "Air traffic control strike",
		Description: "Departures delayed or cancelled until further notice.",
		City:        "Paris",
		Country:     "FR",
		CreatedAt:   time.Now().UTC(),
	}
	alerts.Put(alert)

	logger.Warn("using in-memory store; data is lost on restart",
		zap.String("demo_login", demoEmail),
		zap.String("demo_password", demoPassword),
		zap.Stringer("demo_alert_id", alert.ID),
	)
	return &stores{
		accounts:      accounts,
		alerts:        alerts,
		items:         memory.NewActionItemStore(),
		notifications: memory.NewNotificationStore(),
		revoked:       auth.NewMemoryRevocationSet(time.Now),
		close:         func() {},
	}, nil
}
