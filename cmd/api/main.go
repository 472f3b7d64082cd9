package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lendfast/drawbridge/internal/auth"
	"github.com/lendfast/drawbridge/internal/background"
	"github.com/lendfast/drawbridge/internal/config"
	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/handlers"
	"github.com/lendfast/drawbridge/internal/identity"
	"github.com/lendfast/drawbridge/internal/limiter"
	middlewareCustom "github.com/lendfast/drawbridge/internal/middleware"
	"github.com/lendfast/drawbridge/internal/repositories"
	"github.com/lendfast/drawbridge/internal/routes"
	"github.com/lendfast/drawbridge/internal/services"
	pkghttp "github.com/lendfast/drawbridge/pkg/http"
	pkglogger "github.com/lendfast/drawbridge/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	auditLogRepo := repositories.NewAuditLogRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	mfaDeviceRepo := repositories.NewMFADeviceRepository(db.Pool)
	statementExecutor := repositories.NewStatementExecutor(db)

	// Token manager: access tokens for the portal, elevated tokens for the
	// console write path
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.ElevatedTokenExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.MFAEncryptionKey, cfg.Auth.MFAIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Identity provider client
	idpClient := identity.NewClient(identity.Config{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
		Timeout: cfg.Identity.Timeout,
	}, logger)

	// In-memory attempt tracker with the per-action presets
	tracker := limiter.NewTracker()

	// Audit service writes both the structured feed and the durable table
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditLogRepo, auditLogger, logger)

	// Durable write throttle for the admin console
	throttleService := services.NewThrottleService(rateLimitRepo, services.ThrottleConfig{
		MaxRequests: cfg.Throttle.AdminWriteLimit,
		Window:      cfg.Throttle.AdminWriteWindow,
	}, logger)

	// Timing delay equalizes locked-out and failed sign-ins
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    100,
		RandomDelayMs:  100,
		DelayOnSuccess: true,
	})

	// Lockout alerts are optional; audit and logs always record lockouts
	var alerter services.LockoutAlerter
	if cfg.Alerts.Enabled {
		sesAlerter, err := services.NewAWSSESAlertService(
			cfg.Alerts.AWSRegion,
			cfg.Alerts.FromAddress,
			cfg.Alerts.SupportURL,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = sesAlerter
	}

	// Denial notices have no UI to land in server-side; sink them into the log
	notifier := limiter.NewLogNotifier(logger)

	// Initialize services
	authService := services.NewAuthService(idpClient, tracker, tokenManager, timingDelay, auditService, alerter, notifier, logger)
	mfaService := services.NewMFAService(mfaDeviceRepo, totpManager, tokenManager, tracker, auditService, notifier, logger)
	consoleService := services.NewConsoleService(statementExecutor, throttleService, auditService, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService)
	consoleHandler := handlers.NewConsoleHandler(consoleService, ipConfig)
	auditHandler := handlers.NewAuditHandler(auditService)
	throttleHandler := handlers.NewThrottleHandler(throttleService)

	// Background sweep of expired counters and attempt windows
	cleanupManager := background.NewCleanupManager(rateLimitRepo, tracker, logger, cfg.Throttle.CleanupInterval)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, mfaHandler, consoleHandler, auditHandler, throttleHandler, tokenManager,
		middlewareCustom.DefaultAuthRateLimit())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
