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

	"github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/events"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
	"github.com/frahmantamala/subscription-billing/internal/subscription"
	subscriptionpg "github.com/frahmantamala/subscription-billing/internal/subscription/postgres"
	"github.com/frahmantamala/subscription-billing/internal/transport"
	"github.com/frahmantamala/subscription-billing/internal/transport/middleware"
	"github.com/frahmantamala/subscription-billing/internal/transport/rest"
	"github.com/frahmantamala/subscription-billing/internal/transport/swagger"
	"github.com/frahmantamala/subscription-billing/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	if err := swagger.ValidateSpec(context.Background(), "./api/openapi.yml"); err != nil {
		slog.Warn("openapi spec validation failed; swagger UI may be degraded", "error", err)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config

	deps.Router.Use(middleware.RequestID)
	deps.Router.Use(middleware.LoggingMiddleware(deps.Logger))

	eventBus := events.NewEventBus(deps.Logger)
	events.RegisterLoggingHandlers(eventBus, deps.Logger)

	registry := gateway.NewRegistry()
	if cfg.Gateways.Stripe.SecretKey != "" {
		registry.Register(gateway.NewStripeClient(cfg.Gateways.Stripe, cfg.Gateways.CallTimeout, logger.ForGateway("stripe")))
	}
	if cfg.Gateways.Razorpay.KeyID != "" {
		registry.Register(gateway.NewRazorpayClient(cfg.Gateways.Razorpay, cfg.Gateways.CallTimeout, logger.ForGateway("razorpay")))
	}
	registry.SetDefault(cfg.Gateways.Default)
	slog.Info("payment gateways registered", "gateways", registry.Names(), "default", registry.DefaultName())

	subscriptionRepo := subscriptionpg.NewSubscriptionRepository(deps.GormDB)
	paymentRepo := subscriptionpg.NewPaymentRepository(deps.GormDB)
	planRepo := subscriptionpg.NewPlanRepository(deps.GormDB)
	userRepo := subscriptionpg.NewUserRepository(deps.GormDB)
	txManager := subscriptionpg.NewTxManager(deps.GormDB)

	service := subscription.NewService(subscriptionRepo, paymentRepo, planRepo, userRepo, registry, eventBus, deps.Logger)
	engine := subscription.NewEngine(txManager, planRepo, eventBus, deps.Logger)

	baseHandler := transport.NewBaseHandler(deps.Logger)
	subscriptionHandler := subscription.NewHandler(service)
	webhookHandler := subscription.NewWebhookHandler(baseHandler, registry, engine)

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, subscriptionHandler, webhookHandler, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	router := chi.NewRouter()

	return &Dependencies{
		Config: config,
		Logger: logger.LoggerWrapper(),
		DB:     db,
		GormDB: gormDB,
		Router: router,
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
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the already opened connection pool so gorm and sqlx share
// one pool instead of competing for connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpg.New(gormpg.Config{Conn: db.DB}), &gorm.Config{})
}
