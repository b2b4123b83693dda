package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/minibank/ledger-service/internal/config"
	"github.com/minibank/ledger-service/internal/handler"
	"github.com/minibank/ledger-service/internal/logging"
	"github.com/minibank/ledger-service/internal/middleware"
	"github.com/minibank/ledger-service/internal/repository"
	"github.com/minibank/ledger-service/internal/service"
	"github.com/minibank/ledger-service/internal/service/transfer"
	"github.com/minibank/ledger-service/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	ctx := context.Background()
	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	accountSvc := service.NewAccountService(accountRepo, transactionRepo, db)
	querySvc := service.NewQueryService(accountRepo, transactionRepo, cfg.HistoryMaxPageSize)
	transferSvc, err := transfer.NewService(accountRepo, transactionRepo, db, cfg)
	if err != nil {
		slog.Error("failed to build transfer engine", "error", err)
		os.Exit(1)
	}

	jwtExpiry := time.Duration(cfg.JWTExpiryH) * time.Hour
	authHandler := handler.NewAuthHandler(userRepo, cfg.JWTSecret, jwtExpiry)
	userHandler := handler.NewUserHandler(userRepo)
	accountHandler := handler.NewAccountHandler(accountSvc, querySvc)
	transferHandler := handler.NewTransferHandler(transferSvc, transactionRepo, querySvc)
	healthHandler := handler.NewHealthHandler(db)

	go cleanIdempotencyCache(idempotencyRepo)

	authed := middleware.Auth(cfg.JWTSecret)
	idempotent := middleware.Idempotency(idempotencyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.Handle("GET /api/v1/auth/me", authed(http.HandlerFunc(userHandler.Me)))
	mux.Handle("PUT /api/v1/auth/me", authed(http.HandlerFunc(userHandler.UpdateMe)))

	mux.Handle("POST /api/v1/accounts", authed(http.HandlerFunc(accountHandler.Create)))
	mux.Handle("GET /api/v1/accounts", authed(http.HandlerFunc(accountHandler.List)))
	mux.Handle("GET /api/v1/accounts/{id}", authed(http.HandlerFunc(accountHandler.GetByID)))
	mux.Handle("GET /api/v1/accounts/number/{number}", authed(http.HandlerFunc(accountHandler.GetByNumber)))
	mux.Handle("PUT /api/v1/accounts/{id}", authed(http.HandlerFunc(accountHandler.Update)))
	mux.Handle("DELETE /api/v1/accounts/{id}", authed(http.HandlerFunc(accountHandler.Delete)))
	mux.Handle("GET /api/v1/accounts/{id}/transactions", authed(http.HandlerFunc(transferHandler.History)))
	mux.Handle("GET /api/v1/transactions/{id}", authed(http.HandlerFunc(transferHandler.GetByID)))

	// Transfers move money; retries must be deduplicated.
	mux.Handle("POST /api/v1/transfers", authed(idempotent(http.HandlerFunc(transferHandler.Create))))

	root := middleware.RequestID(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}

// cleanIdempotencyCache periodically drops expired response cache rows so
// the table does not grow without bound.
func cleanIdempotencyCache(repo *repository.IdempotencyRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		n, err := repo.CleanExpired(context.Background())
		if err != nil {
			slog.Warn("idempotency cache cleanup failed", "error", err)
			continue
		}
		if n > 0 {
			slog.Debug("idempotency cache cleaned", "removed", n)
		}
	}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("runMigrations: source: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("runMigrations: driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("runMigrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("runMigrations: up: %w", err)
	}

	slog.Info("migrations applied")
	return nil
}
