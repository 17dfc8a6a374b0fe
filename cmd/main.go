package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maxxpharm/config"
	"maxxpharm/internal/handler"
	"maxxpharm/internal/metrics"
	"maxxpharm/traits/database"
	"maxxpharm/traits/logger"

	"github.com/go-telegram/bot"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const maintenanceInterval = 24 * time.Hour

func main() {
	// Initialize configuration
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	zapLogger, err := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("🌟 Starting Maxxpharm bot...", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.OpenSQLite(ctx, database.SQLiteDSN(cfg.DBName))
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	zapLogger.Info("Database connected successfully", zap.String("db", cfg.DBName))

	if err := database.Prepare(db); err != nil {
		zapLogger.Fatal("Failed to prepare database", zap.Error(err))
	}

	// Sample catalog only outside production
	if !cfg.Production() {
		if err := database.SeedData(db); err != nil {
			zapLogger.Warn("Failed to seed sample data", zap.Error(err))
		}
	}

	rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	handle := handler.NewHandler(cfg, zapLogger, db, rdb, metrics.NewCollector())

	// Initialize Telegram bot
	var b *bot.Bot
	if cfg.Token != "" {
		b, err = bot.New(cfg.Token,
			bot.WithDefaultHandler(handle.DefaultHandler),
			bot.WithMiddlewares(handle.Throttle),
		)
		if err != nil {
			zapLogger.Fatal("Failed to initialize Telegram bot", zap.Error(err))
		}
		handle.SetBot(b)
		zapLogger.Info("Telegram bot initialized successfully")
	} else {
		zapLogger.Warn("No Telegram bot token provided, running without bot integration")
	}

	go func() {
		if err := handle.StartWebServer(ctx); err != nil {
			zapLogger.Error("Web server stopped", zap.Error(err))
			stop()
		}
	}()

	if b != nil {
		go func() {
			zapLogger.Info("Starting Telegram bot...")
			b.Start(ctx)
		}()
	}

	go func() {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			if err := handle.Maintenance(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("Maintenance failed", zap.Error(err))
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	zapLogger.Info("🛑 Shutdown signal received, stopping Maxxpharm bot...")

	// Let the web server and bot loop drain
	time.Sleep(time.Second)

	closeErr := multierr.Combine(
		database.CloseRedis(rdb, zapLogger),
		db.Close(),
	)
	if closeErr != nil {
		zapLogger.Error("Error during shutdown", zap.Error(closeErr))
	}

	zapLogger.Info("✅ Maxxpharm bot stopped gracefully")
}
