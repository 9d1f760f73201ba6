package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/api"
	"github.com/mohamedkhairy/feedmix/internal/app"
	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/wsgateway"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting report API service",
		logger.Int("port", cfg.API.Port),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.Bool("auth", cfg.API.JWTSecret != ""),
	)

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize reports pipeline",
			logger.ErrorField(err),
		)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Error closing reports pipeline", logger.ErrorField(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	handlerOpts := []api.HandlerOption{api.WithScanner(a.Watcher)}
	if a.Rankings != nil {
		handlerOpts = append(handlerOpts, api.WithRankings(a.Rankings))
	}

	if cfg.Watcher.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Watcher.Run(ctx); err != nil {
				logger.Error("Report watcher failed", logger.ErrorField(err))
			}
		}()
	}

	router := api.NewRouter(api.NewReportHandler(a.Facade, handlerOpts...), a.Ready)

	// Live ranking updates need the Redis channel
	if a.Rankings != nil {
		hub := wsgateway.NewHub(cfg.WebSocket, a.Rankings, wsgateway.WithUserResolver(func(r *http.Request) string {
			return api.UserID(r.Context())
		}))
		if err := hub.Start(); err != nil {
			logger.Warn("Ranking update stream disabled", logger.ErrorField(err))
		} else {
			defer hub.Stop()
			router.Handle("/ws/rankings", hub)
		}
	}

	// Apply middleware
	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.AuthMiddleware(cfg.API.JWTSecret),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           middlewares(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down report API service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	cancel()
	wg.Wait()

	logger.Info("Report API service stopped")
}
