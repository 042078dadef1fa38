// Generation Orchestration Engine server - manages durable search and mail
// generation orders against a Provider Gateway and dispatches live events.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimbussearch/genengine/internal/config"
	"github.com/nimbussearch/genengine/internal/events"
	"github.com/nimbussearch/genengine/internal/executor"
	"github.com/nimbussearch/genengine/internal/lease"
	"github.com/nimbussearch/genengine/internal/pipeline"
	"github.com/nimbussearch/genengine/internal/provider"
	"github.com/nimbussearch/genengine/internal/queue"
	"github.com/nimbussearch/genengine/internal/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	log.Printf("Starting Generation Orchestration Engine")
	log.Printf("Config Directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database, migrations applied")

	gw, closeGateway, err := provider.New(cfg.Provider)
	if err != nil {
		log.Fatalf("Failed to build provider gateway: %v", err)
	}
	defer func() {
		if err := closeGateway(); err != nil {
			log.Printf("Error closing provider gateway: %v", err)
		}
	}()
	log.Printf("provider gateway ready (kind=%s)", cfg.Provider.Kind)

	dispatch := events.NewDispatcher(st)
	leases := lease.NewManager(st)
	cache := config.NewRuntimeCache(st, cfg.Retry, cfg.Mail, 0)
	exec := executor.New(st, cache)

	search := pipeline.NewSearchGeneration(gw, st, dispatch, leases, exec)
	mail := pipeline.NewMailReply(gw, st, dispatch, exec, cache)
	orderRouter := pipeline.NewRouter(search, mail)

	pool := queue.NewWorkerPool(st, dispatch, leases, cfg.Queue, orderRouter)
	pool.Start(ctx)
	log.Printf("worker pool started (workers=%d)", cfg.Queue.WorkerCount)

	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())

	httpRouter.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := store.Health(reqCtx, st.DB())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbHealth,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": dbHealth,
			"workers":  pool.Health(),
		})
	})

	srv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: httpRouter,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		log.Printf("Health check available at: http://localhost:%s/health", httpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	pool.Stop()
	slog.Info("shutdown complete")
}
