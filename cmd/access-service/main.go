package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medicore/hms-access/internal/access"
	"github.com/medicore/hms-access/internal/audit"
	"github.com/medicore/hms-access/internal/authclient"
	"github.com/medicore/hms-access/internal/session"
	"github.com/medicore/hms-access/pkg/config"
	"github.com/medicore/hms-access/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithComponent("access-service").Info("Starting access-control service")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditMetrics := audit.NewMetrics(registry)
	emitter := audit.NewHTTPEmitter(&cfg.Audit, log, auditMetrics)
	defer emitter.Close()

	authBackend := authclient.NewClient(&cfg.Auth, log)

	bus := access.NewBus()

	durable := session.NewFileTokenStore(cfg.Session.TokenFile)
	ephemeral := session.NewMemoryTokenStore()
	sessions := session.NewStore(authBackend, durable, ephemeral, emitter, bus, log)

	accessMetrics := access.NewMetrics(registry)
	resolver := access.NewResolver()
	override := access.NewController(&cfg.Override, emitter, bus, accessMetrics, log)
	sessions.SetOverrides(override)

	gate := access.NewGate(resolver, override, sessions, emitter, accessMetrics, log)

	// A remembered session survives restart; override state never does.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), cfg.Auth.Timeout())
	if _, err := sessions.Restore(restoreCtx); err != nil {
		log.WithError(err).Info("No session restored at startup")
	}
	cancelRestore()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "access-service",
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	handlers := access.NewHandlers(sessions, gate, override, log)
	handlers.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithFields(map[string]interface{}{"address": server.Addr}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down access-control service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	// Ensure no elevation survives shutdown and the teardown is audited
	// before the emitter drains.
	if err := override.Deactivate(ctx); err != nil {
		log.WithError(err).Warn("Failed to deactivate override during shutdown")
	}

	log.Info("Access-control service stopped")
}
