package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/config"
	"github.com/mmdatafocus/pricing_backend/middlewares"
	"github.com/mmdatafocus/pricing_backend/models"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	// In production require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		cfg.AllowOrigins = splitAndTrim(allowedOrigins)
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-requested-by")
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	cfg.AllowCredentials = true
	return cfg
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestContextMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if getEngine() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// cors.New rejects a config that allows no origin at all.
	if cfg := corsConfig(); cfg.AllowAllOrigins || len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cfg))
	}

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if config.EnvBoolDefault("RATE_LIMIT_ENABLED", false) && config.RedisConfigured() {
		limit := int64(600)
		if n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")), 10, 64); err == nil && n > 0 {
			limit = n
		}
		windowSec := int64(60)
		if n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")), 10, 64); err == nil && n > 0 {
			windowSec = n
		}
		r.Use(func(c *gin.Context) {
			// Redis connects after the listener; skip limiting until then.
			if rdb := config.GetRedisDB(); rdb != nil {
				middlewares.NewRateLimiter(rdb, limit, time.Duration(windowSec)*time.Second).Middleware()(c)
				return
			}
			c.Next()
		})
	}

	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/quote", quoteHandler())
	r.POST("/ledger/rebuild", rebuildHandler())
	r.GET("/ledger/:owner_type/:id", ledgerHandler())
	r.GET("/ledger/:owner_type/:id/export", ledgerExportHandler())
	r.POST("/pubsub/ledger", ledgerPubSubHandler())
	r.POST("/internal/ops/exchange-rates/invalidate", invalidateRatesHandler())
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server first; app endpoints return 503 until the
	// engine is ready.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	if config.RedisConfigured() {
		config.ConnectRedisWithRetry()
	} else {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("REDIS_ADDRESS not set; using in-process rate cache and rebuild locks")
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; SKIP_MIGRATIONS=true runs them as a separate job instead.
	if !config.EnvBoolDefault("SKIP_MIGRATIONS", false) {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	current.Store(newEngine(db, logger))
	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("pricing engine listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
