package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/middlewares"
	"github.com/erpweb/erp_backend/models"
	"github.com/erpweb/erp_backend/models/reports"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

type routerDeps struct {
	ready       func() bool
	report      *reports.UndeliveredOrderReport
	exportLock  exportLock
	rateLimiter *middlewares.RateLimiter
	logger      *logrus.Logger
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationIdMiddleware())
	r.Use(middlewares.ReadinessMiddleware(d.ready))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))
	if d.rateLimiter != nil {
		r.Use(d.rateLimiter.RateLimitMiddleware)
	}
	r.Use(customErrorLogger(d.logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")

	auth := &authHandler{logger: d.logger}
	authGroup := api.Group("/auth")
	authGroup.POST("/register", auth.register)
	authGroup.POST("/login", auth.login)
	authGroup.GET("/verify", auth.verify)

	users := &userHandler{logger: d.logger}
	userGroup := api.Group("/users", middlewares.AuthMiddleware())
	userGroup.GET("", users.list)
	userGroup.GET("/:id", users.get)
	userGroup.POST("", users.create)
	userGroup.PUT("/:id", users.update)
	userGroup.DELETE("/:id", users.delete)

	products := &productHandler{logger: d.logger}
	productGroup := api.Group("/products", middlewares.AuthMiddleware())
	productGroup.GET("", products.list)
	productGroup.GET("/:id", products.get)
	productGroup.POST("", products.create)
	productGroup.PUT("/:id", products.update)
	productGroup.DELETE("/:id", products.delete)

	orders := &orderHandler{report: d.report, lock: d.exportLock, logger: d.logger}
	orderGroup := api.Group("/orders", middlewares.AuthMiddleware())
	orderGroup.GET("/test", orders.test)
	orderGroup.GET("/unDeliveryOrders", orders.undeliveredOrders)
	// the client downloads from /v; /export is kept for older callers
	orderGroup.GET("/unDeliveryOrders/v", orders.exportUndeliveredOrders)
	orderGroup.GET("/unDeliveryOrders/export", orders.exportUndeliveredOrders)

	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
}

// Production requires an explicit CORS_ALLOWED_ORIGINS allowlist;
// elsewhere every origin is allowed.
func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationIdHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

// Env:
// - RATE_LIMIT_ENABLED=true
// - RATE_LIMIT_WINDOW_SECONDS=60
// - RATE_LIMIT_MAX_REQUESTS=600
func rateLimiterFromEnv() *middlewares.RateLimiter {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	if !config.RedisConfigured() {
		log.Printf("RATE_LIMIT_ENABLED=true but REDIS_ADDRESS is not set; rate limiting disabled")
		return nil
	}
	limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
	window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	return middlewares.NewRateLimiter(config.GetRedisDB, limit, window)
}

func databasesReady() bool {
	return config.GetDB() != nil && config.GetErpDB() != nil
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	report := reports.NewUndeliveredOrderReport(
		reports.NewGormQuerier(config.GetErpDB),
		reports.OptionsFromEnv(logger),
	)
	r := newRouter(routerDeps{
		ready:       databasesReady,
		report:      report,
		exportLock:  redisExportLock,
		rateLimiter: rateLimiterFromEnv(),
		logger:      logger,
	})

	// Listen first; API routes answer 503 until the databases are connected.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// redis is optional; the rate limiter and export lock pass through until it connects
	go config.ConnectRedisWithRetry(sigCtx)
	config.ConnectDatabaseWithRetry()
	config.ConnectErpDatabaseWithRetry()

	for _, db := range []*gorm.DB{config.GetDB(), config.GetErpDB()} {
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	// AutoMigrate can lock tables; SKIP_MIGRATIONS=true leaves it to a separate job.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
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

	config.CloseRedis()
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

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
