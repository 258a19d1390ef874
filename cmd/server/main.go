package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridechat/internal/config"
	handlers "ridechat/internal/handlers/shared"
	"ridechat/internal/middleware"
	"ridechat/internal/repositories/mongodb"
	"ridechat/internal/services"
	"ridechat/pkg/cache"
	"ridechat/pkg/database"
	"ridechat/pkg/logger"
	"ridechat/pkg/websocket"
	"ridechat/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Storage
	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.NewMigrator(db.Database, cfg.Database.ChatsCollection, appLogger).Up(ctx)
		cancel()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	var chatCache services.CacheService
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			IdleTimeout:  cfg.Redis.IdleTimeout,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			UseTLS:       cfg.Redis.SSL,
		})
		if err != nil {
			// The cache only fronts MongoDB, so run without it.
			appLogger.WithError(err).Warn("Redis unavailable, chat cache disabled")
		} else {
			defer redisCache.Close()
			chatCache = redisCache
		}
	}

	// Services
	chatRepo := mongodb.NewChatRepository(db.Collection(cfg.Database.ChatsCollection), chatCache, cfg.Redis.ChatCacheTTL)
	authService := services.NewAuthService(cfg.Security.JWTSecret, cfg.Security.JWTAccessTokenTTL, appLogger)
	chatService := services.NewChatService(chatRepo, appLogger)

	// Realtime gateway
	wsHandler := websocket.NewHandler(websocket.Config{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		WriteWait:         cfg.WebSocket.WriteWait,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBufferSize:    cfg.WebSocket.SendBufferSize,
		HandlerTimeout:    cfg.WebSocket.HandlerTimeout,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, websocket.NewRegistry(), authService, chatService, appLogger, prometheus.DefaultRegisterer)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(chatService, appLogger)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies(cfg.Security.TrustedProxies)); err != nil {
		appLogger.WithError(err).Fatal("Invalid TRUSTED_PROXIES")
	}

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	if cfg.Metrics.Enabled {
		router.Use(middleware.NewHTTPMetrics(prometheus.DefaultRegisterer).Middleware())
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API routes
	v1 := router.Group("/api/v1")
	{
		// Chat routes
		routes.SetupChatRoutes(v1, chatHandler, authService)
	}

	router.GET(cfg.WebSocket.Path, wsHandler.HandleWebSocket)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"mongodb": "ok"}
		if err := db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["mongodb"] = err.Error()
		}
		if chatCache != nil {
			checks["redis"] = "ok"
			if err := chatCache.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
			}
		}

		healthStatus := "healthy"
		if status != http.StatusOK {
			healthStatus = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":             healthStatus,
			"version":            cfg.App.Version,
			"checks":             checks,
			"active_connections": wsHandler.Registry().Count(),
		})
	})

	// Start server
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	wsHandler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Server forced to shut down")
	}
}

func trustedProxies(proxies []string) []string {
	if len(proxies) == 0 {
		return nil
	}
	return proxies
}
