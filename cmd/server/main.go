package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"cardlink/backend/internal/auth"
	"cardlink/backend/internal/config"
	"cardlink/backend/internal/database"
	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/handler"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/logger"
	"cardlink/backend/internal/relationship"
	"cardlink/backend/internal/repair"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	// Swagger imports
	_ "cardlink/backend/docs" // registers the swagger spec

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Cardlink API
// @version         1.0
// @description     Connection requests between users and the derived connection graph.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		// The logger is configured from cfg, so fall back to a default one.
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}

	cache, closeCache, err := graphcache.New(ctx, db, graphcache.Options{
		Backend:       cfg.CacheBackend,
		RedisURL:      cfg.RedisURL,
		Neo4jURI:      cfg.Neo4jURI,
		Neo4jUser:     cfg.Neo4jUser,
		Neo4jPassword: cfg.Neo4jPassword,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(context.Background()); err != nil {
			log.Warn("close graph cache", zap.Error(err))
		}
	}()
	log.Info("graph cache ready", zap.String("backend", cfg.CacheBackend))

	l := ledger.New(db)
	scheduler := repair.NewScheduler(l, cache, log.Named("repair"), cfg.RepairQueueSize)
	go scheduler.Run(ctx)

	svc := relationship.NewService(l, cache, log.Named("relationship"),
		relationship.WithFaultReporter(scheduler),
		relationship.WithCacheRetry(cfg.CacheRetryAttempts, 50*time.Millisecond),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, log, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server is running", zap.String("addr", cfg.HTTPAddr))
		log.Info("Swagger UI is available at /swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, log *zap.Logger, svc *relationship.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log.Named("http")))

	corsConfig := cors.DefaultConfig()
	if origins := cfg.Origins(); len(origins) == 0 || slices.Contains(origins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(cfg.JWTSecret))
	handler.NewConnectionHandler(svc, log.Named("handler")).RegisterRoutes(apiV1)

	return router
}
