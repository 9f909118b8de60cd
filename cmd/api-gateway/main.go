package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/auth"
	"github.com/noah-isme/videotube-api/internal/handler"
	"github.com/noah-isme/videotube-api/internal/middleware"
	"github.com/noah-isme/videotube-api/internal/repository"
	"github.com/noah-isme/videotube-api/internal/service"
	"github.com/noah-isme/videotube-api/pkg/cache"
	"github.com/noah-isme/videotube-api/pkg/config"
	"github.com/noah-isme/videotube-api/pkg/database"
	"github.com/noah-isme/videotube-api/pkg/logger"
)

// @title VideoTube API
// @version 1.0.0
// @description Account registration, login and session token lifecycle
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, pinger, closeStore, err := openStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open credential store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	validate := validator.New()
	codec := auth.NewTokenCodec(cfg.Auth)
	hasher := auth.NewPasswordHasher(cfg.Auth)

	authSvc := service.NewAuthService(store, codec, hasher, validate, metrics, logr.Named("auth"))
	userSvc := service.NewUserService(store, hasher, validate, metrics, logr.Named("users"))

	router := handler.NewRouter(handler.RouterDeps{
		Config:  cfg,
		Logger:  logr,
		Metrics: metrics,
		Gate:    middleware.JWT(authSvc),
		Auth:    handler.NewAuthHandler(authSvc, cfg.Cookie),
		Users:   handler.NewUserHandler(userSvc),
		Ops:     handler.NewMetricsHandler(metrics, pinger),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (repository.CredentialStore, handler.Pinger, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		store := repository.NewRedisUserRepository(client, cfg.Redis.KeyPrefix, logr.Named("store"))
		return store, cache.Pinger{Client: client}, func() { _ = client.Close() }, nil
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return repository.NewUserRepository(db), db, func() { _ = db.Close() }, nil
	}
}
