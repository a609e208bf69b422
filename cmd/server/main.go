package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	docs "github.com/tazhibayda/features-service/docs"
	"github.com/tazhibayda/features-service/internal/config"
	api "github.com/tazhibayda/features-service/internal/http"
	"github.com/tazhibayda/features-service/internal/log"
	"github.com/tazhibayda/features-service/internal/metrics"
	"github.com/tazhibayda/features-service/internal/queue"
	"github.com/tazhibayda/features-service/internal/repo"
	"go.uber.org/zap"
)

// @title Features API
// @version 0.1.0
// @description API for feature requests: submit, like, discuss.
// @schemes http https
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	logger, err := log.Init(cfg.Prod)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := repo.NewStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer store.Close(context.Background())

	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure indexes", zap.Error(err))
	}

	rds := repo.NewRedis(cfg.RedisAddr)
	defer rds.Close()
	if err := rds.Ping(ctx); err != nil {
		// без Redis едем дальше — лимитер сам пропускает
		logger.Warn("redis unavailable", zap.Error(err))
	}

	var pub queue.Publisher
	if p, err := queue.NewPublisher(cfg.RabbitURL); err != nil {
		logger.Warn("rabbit unavailable, events disabled", zap.Error(err))
		pub = queue.NewNoop()
	} else {
		pub = p
	}
	defer pub.Close()

	metrics.MustRegister()
	docs.SwaggerInfo.BasePath = "/"

	h := api.NewHandler(store, rds, pub, cfg.JWTSecret, cfg.AccessTTLMin, cfg.RateLimitPerMin)
	r := api.NewRouter(h)

	srvErr := make(chan error, 1)
	go func() { srvErr <- r.Run(":" + cfg.Port) }()

	logger.Info("features-service listening", zap.String("port", cfg.Port))

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("signal received, shutting down", zap.String("signal", s.String()))
	case err := <-srvErr:
		logger.Error("server error", zap.Error(err))
	}
}
