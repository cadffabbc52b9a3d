package container

import (
	"context"
	"errors"
	"vidcat/internal/cache"
	"vidcat/internal/config"
	"vidcat/internal/logger"
	"vidcat/internal/search"
	"vidcat/internal/services"
	"vidcat/internal/stats"
	"vidcat/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Config *config.Config
	Redis  *redis.Client
	Logger *logrus.Logger
	Client *services.CatalogClient
	Store  *store.Store
	Search *search.Controller
	Stats  *stats.Aggregator
}

func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := logger.Get()

	// Redis only backs the search page cache; run without it if it is down.
	redisClient := newRedis(ctx, cfg, logger)

	client := services.NewClientWithConfig(&services.ClientConfig{
		BaseURL:    cfg.Catalog.BaseURL,
		APIToken:   cfg.Catalog.APIToken,
		Timeout:    cfg.Catalog.Timeout,
		RateLimit:  cfg.Catalog.RateLimit,
		MaxRetries: cfg.Catalog.MaxRetries,
		RetryDelay: cfg.Catalog.RetryDelay,
		UserAgent:  cfg.Catalog.UserAgent,
		Logger:     logger,
		Cache:      cache.NewSearchCache(redisClient, cfg.Search.CacheTTL, logger),
	})

	catalog := store.New(client, logger)

	return &Container{
		Config: cfg,
		Redis:  redisClient,
		Logger: logger,
		Client: client,
		Store:  catalog,
		Search: search.NewController(client, cfg.Search.PageSize, logger),
		Stats:  stats.NewAggregator(client, catalog, cfg.Catalog.RemoteStats, logger),
	}, nil
}

func (c *Container) Close() {
	if c.Redis != nil {
		c.Redis.Close()
		c.Logger.Info("Redis connection closed")
	}
}

func newRedis(ctx context.Context, cfg *config.Config, log *logrus.Logger) *redis.Client {
	if !cfg.RedisEnabled() {
		return nil
	}

	client, err := cache.Connect(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.WithError(err).Warn("Search cache disabled")
		return nil
	}

	log.WithField("addr", cfg.RedisAddr()).Info("Redis connection successful")
	return client
}
