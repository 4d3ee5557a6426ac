package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"chronos-api/internal/config"
)

// ConnectMongo opens a client with the configured pool and returns the
// ledger database. Transactions and change streams need a replica set.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.SelectionTimeout)

	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(uint64(cfg.MinPoolSize))
	}
	if cfg.MaxIdleTime > 0 {
		clientOptions.SetMaxConnIdleTime(cfg.MaxIdleTime)
	}
	if cfg.ReplicaSet != "" {
		clientOptions.SetReplicaSet(cfg.ReplicaSet)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(cfg.Database), nil
}

// ConnectRedis opens a Redis client and checks it answers
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Connections groups the external connections of the process
type Connections struct {
	Mongo  *mongo.Database
	Redis  *redis.Client
	logger *logrus.Logger
}

// NewConnections wraps already opened connections; either may be nil
func NewConnections(mongoDB *mongo.Database, redisClient *redis.Client, logger *logrus.Logger) *Connections {
	return &Connections{Mongo: mongoDB, Redis: redisClient, logger: logger}
}

// Close disconnects everything that was opened
func (c *Connections) Close(ctx context.Context) error {
	var errs []error

	if c.Mongo != nil {
		if err := c.Mongo.Client().Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB: %w", err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("Database connections closed")
	return nil
}

// PingMongo checks the primary answers
func (c *Connections) PingMongo(ctx context.Context) error {
	if c.Mongo == nil {
		return fmt.Errorf("MongoDB not configured")
	}
	return c.Mongo.Client().Ping(ctx, readpref.Primary())
}

// PingRedis checks Redis answers
func (c *Connections) PingRedis(ctx context.Context) error {
	if c.Redis == nil {
		return fmt.Errorf("Redis not configured")
	}
	return c.Redis.Ping(ctx).Err()
}
