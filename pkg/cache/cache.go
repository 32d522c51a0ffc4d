// Package cache holds the shared redis connection used for OTP codes and
// short-lived counters.
package cache

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"qrcard_backend/pkg/config"
)

var client *redis.Client

// Setup connects to redis. A failed ping is logged, not fatal: the API still
// serves everything except phone OTP.
func Setup(cfg config.RedisConfig) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if pong, err := client.Ping(ctx).Result(); err != nil {
		log.Warnf("[Cache] could not connect to redis at %s: %v", cfg.Addr, err)
	} else {
		log.Infof("[Cache] connected to redis: %s", pong)
	}
	return client
}

// GetClient returns the shared client; nil before Setup.
func GetClient() *redis.Client {
	return client
}

// Close releases the connection pool.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
