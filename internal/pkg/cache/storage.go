package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ayumbro/Remindy/internal/pkg/env"
)

// LimiterDatabase keeps rate limiter counters apart from cache keys in DB 0.
const LimiterDatabase = 1

// NewLimiterStorage returns a Fiber storage on the same Redis server as the
// cache client.
func NewLimiterStorage() fiber.Storage {
	host, port, password := connectionSettings()

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: LimiterDatabase,
		Reset:    false,
	})
}

func connectionSettings() (string, int, string) {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")

	if client != nil {
		opts := client.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if opts.Password != "" {
			password = opts.Password
		}
	}
	return host, port, password
}
