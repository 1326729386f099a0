package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds per-IP rate limiting settings for the HTTP surface
type RateLimitConfig struct {
	// Global limit for every API endpoint
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Catalog reads (movies, categories, djs)
	PublicReadMax        int
	PublicReadExpiration time.Duration

	// Stream proxy requests - each one holds an upstream connection
	StreamMax        int
	StreamExpiration time.Duration
}

// DefaultRateLimitConfig returns production defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min = ~3.3 req/sec
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Catalog reads: 120/min = 2 req/sec
		PublicReadMax:        120,
		PublicReadExpiration: 1 * time.Minute,

		// Players issue a burst of Range requests when seeking
		StreamMax:        60,
		StreamExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if n := positiveIntEnv("RATE_LIMIT_GLOBAL_API"); n > 0 {
		config.GlobalAPIMax = n
	}
	if n := positiveIntEnv("RATE_LIMIT_PUBLIC_READ"); n > 0 {
		config.PublicReadMax = n
	}
	if n := positiveIntEnv("RATE_LIMIT_STREAM"); n > 0 {
		config.StreamMax = n
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.StreamMax = 300
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func positiveIntEnv(key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func newIPLimiter(prefix string, max int, expiration time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP: %s on %s", prefix, c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       message,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newIPLimiter("global", config.GlobalAPIMax, config.GlobalAPIExpiration,
		"Too many requests. Please slow down.")
}

// PublicReadRateLimiter for the catalog read endpoints
func PublicReadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newIPLimiter("public", config.PublicReadMax, config.PublicReadExpiration,
		"Too many requests to this endpoint.")
}

// StreamRateLimiter for the video stream proxy (bandwidth protection)
func StreamRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newIPLimiter("stream", config.StreamMax, config.StreamExpiration,
		"Too many stream requests. Please wait.")
}
