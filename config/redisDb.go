package config

import (
	"context"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// set once by ConnectRedisWithRetry, read by request goroutines
var (
	rdb    atomic.Pointer[redis.Client]
	locker atomic.Pointer[redislock.Client]
)

func GetRedisDB() *redis.Client {
	return rdb.Load()
}

func GetRedisLock() *redislock.Client {
	return locker.Load()
}

// setRedis publishes client; the lock client is stored first so that a
// visible Redis client always has its lock client.
func setRedis(client *redis.Client) {
	locker.Store(redislock.New(client))
	rdb.Store(client)
}

// RedisConfigured reports whether REDIS_ADDRESS is set. Redis is optional:
// without it rate limiting and the export lock are disabled.
func RedisConfigured() bool {
	return strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != ""
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry(ctx context.Context) {
	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; redis disabled")
		return
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			setRedis(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		_ = client.Close()

		sleep := backoff(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func CloseRedis() {
	if client := rdb.Swap(nil); client != nil {
		locker.Store(nil)
		_ = client.Close()
	}
}
