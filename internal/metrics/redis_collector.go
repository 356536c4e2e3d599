package metrics

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StartRedisCollector tracks the cache key count. Best effort: a failing
// DBSIZE just skips the sample.
func StartRedisCollector(ctx context.Context, client *redis.Client, interval time.Duration, log zerolog.Logger) {
	if client == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateRedisGauges(ctx, client, log)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateRedisGauges(ctx, client, log)
			}
		}
	}()
}

func updateRedisGauges(ctx context.Context, client *redis.Client, log zerolog.Logger) {
	n, err := client.DBSize(ctx).Result()
	if err != nil {
		log.Warn().Err(err).Msg("metrics redis dbsize")
		return
	}
	SetRedisKeysCount(n)
}
