package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

func getJSONCache(ctx context.Context, rdb *redis.Client, key string, dest interface{}) error {
	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

func setJSONCache(ctx context.Context, rdb *redis.Client, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	rdb.Set(ctx, key, raw, ttl)
}
