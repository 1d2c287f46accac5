package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loadwatch/internal/config"
	"loadwatch/internal/model"
)

// Cache mirrors the latest status and recent anomalies into Redis for
// dashboard reads. Writes are best effort; the pipeline never depends
// on them.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg config.CacheConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SetStatus stores the latest report under status:<server>.
func (c *Cache) SetStatus(ctx context.Context, report model.StatusReport) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	key := "status:" + report.Server
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// AddAnomaly appends a record to the server's score-indexed anomaly
// set and stores the record body under its own key with a longer TTL.
func (c *Cache) AddAnomaly(ctx context.Context, entry model.StoredAnomaly) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}
	key := fmt.Sprintf("anomaly:%s:%s", entry.Server, entry.ID)
	setKey := "anomalies:" + entry.Server
	score := float64(entry.Record.Timestamp.Unix())

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.ttl*24)
	pipe.ZAdd(ctx, setKey, redis.Z{Score: score, Member: key})
	pipe.ZRemRangeByRank(ctx, setKey, 0, -1001)
	pipe.Expire(ctx, setKey, c.ttl*24)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentAnomalies returns the newest anomaly keys for a server.
func (c *Cache) RecentAnomalies(ctx context.Context, server string, limit int) ([]string, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	setKey := "anomalies:" + server
	return c.client.ZRevRange(ctx, setKey, 0, int64(limit-1)).Result()
}
