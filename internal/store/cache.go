package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/types"
)

const reportKeyPrefix = "fe:report:"

// DefaultReportTTL is how long cached reports live.
const DefaultReportTTL = 24 * time.Hour

// Cache wraps Redis for report caching and distributed locks.
type Cache struct {
	client *redis.Client
}

// OpenCache connects to the configured Redis instance.
func OpenCache(cfg *config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Client returns the underlying Redis client, for lock integrations.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetReport caches a job report.
func (c *Cache) SetReport(ctx context.Context, report *types.JobReport, ttl time.Duration) error {
	data, err := jsonutil.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return c.client.Set(ctx, reportKeyPrefix+report.JobID, data, ttl).Err()
}

// GetReport returns a cached job report, or nil when absent.
func (c *Cache) GetReport(ctx context.Context, jobID string) (*types.JobReport, error) {
	data, err := c.client.Get(ctx, reportKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var report types.JobReport
	if err := jsonutil.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding cached report: %w", err)
	}
	return &report, nil
}

// DeleteReport evicts a cached report.
func (c *Cache) DeleteReport(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, reportKeyPrefix+jobID).Err()
}

// JobUpdated implements the job sink interface. State changes are not
// cached.
func (c *Cache) JobUpdated(state *types.JobState) {}

// JobFinished caches the final report.
func (c *Cache) JobFinished(report *types.JobReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SetReport(ctx, report, DefaultReportTTL); err != nil {
		logger.Warn("failed to cache job report", zap.String("job_id", report.JobID), zap.Error(err))
	}
}
