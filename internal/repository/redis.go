package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const recentReportsKept = 50

type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.KeyPrefix, ":")
	if prefix == "" {
		prefix = "polylend"
	}
	prefix += ":"
	return &RedisClient{Client: rdb, prefix: prefix}, nil
}

func (r *RedisClient) key(parts ...string) string {
	return r.prefix + strings.Join(parts, ":")
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the lock's expiry out only if we still own it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisGuard is a run guard shared by every replica pointing at the same Redis.
type RedisGuard struct {
	client *RedisClient
	name   string
	ttl    time.Duration
}

func (r *RedisClient) Guard(name string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisGuard{client: r, name: name, ttl: ttl}
}

// TryAcquire takes the lock without waiting. ok is false when another run
// holds it. The lock is extended every ttl/3 until release is called.
func (g *RedisGuard) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	key := g.client.key("guard", g.name)
	token := uuid.NewString()
	ok, err = g.client.Client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.keepAlive(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.client.Client, []string{key}, token).Err()
		})
	}, true, nil
}

func (g *RedisGuard) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			n, err := extendScript.Run(ctx, g.client.Client, []string{key}, token, g.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				logger.Warn("run guard renewal failed", "key", key, "error", err)
				continue
			}
			if n == 0 {
				logger.Error("run guard lost, another replica may start a run", "key", key)
				return
			}
		}
	}
}

// RedisStatusCache keeps the latest and recent cycle reports per currency.
type RedisStatusCache struct {
	client *RedisClient
}

func (r *RedisClient) StatusCache() *RedisStatusCache {
	return &RedisStatusCache{client: r}
}

func (c *RedisStatusCache) SaveReport(ctx context.Context, report model.CycleReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	latest := c.client.key("status", report.Currency)
	recent := c.client.key("cycles", report.Currency)

	pipe := c.client.Client.TxPipeline()
	pipe.Set(ctx, latest, raw, 0)
	pipe.LPush(ctx, recent, raw)
	pipe.LTrim(ctx, recent, 0, recentReportsKept-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisStatusCache) LatestReport(ctx context.Context, currency string) (model.CycleReport, bool, error) {
	raw, err := c.client.Client.Get(ctx, c.client.key("status", currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CycleReport{}, false, nil
	}
	if err != nil {
		return model.CycleReport{}, false, err
	}
	var report model.CycleReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return model.CycleReport{}, false, err
	}
	return report, true, nil
}

// RecentReports returns up to n reports, newest first.
func (c *RedisStatusCache) RecentReports(ctx context.Context, currency string, n int) ([]model.CycleReport, error) {
	if n <= 0 || n > recentReportsKept {
		n = recentReportsKept
	}
	items, err := c.client.Client.LRange(ctx, c.client.key("cycles", currency), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.CycleReport, 0, len(items))
	for _, item := range items {
		var report model.CycleReport
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			continue
		}
		out = append(out, report)
	}
	return out, nil
}
