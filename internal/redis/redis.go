// Package redis mirrors lazytask status into Redis so other processes can
// inspect a running instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jayphen/lazytask/internal/types"
)

const (
	// StatusKeyPrefix is the Redis key prefix for per-instance status.
	StatusKeyPrefix = "lazytask:status:"
	// GenerationKey holds the highest generation any instance published.
	GenerationKey = "lazytask:generation"
	// EventsKey is the capped list of recent sync events.
	EventsKey = "lazytask:events"
	// DefaultRedisURL is the default Redis connection URL.
	DefaultRedisURL = "redis://localhost:6379"

	// StatusTTL is how long a status record survives without a refresh.
	StatusTTL = 10 * time.Minute
	// MaxEvents caps the sync event list.
	MaxEvents = 100
	eventsTTL = 7 * 24 * time.Hour
)

// raiseGeneration stores ARGV[1] in KEYS[1] only when it is larger.
var raiseGeneration = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local gen = tonumber(ARGV[1])
if gen > cur then
  redis.call("SET", KEYS[1], ARGV[1])
  return gen
end
return cur
`)

// Client wraps a Redis client with lazytask-specific operations.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the Redis server at url.
func NewClient(url string) (*Client, error) {
	if url == "" {
		url = DefaultRedisURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStatus stores rec under its instance key and raises the shared
// generation counter.
func (c *Client) SetStatus(ctx context.Context, rec *types.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := c.rdb.Set(ctx, StatusKeyPrefix+rec.Instance, data, StatusTTL).Err(); err != nil {
		return err
	}
	return raiseGeneration.Run(ctx, c.rdb, []string{GenerationKey}, rec.Generation).Err()
}

// GetStatus returns the status of one instance, or nil if none is stored.
func (c *Client) GetStatus(ctx context.Context, instance string) (*types.StatusRecord, error) {
	data, err := c.rdb.Get(ctx, StatusKeyPrefix+instance).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec types.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding status for %s: %w", instance, err)
	}
	return &rec, nil
}

// GetStatuses returns every stored instance status keyed by instance.
func (c *Client) GetStatuses(ctx context.Context) (map[string]*types.StatusRecord, error) {
	statuses := make(map[string]*types.StatusRecord)

	keys, err := c.scanKeys(ctx, StatusKeyPrefix+"*")
	if err != nil {
		return statuses, err
	}

	if len(keys) == 0 {
		return statuses, nil
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return statuses, err
	}

	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}

		var rec types.StatusRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}

		if rec.Instance != "" {
			statuses[rec.Instance] = &rec
		}
	}

	return statuses, nil
}

// DeleteStatus removes an instance's status, typically at shutdown.
func (c *Client) DeleteStatus(ctx context.Context, instance string) error {
	return c.rdb.Del(ctx, StatusKeyPrefix+instance).Err()
}

// GetGeneration returns the highest generation published by any instance.
func (c *Client) GetGeneration(ctx context.Context) (uint64, error) {
	val, err := c.rdb.Get(ctx, GenerationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}

// PushEvent records a sync event, keeping the newest MaxEvents.
func (c *Client) PushEvent(ctx context.Context, ev *types.SyncEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, EventsKey, data)
	pipe.LTrim(ctx, EventsKey, 0, MaxEvents-1)
	pipe.Expire(ctx, EventsKey, eventsTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetEvents returns up to limit recent sync events, newest first.
func (c *Client) GetEvents(ctx context.Context, limit int) ([]*types.SyncEvent, error) {
	if limit <= 0 || limit > MaxEvents {
		limit = MaxEvents
	}
	values, err := c.rdb.LRange(ctx, EventsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]*types.SyncEvent, 0, len(values))
	for _, v := range values {
		var ev types.SyncEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}

// scanKeys scans for all keys matching a pattern.
func (c *Client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var batch []string
		var err error
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return keys, err
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// IsAvailable checks if Redis is reachable at url.
func IsAvailable(url string) bool {
	client, err := NewClient(url)
	if err != nil {
		return false
	}
	defer client.Close()
	return true
}
