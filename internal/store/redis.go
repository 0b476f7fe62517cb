package store

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/iamwavecut/modcore/internal/errors"
)

// Client wraps the shared Redis substrate. Every operation is a single-key
// atomic command carrying its own bounded timeout; there are no multi-key
// transactions anywhere in the moderation core.
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewClient(redisURL string, timeout time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return &Client{rdb: redis.NewClient(opts), timeout: timeout}, nil
}

// NewClientFromRedis is used by tests and hosts that manage the connection.
func NewClientFromRedis(rdb *redis.Client, timeout time.Duration) *Client {
	return &Client{rdb: rdb, timeout: timeout}
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.Ping(ctx).Err())
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return errors.Wrap(apperrors.ErrStoreUnavailable, err.Error())
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	res, err := c.rdb.HIncrBy(ctx, key, field, n).Result()
	return res, c.wrap(err)
}

// HIncrByWindowed increments a fixed-window counter field. The TTL is armed
// only when the field has none yet, so the window is anchored to the first
// increment and never slides.
func (c *Client) HIncrByWindowed(ctx context.Context, key, field string, n int64, window time.Duration) (int64, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	count, err := c.rdb.HIncrBy(ctx, key, field, n).Result()
	if err != nil {
		return 0, c.wrap(err)
	}
	err = c.rdb.HExpireWithArgs(ctx, key, window, redis.HExpireArgs{NX: true}, field).Err()
	return count, c.wrap(err)
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, c.wrap(err)
}

func (c *Client) HGetInt(ctx context.Context, key, field string) (int64, error) {
	val, err := c.HGet(ctx, key, field)
	if err != nil || val == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse counter field")
	}
	return n, nil
}

func (c *Client) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	vals, err := c.rdb.HMGet(ctx, key, fields...).Result()
	return vals, c.wrap(err)
}

func (c *Client) HSet(ctx context.Context, key string, values ...any) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.HSet(ctx, key, values...).Err())
}

// HSetWithFieldTTL sets a hash field and arms a fresh TTL on it. Used for the
// temp-ban flag; expiry of the field is the implicit unban.
func (c *Client) HSetWithFieldTTL(ctx context.Context, key, field, value string, ttl time.Duration) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return c.wrap(err)
	}
	return c.wrap(c.rdb.HExpire(ctx, key, ttl, field).Err())
}

func (c *Client) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	ok, err := c.rdb.HSetNX(ctx, key, field, value).Result()
	return ok, c.wrap(err)
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.HDel(ctx, key, fields...).Err())
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	res, err := c.rdb.Incr(ctx, key).Result()
	return res, c.wrap(err)
}

func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, c.wrap(err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse counter key")
	}
	return n, nil
}

func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.SetEx(ctx, key, value, ttl).Err())
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, c.wrap(err)
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.SAdd(ctx, key, members).Err())
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	ctx, cancel := c.op(ctx)
	defer cancel()
	return c.wrap(c.rdb.SRem(ctx, key, members).Err())
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := c.op(ctx)
	defer cancel()
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	return ok, c.wrap(err)
}

// IterateKeys walks keys matching pattern via cursor SCAN, invoking fn per
// key. The walk is cancellable between keys; a cancelled context stops the
// iteration without error so a partial sweep stays acceptable.
func (c *Client) IterateKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return c.wrap(iter.Err())
}
