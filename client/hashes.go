package client

import (
	"context"

	"github.com/luma/redisclient/protocol"
)

func (c *Client) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("HDEL", key).With(fields...)))
}

func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("HEXISTS", key, field)))
}

func (c *Client) HGet(ctx context.Context, key, field string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("HGET", key, field)))
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return asStringMap(c.Do(ctx, protocol.NewCommand("HGETALL", key)))
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, by int64) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("HINCRBY", key, field).WithInt(by)))
}

func (c *Client) HIncrByFloat(ctx context.Context, key, field string, by float64) (float64, error) {
	return asFloat(c.Do(ctx, protocol.NewCommand("HINCRBYFLOAT", key, field).WithFloat(by)))
}

func (c *Client) HKeys(ctx context.Context, key string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("HKEYS", key)))
}

func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("HLEN", key)))
}

func (c *Client) HMGet(ctx context.Context, key string, fields ...string) ([]protocol.NullString, error) {
	return asNullStrings(c.Do(ctx, protocol.NewCommand("HMGET", key).With(fields...)))
}

// HMSet writes every field of values. Fields are sent in sorted order.
func (c *Client) HMSet(ctx context.Context, key string, values map[string]string) error {
	cmd := protocol.NewCommand("HMSET", key)
	for _, field := range sortedKeys(values) {
		cmd = cmd.With(field, values[field])
	}

	return asStatus(c.Do(ctx, cmd))
}

// HSet reports whether field is new.
func (c *Client) HSet(ctx context.Context, key, field, value string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("HSET", key, field, value)))
}

func (c *Client) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("HSETNX", key, field, value)))
}

func (c *Client) HVals(ctx context.Context, key string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("HVALS", key)))
}

// HScan pages through the fields of a hash. Keys alternates field and value.
func (c *Client) HScan(ctx context.Context, key string, cursor uint64, opts ScanOptions) (ScanPage, error) {
	cmd := protocol.NewCommand("HSCAN", key).WithUint(cursor)
	return asScan(c.Do(ctx, withScanOptions(cmd, opts)))
}
