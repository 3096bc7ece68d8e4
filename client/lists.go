package client

import (
	"context"
	"fmt"
	"time"

	"github.com/luma/redisclient/protocol"
)

// BLPop pops from the first non-empty list in keys, waiting up to timeout on
// the server. The server counts whole seconds, so timeout is rounded up, and 0
// waits forever. The timeout is the server's, the call itself is only bounded
// by ctx. A nil result means the timeout expired.
func (c *Client) BLPop(ctx context.Context, timeout time.Duration, keys ...string) (*KeyValue, error) {
	return c.blockingPop(ctx, "BLPOP", timeout, keys)
}

func (c *Client) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (*KeyValue, error) {
	return c.blockingPop(ctx, "BRPOP", timeout, keys)
}

func (c *Client) blockingPop(ctx context.Context, name string, timeout time.Duration, keys []string) (*KeyValue, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativeTimeout, timeout)
	}

	return asKeyValue(c.Do(ctx, protocol.NewCommand(name, keys...).WithInt(roundUp(timeout, time.Second))))
}

func (c *Client) LIndex(ctx context.Context, key string, index int64) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("LINDEX", key).WithInt(index)))
}

// LInsert returns the new length, or -1 when pivot was not found.
func (c *Client) LInsert(ctx context.Context, key string, where Pivot, pivot, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("LINSERT", key, string(where), pivot, value)))
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("LLEN", key)))
}

func (c *Client) LPop(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("LPOP", key)))
}

// LPush returns the length of the list after the push.
func (c *Client) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("LPUSH", key).With(values...)))
}

// LPushX pushes only if the list exists.
func (c *Client) LPushX(ctx context.Context, key, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("LPUSHX", key, value)))
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("LRANGE", key).WithInt(start, stop)))
}

func (c *Client) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("LREM", key).WithInt(count).With(value)))
}

func (c *Client) LSet(ctx context.Context, key string, index int64, value string) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("LSET", key).WithInt(index).With(value)))
}

func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("LTRIM", key).WithInt(start, stop)))
}

func (c *Client) RPop(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("RPOP", key)))
}

func (c *Client) RPopLPush(ctx context.Context, source, dest string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("RPOPLPUSH", source, dest)))
}

func (c *Client) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("RPUSH", key).With(values...)))
}

func (c *Client) RPushX(ctx context.Context, key, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("RPUSHX", key, value)))
}
