package client

import (
	"context"
	"time"

	"github.com/luma/redisclient/protocol"
)

// Append returns the length of the string after the append.
func (c *Client) Append(ctx context.Context, key, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("APPEND", key, value)))
}

// BitCount counts set bits, in the byte range r when it is not nil.
func (c *Client) BitCount(ctx context.Context, key string, r *Range) (int64, error) {
	cmd := protocol.NewCommand("BITCOUNT", key)
	if r != nil {
		cmd = cmd.WithInt(r.Start, r.End)
	}

	return asInt(c.Do(ctx, cmd))
}

// BitOp stores the result of op over keys in dest and returns its length.
func (c *Client) BitOp(ctx context.Context, op BitOp, dest string, keys ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("BITOP", string(op), dest).With(keys...)))
}

// BitPos finds the first bit set to bit, within r when it is not nil.
func (c *Client) BitPos(ctx context.Context, key string, bit Bit, r *Range) (int64, error) {
	cmd := protocol.NewCommand("BITPOS", key).WithInt(int64(bit))
	if r != nil {
		cmd = cmd.WithInt(r.Start, r.End)
	}

	return asInt(c.Do(ctx, cmd))
}

func (c *Client) Decr(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("DECR", key)))
}

func (c *Client) DecrBy(ctx context.Context, key string, by int64) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("DECRBY", key).WithInt(by)))
}

// Get returns the value of key. The result is not valid when the key does not
// exist, and valid but empty for an empty string.
func (c *Client) Get(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("GET", key)))
}

func (c *Client) GetBit(ctx context.Context, key string, offset int64) (Bit, error) {
	n, err := asInt(c.Do(ctx, protocol.NewCommand("GETBIT", key).WithInt(offset)))
	return Bit(n), err
}

func (c *Client) GetRange(ctx context.Context, key string, start, end int64) (string, error) {
	return asString(c.Do(ctx, protocol.NewCommand("GETRANGE", key).WithInt(start, end)))
}

func (c *Client) GetSet(ctx context.Context, key, value string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("GETSET", key, value)))
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("INCR", key)))
}

func (c *Client) IncrBy(ctx context.Context, key string, by int64) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("INCRBY", key).WithInt(by)))
}

func (c *Client) IncrByFloat(ctx context.Context, key string, by float64) (float64, error) {
	return asFloat(c.Do(ctx, protocol.NewCommand("INCRBYFLOAT", key).WithFloat(by)))
}

// MGet returns one result per key, in order.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]protocol.NullString, error) {
	return asNullStrings(c.Do(ctx, protocol.NewCommand("MGET", keys...)))
}

func (c *Client) MSet(ctx context.Context, pairs ...Pair) error {
	return asStatus(c.Do(ctx, withPairs(protocol.NewCommand("MSET"), pairs)))
}

// MSetNX sets every pair, or none of them if any key already exists.
func (c *Client) MSetNX(ctx context.Context, pairs ...Pair) (bool, error) {
	return asBool(c.Do(ctx, withPairs(protocol.NewCommand("MSETNX"), pairs)))
}

// Set writes value to key. It reports false when opts.Condition was not met.
func (c *Client) Set(ctx context.Context, key, value string, opts SetOptions) (bool, error) {
	cmd := protocol.NewCommand("SET", key, value)

	switch {
	case opts.EX > 0:
		cmd = cmd.With("EX").WithInt(roundUp(opts.EX, time.Second))
	case opts.PX > 0:
		cmd = cmd.With("PX").WithInt(roundUp(opts.PX, time.Millisecond))
	}

	if opts.Condition != Always {
		cmd = cmd.With(string(opts.Condition))
	}

	reply, err := c.Do(ctx, cmd)
	if err != nil {
		return false, err
	}

	if reply.Kind == protocol.KindBulkString && reply.Nil {
		return false, nil
	}

	return true, asStatus(reply, nil)
}

// SetBit returns the previous bit at offset.
func (c *Client) SetBit(ctx context.Context, key string, offset int64, bit Bit) (Bit, error) {
	n, err := asInt(c.Do(ctx, protocol.NewCommand("SETBIT", key).WithInt(offset, int64(bit))))
	return Bit(n), err
}

func (c *Client) SetRange(ctx context.Context, key string, offset int64, value string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SETRANGE", key).WithInt(offset).With(value)))
}

func (c *Client) StrLen(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("STRLEN", key)))
}

func withPairs(cmd protocol.Command, pairs []Pair) protocol.Command {
	for _, pair := range pairs {
		cmd = cmd.With(pair.Key, pair.Value)
	}

	return cmd
}
