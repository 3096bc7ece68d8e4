package client

import (
	"context"

	"github.com/luma/redisclient/protocol"
)

func (c *Client) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SADD", key).With(members...)))
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SCARD", key)))
}

func (c *Client) SDiff(ctx context.Context, keys ...string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("SDIFF", keys...)))
}

func (c *Client) SDiffStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SDIFFSTORE", dest).With(keys...)))
}

func (c *Client) SInter(ctx context.Context, keys ...string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("SINTER", keys...)))
}

func (c *Client) SInterStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SINTERSTORE", dest).With(keys...)))
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("SISMEMBER", key, member)))
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("SMEMBERS", key)))
}

func (c *Client) SMove(ctx context.Context, source, dest, member string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("SMOVE", source, dest, member)))
}

// SPop removes and returns a random member, not valid when the set is empty.
func (c *Client) SPop(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("SPOP", key)))
}

func (c *Client) SRandMember(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("SRANDMEMBER", key)))
}

// SRandMemberN returns up to count distinct members, or |count| members that
// may repeat when count is negative.
func (c *Client) SRandMemberN(ctx context.Context, key string, count int64) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("SRANDMEMBER", key).WithInt(count)))
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SREM", key).With(members...)))
}

func (c *Client) SScan(ctx context.Context, key string, cursor uint64, opts ScanOptions) (ScanPage, error) {
	cmd := protocol.NewCommand("SSCAN", key).WithUint(cursor)
	return asScan(c.Do(ctx, withScanOptions(cmd, opts)))
}

func (c *Client) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("SUNION", keys...)))
}

func (c *Client) SUnionStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("SUNIONSTORE", dest).With(keys...)))
}
