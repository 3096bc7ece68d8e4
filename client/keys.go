package client

import (
	"context"
	"time"

	"github.com/luma/redisclient/protocol"
)

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("DEL", keys...)))
}

// Dump returns the serialized value of key, or nil if it does not exist.
func (c *Client) Dump(ctx context.Context, key string) ([]byte, error) {
	return asBytes(c.Do(ctx, protocol.NewCommand("DUMP", key)))
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := asInt(c.Do(ctx, protocol.NewCommand("EXISTS", key)))
	return n > 0, err
}

// Expire sets a timeout on key. A partial second counts as a whole one, a ttl
// of 0 or less deletes the key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("EXPIRE", key).WithInt(roundUp(ttl, time.Second))))
}

func (c *Client) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("EXPIREAT", key).WithInt(at.Unix())))
}

func (c *Client) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("PEXPIRE", key).WithInt(roundUp(ttl, time.Millisecond))))
}

func (c *Client) PExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("PEXPIREAT", key).WithInt(at.UnixNano()/int64(time.Millisecond))))
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return asStrings(c.Do(ctx, protocol.NewCommand("KEYS", pattern)))
}

// Migrate moves key to db on another server. The server answers NOKEY when
// the key does not exist, which is not an error.
func (c *Client) Migrate(ctx context.Context, host string, port int, key string, db int, timeout time.Duration, mode MigrateMode) error {
	cmd := protocol.NewCommand("MIGRATE", host).
		WithInt(int64(port)).
		With(key).
		WithInt(int64(db), roundUp(timeout, time.Millisecond))
	if mode != MigrateMove {
		cmd = cmd.With(string(mode))
	}

	return asStatus(c.Do(ctx, cmd))
}

func (c *Client) Move(ctx context.Context, key string, db int) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("MOVE", key).WithInt(int64(db))))
}

func (c *Client) ObjectRefCount(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("OBJECT REFCOUNT", key)))
}

// ObjectEncoding returns the internal encoding of key, not valid when the key
// does not exist.
func (c *Client) ObjectEncoding(ctx context.Context, key string) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("OBJECT ENCODING", key)))
}

func (c *Client) Persist(ctx context.Context, key string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("PERSIST", key)))
}

// TTL returns the remaining time to live in seconds, -1 when the key has no
// expiry and -2 when it does not exist.
func (c *Client) TTL(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("TTL", key)))
}

// PTTL is TTL in milliseconds.
func (c *Client) PTTL(ctx context.Context, key string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("PTTL", key)))
}

func (c *Client) RandomKey(ctx context.Context) (protocol.NullString, error) {
	return asNullString(c.Do(ctx, protocol.NewCommand("RANDOMKEY")))
}

func (c *Client) Rename(ctx context.Context, key, newKey string) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("RENAME", key, newKey)))
}

func (c *Client) RenameNX(ctx context.Context, key, newKey string) (bool, error) {
	return asBool(c.Do(ctx, protocol.NewCommand("RENAMENX", key, newKey)))
}

// Restore creates key from a Dump payload. A ttl of 0 means no expiry.
func (c *Client) Restore(ctx context.Context, key string, ttl time.Duration, payload []byte, replace bool) error {
	cmd := protocol.NewCommand("RESTORE", key).WithInt(roundUp(ttl, time.Millisecond))
	if replace {
		// REPLACE follows the payload, so it cannot ride as the trailing
		// element.
		if payload == nil {
			payload = []byte{}
		}
		return asStatus(c.Do(ctx, cmd.WithBytes(payload).With("REPLACE")))
	}

	return asStatus(c.Do(ctx, cmd.WithPayload(payload)))
}

func (c *Client) Type(ctx context.Context, key string) (string, error) {
	return asString(c.Do(ctx, protocol.NewCommand("TYPE", key)))
}

// Scan returns one page of keys starting at cursor.
func (c *Client) Scan(ctx context.Context, cursor uint64, opts ScanOptions) (ScanPage, error) {
	cmd := protocol.NewCommand("SCAN").WithUint(cursor)
	return asScan(c.Do(ctx, withScanOptions(cmd, opts)))
}

func withScanOptions(cmd protocol.Command, opts ScanOptions) protocol.Command {
	if opts.Match != "" {
		cmd = cmd.With("MATCH", opts.Match)
	}
	if opts.Count > 0 {
		cmd = cmd.With("COUNT").WithInt(opts.Count)
	}

	return cmd
}
