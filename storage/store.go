package storage

import (
	"context"
	"errors"
	"time"
)

// Errors carry the text a Redis server replies with so they can be written to
// clients unchanged.
var (
	ErrWrongType  = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	ErrNotInteger = errors.New("ERR value is not an integer or out of range")
	ErrBadPayload = errors.New("ERR DUMP payload version or checksum are wrong")
	ErrBusyKey    = errors.New("BUSYKEY Target key name already exists.")
	ErrClosed     = errors.New("ERR store is closed")
)

type SetOptions struct {
	// TTL expires the key after the duration, zero keeps it forever
	TTL time.Duration

	// IfMissing only sets keys that do not exist (NX)
	IfMissing bool

	// IfExists only sets keys that already exist (XX)
	IfExists bool
}

// Message is a published payload on its way to one subscriber.
type Message struct {
	// Kind is "message" for channel subscriptions or "pmessage" for patterns
	Kind    string
	Pattern string
	Channel string
	Payload []byte
}

// Subscriber receives published messages. Deliver must not block.
type Subscriber interface {
	Deliver(msg *Message) error
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, opts SetOptions) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Append(ctx context.Context, key string, value []byte) (int64, error)
	StrLen(ctx context.Context, key string) (int64, error)

	Dump(ctx context.Context, key string) ([]byte, bool, error)
	Restore(ctx context.Context, key string, ttl time.Duration, payload []byte, replace bool) error

	Push(ctx context.Context, key string, left bool, values ...[]byte) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key string, fieldValues ...[]byte) (int64, error)
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HGetAll(ctx context.Context, key string) ([][]byte, error)

	SAdd(ctx context.Context, key string, members ...[]byte) (int64, error)
	SMembers(ctx context.Context, key string) ([][]byte, error)

	Subscribe(sub Subscriber, channel string) int
	Unsubscribe(sub Subscriber, channel string) int
	PSubscribe(sub Subscriber, pattern string) int
	PUnsubscribe(sub Subscriber, pattern string) int
	Subscriptions(sub Subscriber) (channels []string, patterns []string)
	Forget(sub Subscriber)
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)

	Close() error
}
