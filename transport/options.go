package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/redisclient/metrics"
)

const (
	DefaultReadChunkSize = 4096
	DefaultDialTimeout   = 5 * time.Second
	DefaultEventBuffer   = 16
)

// Dialer opens the underlying stream.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

type Options struct {
	// Host of the server
	Host string

	// Port of the server
	Port int

	// ReadChunkSize is the most bytes taken from the stream per read
	ReadChunkSize int

	// DialTimeout bounds Open when the caller's context has no deadline
	DialTimeout time.Duration

	// Dial overrides how the stream is opened, defaults to a net.Dialer
	Dial Dialer

	// EventBuffer is the capacity of the Events channel
	EventBuffer int

	Metrics *metrics.Metrics

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ReadChunkSize <= 0 {
		o.ReadChunkSize = DefaultReadChunkSize
	}

	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}

	if o.Dial == nil {
		d := &net.Dialer{}
		o.Dial = d.DialContext
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
