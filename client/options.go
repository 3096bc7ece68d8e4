package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/redisclient/metrics"
	"github.com/luma/redisclient/transport"
)

// Config addresses the server. There is no default host, callers always say
// where to connect.
type Config struct {
	Host string
	Port int

	// ReadChunkSize is the most bytes read from the socket at once
	ReadChunkSize int

	// DialTimeout bounds connecting when the command context has no deadline
	DialTimeout time.Duration
}

type Option func(*options)

type options struct {
	log           *zap.Logger
	executor      Executor
	metrics       *metrics.Metrics
	dial          transport.Dialer
	readChunkSize int
	onConnect     OnConnect
}

// WithLogger sets the logger, defaults to logsink.Default().
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithExecutor sets where completion handlers passed to Execute run. The
// default is a SerialExecutor owned by the client.
func WithExecutor(executor Executor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDialer replaces how the connection is opened.
func WithDialer(dial transport.Dialer) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// WithReadChunkSize overrides Config.ReadChunkSize.
func WithReadChunkSize(size int) Option {
	return func(o *options) {
		o.readChunkSize = size
	}
}

// WithOnConnect runs hook on every stream the client opens, before the
// command that needed the stream is sent. A failing hook fails that command
// and closes the stream, the next command tries again.
func WithOnConnect(hook OnConnect) Option {
	return func(o *options) {
		o.onConnect = hook
	}
}
