package pubsub

import (
	"go.uber.org/zap"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/metrics"
	"github.com/luma/redisclient/transport"
)

type Option func(*options)

type options struct {
	log      *zap.Logger
	executor client.Executor
	metrics  *metrics.Metrics
	dial     transport.Dialer
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithExecutor sets where handlers run. The default runs them one at a time
// in the order frames arrived.
func WithExecutor(executor client.Executor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithDialer(dial transport.Dialer) Option {
	return func(o *options) {
		o.dial = dial
	}
}
