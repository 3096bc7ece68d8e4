// Package client talks to a Redis compatible server over a single connection.
//
// Every command goes through one sequencer goroutine that owns the
// connection: it sends a command, waits for exactly one reply, hands the reply
// to the command's handler and only then takes the next command. Commands
// from any number of goroutines are therefore answered in the order they were
// admitted and are never pipelined.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/redisclient/logsink"
	"github.com/luma/redisclient/metrics"
	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/transport"
)

var (
	ErrClientClosed    = errors.New("Client is closed")
	ErrEmptyCommand    = errors.New("Command has no name")
	ErrUnexpectedReply = errors.New("Unexpected reply")
	ErrNegativeTimeout = errors.New("Timeout must not be negative")
)

// Handler receives the outcome of a command exactly once. Error replies from
// the server arrive as a *protocol.ServerError alongside the reply itself.
type Handler func(reply protocol.Reply, err error)

type pending struct {
	ctx     context.Context
	cmd     protocol.Command
	frame   []byte
	handler Handler

	// inline handlers run on the sequencer goroutine
	inline bool
}

type Client struct {
	transport *transport.Conn

	executor      Executor
	ownedExecutor *SerialExecutor
	onConnect     OnConnect

	metrics *metrics.Metrics
	log     *zap.Logger

	mailbox   chan *pending
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(config Config, opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		log = logsink.Default()
	}

	readChunkSize := config.ReadChunkSize
	if o.readChunkSize > 0 {
		readChunkSize = o.readChunkSize
	}

	c := &Client{
		transport: transport.New(transport.Options{
			Host:          config.Host,
			Port:          config.Port,
			ReadChunkSize: readChunkSize,
			DialTimeout:   config.DialTimeout,
			Dial:          o.dial,
			Metrics:       o.metrics,
			Log:           log.Named("transport"),
		}),
		executor:  o.executor,
		onConnect: o.onConnect,
		metrics:   o.metrics,
		log:       log.Named("sequencer"),
		mailbox:   make(chan *pending),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if c.executor == nil {
		c.ownedExecutor = NewSerialExecutor(log.Named("executor"))
		c.executor = c.ownedExecutor
	}

	go c.run()

	return c
}

// Addr returns the host:port the client connects to.
func (c *Client) Addr() string {
	return c.transport.Addr()
}

func (c *Client) State() transport.State {
	return c.transport.State()
}

// Execute queues cmd and returns once the sequencer has taken it, or ctx is
// done first. handler is invoked exactly once on the client's executor, with
// ctx.Err() when the command was never admitted.
func (c *Client) Execute(ctx context.Context, cmd protocol.Command, handler Handler) {
	if handler == nil {
		handler = func(protocol.Reply, error) {}
	}

	if err := c.enqueue(ctx, cmd, handler, false); err != nil {
		c.executor.Submit(func() { handler(protocol.Reply{}, err) })
	}
}

// Do runs cmd and waits for its reply. If ctx is done first Do returns
// ctx.Err(), but a command already admitted still runs to completion.
func (c *Client) Do(ctx context.Context, cmd protocol.Command) (protocol.Reply, error) {
	type result struct {
		reply protocol.Reply
		err   error
	}

	results := make(chan result, 1)

	err := c.enqueue(ctx, cmd, func(reply protocol.Reply, err error) {
		results <- result{reply, err}
	}, true)
	if err != nil {
		return protocol.Reply{}, err
	}

	select {
	case res := <-results:
		return res.reply, res.err
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
}

// Close stops the sequencer and closes the connection. Commands waiting to be
// admitted fail with ErrClientClosed.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done

		err = c.transport.Close()

		if c.ownedExecutor != nil {
			err = multierr.Append(err, c.ownedExecutor.Close())
		}
	})

	return err
}

func (c *Client) enqueue(ctx context.Context, cmd protocol.Command, handler Handler, inline bool) error {
	if cmd.Verb() == "" {
		return ErrEmptyCommand
	}

	if c.isClosed() {
		return ErrClientClosed
	}

	p := &pending{
		ctx:     ctx,
		cmd:     cmd,
		frame:   protocol.AppendCommand(nil, cmd),
		handler: handler,
		inline:  inline,
	}

	select {
	case c.mailbox <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrClientClosed
	}
}

func (c *Client) run() {
	defer close(c.done)

	for {
		select {
		case p := <-c.mailbox:
			if c.isClosed() {
				c.complete(p, protocol.Reply{}, ErrClientClosed, time.Now())
				return
			}

			c.process(p)

		case <-c.stop:
			return
		}
	}
}

func (c *Client) process(p *pending) {
	start := time.Now()
	quit := p.cmd.Verb() == protocol.QUIT

	if n := c.transport.Drain(); n > 0 {
		c.log.Debug("Discarded stale events", zap.Int("count", n))
	}

	if err := p.ctx.Err(); err != nil {
		c.complete(p, protocol.Reply{}, err, start)
		return
	}

	if err := c.connect(p.ctx); err != nil {
		c.complete(p, protocol.Reply{}, err, start)
		return
	}

	if quit {
		c.transport.ExpectClose(true)
	}

	if err := c.transport.Send(p.ctx, p.frame); err != nil {
		if quit {
			c.transport.ExpectClose(false)
		}

		c.complete(p, protocol.Reply{}, err, start)
		return
	}

	reply, err := c.awaitReply(c.transport.Generation(), quit)

	if quit {
		if cerr := c.transport.Close(); cerr != nil {
			c.log.Debug("Connection did not close cleanly after QUIT", zap.Error(cerr))
		}
		c.transport.ExpectClose(false)
	}

	c.complete(p, reply, err, start)
}

// connect opens the stream ahead of Send when there is a hook to run on it.
func (c *Client) connect(ctx context.Context) error {
	if c.onConnect == nil || c.transport.State() == transport.StateOpen {
		return nil
	}

	if err := c.transport.Open(ctx); err != nil {
		return err
	}

	setup := &Setup{client: c, generation: c.transport.Generation()}
	if err := c.onConnect(ctx, setup); err != nil {
		if cerr := c.transport.Close(); cerr != nil {
			c.log.Debug("Connection did not close cleanly after failed setup", zap.Error(cerr))
		}

		return fmt.Errorf("Failed to set up connection: %w", err)
	}

	return nil
}

// awaitReply waits for the answer to a command sent on stream generation.
// Events from streams that were replaced before the send are skipped.
func (c *Client) awaitReply(generation uint64, quit bool) (protocol.Reply, error) {
	for {
		select {
		case ev := <-c.transport.Events():
			if ev.Generation < generation {
				c.log.Debug("Discarded event from a replaced connection",
					zap.Uint64("generation", ev.Generation), zap.Error(ev.Err))
				continue
			}

			return c.eventReply(ev, quit)

		case <-c.stop:
			return protocol.Reply{}, ErrClientClosed
		}
	}
}

func (c *Client) eventReply(ev transport.Event, quit bool) (protocol.Reply, error) {
	switch {
	case ev.Closed && quit:
		// The server hung up before its +OK reached us.
		return protocol.OK, nil

	case ev.Closed:
		return protocol.Reply{}, &transport.Error{Op: "read", Addr: c.transport.Addr(), Err: transport.ErrUnexpectedClose}

	case ev.Err != nil:
		return protocol.Reply{}, ev.Err
	}

	reply, _, err := protocol.ParseReply(ev.Frame)
	if err != nil {
		return protocol.Reply{}, err
	}

	return reply, reply.Err()
}

func (c *Client) complete(p *pending, reply protocol.Reply, err error, start time.Time) {
	outcome := outcomeOf(err)
	if outcome == metrics.OutcomeError {
		c.log.Debug("Command failed", zap.Stringer("command", p.cmd), zap.Error(err))
	}

	c.metrics.ObserveCommand(p.cmd.Verb(), outcome, time.Since(start))

	if p.inline {
		p.handler(reply, err)
		return
	}

	c.executor.Submit(func() { p.handler(reply, err) })
}

func outcomeOf(err error) string {
	var serverErr *protocol.ServerError

	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &serverErr):
		return metrics.OutcomeServerError
	default:
		return metrics.OutcomeError
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}
