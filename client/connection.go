package client

import (
	"context"
	"errors"
	"time"

	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/transport"
)

var ErrSetupInterrupted = errors.New("Connection was lost during setup")

// OnConnect runs on every newly opened stream before the command that opened
// it. Use it for AUTH and SELECT, which the server forgets on reconnect.
type OnConnect func(ctx context.Context, setup *Setup) error

// Setup sends commands on the stream being set up. It is only valid for the
// duration of the OnConnect call it was passed to.
type Setup struct {
	client     *Client
	generation uint64
}

// Do sends cmd and waits for its reply. It fails with ErrSetupInterrupted
// rather than reopen a stream that dropped.
func (s *Setup) Do(ctx context.Context, cmd protocol.Command) (protocol.Reply, error) {
	t := s.client.transport
	start := time.Now()

	if !s.current() {
		return protocol.Reply{}, ErrSetupInterrupted
	}

	if err := t.Send(ctx, protocol.AppendCommand(nil, cmd)); err != nil {
		return protocol.Reply{}, err
	}

	if !s.current() {
		return protocol.Reply{}, ErrSetupInterrupted
	}

	reply, err := s.client.awaitReply(s.generation, false)
	s.client.metrics.ObserveCommand(cmd.Verb(), outcomeOf(err), time.Since(start))

	return reply, err
}

func (s *Setup) Auth(ctx context.Context, password string) error {
	return asStatus(s.Do(ctx, protocol.NewCommand("AUTH", password)))
}

func (s *Setup) Select(ctx context.Context, db int) error {
	return asStatus(s.Do(ctx, protocol.NewCommand("SELECT").WithInt(int64(db))))
}

// Handshake returns an OnConnect that authenticates when password is set and
// selects db when it is not 0.
func Handshake(password string, db int) OnConnect {
	return func(ctx context.Context, setup *Setup) error {
		if password != "" {
			if err := setup.Auth(ctx, password); err != nil {
				return err
			}
		}

		if db != 0 {
			return setup.Select(ctx, db)
		}

		return nil
	}
}

func (s *Setup) current() bool {
	t := s.client.transport
	return t.State() == transport.StateOpen && t.Generation() == s.generation
}

// Auth authenticates the connection. A reconnect after a dropped connection
// needs another Auth, see WithOnConnect to have it sent on every stream.
func (c *Client) Auth(ctx context.Context, password string) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("AUTH", password)))
}

func (c *Client) Echo(ctx context.Context, message string) (string, error) {
	return asString(c.Do(ctx, protocol.NewCommand("ECHO", message)))
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	return asString(c.Do(ctx, protocol.NewCommand("PING")))
}

// Quit asks the server to close the connection. The next command reconnects.
func (c *Client) Quit(ctx context.Context) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("QUIT")))
}

func (c *Client) Select(ctx context.Context, db int) error {
	return asStatus(c.Do(ctx, protocol.NewCommand("SELECT").WithInt(int64(db))))
}
