// Package pubsub runs a connection in subscribed mode.
//
// Once a connection subscribes, the server pushes arrays at it whenever a
// message is published, so replies can no longer be paired with commands by
// order alone. A Session queues every command it sends and reads every frame
// off its connection: simple and error replies answer the command at the head
// of the queue, confirmation pushes count down the subscribe family command at
// the head, and everything pushed goes to the message handler.
package pubsub

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/logsink"
	"github.com/luma/redisclient/metrics"
	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/transport"
)

var (
	ErrSessionClosed  = errors.New("Session is closed")
	ErrQuitRequested  = errors.New("Session is quitting")
	ErrNoNames        = errors.New("No channels or patterns given")
	ErrConnectionLost = errors.New("Connection lost before the reply arrived")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
	QuitRequested
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case QuitRequested:
		return "quit requested"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	Host          string
	Port          int
	ReadChunkSize int
	DialTimeout   time.Duration
}

type MessageHandler func(Message)

type ErrorHandler func(error)

// expectation is a command sent on the session that the server has not
// finished answering.
type expectation struct {
	verb string

	// Confirmation pushes still owed to a subscribe family command. An
	// UNSUBSCRIBE or PUNSUBSCRIBE without names is done once nothing of its
	// kind is left subscribed.
	remaining int
	all       bool

	resolve func(protocol.Reply, error)
}

type Session struct {
	transport *transport.Conn

	executor      client.Executor
	ownedExecutor *client.SerialExecutor

	metrics *metrics.Metrics
	log     *zap.Logger

	onMessage MessageHandler
	onError   ErrorHandler

	// sendMu keeps the order of expectations the same as the order commands
	// hit the wire.
	sendMu sync.Mutex

	mu           sync.Mutex
	state        State
	expectations []*expectation
	channels     map[string]struct{}
	patterns     map[string]struct{}
	onQuit       func(bool)

	// Events of streams before this one were answered by reopenLocked.
	generation uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session. Nothing is sent until the first command. Either
// handler may be nil.
func New(config Config, onMessage MessageHandler, onError ErrorHandler, opts ...Option) *Session {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		log = logsink.Default()
	}

	if onMessage == nil {
		onMessage = func(Message) {}
	}

	if onError == nil {
		onError = func(error) {}
	}

	s := &Session{
		transport: transport.New(transport.Options{
			Host:          config.Host,
			Port:          config.Port,
			ReadChunkSize: config.ReadChunkSize,
			DialTimeout:   config.DialTimeout,
			Dial:          o.dial,
			Metrics:       o.metrics,
			Log:           log.Named("transport"),
		}),
		executor:  o.executor,
		metrics:   o.metrics,
		log:       log.Named("pubsub"),
		onMessage: onMessage,
		onError:   onError,
		channels:  make(map[string]struct{}),
		patterns:  make(map[string]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if s.executor == nil {
		s.ownedExecutor = client.NewSerialExecutor(log.Named("executor"))
		s.executor = s.ownedExecutor
	}

	go s.dispatchLoop()

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Channels returns the channels the server confirmed, sorted.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedNames(s.channels)
}

// Patterns returns the patterns the server confirmed, sorted.
func (s *Session) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedNames(s.patterns)
}

// Auth authenticates the connection. handler receives the server's status
// text or its error.
func (s *Session) Auth(ctx context.Context, password string, handler func(string, error)) {
	s.expect(ctx, protocol.NewCommand(protocol.AUTH, password), handler)
}

// Ping checks the connection. Before any subscription the server answers
// PONG, afterwards the payload of its pong push, which is empty.
func (s *Session) Ping(ctx context.Context, handler func(string, error)) {
	s.expect(ctx, protocol.NewCommand(protocol.PING), handler)
}

// Subscribe asks for messages on channels. Confirmations arrive as messages
// of kind subscribe, one per channel.
func (s *Session) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return ErrNoNames
	}

	return s.send(ctx, protocol.NewCommand(protocol.SUBSCRIBE, channels...), s.confirmation(protocol.SUBSCRIBE, channels))
}

// Unsubscribe leaves channels, or every channel when none are given.
func (s *Session) Unsubscribe(ctx context.Context, channels ...string) error {
	return s.send(ctx, protocol.NewCommand(protocol.UNSUBSCRIBE, channels...), s.confirmation(protocol.UNSUBSCRIBE, channels))
}

func (s *Session) PSubscribe(ctx context.Context, patterns ...string) error {
	if len(patterns) == 0 {
		return ErrNoNames
	}

	return s.send(ctx, protocol.NewCommand(protocol.PSUBSCRIBE, patterns...), s.confirmation(protocol.PSUBSCRIBE, patterns))
}

// PUnsubscribe leaves patterns, or every pattern when none are given.
func (s *Session) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return s.send(ctx, protocol.NewCommand(protocol.PUNSUBSCRIBE, patterns...), s.confirmation(protocol.PUNSUBSCRIBE, patterns))
}

// Quit asks the server to close the connection. handler gets true once the
// connection has closed, or false if it failed, in which case the error
// handler is told why.
func (s *Session) Quit(ctx context.Context, handler func(success bool)) {
	if handler == nil {
		handler = func(bool) {}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state == QuitRequested {
		s.mu.Unlock()
		s.fail(handler, ErrQuitRequested)
		return
	}

	previous := s.state
	s.state = QuitRequested
	s.onQuit = handler
	s.mu.Unlock()

	s.transport.ExpectClose(true)

	// The +OK carries no information, the close is the answer.
	swallow := &expectation{verb: protocol.QUIT, resolve: func(protocol.Reply, error) {}}
	if err := s.sendLocked(ctx, protocol.NewCommand(protocol.QUIT), swallow); err != nil {
		s.transport.ExpectClose(false)

		s.mu.Lock()
		s.state = previous
		s.onQuit = nil
		s.mu.Unlock()

		s.fail(handler, err)
	}
}

// Close drops the connection without QUIT. Commands still waiting for a reply
// get ErrSessionClosed.
func (s *Session) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.transport.Close()
		<-s.done

		s.mu.Lock()
		pending := s.resetLocked()
		s.state = Closed
		s.mu.Unlock()

		for _, exp := range pending {
			s.resolve(exp, protocol.Reply{}, ErrSessionClosed)
		}

		if s.ownedExecutor != nil {
			err = multierr.Append(err, s.ownedExecutor.Close())
		}
	})

	return err
}

func (s *Session) expect(ctx context.Context, cmd protocol.Command, handler func(string, error)) {
	if handler == nil {
		handler = func(string, error) {}
	}

	exp := &expectation{
		verb: cmd.Verb(),
		resolve: func(reply protocol.Reply, err error) {
			if err != nil {
				handler("", err)
				return
			}
			handler(reply.String(), nil)
		},
	}

	if err := s.send(ctx, cmd, exp); err != nil {
		s.executor.Submit(func() { handler("", err) })
	}
}

// confirmation expects one push per name. A refusal goes to the error
// handler, a lost connection is reported by connectionEnded.
func (s *Session) confirmation(verb string, names []string) *expectation {
	return &expectation{
		verb:      verb,
		remaining: len(names),
		all:       len(names) == 0,
		resolve: func(_ protocol.Reply, err error) {
			var serverErr *protocol.ServerError
			if errors.As(err, &serverErr) {
				s.onError(err)
			}
		},
	}
}

func (s *Session) fail(handler func(bool), err error) {
	s.executor.Submit(func() {
		handler(false)
		s.onError(err)
	})
}

func (s *Session) send(ctx context.Context, cmd protocol.Command, exp *expectation) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	quitting := s.state == QuitRequested
	s.mu.Unlock()

	if quitting {
		return ErrQuitRequested
	}

	return s.sendLocked(ctx, cmd, exp)
}

// sendLocked must be called with sendMu held.
func (s *Session) sendLocked(ctx context.Context, cmd protocol.Command, exp *expectation) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	var lost []*expectation

	s.mu.Lock()
	if s.transport.State() != transport.StateOpen {
		lost = s.reopenLocked()
	}
	if exp != nil {
		s.expectations = append(s.expectations, exp)
	}
	s.mu.Unlock()

	for _, e := range lost {
		s.resolve(e, protocol.Reply{}, ErrConnectionLost)
	}

	err := s.transport.Send(ctx, protocol.AppendCommand(nil, cmd))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Debug("Failed to send", zap.Stringer("command", cmd), zap.Error(err))

		s.removeLocked(exp)
		if s.state == Connecting {
			s.state = Disconnected
		}

		return err
	}

	if s.state == Connecting {
		s.state = Subscribed
	}

	return nil
}

// reopenLocked is called before a send that will open a new stream. Whatever
// the old stream still owed is lost, even if its end has not been read yet.
func (s *Session) reopenLocked() []*expectation {
	s.generation = s.transport.Generation() + 1
	if s.state != QuitRequested {
		s.state = Connecting
	}

	return s.resetLocked()
}

func (s *Session) dispatchLoop() {
	defer close(s.done)

	for {
		select {
		case ev := <-s.transport.Events():
			s.handleEvent(ev)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	var transportErr *transport.Error

	s.mu.Lock()
	stale := ev.Generation < s.generation
	s.mu.Unlock()

	if stale {
		// The session already moved to a new stream. Only the reason the old
		// one ended is still news.
		if errors.As(ev.Err, &transportErr) {
			s.executor.Submit(func() { s.onError(ev.Err) })
		}
		s.log.Debug("Discarded event from a replaced connection", zap.Uint64("generation", ev.Generation))
		return
	}

	switch {
	case ev.Closed:
		s.connectionEnded(nil)

	case errors.As(ev.Err, &transportErr):
		s.connectionEnded(ev.Err)

	case ev.Err != nil:
		// Undecodable bytes, the connection itself is still usable.
		s.log.Debug("Failed to decode push", zap.Error(ev.Err))
		s.executor.Submit(func() { s.onError(ev.Err) })

	default:
		reply, _, err := protocol.ParseReply(ev.Frame)
		if err != nil {
			s.executor.Submit(func() { s.onError(err) })
			return
		}

		s.route(reply)
	}
}

// connectionEnded moves the session to Closed. err is nil when the close was
// expected after QUIT.
func (s *Session) connectionEnded(err error) {
	s.transport.ExpectClose(false)

	s.mu.Lock()
	pending := s.resetLocked()
	onQuit := s.onQuit
	s.onQuit = nil
	s.state = Closed
	s.mu.Unlock()

	failure := err
	if failure == nil {
		failure = ErrConnectionLost
	}

	for _, exp := range pending {
		s.resolve(exp, protocol.Reply{}, failure)
	}

	s.executor.Submit(func() {
		if onQuit != nil {
			onQuit(err == nil)
		}

		if err != nil {
			s.onError(err)
		}
	})

	if err != nil {
		s.log.Info("Subscription connection lost", zap.Error(err))
	}
}

func (s *Session) route(reply protocol.Reply) {
	if reply.Kind != protocol.KindArray {
		exp := s.popExpectation()
		if exp == nil {
			if err := reply.Err(); err != nil {
				s.executor.Submit(func() { s.onError(err) })
				return
			}

			s.log.Debug("Dropping unexpected reply", zap.Stringer("reply", reply))
			return
		}

		s.resolve(exp, reply, reply.Err())
		return
	}

	msg, err := ParseMessage(reply)
	if err != nil {
		s.executor.Submit(func() { s.onError(err) })
		return
	}

	s.metrics.PushReceived(msg.Kind)

	switch msg.Kind {
	case KindSubscribe, KindUnsubscribe, KindPSubscribe, KindPUnsubscribe:
		if exp := s.confirm(msg); exp != nil {
			s.resolve(exp, reply, nil)
		}

	case KindPong:
		if exp := s.popPing(); exp != nil {
			s.resolve(exp, protocol.BulkString(msg.Payload), nil)
			return
		}
	}

	s.executor.Submit(func() { s.onMessage(msg) })
}

// confirm records a confirmation push and counts it against the command at
// the head of the queue. It returns that command once it is fully answered.
func (s *Session) confirm(msg Message) *expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackLocked(msg)

	if len(s.expectations) == 0 {
		return nil
	}

	exp := s.expectations[0]
	if exp.verb != strings.ToUpper(msg.Kind) {
		return nil
	}

	if exp.all {
		left := s.channels
		if msg.Kind == KindPUnsubscribe {
			left = s.patterns
		}
		if len(left) > 0 {
			return nil
		}
	} else if exp.remaining--; exp.remaining > 0 {
		return nil
	}

	s.shiftLocked()
	return exp
}

func (s *Session) trackLocked(msg Message) {
	switch msg.Kind {
	case KindSubscribe:
		s.channels[msg.Channel] = struct{}{}

	case KindUnsubscribe:
		delete(s.channels, msg.Channel)

	case KindPSubscribe:
		s.patterns[msg.Pattern] = struct{}{}

	case KindPUnsubscribe:
		delete(s.patterns, msg.Pattern)
	}
}

// popExpectation removes the command at the head of the queue, which is the
// one a simple or error reply answers.
func (s *Session) popExpectation() *expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.expectations) == 0 {
		return nil
	}

	return s.shiftLocked()
}

// popPing removes the head of the queue if it is a PING, answered by a pong
// push once subscribed.
func (s *Session) popPing() *expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.expectations) == 0 || s.expectations[0].verb != protocol.PING {
		return nil
	}

	return s.shiftLocked()
}

func (s *Session) shiftLocked() *expectation {
	exp := s.expectations[0]
	s.expectations[0] = nil
	s.expectations = s.expectations[1:]

	return exp
}

func (s *Session) removeLocked(exp *expectation) {
	if exp == nil {
		return
	}

	for i, e := range s.expectations {
		if e == exp {
			s.expectations = append(s.expectations[:i], s.expectations[i+1:]...)
			return
		}
	}
}

// resetLocked forgets all per-connection state and returns the expectations
// that will never be answered.
func (s *Session) resetLocked() []*expectation {
	pending := s.expectations
	s.expectations = nil
	s.channels = make(map[string]struct{})
	s.patterns = make(map[string]struct{})

	return pending
}

func (s *Session) resolve(exp *expectation, reply protocol.Reply, err error) {
	s.executor.Submit(func() { exp.resolve(reply, err) })
}

func (s *Session) isClosed() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
