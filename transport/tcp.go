package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/redisclient/protocol"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrUnexpectedClose is the cause of a read Error when the server ends the
// stream without the close having been announced with ExpectClose.
var ErrUnexpectedClose = errors.New("Connection closed by server")

// Error is a failure of the underlying stream.
type Error struct {
	// Op is one of "dial", "read" or "write"
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Failed to %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Event is delivered on Conn.Events for every complete reply frame read from
// the stream and once when the stream ends.
type Event struct {
	// Frame holds the bytes of exactly one reply. It is not shared with the
	// transport.
	Frame []byte

	// Err is set when the stream failed or delivered undecodable bytes.
	Err error

	// Closed is set when the stream ended after ExpectClose(true).
	Closed bool

	// Generation is the stream the event came from, see Conn.Generation.
	Generation uint64
}

// Conn is a lazily opened duplex stream to one server. Frames are written with
// Send and complete reply frames are read from Events.
type Conn struct {
	addr string
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	conn          net.Conn
	state         State
	generation    uint64
	stop          chan struct{}
	closeExpected bool

	// writeMu keeps frames from different senders whole on the wire
	writeMu sync.Mutex

	events chan Event
	loops  sync.WaitGroup
}

func New(options Options) *Conn {
	options = options.withDefaults()

	return &Conn{
		addr:   net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		opts:   options,
		log:    options.Log,
		state:  StateClosed,
		events: make(chan Event, options.EventBuffer),
	}
}

func (c *Conn) Addr() string {
	return c.addr
}

// Events returns the channel replies and stream endings are delivered on. The
// channel is never closed and stays valid across reopens.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Generation counts the streams opened so far. A read loop can still deliver
// after its stream was replaced, so events older than the stream a command
// was sent on are stale.
func (c *Conn) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// ExpectClose marks whether the next end of stream is the answer to a QUIT.
func (c *Conn) ExpectClose(expected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeExpected = expected
}

// Open tears down any existing stream and dials a new one.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.openLocked(ctx)
}

// Send writes frame to the stream, opening it first unless it is open.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	if c.state != StateOpen {
		if err := c.openLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return c.writeFailed(conn, err)
	}

	for len(frame) > 0 {
		n, err := conn.Write(frame)
		if err != nil {
			return c.writeFailed(conn, err)
		}

		frame = frame[n:]
	}

	return nil
}

// Close closes the stream. The Conn can be reopened afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	err := c.teardownLocked()
	c.state = StateClosed
	c.mu.Unlock()

	c.loops.Wait()

	return err
}

func (c *Conn) openLocked(ctx context.Context) error {
	if err := c.teardownLocked(); err != nil {
		c.log.Debug("Previous connection did not close cleanly", zap.Error(err))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, err := c.opts.Dial(ctx, "tcp", c.addr)
	if err != nil {
		c.state = StateError
		return &Error{Op: "dial", Addr: c.addr, Err: err}
	}

	c.generation++
	c.conn = conn
	c.state = StateOpen
	c.stop = make(chan struct{})

	c.loops.Add(1)
	go c.readLoop(c.generation, conn, c.stop)

	c.opts.Metrics.ConnectionOpened()
	c.log.Debug("Connected", zap.String("addr", c.addr), zap.Uint64("generation", c.generation))

	return nil
}

func (c *Conn) teardownLocked() error {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

func (c *Conn) writeFailed(conn net.Conn, err error) error {
	c.mu.Lock()
	if c.conn == conn {
		c.state = StateError
	}
	c.mu.Unlock()

	c.log.Warn("Failed to write to connection", zap.String("addr", c.addr), zap.Error(err))

	return &Error{Op: "write", Addr: c.addr, Err: err}
}

func (c *Conn) readLoop(generation uint64, conn net.Conn, stop chan struct{}) {
	defer c.loops.Done()

	log := c.log.Named("readLoop").With(zap.Uint64("generation", generation))
	decoder := protocol.NewDecoder()
	chunk := make([]byte, c.opts.ReadChunkSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			decoder.Feed(chunk[:n])

			if !c.deliverFrames(generation, decoder, stop, log) {
				return
			}
		}

		if err != nil {
			c.finish(generation, stop, err)
			return
		}
	}
}

// deliverFrames sends every complete frame in the decoder. It returns false
// once the stream has been torn down.
func (c *Conn) deliverFrames(generation uint64, decoder *protocol.Decoder, stop chan struct{}, log *zap.Logger) bool {
	for {
		frame, err := decoder.NextFrame()
		switch {
		case errors.Is(err, protocol.ErrIncomplete):
			return true

		case err != nil:
			log.Warn("Failed to decode server reply", zap.Error(err))
			return c.deliver(stop, Event{Err: err, Generation: generation})
		}

		if !c.deliver(stop, Event{Frame: frame, Generation: generation}) {
			return false
		}
	}
}

func (c *Conn) finish(generation uint64, stop chan struct{}, err error) {
	c.mu.Lock()

	if generation != c.generation || isClosed(stop) {
		// Torn down by Open or Close, nobody is waiting on this stream.
		c.mu.Unlock()
		return
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	ev := Event{Generation: generation}
	if c.closeExpected {
		c.state = StateClosed
		ev.Closed = true
		c.log.Debug("Connection closed", zap.String("addr", c.addr))
	} else {
		if errors.Is(err, io.EOF) {
			err = ErrUnexpectedClose
		}

		c.state = StateError
		ev.Err = &Error{Op: "read", Addr: c.addr, Err: err}
		c.log.Warn("Connection lost", zap.String("addr", c.addr), zap.Error(err))
	}

	c.mu.Unlock()

	c.deliver(stop, ev)
}

func (c *Conn) deliver(stop chan struct{}, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-stop:
		return false
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Drain discards events left over from earlier exchanges.
func (c *Conn) Drain() int {
	n := 0
	for {
		select {
		case <-c.events:
			n++
		default:
			return n
		}
	}
}
