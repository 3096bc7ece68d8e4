package redistest

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/tidwall/redcon"
	"go.uber.org/zap"

	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/storage"
)

const writeQueueSize = 127

var errSlowSubscriber = errors.New("Subscriber write queue is full")

type outgoing struct {
	data []byte

	// closeAfter closes the connection once data is written
	closeAfter bool
}

// serverConn is one client connection. redcon reads and parses its commands
// and calls handle for each of them, the write loop owns all writes to the
// socket so published messages and replies never interleave.
type serverConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn   net.Conn
	server *Server

	writeQueue chan outgoing
	closeOnce  sync.Once

	// Only touched by redcon's goroutine for this connection
	authed   bool
	subCount int
	db       int

	log *zap.Logger
}

func newServerConn(parentCtx context.Context, conn net.Conn, server *Server, log *zap.Logger) *serverConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &serverConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		server:     server,
		writeQueue: make(chan outgoing, writeQueueSize),
		authed:     server.opts.Password == "",
		log:        log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

func (c *serverConn) Start() {
	c.loopWaiter.Add(1)

	go func() {
		defer c.loopWaiter.Done()
		c.WriteLoop()
	}()
}

// Wait returns once the write loop has stopped.
func (c *serverConn) Wait() {
	c.loopWaiter.Wait()
}

func (c *serverConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})

	return nil
}

// handle answers one command parsed by redcon. A QUIT leaves the close to the
// write loop so the +OK is flushed first.
func (c *serverConn) handle(rc redcon.Conn, cmd redcon.Command) {
	// redcon reuses its read buffer, the store keeps what it is given.
	argv := make([][]byte, len(cmd.Args))
	for i, arg := range cmd.Args {
		argv[i] = append([]byte(nil), arg...)
	}

	// The commands still waiting in the pipeline arrived in the same read.
	c.server.record(argvStrings(argv), 1+len(rc.PeekPipeline()))

	replies, quit := c.dispatch(argv)

	var out []byte
	for _, reply := range replies {
		out = appendReply(out, reply)
	}

	c.write(out, quit)
}

func (c *serverConn) WriteLoop() {
	log := c.log.Named("writeLoop")
	chunkSize := c.server.opts.WriteChunkSize

	for {
		select {
		case <-c.ctx.Done():
			return

		case out := <-c.writeQueue:
			if err := c.writeChunks(out.data, chunkSize); err != nil {
				log.Debug("Failed to write reply", zap.Error(err))
				c.Close()
				return
			}

			if out.closeAfter {
				log.Debug("Client QUIT, closing")
				c.Close()
				return
			}
		}
	}
}

// Deliver queues a published message as a push reply.
func (c *serverConn) Deliver(msg *storage.Message) error {
	var reply protocol.Reply
	if msg.Kind == "pmessage" {
		reply = protocol.Array(protocol.Bulk("pmessage"), protocol.Bulk(msg.Pattern), protocol.Bulk(msg.Channel), protocol.BulkString(msg.Payload))
	} else {
		reply = protocol.Array(protocol.Bulk("message"), protocol.Bulk(msg.Channel), protocol.BulkString(msg.Payload))
	}

	select {
	case c.writeQueue <- outgoing{data: appendReply(nil, reply)}:
		return nil
	case <-c.ctx.Done():
		return net.ErrClosed
	default:
		return errSlowSubscriber
	}
}

func (c *serverConn) write(data []byte, closeAfter bool) bool {
	select {
	case c.writeQueue <- outgoing{data: data, closeAfter: closeAfter}:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *serverConn) writeChunks(data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(data)
	}

	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}

		if _, err := c.conn.Write(data[:n]); err != nil {
			return err
		}

		data = data[n:]
	}

	return nil
}

// appendReply encodes with redcon rather than the client's own codec, so the
// client is tested against an independent writer.
func appendReply(b []byte, r protocol.Reply) []byte {
	switch r.Kind {
	case protocol.KindSimpleString:
		return redcon.AppendString(b, string(r.Str))

	case protocol.KindError:
		return redcon.AppendError(b, string(r.Str))

	case protocol.KindInteger:
		return redcon.AppendInt(b, r.Int)

	case protocol.KindBulkString:
		if r.Nil {
			return redcon.AppendNull(b)
		}
		return redcon.AppendBulk(b, r.Str)

	case protocol.KindArray:
		if r.Nil {
			return redcon.AppendArray(b, -1)
		}

		b = redcon.AppendArray(b, len(r.Elems))
		for _, elem := range r.Elems {
			b = appendReply(b, elem)
		}
		return b
	}

	return redcon.AppendError(b, "ERR unknown reply kind")
}

func argvStrings(argv [][]byte) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = string(arg)
	}

	return out
}
