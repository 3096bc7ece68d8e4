// Package redistest is a small in-memory RESP server. It backs the tests of
// the client packages and the `redisclient mock` command.
package redistest

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/tidwall/redcon"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/storage"
)

const databases = 16

// FallbackFunc answers a command before the built in handlers see it. It
// returns false to let the built in handlers reply.
type FallbackFunc func(argv [][]byte) (protocol.Reply, bool)

type Options struct {
	// Host to listen on, defaults to 127.0.0.1
	Host string

	// Port to listen on, zero picks a free port
	Port int

	// Password enables AUTH when set
	Password string

	// WriteChunkSize splits every reply into writes of at most this many
	// bytes. Zero writes each reply whole.
	WriteChunkSize int

	Fallback FallbackFunc

	Store storage.Store

	Log *zap.Logger
}

type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr     string
	listener net.Listener
	srv      *redcon.Server

	opts  Options
	store storage.Store

	// Keyspaces selected with SELECT, index 0 is store. Pub/sub always goes
	// through store, as channels are not scoped to a database.
	dbs   [databases]storage.Store
	dbsMu sync.Mutex

	mu          sync.Mutex
	activeConns map[*serverConn]struct{}
	received    [][]string
	maxBatch    int

	log *zap.Logger
}

func New(options Options) *Server {
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}

	if options.Store == nil {
		options.Store = storage.NewInmemoryStore()
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	return &Server{
		addr:        net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		opts:        options,
		store:       options.Store,
		activeConns: make(map[*serverConn]struct{}),
		log:         options.Log,
	}
}

// Start listens and serves connections in the background until ctx is done
// or Close is called. redcon reads the commands, the listener comes from
// go_reuseport.
func (s *Server) Start(parentCtx context.Context) error {
	listener, err := reuseport.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.listener = listener
	s.addr = listener.Addr().String()

	s.srv = redcon.NewServerNetwork("tcp", s.addr,
		func(rc redcon.Conn, cmd redcon.Command) {
			rc.Context().(*serverConn).handle(rc, cmd)
		},
		func(rc redcon.Conn) bool {
			return s.accept(ctx, rc)
		},
		func(rc redcon.Conn, err error) {
			s.closed(rc, err)
		})

	s.log.Info("Listening", zap.String("addr", s.addr))

	s.stopWaiter.Add(1)
	go func() {
		defer s.stopWaiter.Done()

		if err := s.srv.Serve(listener); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error("Failed to serve", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.srv.Close()
	}()

	return nil
}

func (s *Server) accept(ctx context.Context, rc redcon.Conn) bool {
	c := newServerConn(ctx, rc.NetConn(), s, s.log.Named("conn"))
	rc.SetContext(c)

	s.addConn(c)
	s.stopWaiter.Add(1)
	c.Start()

	return true
}

func (s *Server) closed(rc redcon.Conn, err error) {
	defer s.stopWaiter.Done()

	c := rc.Context().(*serverConn)
	if err != nil && c.isRunning() {
		c.log.Debug("Client went away", zap.Error(err))
	}

	c.Close()
	c.Wait()

	s.store.Forget(c)
	s.removeConn(c)
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

// Store is the keyspace of database 0.
func (s *Server) Store() storage.Store {
	return s.store
}

// DB returns the keyspace SELECT n switches to.
func (s *Server) DB(n int) storage.Store {
	if n == 0 {
		return s.store
	}

	s.dbsMu.Lock()
	defer s.dbsMu.Unlock()

	if s.dbs[n] == nil {
		s.dbs[n] = storage.NewInmemoryStore()
	}

	return s.dbs[n]
}

// Received returns every command received so far, in arrival order.
func (s *Server) Received() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, len(s.received))
	copy(out, s.received)

	return out
}

// LastReceived returns the most recent command, or nil.
func (s *Server) LastReceived() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.received) == 0 {
		return nil
	}

	return s.received[len(s.received)-1]
}

// MaxBatch returns the largest number of commands that arrived in a single
// read. A client that never pipelines keeps it at 1.
func (s *Server) MaxBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maxBatch
}

// KillConnections drops every client connection without a reply.
func (s *Server) KillConnections() {
	for _, conn := range s.conns() {
		conn.Close()
	}
}

// Close immediately closes the listener and all connections.
func (s *Server) Close() error {
	s.log.Info("Stopping server")

	if s.cancel != nil {
		s.cancel()
		s.listener.Close()
	}

	var err error
	for _, conn := range s.conns() {
		err = multierr.Append(err, conn.Close())
	}

	s.stopWaiter.Wait()

	return err
}

// record notes a received command that arrived in one read with batch-1
// others.
func (s *Server) record(argv []string, batch int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, argv)
	if batch > s.maxBatch {
		s.maxBatch = batch
	}
}

func (s *Server) conns() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*serverConn, 0, len(s.activeConns))
	for c := range s.activeConns {
		conns = append(conns, c)
	}

	return conns
}

func (s *Server) addConn(conn *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeConns[conn] = struct{}{}
}

func (s *Server) removeConn(conn *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.activeConns, conn)
}
