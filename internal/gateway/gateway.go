// Package gateway exposes a client over HTTP: commands go in as JSON and their
// replies come back as JSON.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/redisclient/protocol"
)

const (
	healthTimeout = 2 * time.Second
	jsonType      = "application/json; charset=utf-8"
)

var ErrBadRequest = errors.New("Bad request")

// Commands that change how the connection behaves, which would break every
// other request sharing it.
var refused = map[string]bool{
	protocol.SUBSCRIBE:    true,
	protocol.PSUBSCRIBE:   true,
	protocol.UNSUBSCRIBE:  true,
	protocol.PUNSUBSCRIBE: true,
	protocol.QUIT:         true,
	"MONITOR":             true,
}

// Doer runs one command. *client.Client is one.
type Doer interface {
	Do(ctx context.Context, cmd protocol.Command) (protocol.Reply, error)
}

type Options struct {
	Host string
	Port int

	Client Doer

	// Gatherer is served at /metrics when set
	Gatherer prometheus.Gatherer

	DebugHTTP bool
	Log       *zap.Logger
}

type Gateway struct {
	opts   Options
	addr   string
	router *gin.Engine
	server *http.Server
	log    *zap.Logger
}

func New(opts Options) *Gateway {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	g := &Gateway{
		opts: opts,
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		log:  opts.Log,
	}

	g.router = setupRouter(opts.DebugHTTP, opts.Log)
	g.routes()

	g.server = &http.Server{Handler: g.router}

	return g
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Addr() string {
	return g.addr
}

// Start listens and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	listener, err := reuseport.Listen("tcp", g.addr)
	if err != nil {
		return err
	}

	g.addr = listener.Addr().String()

	go func() {
		if err := g.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("Http server errored", zap.Error(err))
		}
	}()

	g.log.Info("Listening", zap.String("addr", g.addr))

	return nil
}

// Shutdown stops accepting requests and waits for the ones in flight until
// ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.server.SetKeepAlivesEnabled(false)
	return g.server.Shutdown(ctx)
}

func (g *Gateway) routes() {
	g.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	g.router.GET("/health", g.health)
	g.router.POST("/commands", g.command)

	if g.opts.Gatherer != nil {
		g.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.opts.Gatherer, promhttp.HandlerOpts{})))
	}
}

func (g *Gateway) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if _, err := g.opts.Client.Do(ctx, protocol.NewCommand(protocol.PING)); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (g *Gateway) command(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	cmd, err := parseCommand(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	reply, err := g.opts.Client.Do(c.Request.Context(), cmd)

	var serverErr *protocol.ServerError
	switch {
	case errors.As(err, &serverErr):
		writeError(c, http.StatusUnprocessableEntity, serverErr)
		return

	case err != nil:
		g.log.Warn("Command failed", zap.Stringer("command", cmd), zap.Error(err))
		writeError(c, http.StatusBadGateway, err)
		return
	}

	doc, err := protocol.SetJSON([]byte("{}"), "reply", reply)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, jsonType, doc)
}

// parseCommand reads {"command": "SET", "args": ["k", "v"]}. An argument may
// be {"base64": "..."} to send binary data.
func parseCommand(body []byte) (protocol.Command, error) {
	if !gjson.ValidBytes(body) {
		return protocol.Command{}, errorf("body is not JSON")
	}

	name := strings.TrimSpace(gjson.GetBytes(body, "command").String())
	if name == "" {
		return protocol.Command{}, errorf("command is required")
	}

	cmd := protocol.Command{Name: name}
	if refused[cmd.Verb()] {
		return protocol.Command{}, errorf(cmd.Verb() + " is not allowed over HTTP")
	}

	args := gjson.GetBytes(body, "args")
	if args.Exists() && !args.IsArray() {
		return protocol.Command{}, errorf("args must be an array")
	}

	var err error
	args.ForEach(func(_, arg gjson.Result) bool {
		if arg.IsObject() {
			var raw []byte
			raw, err = base64.StdEncoding.DecodeString(arg.Get("base64").String())
			if err != nil {
				return false
			}
			cmd = cmd.WithBytes(raw)
			return true
		}

		cmd = cmd.With(arg.String())
		return true
	})
	if err != nil {
		return protocol.Command{}, errorf("bad base64 argument: " + err.Error())
	}

	return cmd, nil
}

func errorf(msg string) error {
	return &requestError{msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func (e *requestError) Unwrap() error {
	return ErrBadRequest
}

func writeError(c *gin.Context, status int, err error) {
	doc, _ := sjson.SetBytes([]byte("{}"), "error", err.Error())
	c.Data(status, jsonType, doc)
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panics to the error log, with the stack
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
