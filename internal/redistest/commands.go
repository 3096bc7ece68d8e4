package redistest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/storage"
)

const commandTimeout = 3 * time.Second

type handler func(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply

type command struct {
	arity   int // minimum number of args, excluding the name
	handler handler
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"PING":     {0, handlePing},
		"ECHO":     {1, handleEcho},
		"SELECT":   {1, handleSelect},
		"GET":      {1, handleGet},
		"SET":      {2, handleSet},
		"DEL":      {1, handleDel},
		"EXISTS":   {1, handleExists},
		"INCR":     {1, incrHandler(1, false)},
		"DECR":     {1, incrHandler(-1, false)},
		"INCRBY":   {2, incrHandler(1, true)},
		"DECRBY":   {2, incrHandler(-1, true)},
		"APPEND":   {2, handleAppend},
		"STRLEN":   {1, handleStrLen},
		"DUMP":     {1, handleDump},
		"RESTORE":  {3, handleRestore},
		"LPUSH":    {2, pushHandler(true)},
		"RPUSH":    {2, pushHandler(false)},
		"LRANGE":   {3, handleLRange},
		"LLEN":     {1, handleLLen},
		"HSET":     {3, handleHSet},
		"HGET":     {2, handleHGet},
		"HGETALL":  {1, handleHGetAll},
		"SADD":     {2, handleSAdd},
		"SMEMBERS": {1, handleSMembers},
		"PUBLISH":  {2, handlePublish},
	}
}

// allowedWhileSubscribed are the only commands a subscribed connection may
// send.
var allowedWhileSubscribed = map[string]bool{
	"SUBSCRIBE":    true,
	"UNSUBSCRIBE":  true,
	"PSUBSCRIBE":   true,
	"PUNSUBSCRIBE": true,
	"PING":         true,
	"QUIT":         true,
}

// dispatch answers one command. Subscription commands answer with one reply
// per channel. quit is set when the connection must close after the replies
// are written.
func (c *serverConn) dispatch(argv [][]byte) (replies []protocol.Reply, quit bool) {
	name := strings.ToUpper(string(argv[0]))
	args := argv[1:]

	if fallback := c.server.opts.Fallback; fallback != nil {
		if reply, ok := fallback(argv); ok {
			return []protocol.Reply{reply}, false
		}
	}

	switch {
	case name == "QUIT":
		return []protocol.Reply{protocol.OK}, true

	case name == "AUTH":
		return []protocol.Reply{c.auth(args)}, false

	case !c.authed:
		return []protocol.Reply{protocol.ErrorReply("NOAUTH Authentication required.")}, false

	case c.subCount > 0 && !allowedWhileSubscribed[name]:
		return []protocol.Reply{protocol.ErrorReply("ERR Can't execute '" + strings.ToLower(name) +
			"': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context")}, false

	case c.subCount > 0 && name == "PING":
		payload := ""
		if len(args) > 0 {
			payload = string(args[0])
		}
		return []protocol.Reply{protocol.Array(protocol.Bulk("pong"), protocol.Bulk(payload))}, false
	}

	switch name {
	case "SUBSCRIBE", "PSUBSCRIBE":
		if len(args) == 0 {
			return []protocol.Reply{wrongArity(name)}, false
		}
		return c.subscribe(name, args), false

	case "UNSUBSCRIBE", "PUNSUBSCRIBE":
		return c.unsubscribe(name, args), false
	}

	cmd, ok := commands[name]
	if !ok {
		return []protocol.Reply{protocol.ErrorReply("ERR unknown command '" + string(argv[0]) + "'")}, false
	}

	if len(args) < cmd.arity {
		return []protocol.Reply{wrongArity(name)}, false
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	return []protocol.Reply{cmd.handler(ctx, c, args)}, false
}

func (c *serverConn) auth(args [][]byte) protocol.Reply {
	if len(args) != 1 {
		return wrongArity("AUTH")
	}

	if c.server.opts.Password == "" {
		return protocol.ErrorReply("ERR Client sent AUTH, but no password is set")
	}

	if string(args[0]) != c.server.opts.Password {
		return protocol.ErrorReply("WRONGPASS invalid username-password pair")
	}

	c.authed = true
	return protocol.OK
}

func (c *serverConn) subscribe(name string, names [][]byte) []protocol.Reply {
	store := c.server.store
	kind := strings.ToLower(name)

	replies := make([]protocol.Reply, 0, len(names))
	for _, n := range names {
		if name == "SUBSCRIBE" {
			c.subCount = store.Subscribe(c, string(n))
		} else {
			c.subCount = store.PSubscribe(c, string(n))
		}

		replies = append(replies, protocol.Array(protocol.Bulk(kind), protocol.BulkString(n), protocol.Integer(int64(c.subCount))))
	}

	return replies
}

func (c *serverConn) unsubscribe(name string, names [][]byte) []protocol.Reply {
	store := c.server.store
	kind := strings.ToLower(name)

	targets := make([]string, 0, len(names))
	for _, n := range names {
		targets = append(targets, string(n))
	}

	if len(targets) == 0 {
		channels, patterns := store.Subscriptions(c)
		if name == "UNSUBSCRIBE" {
			targets = channels
		} else {
			targets = patterns
		}
	}

	if len(targets) == 0 {
		return []protocol.Reply{protocol.Array(protocol.Bulk(kind), protocol.NilBulk(), protocol.Integer(int64(c.subCount)))}
	}

	replies := make([]protocol.Reply, 0, len(targets))
	for _, target := range targets {
		if name == "UNSUBSCRIBE" {
			c.subCount = store.Unsubscribe(c, target)
		} else {
			c.subCount = store.PUnsubscribe(c, target)
		}

		replies = append(replies, protocol.Array(protocol.Bulk(kind), protocol.Bulk(target), protocol.Integer(int64(c.subCount))))
	}

	return replies
}

func handlePing(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	if len(args) > 0 {
		return protocol.BulkString(args[0])
	}

	return protocol.SimpleString("PONG")
}

func (c *serverConn) keyspace() storage.Store {
	return c.server.DB(c.db)
}

func handleEcho(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return protocol.BulkString(args[0])
}

func handleSelect(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	db, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return errorReply(storage.ErrNotInteger)
	}

	if db < 0 || db >= databases {
		return protocol.ErrorReply("ERR DB index is out of range")
	}

	c.db = db
	return protocol.OK
}

func handleGet(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	value, found, err := c.keyspace().Get(ctx, string(args[0]))
	return bulkOrNil(value, found, err)
}

func handleSet(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	var opts storage.SetOptions

	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			opts.IfMissing = true
		case "XX":
			opts.IfExists = true
		case "EX", "PX":
			if i+1 >= len(args) {
				return protocol.ErrorReply("ERR syntax error")
			}

			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil || n <= 0 {
				return protocol.ErrorReply("ERR invalid expire time in 'set' command")
			}

			unit := time.Second
			if strings.ToUpper(string(args[i])) == "PX" {
				unit = time.Millisecond
			}

			opts.TTL = time.Duration(n) * unit
			i++
		default:
			return protocol.ErrorReply("ERR syntax error")
		}
	}

	if opts.IfMissing && opts.IfExists {
		return protocol.ErrorReply("ERR syntax error")
	}

	ok, err := c.keyspace().Set(ctx, string(args[0]), args[1], opts)
	if err != nil {
		return errorReply(err)
	}

	if !ok {
		return protocol.NilBulk()
	}

	return protocol.OK
}

func handleDel(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().Del(ctx, keys(args)...))
}

func handleExists(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().Exists(ctx, keys(args)...))
}

func incrHandler(sign int64, withDelta bool) handler {
	return func(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
		delta := int64(1)
		if withDelta {
			n, err := strconv.ParseInt(string(args[1]), 10, 64)
			if err != nil {
				return errorReply(storage.ErrNotInteger)
			}
			delta = n
		}

		return integerReply(c.keyspace().IncrBy(ctx, string(args[0]), sign*delta))
	}
}

func handleAppend(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().Append(ctx, string(args[0]), args[1]))
}

func handleStrLen(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().StrLen(ctx, string(args[0])))
}

func handleDump(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	payload, found, err := c.keyspace().Dump(ctx, string(args[0]))
	return bulkOrNil(payload, found, err)
}

func handleRestore(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	ttl, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || ttl < 0 {
		return protocol.ErrorReply("ERR Invalid TTL value, must be >= 0")
	}

	replace := false
	for _, arg := range args[3:] {
		if strings.ToUpper(string(arg)) != "REPLACE" {
			return protocol.ErrorReply("ERR syntax error")
		}
		replace = true
	}

	if err := c.keyspace().Restore(ctx, string(args[0]), time.Duration(ttl)*time.Millisecond, args[2], replace); err != nil {
		return errorReply(err)
	}

	return protocol.OK
}

func pushHandler(left bool) handler {
	return func(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
		return integerReply(c.keyspace().Push(ctx, string(args[0]), left, args[1:]...))
	}
}

func handleLRange(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	start, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return errorReply(storage.ErrNotInteger)
	}

	stop, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errorReply(storage.ErrNotInteger)
	}

	return arrayReply(c.keyspace().Range(ctx, string(args[0]), start, stop))
}

func handleLLen(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().LLen(ctx, string(args[0])))
}

func handleHSet(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	if len(args[1:])%2 != 0 {
		return wrongArity("HSET")
	}

	return integerReply(c.keyspace().HSet(ctx, string(args[0]), args[1:]...))
}

func handleHGet(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	value, found, err := c.keyspace().HGet(ctx, string(args[0]), string(args[1]))
	return bulkOrNil(value, found, err)
}

func handleHGetAll(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return arrayReply(c.keyspace().HGetAll(ctx, string(args[0])))
}

func handleSAdd(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return integerReply(c.keyspace().SAdd(ctx, string(args[0]), args[1:]...))
}

func handleSMembers(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	return arrayReply(c.keyspace().SMembers(ctx, string(args[0])))
}

func handlePublish(ctx context.Context, c *serverConn, args [][]byte) protocol.Reply {
	receivers, err := c.server.store.Publish(ctx, string(args[0]), args[1])
	if err != nil {
		c.log.Warn("Failed to deliver to some subscribers",
			zap.String("channel", string(args[0])),
			zap.Error(err))
	}

	return protocol.Integer(receivers)
}

func wrongArity(name string) protocol.Reply {
	return protocol.ErrorReply("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
}

func errorReply(err error) protocol.Reply {
	return protocol.ErrorReply(err.Error())
}

func integerReply(n int64, err error) protocol.Reply {
	if err != nil {
		return errorReply(err)
	}

	return protocol.Integer(n)
}

func bulkOrNil(value []byte, found bool, err error) protocol.Reply {
	switch {
	case err != nil:
		return errorReply(err)
	case !found:
		return protocol.NilBulk()
	default:
		return protocol.BulkString(value)
	}
}

func arrayReply(values [][]byte, err error) protocol.Reply {
	if err != nil {
		return errorReply(err)
	}

	elems := make([]protocol.Reply, len(values))
	for i, v := range values {
		elems[i] = protocol.BulkString(v)
	}

	return protocol.Array(elems...)
}

func keys(args [][]byte) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = string(arg)
	}

	return out
}
