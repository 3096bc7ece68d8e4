package metrics

import "strings"

// OtherCommand is the label for verbs outside knownCommands, which keeps the
// label set bounded when commands come from user input.
const OtherCommand = "other"

var knownCommands = map[string]struct{}{}

func init() {
	for _, verb := range strings.Fields(`
		APPEND AUTH BITCOUNT BITOP BITPOS BLPOP BRPOP BRPOPLPUSH DECR DECRBY DEL
		DUMP ECHO EXISTS EXPIRE EXPIREAT GET GETBIT GETRANGE GETSET HDEL HEXISTS
		HGET HGETALL HINCRBY HINCRBYFLOAT HKEYS HLEN HMGET HMSET HSCAN HSET
		HSETNX HVALS INCR INCRBY INCRBYFLOAT KEYS LINDEX LINSERT LLEN LPOP LPUSH
		LPUSHX LRANGE LREM LSET LTRIM MGET MIGRATE MOVE MSET MSETNX OBJECT
		PERSIST PEXPIRE PEXPIREAT PING PSUBSCRIBE PTTL PUBLISH PUBSUB
		PUNSUBSCRIBE QUIT RANDOMKEY RENAME RENAMENX RESTORE RPOP RPOPLPUSH RPUSH
		RPUSHX SADD SCAN SCARD SDIFF SDIFFSTORE SELECT SET SETBIT SETRANGE
		SINTER SINTERSTORE SISMEMBER SMEMBERS SMOVE SPOP SRANDMEMBER SREM SSCAN
		STRLEN SUBSCRIBE SUNION SUNIONSTORE TTL TYPE UNSUBSCRIBE
	`) {
		knownCommands[verb] = struct{}{}
	}
}

// CommandLabel returns the command label recorded for verb.
func CommandLabel(verb string) string {
	verb = strings.ToUpper(verb)
	if _, ok := knownCommands[verb]; ok {
		return verb
	}

	return OtherCommand
}
