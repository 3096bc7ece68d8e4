package protocol

// This package implements encoding of client commands and decoding of server
// replies for the Redis Serialization Protocol (RESP), the wire format spoken
// by Redis and Redis-compatible servers.
//
// - `Command` - A client instruction: a name plus binary-safe arguments.
// - `Reply`   - A value sent by the server, either in response to a command or
//               pushed unsolicited while the connection is subscribed.
//
// === General Syntax
//
// - lines are `\r\n` terminated
// - the first byte of every reply identifies its type
//
//   ```
//     +<string>\r\n            simple string
//     -<CODE> <message>\r\n    error
//     :<int64>\r\n             integer
//     $<len>\r\n<bytes>\r\n    bulk string, exactly <len> bytes
//     $-1\r\n                  nil bulk string
//     *<count>\r\n<elems...>   array of <count> replies, which may nest
//     *-1\r\n                  nil array
//   ```
//
// === Requests
//
// Commands are always sent as an array of bulk strings. Because every argument
// carries its own length, arguments may contain spaces, CRLF or arbitrary
// binary data without any escaping.
//
//  ```
//    > *3\r\n$3\r\nSET\r\n$1\r\nk\r\n$11\r\nhello world\r\n
//    < +OK\r\n
//  ```
//
// Multi word command names such as `OBJECT ENCODING` or `PUBSUB CHANNELS` are
// split on whitespace, each word becoming its own element.
//
// === Decoding
//
// Replies are decoded with a cursor over byte offsets. A buffer that ends part
// way through a reply, even in the middle of a length header or a CRLF, yields
// ErrIncomplete and nothing is consumed; the caller appends more bytes and tries
// again. Bulk strings are sliced by their declared length, so binary payloads
// such as the output of DUMP decode exactly like any other bulk string.
//
// === Push messages
//
// After SUBSCRIBE or PSUBSCRIBE the server sends arrays that have no matching
// request:
//
//  ```
//    < *3\r\n$9\r\nsubscribe\r\n$1\r\nc\r\n:1\r\n
//    < *3\r\n$7\r\nmessage\r\n$1\r\nc\r\n$5\r\nhello\r\n
//  ```
//
// Several pushes may arrive in one read, and the last one may be cut short. The
// Decoder hands back every complete frame and keeps the partial tail buffered.
