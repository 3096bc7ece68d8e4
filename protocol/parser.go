package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// MaxBulkLength is the largest bulk string the decoder accepts, matching the
// default proto-max-bulk-len of Redis.
const MaxBulkLength = 512 * 1024 * 1024

var (
	ErrIncomplete        = errors.New("Reply is incomplete, more data is required")
	ErrUnknownReplyType  = errors.New("Reply starts with an unknown type byte")
	ErrInvalidInteger    = errors.New("Reply contains an invalid integer")
	ErrInvalidLength     = errors.New("Reply declares an invalid length")
	ErrMissingTerminator = errors.New("Reply is missing a CRLF terminator")
	ErrInvalidRequest    = errors.New("Request is not an array of bulk strings")
)

// ParseReply decodes the first reply in buf and returns it along with the
// number of bytes it occupied.
//
// If buf ends before the reply does ErrIncomplete is returned and nothing
// should be considered consumed. Any other error means the bytes can never
// form a valid reply.
//
// The Str fields of the returned reply alias buf.
func ParseReply(buf []byte) (Reply, int, error) {
	return parseReply(buf, 0)
}

// FrameLength returns the size of the first complete reply in buf without
// decoding it. Errors are as for ParseReply.
func FrameLength(buf []byte) (int, error) {
	return skipReply(buf, 0)
}

// ParseRequest decodes a client command frame as sent by AppendCommand into
// its elements. It is used by servers.
func ParseRequest(buf []byte) ([][]byte, int, error) {
	reply, n, err := ParseReply(buf)
	if err != nil {
		return nil, 0, err
	}

	if reply.Kind != KindArray || reply.Nil || len(reply.Elems) == 0 {
		return nil, n, fmt.Errorf("Failed to parse request of type %s: %w", reply.Kind, ErrInvalidRequest)
	}

	args := make([][]byte, len(reply.Elems))
	for i, elem := range reply.Elems {
		if elem.Kind != KindBulkString || elem.Nil {
			return nil, n, fmt.Errorf("Failed to parse request element %d of type %s: %w", i, elem.Kind, ErrInvalidRequest)
		}
		args[i] = elem.Str
	}

	return args, n, nil
}

func parseReply(buf []byte, pos int) (Reply, int, error) {
	if pos >= len(buf) {
		return Reply{}, 0, ErrIncomplete
	}

	kind := Kind(buf[pos])
	if !knownKind(kind) {
		return Reply{}, 0, fmt.Errorf("Failed to parse reply starting with %q: %w", buf[pos], ErrUnknownReplyType)
	}

	line, next, err := readLine(buf, pos+1)
	if err != nil {
		return Reply{}, 0, err
	}

	switch kind {
	case KindSimpleString, KindError:
		return Reply{Kind: kind, Str: line}, next, nil

	case KindInteger:
		n, err := parseInt(line)
		if err != nil {
			return Reply{}, 0, err
		}
		return Reply{Kind: KindInteger, Int: n}, next, nil

	case KindBulkString:
		size, err := parseLength(line, MaxBulkLength)
		if err != nil {
			return Reply{}, 0, err
		}
		if size < 0 {
			return NilBulk(), next, nil
		}

		end, err := bulkEnd(buf, next, size)
		if err != nil {
			return Reply{}, 0, err
		}
		return Reply{Kind: KindBulkString, Str: buf[next : next+size : next+size]}, end, nil

	default:
		count, err := parseLength(line, -1)
		if err != nil {
			return Reply{}, 0, err
		}
		if count < 0 {
			return NilArray(), next, nil
		}

		// Never trust the header for the allocation size, the elements may
		// not have arrived.
		capacity := count
		if capacity > 64 {
			capacity = 64
		}

		elems := make([]Reply, 0, capacity)
		for i := 0; i < count; i++ {
			elem, after, err := parseReply(buf, next)
			if err != nil {
				return Reply{}, 0, err
			}
			elems = append(elems, elem)
			next = after
		}

		return Reply{Kind: KindArray, Elems: elems}, next, nil
	}
}

func skipReply(buf []byte, pos int) (int, error) {
	if pos >= len(buf) {
		return 0, ErrIncomplete
	}

	kind := Kind(buf[pos])
	if !knownKind(kind) {
		return 0, fmt.Errorf("Failed to parse reply starting with %q: %w", buf[pos], ErrUnknownReplyType)
	}

	line, next, err := readLine(buf, pos+1)
	if err != nil {
		return 0, err
	}

	switch kind {
	case KindSimpleString, KindError:
		return next, nil

	case KindInteger:
		if _, err := parseInt(line); err != nil {
			return 0, err
		}
		return next, nil

	case KindBulkString:
		size, err := parseLength(line, MaxBulkLength)
		if err != nil {
			return 0, err
		}
		if size < 0 {
			return next, nil
		}
		return bulkEnd(buf, next, size)

	default:
		count, err := parseLength(line, -1)
		if err != nil {
			return 0, err
		}

		for i := 0; i < count; i++ {
			if next, err = skipReply(buf, next); err != nil {
				return 0, err
			}
		}
		return next, nil
	}
}

// readLine returns the bytes between pos and the next CRLF, and the offset
// just past the CRLF.
func readLine(buf []byte, pos int) ([]byte, int, error) {
	i := bytes.IndexByte(buf[pos:], '\n')
	if i < 0 {
		return nil, 0, ErrIncomplete
	}

	end := pos + i
	if i == 0 || buf[end-1] != '\r' {
		return nil, 0, fmt.Errorf("Failed to parse line %q: %w", buf[pos:end], ErrMissingTerminator)
	}

	return buf[pos : end-1 : end-1], end + 1, nil
}

// bulkEnd checks that size payload bytes and a CRLF follow pos and returns the
// offset after them.
func bulkEnd(buf []byte, pos int, size int) (int, error) {
	end := pos + size
	if len(buf) < end+2 {
		return 0, ErrIncomplete
	}

	if buf[end] != '\r' || buf[end+1] != '\n' {
		return 0, fmt.Errorf("Failed to parse bulk string of %d bytes: %w", size, ErrMissingTerminator)
	}

	return end + 2, nil
}

func parseInt(line []byte) (int64, error) {
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Failed to parse '%s': %w", string(line), ErrInvalidInteger)
	}

	return n, nil
}

// parseLength parses a bulk or array header. -1 means nil, other negative
// values are invalid. A max below zero means unbounded.
func parseLength(line []byte, max int64) (int, error) {
	n, err := parseInt(line)
	if err != nil {
		return 0, err
	}

	if n < -1 || (max >= 0 && n > max) {
		return 0, fmt.Errorf("Failed to parse length %d: %w", n, ErrInvalidLength)
	}

	return int(n), nil
}

func knownKind(k Kind) bool {
	switch k {
	case KindSimpleString, KindError, KindInteger, KindBulkString, KindArray:
		return true
	default:
		return false
	}
}
