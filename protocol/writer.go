package protocol

import (
	"io"
	"strconv"
)

var (
	OkTerminal = []byte("+OK\r\n")
	Terminal   = []byte("\r\n")
)

// AppendCommand appends the request frame for cmd to dst.
func AppendCommand(dst []byte, cmd Command) []byte {
	dst = appendHeader(dst, KindArray, int64(cmd.Len()))

	for _, token := range cmd.Tokens() {
		dst = appendBulk(dst, []byte(token))
	}

	for _, arg := range cmd.Args {
		dst = appendBulk(dst, arg)
	}

	if cmd.Payload != nil {
		dst = appendBulk(dst, cmd.Payload)
	}

	return dst
}

// WriteCommand writes the request frame for cmd to w in a single write.
func WriteCommand(w io.Writer, cmd Command) error {
	_, err := w.Write(AppendCommand(nil, cmd))
	return err
}

// AppendReply appends the wire encoding of r to dst.
func AppendReply(dst []byte, r Reply) []byte {
	switch r.Kind {
	case KindSimpleString, KindError:
		dst = append(dst, byte(r.Kind))
		dst = append(dst, r.Str...)
		return append(dst, Terminal...)

	case KindInteger:
		return appendHeader(dst, KindInteger, r.Int)

	case KindBulkString:
		if r.Nil {
			return appendHeader(dst, KindBulkString, -1)
		}
		return appendBulk(dst, r.Str)

	case KindArray:
		if r.Nil {
			return appendHeader(dst, KindArray, -1)
		}

		dst = appendHeader(dst, KindArray, int64(len(r.Elems)))
		for _, elem := range r.Elems {
			dst = AppendReply(dst, elem)
		}
		return dst

	default:
		return dst
	}
}

// WriteReply writes the wire encoding of r to w in a single write.
func WriteReply(w io.Writer, r Reply) error {
	_, err := w.Write(AppendReply(nil, r))
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

func WriteError(w io.Writer, errMsg string) error {
	return WriteReply(w, ErrorReply(errMsg))
}

func appendHeader(dst []byte, kind Kind, n int64) []byte {
	dst = append(dst, byte(kind))
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, Terminal...)
}

func appendBulk(dst []byte, b []byte) []byte {
	dst = appendHeader(dst, KindBulkString, int64(len(b)))
	dst = append(dst, b...)
	return append(dst, Terminal...)
}
