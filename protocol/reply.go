package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of a reply. The values are the RESP type bytes.
type Kind byte

const (
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulkString:
		return "bulk string"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// Reply is a decoded server reply.
//
// Str holds the text of simple strings, errors and bulk strings. Int holds
// integers. Elems holds the elements of arrays. Nil is set for the nil bulk
// string ($-1) and the nil array (*-1); an empty bulk string is not nil.
type Reply struct {
	Kind  Kind
	Str   []byte
	Int   int64
	Elems []Reply
	Nil   bool
}

// OK is the simple string reply most state changing commands answer with.
var OK = SimpleString("OK")

func SimpleString(s string) Reply {
	return Reply{Kind: KindSimpleString, Str: []byte(s)}
}

func ErrorReply(msg string) Reply {
	return Reply{Kind: KindError, Str: []byte(msg)}
}

func Integer(n int64) Reply {
	return Reply{Kind: KindInteger, Int: n}
}

func BulkString(b []byte) Reply {
	if b == nil {
		b = []byte{}
	}
	return Reply{Kind: KindBulkString, Str: b}
}

func Bulk(s string) Reply {
	return BulkString([]byte(s))
}

func NilBulk() Reply {
	return Reply{Kind: KindBulkString, Nil: true}
}

func Array(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{Kind: KindArray, Elems: elems}
}

func NilArray() Reply {
	return Reply{Kind: KindArray, Nil: true}
}

// IsNil reports whether the reply is a nil bulk string or nil array.
func (r Reply) IsNil() bool {
	return r.Nil
}

// String returns the text of a string-like reply, or a readable rendering of
// any other reply.
func (r Reply) String() string {
	switch r.Kind {
	case KindSimpleString, KindBulkString, KindError:
		if r.Nil {
			return "(nil)"
		}
		return string(r.Str)

	case KindInteger:
		return strconv.FormatInt(r.Int, 10)

	case KindArray:
		if r.Nil {
			return "(nil)"
		}

		parts := make([]string, len(r.Elems))
		for i, elem := range r.Elems {
			parts[i] = elem.String()
		}
		return "[" + strings.Join(parts, " ") + "]"

	default:
		return ""
	}
}

// Bytes returns the raw bytes of a string-like reply. It is nil for nil bulk
// strings and for non string replies.
func (r Reply) Bytes() []byte {
	switch r.Kind {
	case KindSimpleString, KindBulkString, KindError:
		return r.Str
	default:
		return nil
	}
}

// Err returns the reply as a *ServerError if it is an error reply, otherwise
// nil.
func (r Reply) Err() error {
	if r.Kind != KindError {
		return nil
	}

	return ParseServerError(string(r.Str))
}

// NullString converts a string-like reply, preserving nil.
func (r Reply) NullString() NullString {
	if r.Nil {
		return NullString{}
	}

	return NullString{Value: string(r.Str), Valid: true}
}

// Strings returns the text of every element of an array reply. Nil elements
// become "".
func (r Reply) Strings() []string {
	out := make([]string, len(r.Elems))
	for i, elem := range r.Elems {
		out[i] = string(elem.Str)
	}

	return out
}

// NullString is a string that may be absent. A GET of a missing key yields
// NullString{Valid: false}, a GET of an empty string NullString{Valid: true}.
type NullString struct {
	Value string
	Valid bool
}

func (n NullString) String() string {
	if !n.Valid {
		return "(nil)"
	}

	return n.Value
}

// ServerError is an error reply sent by the server, e.g. `-ERR bad` or
// `-WRONGTYPE Operation against a key holding the wrong kind of value`.
type ServerError struct {
	// Code is the leading all-caps word of the error, "ERR" in most cases.
	// Empty when the server sent no code.
	Code string

	// Message is the text following the code.
	Message string
}

// ParseServerError splits the text of an error reply into code and message.
func ParseServerError(text string) *ServerError {
	word, rest := text, ""
	if i := strings.IndexByte(text, ' '); i >= 0 {
		word, rest = text[:i], text[i+1:]
	}

	if !isErrorCode(word) {
		return &ServerError{Message: text}
	}

	return &ServerError{Code: word, Message: rest}
}

func (e *ServerError) Error() string {
	switch {
	case e.Code == "":
		return e.Message
	case e.Message == "":
		return e.Code
	default:
		return e.Code + " " + e.Message
	}
}

func isErrorCode(word string) bool {
	if word == "" {
		return false
	}

	for i := 0; i < len(word); i++ {
		c := word[i]
		if (c < 'A' || c > 'Z') && c != '_' && (c < '0' || c > '9' || i == 0) {
			return false
		}
	}

	return true
}
