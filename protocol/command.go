package protocol

import (
	"strconv"
	"strings"
)

// Command names the client treats specially.
const (
	QUIT         = "QUIT"
	PING         = "PING"
	AUTH         = "AUTH"
	SUBSCRIBE    = "SUBSCRIBE"
	UNSUBSCRIBE  = "UNSUBSCRIBE"
	PSUBSCRIBE   = "PSUBSCRIBE"
	PUNSUBSCRIBE = "PUNSUBSCRIBE"
)

// Command is a client instruction. Name may hold several whitespace separated
// words (e.g. "OBJECT ENCODING"), each of which is sent as its own element.
// Args are sent verbatim. A non-nil Payload is appended as the final element
// without any interpretation, which is how RESTORE ships a DUMP blob.
type Command struct {
	Name    string
	Args    [][]byte
	Payload []byte
}

// NewCommand builds a command from a name and string arguments.
func NewCommand(name string, args ...string) Command {
	return Command{Name: name}.With(args...)
}

// With returns a copy of the command with args appended.
func (c Command) With(args ...string) Command {
	next := c.grow(len(args))
	for _, arg := range args {
		next.Args = append(next.Args, []byte(arg))
	}
	return next
}

// WithBytes returns a copy of the command with binary args appended.
func (c Command) WithBytes(args ...[]byte) Command {
	next := c.grow(len(args))
	next.Args = append(next.Args, args...)
	return next
}

// WithInt returns a copy of the command with integer args appended.
func (c Command) WithInt(args ...int64) Command {
	next := c.grow(len(args))
	for _, arg := range args {
		next.Args = append(next.Args, strconv.AppendInt(nil, arg, 10))
	}
	return next
}

// WithUint returns a copy of the command with unsigned args appended, such as
// SCAN cursors.
func (c Command) WithUint(args ...uint64) Command {
	next := c.grow(len(args))
	for _, arg := range args {
		next.Args = append(next.Args, strconv.AppendUint(nil, arg, 10))
	}
	return next
}

// WithFloat returns a copy of the command with a float arg appended, formatted
// with the fewest digits that round trip.
func (c Command) WithFloat(f float64) Command {
	next := c.grow(1)
	next.Args = append(next.Args, strconv.AppendFloat(nil, f, 'f', -1, 64))
	return next
}

// WithPayload returns a copy of the command carrying payload as its trailing
// binary element.
func (c Command) WithPayload(payload []byte) Command {
	next := c.grow(0)
	if payload == nil {
		payload = []byte{}
	}
	next.Payload = payload
	return next
}

// Tokens returns the words of the command name.
func (c Command) Tokens() []string {
	return strings.Fields(c.Name)
}

// Verb returns the upper-cased first word of the command name, or "" for an
// empty command.
func (c Command) Verb() string {
	tokens := c.Tokens()
	if len(tokens) == 0 {
		return ""
	}

	return strings.ToUpper(tokens[0])
}

// Len returns the number of elements the command will have on the wire.
func (c Command) Len() int {
	n := len(c.Tokens()) + len(c.Args)
	if c.Payload != nil {
		n++
	}

	return n
}

// String renders the command for logs. Arguments are quoted and payloads are
// summarised by size. AUTH arguments are redacted.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(c.Tokens(), " "))

	redact := c.Verb() == AUTH
	for _, arg := range c.Args {
		b.WriteByte(' ')
		if redact {
			b.WriteString(`"***"`)
			continue
		}
		b.WriteString(strconv.Quote(string(arg)))
	}

	if c.Payload != nil {
		b.WriteString(" <")
		b.WriteString(strconv.Itoa(len(c.Payload)))
		b.WriteString(" bytes>")
	}

	return b.String()
}

func (c Command) grow(extra int) Command {
	args := make([][]byte, len(c.Args), len(c.Args)+extra)
	copy(args, c.Args)

	return Command{Name: c.Name, Args: args, Payload: c.Payload}
}
