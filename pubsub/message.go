package pubsub

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/redisclient/protocol"
)

// Push kinds, as the server names them.
const (
	KindSubscribe    = "subscribe"
	KindUnsubscribe  = "unsubscribe"
	KindPSubscribe   = "psubscribe"
	KindPUnsubscribe = "punsubscribe"
	KindMessage      = "message"
	KindPMessage     = "pmessage"
	KindPong         = "pong"
)

var ErrMalformedMessage = errors.New("Malformed push message")

// Message is one array pushed by the server.
//
// Subscription confirmations carry the channel (or pattern for the p
// variants) and Count, the number of subscriptions the connection holds
// afterwards. Channel is empty for an unsubscribe confirmation sent when
// nothing was subscribed. Deliveries carry Channel and Payload, and Pattern
// for pmessage.
type Message struct {
	Kind    string
	Pattern string
	Channel string
	Payload []byte
	Count   int64

	Raw protocol.Reply
}

// ParseMessage interprets a pushed array.
func ParseMessage(reply protocol.Reply) (Message, error) {
	if reply.Kind != protocol.KindArray || reply.Nil || len(reply.Elems) == 0 {
		return Message{}, fmt.Errorf("%w: %s", ErrMalformedMessage, reply)
	}

	elems := reply.Elems
	msg := Message{Kind: string(elems[0].Str), Raw: reply}

	want := 0
	switch msg.Kind {
	case KindSubscribe, KindUnsubscribe, KindPSubscribe, KindPUnsubscribe, KindMessage:
		want = 3
	case KindPMessage:
		want = 4
	case KindPong:
		want = 2
	default:
		return Message{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, msg.Kind)
	}

	if len(elems) != want {
		return Message{}, fmt.Errorf("%w: %s has %d elements", ErrMalformedMessage, msg.Kind, len(elems))
	}

	switch msg.Kind {
	case KindSubscribe, KindUnsubscribe:
		msg.Channel = string(elems[1].Str)
		msg.Count = elems[2].Int

	case KindPSubscribe, KindPUnsubscribe:
		msg.Pattern = string(elems[1].Str)
		msg.Count = elems[2].Int

	case KindMessage:
		msg.Channel = string(elems[1].Str)
		msg.Payload = elems[2].Str

	case KindPMessage:
		msg.Pattern = string(elems[1].Str)
		msg.Channel = string(elems[2].Str)
		msg.Payload = elems[3].Str

	case KindPong:
		msg.Payload = elems[1].Str
	}

	return msg, nil
}

// MarshalJSON renders the message without Raw. Payloads that are not UTF-8
// are base64 encoded.
func (m Message) MarshalJSON() ([]byte, error) {
	doc, err := sjson.SetBytes([]byte("{}"), "kind", m.Kind)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct{ path, value string }{
		{"pattern", m.Pattern},
		{"channel", m.Channel},
	} {
		if field.value == "" {
			continue
		}

		if doc, err = sjson.SetBytes(doc, field.path, field.value); err != nil {
			return nil, err
		}
	}

	switch m.Kind {
	case KindMessage, KindPMessage, KindPong:
		doc, err = protocol.SetJSON(doc, "payload", protocol.BulkString(m.Payload))
	default:
		doc, err = sjson.SetBytes(doc, "count", m.Count)
	}
	if err != nil {
		return nil, err
	}

	return []byte(gjson.ParseBytes(doc).Raw), nil
}
