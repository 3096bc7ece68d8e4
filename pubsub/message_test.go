package pubsub_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/pubsub"
)

func push(elems ...protocol.Reply) protocol.Reply {
	return protocol.Array(elems...)
}

var _ = Describe("ParseMessage()", func() {
	b := protocol.Bulk

	table.DescribeTable("parses pushes",
		func(reply protocol.Reply, expected pubsub.Message) {
			expected.Raw = reply

			msg, err := pubsub.ParseMessage(reply)
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(expected))
		},
		table.Entry("subscribe", push(b("subscribe"), b("c"), protocol.Integer(1)),
			pubsub.Message{Kind: "subscribe", Channel: "c", Count: 1}),
		table.Entry("unsubscribe from nothing", push(b("unsubscribe"), protocol.NilBulk(), protocol.Integer(0)),
			pubsub.Message{Kind: "unsubscribe"}),
		table.Entry("psubscribe", push(b("psubscribe"), b("n*"), protocol.Integer(2)),
			pubsub.Message{Kind: "psubscribe", Pattern: "n*", Count: 2}),
		table.Entry("message", push(b("message"), b("c"), b("hi there")),
			pubsub.Message{Kind: "message", Channel: "c", Payload: []byte("hi there")}),
		table.Entry("pmessage", push(b("pmessage"), b("n*"), b("news"), b("")),
			pubsub.Message{Kind: "pmessage", Pattern: "n*", Channel: "news", Payload: []byte{}}),
		table.Entry("pong", push(b("pong"), b("")),
			pubsub.Message{Kind: "pong", Payload: []byte{}}),
	)

	table.DescribeTable("rejects anything else",
		func(reply protocol.Reply) {
			_, err := pubsub.ParseMessage(reply)
			Expect(err).To(MatchError(pubsub.ErrMalformedMessage))
		},
		table.Entry("a simple string", protocol.OK),
		table.Entry("an empty array", push()),
		table.Entry("a nil array", protocol.NilArray()),
		table.Entry("an unknown kind", push(b("invalidate"), b("k"))),
		table.Entry("a short message", push(b("message"), b("c"))),
	)

	It("renders messages as JSON", func() {
		out, err := json.Marshal(pubsub.Message{Kind: "pmessage", Pattern: "n*", Channel: "news", Payload: []byte("hi")})
		Expect(err).To(Succeed())
		Expect(out).To(MatchJSON(`{"kind": "pmessage", "pattern": "n*", "channel": "news", "payload": "hi"}`))

		out, err = json.Marshal(pubsub.Message{Kind: "subscribe", Channel: "c", Count: 1})
		Expect(err).To(Succeed())
		Expect(out).To(MatchJSON(`{"kind": "subscribe", "channel": "c", "count": 1}`))

		out, err = json.Marshal(pubsub.Message{Kind: "message", Channel: "c", Payload: []byte{0xff}})
		Expect(err).To(Succeed())
		Expect(out).To(MatchJSON(`{"kind": "message", "channel": "c", "payload": {"base64": "/w=="}}`))
	})
})
