package pubsub_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/internal/redistest"
	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/pubsub"
	"github.com/luma/redisclient/transport"
)

type result struct {
	text string
	err  error
}

var _ = Describe("Session", func() {
	var (
		ctx        context.Context
		server     *redistest.Server
		serverOpts redistest.Options
		session    *pubsub.Session
		publisher  *client.Client
		messages   chan pubsub.Message
		errs       chan error
	)

	BeforeEach(func() {
		ctx = context.Background()
		serverOpts = redistest.Options{}
		messages = make(chan pubsub.Message, 32)
		errs = make(chan error, 8)
	})

	JustBeforeEach(func() {
		server = redistest.New(serverOpts)
		Expect(server.Start(ctx)).To(Succeed())

		config := pubsub.Config{Host: server.Host(), Port: server.Port()}
		session = pubsub.New(config,
			func(msg pubsub.Message) { messages <- msg },
			func(err error) { errs <- err },
			pubsub.WithLogger(zap.NewNop()))

		publisher = client.New(client.Config{Host: server.Host(), Port: server.Port()},
			client.WithLogger(zap.NewNop()))
	})

	AfterEach(func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(session.Close()).To(Succeed())
		Expect(server.Close()).To(Succeed())
	})

	receive := func() pubsub.Message {
		var msg pubsub.Message
		Eventually(messages).Should(Receive(&msg))
		return msg
	}

	It("starts disconnected", func() {
		Expect(session.State()).To(Equal(pubsub.Disconnected))
		Expect(session.Channels()).To(BeEmpty())
	})

	It("delivers published messages", func() {
		Expect(session.Subscribe(ctx, "c")).To(Succeed())

		confirmation := receive()
		Expect(confirmation.Kind).To(Equal(pubsub.KindSubscribe))
		Expect(confirmation.Channel).To(Equal("c"))
		Expect(confirmation.Count).To(BeEquivalentTo(1))
		Expect(session.State()).To(Equal(pubsub.Subscribed))
		Expect(session.Channels()).To(Equal([]string{"c"}))

		Expect(publisher.Publish(ctx, "c", "hello")).To(BeEquivalentTo(1))

		msg := receive()
		Expect(msg.Kind).To(Equal(pubsub.KindMessage))
		Expect(msg.Channel).To(Equal("c"))
		Expect(string(msg.Payload)).To(Equal("hello"))
		Expect(msg.Raw.Strings()).To(Equal([]string{"message", "c", "hello"}))
	})

	It("keeps messages in the order they were published", func() {
		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		receive()

		for _, payload := range []string{"one", "two", "three two one"} {
			Expect(publisher.Publish(ctx, "c", payload)).To(BeEquivalentTo(1))
		}

		Expect(string(receive().Payload)).To(Equal("one"))
		Expect(string(receive().Payload)).To(Equal("two"))
		Expect(string(receive().Payload)).To(Equal("three two one"))
	})

	It("matches patterns", func() {
		Expect(session.PSubscribe(ctx, "news.*")).To(Succeed())
		Expect(receive().Kind).To(Equal(pubsub.KindPSubscribe))
		Expect(session.Patterns()).To(Equal([]string{"news.*"}))

		Expect(publisher.Publish(ctx, "news.tech", "story")).To(BeEquivalentTo(1))

		msg := receive()
		Expect(msg.Kind).To(Equal(pubsub.KindPMessage))
		Expect(msg.Pattern).To(Equal("news.*"))
		Expect(msg.Channel).To(Equal("news.tech"))
		Expect(string(msg.Payload)).To(Equal("story"))
	})

	It("forgets channels once unsubscribed", func() {
		Expect(session.Subscribe(ctx, "a", "b")).To(Succeed())
		receive()
		receive()
		Expect(session.Channels()).To(Equal([]string{"a", "b"}))

		Expect(session.Unsubscribe(ctx)).To(Succeed())
		receive()
		receive()
		Expect(session.Channels()).To(BeEmpty())
	})

	It("pairs a PING with its reply after several confirmations", func() {
		pongs := make(chan result, 1)

		Expect(session.Subscribe(ctx, "a", "b")).To(Succeed())
		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		Expect(session.Unsubscribe(ctx)).To(Succeed())
		session.Ping(ctx, func(text string, err error) { pongs <- result{text, err} })

		// Nothing is subscribed by the time PING arrives, so it gets a plain reply.
		Eventually(pongs).Should(Receive(Equal(result{text: "PONG"})))

		for _, kind := range []string{"subscribe", "subscribe", "subscribe", "unsubscribe", "unsubscribe", "unsubscribe"} {
			Expect(receive().Kind).To(Equal(kind))
		}
		Consistently(messages).ShouldNot(Receive())
		Consistently(errs).ShouldNot(Receive())
	})

	It("refuses to subscribe to nothing", func() {
		Expect(session.Subscribe(ctx)).To(MatchError(pubsub.ErrNoNames))
		Expect(session.PSubscribe(ctx)).To(MatchError(pubsub.ErrNoNames))
	})

	It("answers PING before and after subscribing", func() {
		pongs := make(chan result, 2)
		ping := func(text string, err error) { pongs <- result{text, err} }

		session.Ping(ctx, ping)
		Eventually(pongs).Should(Receive(Equal(result{text: "PONG"})))

		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		receive()

		session.Ping(ctx, ping)
		Eventually(pongs).Should(Receive(Equal(result{text: ""})))
		Consistently(messages).ShouldNot(Receive())
	})

	It("reports the close after QUIT as success", func() {
		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		receive()

		quit := make(chan bool, 1)
		session.Quit(ctx, func(success bool) { quit <- success })

		Eventually(quit).Should(Receive(BeTrue()))
		Expect(session.State()).To(Equal(pubsub.Closed))
		Expect(session.Channels()).To(BeEmpty())
		Consistently(errs).ShouldNot(Receive())
	})

	It("reports a dropped connection as an error", func() {
		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		receive()

		server.KillConnections()

		var err error
		Eventually(errs).Should(Receive(&err))

		var transportErr *transport.Error
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(session.State()).To(Equal(pubsub.Closed))
	})

	It("resubscribes on a new connection after it was dropped", func() {
		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		receive()

		server.KillConnections()
		Eventually(errs).Should(Receive())

		Expect(session.Subscribe(ctx, "c")).To(Succeed())
		Expect(receive().Kind).To(Equal(pubsub.KindSubscribe))
		Expect(session.State()).To(Equal(pubsub.Subscribed))
	})

	It("fails commands once closed", func() {
		Expect(session.Close()).To(Succeed())

		Expect(session.Subscribe(ctx, "c")).To(MatchError(pubsub.ErrSessionClosed))
		Expect(session.State()).To(Equal(pubsub.Closed))
	})

	Context("with a password", func() {
		BeforeEach(func() {
			serverOpts.Password = "secret"
		})

		It("matches AUTH replies before pushes", func() {
			auths := make(chan result, 2)
			auth := func(text string, err error) { auths <- result{text, err} }

			session.Auth(ctx, "wrong", auth)

			var res result
			Eventually(auths).Should(Receive(&res))
			var serverErr *protocol.ServerError
			Expect(errors.As(res.err, &serverErr)).To(BeTrue())

			session.Auth(ctx, "secret", auth)
			Eventually(auths).Should(Receive(Equal(result{text: "OK"})))

			Expect(session.Subscribe(ctx, "c")).To(Succeed())
			Expect(receive().Kind).To(Equal(pubsub.KindSubscribe))
		})

		It("answers AUTH with its own reply when a SUBSCRIBE was refused first", func() {
			auths := make(chan result, 1)

			Expect(session.Subscribe(ctx, "c")).To(Succeed())
			session.Auth(ctx, "secret", func(text string, err error) { auths <- result{text, err} })

			Eventually(auths).Should(Receive(Equal(result{text: "OK"})))

			var err error
			Eventually(errs).Should(Receive(&err))
			Expect(err).To(MatchError(ContainSubstring("NOAUTH")))
			Expect(session.Channels()).To(BeEmpty())
		})
	})

	Context("when an error reply has no command waiting for it", func() {
		BeforeEach(func() {
			serverOpts.Fallback = func(argv [][]byte) (protocol.Reply, bool) {
				if string(argv[0]) == "SUBSCRIBE" && string(argv[1]) == "forbidden" {
					return protocol.ErrorReply("NOPERM no access to channel"), true
				}
				return protocol.Reply{}, false
			}
		})

		It("goes to the error handler", func() {
			Expect(session.Subscribe(ctx, "forbidden")).To(Succeed())

			var err error
			Eventually(errs).Should(Receive(&err))

			var serverErr *protocol.ServerError
			Expect(errors.As(err, &serverErr)).To(BeTrue())
			Expect(serverErr.Code).To(Equal("NOPERM"))
		})

		It("keeps it away from the PING sent after it", func() {
			pongs := make(chan result, 1)

			Expect(session.Subscribe(ctx, "forbidden")).To(Succeed())
			session.Ping(ctx, func(text string, err error) { pongs <- result{text, err} })

			Eventually(pongs).Should(Receive(Equal(result{text: "PONG"})))

			var err error
			Eventually(errs).Should(Receive(&err))
			Expect(err).To(MatchError(ContainSubstring("NOPERM")))
		})
	})

	Context("when the server writes one byte at a time", func() {
		BeforeEach(func() {
			serverOpts.WriteChunkSize = 1
		})

		It("reassembles pushes", func() {
			Expect(session.Subscribe(ctx, "a", "b")).To(Succeed())
			Expect(receive().Channel).To(Equal("a"))
			Expect(receive().Channel).To(Equal("b"))

			Expect(publisher.Publish(ctx, "b", "split\r\nacross reads")).To(BeEquivalentTo(1))
			Expect(string(receive().Payload)).To(Equal("split\r\nacross reads"))
		})
	})
})
