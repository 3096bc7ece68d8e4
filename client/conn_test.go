package client_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/internal/redistest"
	"github.com/luma/redisclient/metrics"
	"github.com/luma/redisclient/protocol"
	"github.com/luma/redisclient/transport"
)

var _ = Describe("Client", func() {
	var (
		server     *redistest.Server
		serverOpts redistest.Options
		c          *client.Client
		clientOpts []client.Option
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		serverOpts = redistest.Options{}
		clientOpts = []client.Option{client.WithLogger(zap.NewNop())}
	})

	JustBeforeEach(func() {
		server = redistest.New(serverOpts)
		Expect(server.Start(ctx)).To(Succeed())

		c = client.New(client.Config{Host: server.Host(), Port: server.Port()}, clientOpts...)
	})

	AfterEach(func() {
		Expect(c.Close()).To(Succeed())
		Expect(server.Close()).To(Succeed())
	})

	It("does not connect until the first command", func() {
		Expect(c.State()).To(Equal(transport.StateClosed))

		Expect(c.Ping(ctx)).To(Equal("PONG"))
		Expect(c.State()).To(Equal(transport.StateOpen))
	})

	It("sets, gets and deletes keys", func() {
		Expect(c.Set(ctx, "k", "v", client.SetOptions{})).To(BeTrue())
		Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{Value: "v", Valid: true}))
		Expect(c.Get(ctx, "missing")).To(Equal(protocol.NullString{}))
		Expect(c.Del(ctx, "k")).To(BeEquivalentTo(1))
		Expect(c.Del(ctx, "k")).To(BeEquivalentTo(0))
	})

	It("tells a missing key from an empty string", func() {
		Expect(c.Set(ctx, "empty", "", client.SetOptions{})).To(BeTrue())

		empty, err := c.Get(ctx, "empty")
		Expect(err).To(Succeed())
		Expect(empty.Valid).To(BeTrue())
		Expect(empty.Value).To(BeEmpty())

		missing, err := c.Get(ctx, "missing")
		Expect(err).To(Succeed())
		Expect(missing.Valid).To(BeFalse())
	})

	It("round trips arguments with spaces and binary bytes", func() {
		for _, value := range []string{"hello world", "  leading and trailing  ", "\x00\r\n\xff$3\r\n"} {
			Expect(c.Set(ctx, "a key", value, client.SetOptions{})).To(BeTrue())
			Expect(c.Get(ctx, "a key")).To(Equal(protocol.NullString{Value: value, Valid: true}))
		}

		Expect(server.LastReceived()).To(Equal([]string{"GET", "a key"}))
	})

	It("honours SET conditions", func() {
		Expect(c.Set(ctx, "k", "1", client.SetOptions{Condition: client.IfExists})).To(BeFalse())
		Expect(c.Set(ctx, "k", "1", client.SetOptions{Condition: client.IfMissing})).To(BeTrue())
		Expect(c.Set(ctx, "k", "2", client.SetOptions{Condition: client.IfMissing})).To(BeFalse())
		Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{Value: "1", Valid: true}))
	})

	It("dumps and restores binary payloads", func() {
		Expect(c.Set(ctx, "src", "value\r\n\x00", client.SetOptions{})).To(BeTrue())

		payload, err := c.Dump(ctx, "src")
		Expect(err).To(Succeed())
		Expect(payload).NotTo(BeEmpty())

		Expect(c.Restore(ctx, "dst", 0, payload, false)).To(Succeed())
		Expect(c.Get(ctx, "dst")).To(Equal(protocol.NullString{Value: "value\r\n\x00", Valid: true}))

		err = c.Restore(ctx, "dst", 0, payload, false)
		var serverErr *protocol.ServerError
		Expect(errors.As(err, &serverErr)).To(BeTrue())
		Expect(serverErr.Code).To(Equal("BUSYKEY"))

		Expect(c.Restore(ctx, "dst", 0, payload, true)).To(Succeed())

		Expect(c.Dump(ctx, "missing")).To(BeNil())
	})

	It("returns error replies as ServerError", func() {
		Expect(c.Set(ctx, "k", "abc", client.SetOptions{})).To(BeTrue())

		_, err := c.Incr(ctx, "k")

		var serverErr *protocol.ServerError
		Expect(errors.As(err, &serverErr)).To(BeTrue())
		Expect(serverErr.Code).To(Equal("ERR"))

		Expect(c.Ping(ctx)).To(Equal("PONG"))
	})

	It("hands the raw error reply to Do", func() {
		reply, err := c.Do(ctx, protocol.NewCommand("NOPE"))
		Expect(err).To(HaveOccurred())
		Expect(reply.Kind).To(Equal(protocol.KindError))
	})

	It("rejects commands without a name", func() {
		_, err := c.Do(ctx, protocol.Command{Name: "  "})
		Expect(err).To(MatchError(client.ErrEmptyCommand))
	})

	Describe("ordering", func() {
		It("completes commands in the order they were submitted", func() {
			const n = 50

			var (
				mu      sync.Mutex
				results []int64
				wg      sync.WaitGroup
			)

			wg.Add(n)
			for i := 0; i < n; i++ {
				c.Execute(ctx, protocol.NewCommand("INCR", "counter"), func(reply protocol.Reply, err error) {
					defer wg.Done()
					defer GinkgoRecover()

					Expect(err).To(Succeed())

					mu.Lock()
					results = append(results, reply.Int)
					mu.Unlock()
				})
			}
			wg.Wait()

			for i, n := range results {
				Expect(n).To(BeEquivalentTo(i + 1))
			}
		})

		It("never has more than one command on the wire", func() {
			const callers = 20

			var wg sync.WaitGroup
			wg.Add(callers)

			for i := 0; i < callers; i++ {
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()

					key := "key-" + strconv.Itoa(i)
					value := "value " + strconv.Itoa(i)

					for j := 0; j < 5; j++ {
						Expect(c.Set(ctx, key, value, client.SetOptions{})).To(BeTrue())
						Expect(c.Get(ctx, key)).To(Equal(protocol.NullString{Value: value, Valid: true}))
					}
				}(i)
			}
			wg.Wait()

			Expect(server.Received()).To(HaveLen(callers * 10))
			Expect(server.MaxBatch()).To(Equal(1))
		})
	})

	Describe("QUIT", func() {
		It("closes the connection without an error", func() {
			Expect(c.Ping(ctx)).To(Equal("PONG"))

			Expect(c.Quit(ctx)).To(Succeed())
			Expect(c.State()).To(Equal(transport.StateClosed))
		})

		It("reconnects for the next command", func() {
			Expect(c.Quit(ctx)).To(Succeed())
			Expect(c.Ping(ctx)).To(Equal("PONG"))
			Expect(c.State()).To(Equal(transport.StateOpen))
		})
	})

	It("reconnects after the server drops the connection", func() {
		Expect(c.Set(ctx, "k", "v", client.SetOptions{})).To(BeTrue())

		server.KillConnections()
		Eventually(c.State).Should(Equal(transport.StateError))

		Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{Value: "v", Valid: true}))
	})

	It("fails commands with a transport Error when the server is gone", func() {
		Expect(server.Close()).To(Succeed())

		_, err := c.Ping(ctx)

		var transportErr *transport.Error
		Expect(errors.As(err, &transportErr)).To(BeTrue())
	})

	Describe("contexts", func() {
		It("does not send a command whose context is already done", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := c.Do(cancelled, protocol.NewCommand("SET", "k", "v"))
			Expect(err).To(MatchError(context.Canceled))

			Expect(server.Received()).To(BeEmpty())
		})

		It("reports the context error to Execute handlers", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			errs := make(chan error, 1)
			c.Execute(cancelled, protocol.NewCommand("PING"), func(_ protocol.Reply, err error) {
				errs <- err
			})

			Eventually(errs).Should(Receive(MatchError(context.Canceled)))
		})
	})

	Describe("Close()", func() {
		It("fails later commands with ErrClientClosed", func() {
			Expect(c.Close()).To(Succeed())

			_, err := c.Ping(ctx)
			Expect(err).To(MatchError(client.ErrClientClosed))

			errs := make(chan error, 1)
			c.Execute(ctx, protocol.NewCommand("PING"), func(_ protocol.Reply, err error) {
				errs <- err
			})
			Eventually(errs).Should(Receive(MatchError(client.ErrClientClosed)))
		})
	})

	Context("when the server writes one byte at a time", func() {
		BeforeEach(func() {
			serverOpts.WriteChunkSize = 1
		})

		It("still decodes whole replies", func() {
			Expect(c.RPush(ctx, "list", "a", "b c", "")).To(BeEquivalentTo(3))
			Expect(c.LRange(ctx, "list", 0, -1)).To(Equal([]string{"a", "b c", ""}))
		})
	})

	Context("with a password", func() {
		BeforeEach(func() {
			serverOpts.Password = "secret"
		})

		It("needs Auth before other commands", func() {
			_, err := c.Get(ctx, "k")
			Expect(err).To(MatchError(ContainSubstring("NOAUTH")))

			Expect(c.Auth(ctx, "secret")).To(Succeed())
			Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{}))
		})
	})

	Context("with an OnConnect hook", func() {
		var password string

		BeforeEach(func() {
			serverOpts.Password = "secret"
			password = "secret"

			clientOpts = append(clientOpts, client.WithOnConnect(func(ctx context.Context, setup *client.Setup) error {
				if err := setup.Auth(ctx, password); err != nil {
					return err
				}

				return setup.Select(ctx, 3)
			}))
		})

		It("authenticates and selects again after a reconnect", func() {
			Expect(c.Set(ctx, "k", "v", client.SetOptions{})).To(BeTrue())

			server.KillConnections()
			Eventually(c.State).Should(Equal(transport.StateError))

			Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{Value: "v", Valid: true}))

			_, found, err := server.DB(3).Get(ctx, "k")
			Expect(err).To(Succeed())
			Expect(found).To(BeTrue())

			_, found, err = server.Store().Get(ctx, "k")
			Expect(err).To(Succeed())
			Expect(found).To(BeFalse())

			Expect(server.Received()).To(Equal([][]string{
				{"AUTH", "secret"}, {"SELECT", "3"}, {"SET", "k", "v"},
				{"AUTH", "secret"}, {"SELECT", "3"}, {"GET", "k"},
			}))
		})

		It("fails the command and closes the stream when the hook fails", func() {
			password = "wrong"

			_, err := c.Get(ctx, "k")
			Expect(err).To(MatchError(ContainSubstring("Failed to set up connection")))

			var serverErr *protocol.ServerError
			Expect(errors.As(err, &serverErr)).To(BeTrue())
			Expect(c.State()).To(Equal(transport.StateClosed))
			Expect(server.LastReceived()).To(Equal([]string{"AUTH", "wrong"}))

			password = "secret"
			Expect(c.Get(ctx, "k")).To(Equal(protocol.NullString{}))
		})
	})

	Context("with metrics", func() {
		var reg *prometheus.Registry

		BeforeEach(func() {
			reg = prometheus.NewRegistry()
			m, err := metrics.New(reg)
			Expect(err).To(Succeed())

			clientOpts = append(clientOpts, client.WithMetrics(m))
		})

		It("records commands and connections", func() {
			Expect(c.Ping(ctx)).To(Equal("PONG"))
			_, err := c.Do(ctx, protocol.NewCommand("NOPE"))
			Expect(err).To(HaveOccurred())

			Expect(testutil.GatherAndCount(reg, "redisclient_commands_total")).To(Equal(2))
			Expect(testutil.GatherAndCount(reg, "redisclient_reconnects_total")).To(Equal(1))
		})
	})

	Context("with an inline executor", func() {
		BeforeEach(func() {
			clientOpts = append(clientOpts, client.WithExecutor(client.InlineExecutor{}))
		})

		It("runs handlers before the next command is taken", func() {
			done := make(chan protocol.Reply, 1)
			c.Execute(ctx, protocol.NewCommand("ECHO", "hi"), func(reply protocol.Reply, err error) {
				done <- reply
			})

			Eventually(done, time.Second).Should(Receive(Equal(protocol.Bulk("hi"))))
		})
	})
})
