package cmd_test

import (
	"bytes"
	"context"
	"os"
	"strconv"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/redisclient/cmd"
	"github.com/luma/redisclient/internal/redistest"
)

var _ = Describe("exec", func() {
	var (
		server *redistest.Server
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		server = redistest.New(redistest.Options{})
		Expect(server.Start(context.Background())).To(Succeed())

		out = &bytes.Buffer{}
		cmd.RootCmd.SetOut(out)
		cmd.RootCmd.SetErr(&bytes.Buffer{})
	})

	AfterEach(func() {
		Expect(server.Close()).To(Succeed())
	})

	run := func(args ...string) error {
		out.Reset()
		cmd.RootCmd.SetArgs(append([]string{
			"exec", "--host", server.Host(), "--port", strconv.Itoa(server.Port()), "--log-level", "error",
		}, args...))

		return cmd.RootCmd.Execute()
	}

	It("prints replies as JSON", func() {
		Expect(run("SET", "greeting", "hello world")).To(Succeed())
		Expect(out.String()).To(MatchJSON(`"OK"`))

		Expect(run("GET", "greeting")).To(Succeed())
		Expect(out.String()).To(MatchJSON(`"hello world"`))

		Expect(run("GET", "missing")).To(Succeed())
		Expect(out.String()).To(MatchJSON(`null`))
	})

	It("selects the configured database on every run", func() {
		Expect(os.Setenv("REDISCLIENT_DB", "2")).To(Succeed())
		defer os.Unsetenv("REDISCLIENT_DB")

		Expect(run("SET", "greeting", "hello")).To(Succeed())
		Expect(run("GET", "greeting")).To(Succeed())
		Expect(out.String()).To(MatchJSON(`"hello"`))

		_, found, err := server.DB(2).Get(context.Background(), "greeting")
		Expect(err).To(Succeed())
		Expect(found).To(BeTrue())
		Expect(server.Received()[0]).To(Equal([]string{"SELECT", "2"}))
	})

	It("prints error replies and fails", func() {
		Expect(run("NOPE")).To(HaveOccurred())
		Expect(out.String()).To(MatchJSON(`{"error": "ERR unknown command 'NOPE'"}`))
	})
})
