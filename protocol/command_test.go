package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/redisclient/protocol"
)

var _ = Describe("Command", func() {
	It("does not share arguments between copies", func() {
		base := protocol.NewCommand("SET", "k")
		a := base.With("a")
		b := base.With("b")

		Expect(string(a.Args[1])).To(Equal("a"))
		Expect(string(b.Args[1])).To(Equal("b"))
		Expect(base.Args).To(HaveLen(1))
	})

	It("formats unsigned arguments without changing sign", func() {
		cmd := protocol.NewCommand("SCAN").WithUint(18446744073709551615).WithInt(-1)

		Expect(string(cmd.Args[0])).To(Equal("18446744073709551615"))
		Expect(string(cmd.Args[1])).To(Equal("-1"))
	})

	It("reports the upper-cased verb", func() {
		Expect(protocol.NewCommand("quit").Verb()).To(Equal(protocol.QUIT))
		Expect(protocol.NewCommand("object encoding", "k").Verb()).To(Equal("OBJECT"))
		Expect(protocol.Command{}.Verb()).To(BeEmpty())
	})

	It("redacts AUTH arguments when rendered", func() {
		Expect(protocol.NewCommand("AUTH", "secret").String()).To(Equal(`AUTH "***"`))
		Expect(protocol.NewCommand("SET", "k", "a b").String()).To(Equal(`SET "k" "a b"`))
		Expect(protocol.NewCommand("RESTORE", "k", "0").WithPayload([]byte{1, 2}).String()).To(Equal(`RESTORE "k" "0" <2 bytes>`))
	})
})
