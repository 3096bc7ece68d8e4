package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/redisclient/protocol"
)

var _ = Describe("Parsing/ Writer", func() {
	Describe("WriteCommand", func() {
		It("frames every token as a bulk string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteCommand(w, protocol.NewCommand("SET", "k", "v"))).To(Succeed())
			Expect(w.String()).To(Equal("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
		})

		It("splits a multi word command name into separate elements", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteCommand(w, protocol.NewCommand("OBJECT REFCOUNT", "k"))).To(Succeed())
			Expect(w.String()).To(Equal("*3\r\n$6\r\nOBJECT\r\n$8\r\nREFCOUNT\r\n$1\r\nk\r\n"))
		})

		It("sends arguments containing spaces unchanged", func() {
			frame := protocol.AppendCommand(nil, protocol.NewCommand("SET", "my key", "hello  world "))

			args, _, err := protocol.ParseRequest(frame)
			Expect(err).To(Succeed())
			Expect(string(args[1])).To(Equal("my key"))
			Expect(string(args[2])).To(Equal("hello  world "))
		})

		It("sends empty arguments", func() {
			frame := protocol.AppendCommand(nil, protocol.NewCommand("SET", "k", ""))
			Expect(string(frame)).To(HaveSuffix("$1\r\nk\r\n$0\r\n\r\n"))
		})

		It("appends the payload as the final element", func() {
			payload := []byte{0x00, '\r', '\n', 0xff}
			cmd := protocol.NewCommand("RESTORE", "k", "0").WithPayload(payload)

			Expect(cmd.Len()).To(Equal(4))

			args, _, err := protocol.ParseRequest(protocol.AppendCommand(nil, cmd))
			Expect(err).To(Succeed())
			Expect(args).To(HaveLen(4))
			Expect(args[3]).To(Equal(payload))
		})

		It("encodes numeric arguments in decimal", func() {
			cmd := protocol.NewCommand("INCRBYFLOAT", "k").WithFloat(1.5)
			Expect(string(cmd.Args[1])).To(Equal("1.5"))

			cmd = protocol.NewCommand("EXPIRE", "k").WithInt(-10)
			Expect(string(cmd.Args[1])).To(Equal("-10"))
		})
	})

	Describe("WriteOk", func() {
		It("writes a simple string OK", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w)).To(Succeed())
			Expect(w.String()).To(Equal("+OK\r\n"))
		})
	})

	Describe("WriteError", func() {
		It("ends in \r\n", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR bad")).To(Succeed())
			Expect(w.String()).To(HaveSuffix("\r\n"))
		})

		It("writes the error", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, "ERR bad")).To(Succeed())
			Expect(w.String()).To(Equal("-ERR bad\r\n"))
		})
	})

	Describe("WriteReply", func() {
		It("writes replies the parser reads back", func() {
			replies := []protocol.Reply{
				protocol.OK,
				protocol.Integer(-3),
				protocol.Bulk("foo bar"),
				protocol.Bulk(""),
				protocol.NilBulk(),
				protocol.NilArray(),
				protocol.Array(protocol.Bulk("a"), protocol.Array(protocol.Integer(1))),
			}

			for _, reply := range replies {
				w := bytes.NewBuffer([]byte{})
				Expect(protocol.WriteReply(w, reply)).To(Succeed())

				parsed, n, err := protocol.ParseReply(w.Bytes())
				Expect(err).To(Succeed())
				Expect(n).To(Equal(w.Len()))
				Expect(parsed).To(Equal(reply))
			}
		})

		It("writes nil distinctly from empty", func() {
			Expect(string(protocol.AppendReply(nil, protocol.NilBulk()))).To(Equal("$-1\r\n"))
			Expect(string(protocol.AppendReply(nil, protocol.Bulk("")))).To(Equal("$0\r\n\r\n"))
			Expect(string(protocol.AppendReply(nil, protocol.NilArray()))).To(Equal("*-1\r\n"))
			Expect(string(protocol.AppendReply(nil, protocol.Array()))).To(Equal("*0\r\n"))
		})
	})
})
