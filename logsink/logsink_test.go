package logsink_test

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luma/redisclient/logsink"
)

type entry struct {
	source   string
	message  string
	severity logsink.Severity
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) sink(source, message string, severity logsink.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry{source, message, severity})
}

var _ = Describe("logsink", func() {
	var rec *recorder

	BeforeEach(func() {
		rec = &recorder{}
	})

	It("forwards the logger name as the source", func() {
		log := logsink.New(rec.sink).Named("client").Named("sequencer")
		log.Info("Connected")

		Expect(rec.entries).To(ConsistOf(entry{"client.sequencer", "Connected", logsink.Info}))
	})

	It("renders fields onto the message in key order", func() {
		log := logsink.New(rec.sink).With(zap.String("host", "localhost"))
		log.Error("Failed to dial", zap.Int("port", 6379), zap.Error(errors.New("refused")))

		Expect(rec.entries).To(HaveLen(1))
		Expect(rec.entries[0].message).To(Equal("Failed to dial error=refused host=localhost port=6379"))
		Expect(rec.entries[0].severity).To(Equal(logsink.Error))
	})

	It("maps zap levels onto severities", func() {
		Expect(logsink.SeverityOf(zapcore.DebugLevel)).To(Equal(logsink.Debug))
		Expect(logsink.SeverityOf(zapcore.InfoLevel)).To(Equal(logsink.Info))
		Expect(logsink.SeverityOf(zapcore.WarnLevel)).To(Equal(logsink.Error))
		Expect(logsink.SeverityOf(zapcore.ErrorLevel)).To(Equal(logsink.Error))
		Expect(logsink.SeverityOf(zapcore.DPanicLevel)).To(Equal(logsink.Critical))
		Expect(logsink.SeverityOf(zapcore.FatalLevel)).To(Equal(logsink.Critical))
	})

	It("drops entries below the configured level", func() {
		log := logsink.NewWithLevel(rec.sink, zapcore.ErrorLevel)
		log.Debug("noise")
		log.Info("noise")
		log.Error("signal")

		Expect(rec.entries).To(HaveLen(1))
		Expect(rec.entries[0].message).To(Equal("signal"))
	})
})
