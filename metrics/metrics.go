package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "redisclient"

// Outcomes recorded against commands_total.
const (
	OutcomeOK          = "ok"
	OutcomeServerError = "server_error"
	OutcomeError       = "error"
)

// Metrics holds the collectors shared by the client, transport and pubsub
// packages. A nil *Metrics records nothing, so components can take one
// unconditionally.
type Metrics struct {
	commands     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	reconnects   prometheus.Counter
	pushMessages *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands completed, by command and outcome.",
		}, []string{"command", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from a command being sent to its reply being decoded.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"command"}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Connections opened to the server.",
		}),

		pushMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Messages pushed by the server to subscribed sessions, by kind.",
		}, []string{"kind"}),
	}

	var err error
	for _, c := range []prometheus.Collector{m.commands, m.duration, m.reconnects, m.pushMessages} {
		err = multierr.Append(err, reg.Register(c))
	}

	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveCommand records a completed command. Verbs the client does not
// implement are counted as OtherCommand.
func (m *Metrics) ObserveCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}

	command = CommandLabel(command)

	m.commands.WithLabelValues(command, outcome).Inc()
	m.duration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}

	m.reconnects.Inc()
}

func (m *Metrics) PushReceived(kind string) {
	if m == nil {
		return
	}

	m.pushMessages.WithLabelValues(kind).Inc()
}
