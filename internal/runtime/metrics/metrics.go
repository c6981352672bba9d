// Package metrics holds the Prometheus collectors shared by the feed client,
// classifier, relay publisher and sink. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "railflow"

// Publish outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics tracks relay and sink statistics.
type Metrics struct {
	mu sync.Mutex

	feedStatus       *prometheus.GaugeVec
	feedReconnects   prometheus.Counter
	feedMessages     prometheus.Counter
	feedAbandoned    prometheus.Counter
	classifiedEvents *prometheus.CounterVec
	ignoredEnvelopes prometheus.Counter
	parseErrors      prometheus.Counter
	publishTotal     *prometheus.CounterVec
	publishDuration  *prometheus.HistogramVec
	sinkWrites       *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors. A nil registerer selects the default one.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		feedStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_status",
			Help:      "1 for the current feed connection status, 0 for the others",
		}, []string{"status"}),
		feedReconnects:   newCounter("feed", "reconnect_attempts_total", "Reconnect attempts made after the feed session was lost"),
		feedMessages:     newCounter("feed", "messages_total", "Messages delivered by the feed subscription"),
		feedAbandoned:    newCounter("feed", "messages_abandoned_total", "Messages left unacknowledged because of shutdown"),
		classifiedEvents: newCounterVec("classifier", "events_total", "Events extracted from feed envelopes", []string{"kind"}),
		ignoredEnvelopes: newCounter("classifier", "ignored_total", "Envelopes with a message type that is not relayed"),
		parseErrors:      newCounter("classifier", "parse_errors_total", "Payloads or envelopes that could not be decoded"),
		publishTotal:     newCounterVec("relay", "publish_total", "Events published to the broker", []string{"topic", "outcome"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "publish_duration_seconds",
			Help:      "Time spent publishing a single event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		sinkWrites: newCounterVec("sink", "writes_total", "Rows written by the sink", []string{"table", "outcome"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.feedStatus,
		m.feedReconnects,
		m.feedMessages,
		m.feedAbandoned,
		m.classifiedEvents,
		m.ignoredEnvelopes,
		m.parseErrors,
		m.publishTotal,
		m.publishDuration,
		m.sinkWrites,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// SetFeedStatus marks status as the current connection state. all lists every
// known state so the previous one is reset to zero.
func (m *Metrics) SetFeedStatus(status string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.feedStatus.WithLabelValues(s).Set(0)
	}
	m.feedStatus.WithLabelValues(status).Set(1)
}

func (m *Metrics) IncReconnectAttempt() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}

func (m *Metrics) IncFeedMessage() {
	if m == nil {
		return
	}
	m.feedMessages.Inc()
}

func (m *Metrics) IncAbandoned() {
	if m == nil {
		return
	}
	m.feedAbandoned.Inc()
}

// RecordClassification adds the outcome of classifying one feed message.
func (m *Metrics) RecordClassification(activations, cancellations, ignored, parseErrors int) {
	if m == nil {
		return
	}
	m.classifiedEvents.WithLabelValues("activation").Add(float64(activations))
	m.classifiedEvents.WithLabelValues("cancellation").Add(float64(cancellations))
	m.ignoredEnvelopes.Add(float64(ignored))
	m.parseErrors.Add(float64(parseErrors))
}

func (m *Metrics) RecordPublish(topic string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.publishTotal.WithLabelValues(topic, outcome).Inc()
	m.publishDuration.WithLabelValues(topic).Observe(took.Seconds())
}

func (m *Metrics) RecordSinkWrite(table string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.sinkWrites.WithLabelValues(table, outcome).Inc()
}
