package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics records message outcomes for queue consumers.
type ConsumerMetrics struct {
	processed  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deadLetter *prometheus.CounterVec
}

// Consumer outcome label values.
const (
	OutcomeAck     = "ack"
	OutcomeNack    = "nack"
	OutcomeSkipped = "skipped"
)

// NewConsumerMetrics registers the consumer metrics on the provided registerer.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Messages handled by a consumer, labeled by outcome.",
	}, []string{"consumer", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consumer_handle_duration_seconds",
		Help:      "Time spent handling a single message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"consumer"})
	deadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_dead_letters_total",
		Help:      "Messages routed to the dead-letter table.",
	}, []string{"consumer", "reason"})
	reg.MustRegister(processed, duration, deadLetter)
	return &ConsumerMetrics{
		processed:  processed,
		duration:   duration,
		deadLetter: deadLetter,
	}
}

// IncOutcome counts a handled message by its outcome.
func (c *ConsumerMetrics) IncOutcome(consumer, outcome string) {
	if c == nil || c.processed == nil {
		return
	}
	c.processed.WithLabelValues(normalizeLabel(consumer), normalizeLabel(outcome)).Inc()
}

// ObserveHandle records the handling duration for one message.
func (c *ConsumerMetrics) ObserveHandle(consumer string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(consumer)).Observe(duration.Seconds())
}

// IncDeadLetter counts a message written to the dead-letter table.
func (c *ConsumerMetrics) IncDeadLetter(consumer, reason string) {
	if c == nil || c.deadLetter == nil {
		return
	}
	c.deadLetter.WithLabelValues(normalizeLabel(consumer), normalizeLabel(reason)).Inc()
}
