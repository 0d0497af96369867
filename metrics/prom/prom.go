// Package prom exports gidref lifetime-management events as Prometheus
// metrics.
package prom

import (
	"time"

	"github.com/hupe1980/gidref/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer implements metrics.Observer on top of Prometheus collectors.
type Observer struct {
	splits      *prometheus.CounterVec
	replenish   *prometheus.HistogramVec
	credit      *prometheus.CounterVec
	moves       prometheus.Counter
	releases    *prometheus.CounterVec
	decrements  *prometheus.CounterVec
	messages    *prometheus.CounterVec
	encodeTime  prometheus.Histogram
	handlesSent prometheus.Counter
}

var _ metrics.Observer = (*Observer)(nil)

// New creates an Observer and registers its collectors with reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{
		splits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gidref_credit_splits_total",
			Help: "Credit splits, labelled by whether fresh credit had to be requested",
		}, []string{"replenished"}),
		replenish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gidref_replenish_duration_seconds",
			Help:    "Latency of credit replenishment round trips",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		credit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gidref_credit_total",
			Help: "Credit requested from, vented to and returned to the address service",
		}, []string{"direction"}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gidref_credit_moves_total",
			Help: "Handles whose whole credit was moved into an outgoing message",
		}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gidref_handle_releases_total",
			Help: "Last-copy releases of handles by outcome",
		}, []string{"outcome"}),
		decrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gidref_decrements_total",
			Help: "Fire-and-forget global credit decrements",
		}, []string{"status"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gidref_messages_encoded_total",
			Help: "Outgoing messages encoded",
		}, []string{"status"}),
		encodeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gidref_message_encode_duration_seconds",
			Help:    "Time spent encoding outgoing messages, including credit splits",
			Buckets: prometheus.DefBuckets,
		}),
		handlesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gidref_handles_sent_total",
			Help: "Handles serialized into outgoing messages",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.splits, o.replenish, o.credit, o.moves, o.releases,
		o.decrements, o.messages, o.encodeTime, o.handlesSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// OnSplit implements metrics.Observer.
func (o *Observer) OnSplit(replenished bool) {
	if replenished {
		o.splits.WithLabelValues("true").Inc()
		return
	}
	o.splits.WithLabelValues("false").Inc()
}

// OnReplenish implements metrics.Observer.
func (o *Observer) OnReplenish(d time.Duration, increment, vented int64, err error) {
	o.replenish.WithLabelValues(status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	o.credit.WithLabelValues("requested").Add(float64(increment))
	o.credit.WithLabelValues("vented").Add(float64(vented))
}

// OnMove implements metrics.Observer.
func (o *Observer) OnMove() { o.moves.Inc() }

// OnRelease implements metrics.Observer.
func (o *Observer) OnRelease(outcome string) {
	o.releases.WithLabelValues(outcome).Inc()
}

// OnDecrement implements metrics.Observer.
func (o *Observer) OnDecrement(credit int64, err error) {
	o.decrements.WithLabelValues(status(err)).Inc()
	if err == nil {
		o.credit.WithLabelValues("returned").Add(float64(credit))
	}
}

// OnSerialize implements metrics.Observer.
func (o *Observer) OnSerialize(handles, _ int, d time.Duration, err error) {
	o.messages.WithLabelValues(status(err)).Inc()
	o.encodeTime.Observe(d.Seconds())
	if err == nil {
		o.handlesSent.Add(float64(handles))
	}
}
