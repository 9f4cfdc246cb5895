// Package metrics exposes call and connection counters for the RPC client.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dashrpc"

type Collector struct {
	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	streamItems *prometheus.CounterVec
	connects    *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Completed client calls by route, interaction shape and outcome.",
		}, []string{"route", "shape", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from submit to resolution of client calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		streamItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_items_total",
			Help:      "Items received on multi-reply calls, by route and whether they decoded.",
		}, []string{"route", "result"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Transport open attempts by result.",
		}, []string{"result"}),
	}
	for _, col := range []prometheus.Collector{c.calls, c.duration, c.streamItems, c.connects} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveCall(route, shape, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(route, shape, outcome).Inc()
	c.duration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) StreamItem(route string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "skipped"
	}
	c.streamItems.WithLabelValues(route, result).Inc()
}

func (c *Collector) Connect(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.connects.WithLabelValues(result).Inc()
}
