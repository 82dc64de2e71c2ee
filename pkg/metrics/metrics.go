// Package metrics exposes what the coordinator does as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blaubaer/onair/pkg/lease"
)

const namespace = "onair"

// Collector implements lease.Observer.
type Collector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	leaseEnds  *prometheus.CounterVec
	channels   *prometheus.GaugeVec
}

func New() *Collector {
	result := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lease operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		leaseEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_ends_total",
			Help:      "Leases which ended, by reason and whether the holder asked for it.",
		}, []string{"reason", "involuntary"}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels currently known, by state.",
		}, []string{"state"}),
	}

	result.registry.MustRegister(
		result.operations,
		result.leaseEnds,
		result.channels,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return result
}

func (this *Collector) OperationDone(op lease.Operation, kind lease.ErrorKind) {
	outcome := kind.String()
	if kind == lease.KindNone {
		outcome = "ok"
	}
	this.operations.WithLabelValues(string(op), outcome).Inc()
}

func (this *Collector) LeaseEnded(reason lease.Reason, involuntary bool) {
	r := string(reason)
	if r == "" {
		r = "released"
	}
	v := "false"
	if involuntary {
		v = "true"
	}
	this.leaseEnds.WithLabelValues(r, v).Inc()
}

func (this *Collector) RegistryChanged(channels []lease.Channel) {
	var connected, taken, capturing float64
	for _, c := range channels {
		if c.Connected {
			connected++
		}
		if c.Taken {
			taken++
		}
		if c.Capturing {
			capturing++
		}
	}
	this.channels.WithLabelValues("known").Set(float64(len(channels)))
	this.channels.WithLabelValues("connected").Set(connected)
	this.channels.WithLabelValues("taken").Set(taken)
	this.channels.WithLabelValues("capturing").Set(capturing)
}

func (this *Collector) Registry() *prometheus.Registry {
	return this.registry
}

func (this *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(this.registry, promhttp.HandlerOpts{})
}
