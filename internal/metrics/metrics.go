// Package metrics is this service's HTTP metrics worker: a long-lived
// background goroutine exposing process counters over prometheus's text
// exposition format, separate from the FE/BE wire.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenithdb/pageserver/internal/nlog"
)

// Registry bundles the counters this service exposes. One Registry per
// process, shared by every connection worker by reference — unlike the
// rest of a connection's state, metrics are explicitly a process-wide
// aggregate.
type Registry struct {
	reg *prometheus.Registry

	PagestreamRequests *prometheus.CounterVec
	PagestreamErrors   *prometheus.CounterVec
	BasebackupBytes    prometheus.Counter
	ActiveConnections  prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	GCRuns             prometheus.Counter
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		PagestreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageserver_pagestream_requests_total",
			Help: "Pagestream requests processed, labeled by request kind.",
		}, []string{"kind"}),
		PagestreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageserver_pagestream_errors_total",
			Help: "Pagestream Read requests whose page lookup failed and were answered with ok=false.",
		}, []string{"kind"}),
		BasebackupBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_basebackup_bytes_total",
			Help: "Bytes streamed by the basebackup handler.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageserver_active_connections",
			Help: "Currently open client connections.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageserver_callmemaybe_subscriptions",
			Help: "Currently registered callmemaybe subscriptions.",
		}),
		GCRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageserver_gc_runs_total",
			Help: "do_gc invocations completed.",
		}),
	}
	reg.MustRegister(r.PagestreamRequests, r.PagestreamErrors, r.BasebackupBytes,
		r.ActiveConnections, r.ActiveSubscriptions, r.GCRuns)
	return r
}

// Serve runs the metrics HTTP worker until ctx is cancelled. It is meant
// to be launched once from main() as its own background goroutine,
// alongside the wire listener.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		nlog.Infof("metrics worker: shutting down on %s", addr)
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			nlog.Errorf("metrics worker: %v", err)
			return err
		}
		return nil
	}
}
