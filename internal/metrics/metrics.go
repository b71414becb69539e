// Package metrics exports watchdog and scheduler activity to Prometheus.
//
// Exposed series:
//
//	heartwatch_heartbeats_received_total
//	heartwatch_heartbeats_sent_total{result}
//	heartwatch_peer_silent_total
//	heartwatch_revivals_total{outcome}
//	heartwatch_tasks_run_total{status}
//	heartwatch_queue_size
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heartwatch/internal/task"
)

const namespace = "heartwatch"

// Collector implements watchdog.Observer and scheduler.Observer.
type Collector struct {
	reg *prometheus.Registry

	beatsReceived prometheus.Counter
	beatsSent     *prometheus.CounterVec
	peerSilent    prometheus.Counter
	revivals      *prometheus.CounterVec
	tasksRun      *prometheus.CounterVec
	queueSize     prometheus.Gauge
}

// NewCollector registers every series on a private registry, so several
// collectors can coexist in one process.
func NewCollector(constLabels prometheus.Labels) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		beatsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "heartbeats_received_total",
			Help:        "Heartbeat signals received from the counterpart.",
			ConstLabels: constLabels,
		}),
		beatsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "heartbeats_sent_total",
			Help:        "Heartbeat signals sent to the counterpart, by delivery result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		peerSilent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "peer_silent_total",
			Help:        "Checks that found no heartbeat since the previous check.",
			ConstLabels: constLabels,
		}),
		revivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "revivals_total",
			Help:        "Counterpart revival attempts, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		tasksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_run_total",
			Help:        "Scheduler task executions, by returned status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_size",
			Help:        "Tasks waiting in the scheduler queue.",
			ConstLabels: constLabels,
		}),
	}
	c.reg.MustRegister(c.beatsReceived, c.beatsSent, c.peerSilent, c.revivals, c.tasksRun, c.queueSize)
	return c
}

func (c *Collector) HeartbeatReceived() { c.beatsReceived.Inc() }

func (c *Collector) HeartbeatSent(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.beatsSent.WithLabelValues(result).Inc()
}

func (c *Collector) PeerSilent() { c.peerSilent.Inc() }

func (c *Collector) Revival(outcome string) { c.revivals.WithLabelValues(outcome).Inc() }

func (c *Collector) TaskRan(status task.Status) { c.tasksRun.WithLabelValues(status.String()).Inc() }

func (c *Collector) QueueSize(n int) { c.queueSize.Set(float64(n)) }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	}
}
