// Package observability exposes Prometheus metrics for the mount link,
// the imaging gateway and model runs.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes recorded by the mount link.
const (
	CommandSent    = "sent"
	CommandDropped = "dropped"
	CommandTimeout = "timeout"
)

// Point outcomes recorded by the orchestrator.
const (
	PointCommitted = "committed"
	PointSolved    = "solved"
	PointFailed    = "failed"
	PointSkipped   = "skipped"
)

// Collector holds all application collectors. Methods are safe on a nil receiver
// so components can run without metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	LinkCommands       *prometheus.CounterVec
	LinkReconnects     prometheus.Counter
	LinkConnected      prometheus.Gauge
	LinkQueueDepth     prometheus.Gauge
	FrameParseFailures *prometheus.CounterVec
	ModelPoints        *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	ImagingDuration    *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg (default registerer when nil).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mount_link_commands_total",
		Help: "Mount commands by outcome (sent, dropped, timeout).",
	}, []string{"result"})
	commands, err := registerCounterVec(reg, commands, "mount_link_commands_total")
	if err != nil {
		return nil, err
	}

	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mount_link_reconnects_total",
		Help: "Connection attempts made by the mount link.",
	})
	reconnects, err = registerCounter(reg, reconnects, "mount_link_reconnects_total")
	if err != nil {
		return nil, err
	}

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_link_connected",
		Help: "1 while the mount link holds a live connection.",
	})
	connected, err = registerGauge(reg, connected, "mount_link_connected")
	if err != nil {
		return nil, err
	}

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mount_link_queue_depth",
		Help: "Commands waiting in the mount link queue.",
	})
	depth, err = registerGauge(reg, depth, "mount_link_queue_depth")
	if err != nil {
		return nil, err
	}

	parseFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mount_frame_parse_failures_total",
		Help: "Telemetry fields that could not be decoded, by field.",
	}, []string{"field"})
	parseFailures, err = registerCounterVec(reg, parseFailures, "mount_frame_parse_failures_total")
	if err != nil {
		return nil, err
	}

	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "model_points_total",
		Help: "Model points processed, by run kind and outcome.",
	}, []string{"kind", "outcome"})
	points, err = registerCounterVec(reg, points, "model_points_total")
	if err != nil {
		return nil, err
	}

	runs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_run_duration_seconds",
		Help:    "Wall time of model runs by kind.",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
	}, []string{"kind"})
	runs, err = registerHistogramVec(reg, runs, "model_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	imaging := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imaging_operation_duration_seconds",
		Help:    "Duration of capture and solve operations.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"operation", "success"})
	imaging, err = registerHistogramVec(reg, imaging, "imaging_operation_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		LinkCommands:       commands,
		LinkReconnects:     reconnects,
		LinkConnected:      connected,
		LinkQueueDepth:     depth,
		FrameParseFailures: parseFailures,
		ModelPoints:        points,
		RunDuration:        runs,
		ImagingDuration:    imaging,
	}, nil
}

// Handler serves the registered metrics.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) IncCommand(result string) {
	if c == nil || c.LinkCommands == nil {
		return
	}
	c.LinkCommands.WithLabelValues(result).Inc()
}

func (c *Collector) AddCommands(result string, n int) {
	if c == nil || c.LinkCommands == nil || n <= 0 {
		return
	}
	c.LinkCommands.WithLabelValues(result).Add(float64(n))
}

func (c *Collector) IncReconnect() {
	if c == nil || c.LinkReconnects == nil {
		return
	}
	c.LinkReconnects.Inc()
}

func (c *Collector) SetConnected(up bool) {
	if c == nil || c.LinkConnected == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	c.LinkConnected.Set(v)
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil || c.LinkQueueDepth == nil {
		return
	}
	c.LinkQueueDepth.Set(float64(n))
}

func (c *Collector) IncParseFailure(field string) {
	if c == nil || c.FrameParseFailures == nil {
		return
	}
	c.FrameParseFailures.WithLabelValues(field).Inc()
}

func (c *Collector) IncPoint(kind, outcome string) {
	if c == nil || c.ModelPoints == nil {
		return
	}
	c.ModelPoints.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ObserveRun(kind string, d time.Duration) {
	if c == nil || c.RunDuration == nil {
		return
	}
	c.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) ObserveImaging(operation string, success bool, d time.Duration) {
	if c == nil || c.ImagingDuration == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	c.ImagingDuration.WithLabelValues(operation, label).Observe(d.Seconds())
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
