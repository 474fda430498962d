package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/tsawler/go-trainlog/tensor"
)

// PrometheusConfig controls the optional Pushgateway upload on Close
type PrometheusConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

// Prometheus keeps the latest value of every tag in a gauge. Nothing is
// served; the registry is exposed for callers with an HTTP server and
// pushed to a Pushgateway on Close when one is configured. The run name is
// the push grouping key, so the collectors are labelled by tag only.
type Prometheus struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	run      string
	cfg      PrometheusConfig
	closed   bool

	scalars *prometheus.GaugeVec
	steps   *prometheus.GaugeVec
	images  *prometheus.CounterVec
}

// NewPrometheus creates a sink with its own registry
func NewPrometheus(cfg PrometheusConfig, run string) *Prometheus {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Prometheus{
		registry: registry,
		run:      run,
		cfg:      cfg,
		scalars: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainlog_scalar",
			Help: "Latest recorded value per tag",
		}, []string{"tag"}),
		steps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainlog_step",
			Help: "Global step of the latest record per tag",
		}, []string{"tag"}),
		images: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainlog_images_total",
			Help: "Number of image grids recorded per tag",
		}, []string{"tag"}),
	}
}

// Registry returns the registry holding the sink's collectors
func (s *Prometheus) Registry() *prometheus.Registry {
	return s.registry
}

// AddScalar sets the tag's gauge
func (s *Prometheus) AddScalar(_ context.Context, tag string, value float64, step int) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.scalars.WithLabelValues(tag).Set(value)
	s.steps.WithLabelValues(tag).Set(float64(step))
	return nil
}

// AddImage counts the image; pixels are not exported
func (s *Prometheus) AddImage(_ context.Context, tag string, _ *tensor.Tensor, step int) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.images.WithLabelValues(tag).Inc()
	s.steps.WithLabelValues(tag).Set(float64(step))
	return nil
}

func (s *Prometheus) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close pushes the registry to the Pushgateway, if any
func (s *Prometheus) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cfg.Pushgateway == "" {
		return nil
	}
	job := s.cfg.Job
	if job == "" {
		job = "trainlog"
	}
	err := push.New(s.cfg.Pushgateway, job).
		Gatherer(s.registry).
		Grouping("run", s.run).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
