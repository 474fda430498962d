package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/training"
)

// Plot collects scalars in memory and posts them to the plotting sidecar as
// training curves when closed. Images are not forwarded.
type Plot struct {
	mu        sync.Mutex
	collector *training.VisualizationCollector
	service   *training.PlottingService
	logger    *zap.Logger
	timeout   time.Duration
	closed    bool
}

// NewPlot creates a sidecar sink for run. A nil logger discards logs.
func NewPlot(cfg training.PlottingServiceConfig, run string, logger *zap.Logger) *Plot {
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := training.NewVisualizationCollector(run)
	collector.Enable()

	service := training.NewPlottingService(cfg)
	service.Enable()

	return &Plot{
		collector: collector,
		service:   service,
		logger:    logger,
		timeout:   cfg.Budget(),
	}
}

// Collector exposes the collected series
func (s *Plot) Collector() *training.VisualizationCollector {
	return s.collector
}

// AddScalar appends the value to the tag's curve
func (s *Plot) AddScalar(_ context.Context, tag string, value float64, step int) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.collector.RecordScalar(tag, step, value)
	return nil
}

// AddImage is a no-op
func (s *Plot) AddImage(_ context.Context, _ string, _ *tensor.Tensor, _ int) error {
	if s.isClosed() {
		return ErrClosed
	}
	return nil
}

func (s *Plot) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close sends the training curves collected so far
func (s *Plot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if len(s.collector.Tags()) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.service.GenerateAndSendPlot(ctx, s.collector, training.TrainingCurves)
	if err != nil {
		return fmt.Errorf("failed to send training curves: %w", err)
	}
	s.logger.Info("training curves sent",
		zap.String("plot_id", resp.PlotID),
		zap.String("view_url", resp.ViewURL),
		zap.Bool("success", resp.Success))
	return nil
}
