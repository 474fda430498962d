package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/vision/preprocessing"
)

// Measurements written by the Influx sink
const (
	InfluxScalarMeasurement = "trainlog_scalar"
	InfluxImageMeasurement  = "trainlog_image"
)

// InfluxConfig holds the connection settings for an InfluxDB v2 server
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// Influx writes every value as a point tagged with the run and the value's tag
type Influx struct {
	mu       sync.Mutex
	writeAPI api.WriteAPIBlocking
	client   influxdb2.Client
	run      string
	closed   bool
	now      func() time.Time
}

// NewInflux connects to InfluxDB and returns a sink owning the client
func NewInflux(cfg InfluxConfig, run string) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := NewInfluxWithWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), run)
	s.client = client
	return s
}

// NewInfluxWithWriter returns a sink on top of an existing blocking write API
func NewInfluxWithWriter(writeAPI api.WriteAPIBlocking, run string) *Influx {
	return &Influx{
		writeAPI: writeAPI,
		run:      run,
		now:      time.Now,
	}
}

// AddScalar writes one trainlog_scalar point
func (s *Influx) AddScalar(ctx context.Context, tag string, value float64, step int) error {
	p := influxdb2.NewPoint(
		InfluxScalarMeasurement,
		map[string]string{"run": s.run, "tag": tag},
		map[string]interface{}{"value": value, "step": step},
		s.now(),
	)
	return s.writePoints(ctx, p)
}

// AddImage writes one trainlog_image point carrying the PNG as base64
func (s *Influx) AddImage(ctx context.Context, tag string, img *tensor.Tensor, step int) error {
	encoded, err := preprocessing.EncodePNGBase64(img)
	if err != nil {
		return fmt.Errorf("failed to encode image %s: %w", tag, err)
	}
	p := influxdb2.NewPoint(
		InfluxImageMeasurement,
		map[string]string{"run": s.run, "tag": tag},
		map[string]interface{}{
			"step":   step,
			"height": img.Shape[1],
			"width":  img.Shape[2],
			"png":    encoded,
		},
		s.now(),
	)
	return s.writePoints(ctx, p)
}

func (s *Influx) writePoints(ctx context.Context, points ...*write.Point) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write to InfluxDB: %w", err)
	}
	return nil
}

// Close flushes the write API and closes the client when the sink owns it
func (s *Influx) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.writeAPI.Flush(context.Background())
	if s.client != nil {
		s.client.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to flush InfluxDB writes: %w", err)
	}
	return nil
}
