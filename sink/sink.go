// Package sink defines where recorded scalars and images go: a local event
// file, InfluxDB, Prometheus or the plotting sidecar, alone or fanned out.
package sink

import (
	"context"
	"errors"

	"github.com/tsawler/go-trainlog/tensor"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("sink is closed")

// Sink receives tagged values indexed by global step
type Sink interface {
	// AddScalar records one scalar value
	AddScalar(ctx context.Context, tag string, value float64, step int) error

	// AddImage records one CHW image with values in [0, 1]
	AddImage(ctx context.Context, tag string, img *tensor.Tensor, step int) error

	// Close flushes and releases the sink. Calls after the first return nil.
	Close() error
}

// Multi fans every call out to several sinks
type Multi []Sink

// NewMulti creates a fan-out sink, skipping nil entries
func NewMulti(sinks ...Sink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// AddScalar writes to every sink and joins their errors
func (m Multi) AddScalar(ctx context.Context, tag string, value float64, step int) error {
	var errs []error
	for _, s := range m {
		if err := s.AddScalar(ctx, tag, value, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddImage writes to every sink and joins their errors
func (m Multi) AddImage(ctx context.Context, tag string, img *tensor.Tensor, step int) error {
	var errs []error
	for _, s := range m {
		if err := s.AddImage(ctx, tag, img, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, even when an earlier one fails
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
