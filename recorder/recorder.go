// Package recorder instruments a training loop: it keys scalar losses and
// sampled image batches by a global step, writes grid PNGs and checkpoints to
// a per-dataset directory, and prints progress lines.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tsawler/go-trainlog/checkpoints"
	"github.com/tsawler/go-trainlog/sink"
	"github.com/tsawler/go-trainlog/tensor"
)

const (
	imagesDirName     = "images"
	checkpointDirName = "CheckPointStore"

	// DefaultMetricName is the tag used by Record when no name is given
	DefaultMetricName = "loss"
)

// ErrEmptyModelName is returned by New when the session has no model name
var ErrEmptyModelName = errors.New("model name must not be empty")

// Recorder is one training session for a (model, data) pair. It is not safe
// for concurrent use; calls are expected from the training loop goroutine.
type Recorder struct {
	modelName string
	dataName  string
	comment   string

	dataDir       string
	imagesDir     string
	checkpointDir string

	sink       sink.Sink
	serializer checkpoints.Serializer
	mirror     checkpoints.Mirror
	logger     *zap.Logger
	out        io.Writer

	closed bool
}

// Option configures a Recorder
type Option func(*options)

type options struct {
	rootDir    string
	sink       sink.Sink
	serializer checkpoints.Serializer
	mirror     checkpoints.Mirror
	logger     *zap.Logger
	out        io.Writer
}

// WithRootDir places the session directories under dir instead of the
// working directory
func WithRootDir(dir string) Option {
	return func(o *options) {
		o.rootDir = dir
	}
}

// WithSink replaces the default event file sink
func WithSink(s sink.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithSerializer replaces the raw checkpoint serializer
func WithSerializer(s checkpoints.Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// WithCheckpointMirror uploads every saved checkpoint after it is written
func WithCheckpointMirror(m checkpoints.Mirror) Option {
	return func(o *options) {
		o.mirror = m
	}
}

// WithLogger sets the structured logger, zap.NewNop by default
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOutput sets where status and checkpoint lines are printed
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New creates the session directories {root}/{data}, {root}/{data}/images and
// {root}/{data}/CheckPointStore if they do not exist yet, and opens the sink.
// Without WithSink the session logs to an event file in {root}/{model}_log.
func New(modelName, dataName string, opts ...Option) (*Recorder, error) {
	if modelName == "" {
		return nil, ErrEmptyModelName
	}

	o := options{
		rootDir:    ".",
		serializer: checkpoints.RawSerializer{},
		logger:     zap.NewNop(),
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		modelName:  modelName,
		dataName:   dataName,
		comment:    fmt.Sprintf("%s_%s", modelName, dataName),
		serializer: o.serializer,
		mirror:     o.mirror,
		logger:     o.logger.With(zap.String("model", modelName), zap.String("data", dataName)),
		out:        o.out,
	}

	r.dataDir = filepath.Join(o.rootDir, dataName)
	r.imagesDir = filepath.Join(r.dataDir, imagesDirName)
	r.checkpointDir = filepath.Join(r.dataDir, checkpointDirName)
	for _, dir := range []string{r.dataDir, r.imagesDir, r.checkpointDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
		}
	}

	r.sink = o.sink
	if r.sink == nil {
		logDir := filepath.Join(o.rootDir, strings.ToLower(modelName)+"_log")
		ef, err := sink.NewEventFile(logDir, r.comment)
		if err != nil {
			return nil, err
		}
		r.sink = ef
		r.logger.Debug("event file opened", zap.String("path", ef.Path()), zap.String("run_id", ef.RunID()))
	}

	return r, nil
}

// Comment returns the session label, "{model}_{data}"
func (r *Recorder) Comment() string {
	return r.comment
}

// ModelName returns the model the session was created for
func (r *Recorder) ModelName() string {
	return r.modelName
}

// DataName returns the dataset the session was created for
func (r *Recorder) DataName() string {
	return r.dataName
}

// DataDir returns the session root directory
func (r *Recorder) DataDir() string {
	return r.dataDir
}

// ImagesDir returns the directory grid PNGs are written to
func (r *Recorder) ImagesDir() string {
	return r.imagesDir
}

// CheckpointDir returns the directory checkpoints are written to
func (r *Recorder) CheckpointDir() string {
	return r.checkpointDir
}

// Sink returns the metrics sink the session writes to
func (r *Recorder) Sink() sink.Sink {
	return r.sink
}

// Step maps a batch position to the global step using this session's clock
func (r *Recorder) Step(epoch, batch, batchesPerEpoch int) int {
	return Step(epoch, batch, batchesPerEpoch)
}

// Record writes value to the sink under name at the step of (epoch, batch).
// Tracked values are detached before they are written. An empty name
// records under "loss".
func (r *Recorder) Record(ctx context.Context, value interface{}, epoch, batch, batchesPerEpoch int, name string) error {
	scalar, err := tensor.ToScalar(value)
	if err != nil {
		return err
	}
	if name == "" {
		name = DefaultMetricName
	}
	step := Step(epoch, batch, batchesPerEpoch)
	if err := r.sink.AddScalar(ctx, name, scalar, step); err != nil {
		return fmt.Errorf("failed to record %s at step %d: %w", name, step, err)
	}
	return nil
}

// Close flushes and releases the sink. Only the first call reaches the sink;
// later calls return nil.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.sink.Close(); err != nil {
		return fmt.Errorf("failed to close sink: %w", err)
	}
	r.logger.Debug("recorder closed")
	return nil
}
