// Package config loads trainlog settings from defaults, an optional YAML file
// and TRAINLOG_* environment variables, and builds the sinks, serializer and
// checkpoint mirror they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsawler/go-trainlog/checkpoints"
	"github.com/tsawler/go-trainlog/sink"
	"github.com/tsawler/go-trainlog/training"
)

// EnvPrefix is prepended to every environment override, e.g. TRAINLOG_SINK_TYPE
const EnvPrefix = "TRAINLOG"

// Sink types
const (
	SinkEventFile  = "eventfile"
	SinkInflux     = "influx"
	SinkPrometheus = "prometheus"
	SinkPlot       = "plot"
	SinkMulti      = "multi"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the trainlog configuration: defaults, then the YAML file, then
// TRAINLOG_* environment variables
type Config struct {
	Model      string           `mapstructure:"model"`
	Data       string           `mapstructure:"data"`
	Root       string           `mapstructure:"root"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Plotting   PlottingConfig   `mapstructure:"plotting"`
	Log        LogConfig        `mapstructure:"log"`
}

// SinkConfig selects where scalars and images go. The multi sink always
// writes an event file and adds Influx, Prometheus and the plotting sidecar
// when they are configured.
type SinkConfig struct {
	Type       string                `mapstructure:"type"`
	Influx     sink.InfluxConfig     `mapstructure:"influx"`
	Prometheus sink.PrometheusConfig `mapstructure:"prometheus"`
}

// CheckpointConfig selects the checkpoint format and the optional GCS mirror
type CheckpointConfig struct {
	Format string                `mapstructure:"format"`
	GCS    checkpoints.GCSConfig `mapstructure:"gcs"`
}

// PlottingConfig enables the plotting sidecar and holds its client settings
type PlottingConfig struct {
	Enabled                        bool `mapstructure:"enabled"`
	training.PlottingServiceConfig `mapstructure:",squash"`
}

// LogConfig sets the zap log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	plotting := training.DefaultPlottingServiceConfig()

	v.SetDefault("model", "model")
	v.SetDefault("data", "data")
	v.SetDefault("root", ".")
	v.SetDefault("sink.type", SinkEventFile)
	v.SetDefault("sink.influx.url", "")
	v.SetDefault("sink.influx.token", "")
	v.SetDefault("sink.influx.org", "")
	v.SetDefault("sink.influx.bucket", "")
	v.SetDefault("sink.prometheus.pushgateway", "")
	v.SetDefault("sink.prometheus.job", "trainlog")
	v.SetDefault("checkpoint.format", checkpoints.FormatRaw.String())
	v.SetDefault("checkpoint.gcs.bucket", "")
	v.SetDefault("checkpoint.gcs.prefix", "")
	v.SetDefault("checkpoint.gcs.credentials", "")
	v.SetDefault("plotting.enabled", false)
	v.SetDefault("plotting.url", plotting.BaseURL)
	v.SetDefault("plotting.timeout", plotting.Timeout)
	v.SetDefault("plotting.retry_attempts", plotting.RetryAttempts)
	v.SetDefault("plotting.retry_delay", plotting.RetryDelay)
	v.SetDefault("log.level", "info")
}

// Load reads path (skipped when empty) over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides
func Default() *Config {
	plotting := training.DefaultPlottingServiceConfig()
	return &Config{
		Model:      "model",
		Data:       "data",
		Root:       ".",
		Sink:       SinkConfig{Type: SinkEventFile, Prometheus: sink.PrometheusConfig{Job: "trainlog"}},
		Checkpoint: CheckpointConfig{Format: checkpoints.FormatRaw.String()},
		Plotting:   PlottingConfig{PlottingServiceConfig: plotting},
		Log:        LogConfig{Level: "info"},
	}
}

// Validate rejects unknown sink types, checkpoint formats and log levels, and
// sinks missing the settings they need
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
	}

	switch c.Sink.Type {
	case SinkEventFile, SinkMulti:
	case SinkInflux:
		if c.Sink.Influx.URL == "" {
			return fmt.Errorf("%w: sink.influx.url is required for the influx sink", ErrInvalidConfig)
		}
	case SinkPrometheus:
	case SinkPlot:
		if c.Plotting.BaseURL == "" {
			return fmt.Errorf("%w: plotting.url is required for the plot sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink type %q", ErrInvalidConfig, c.Sink.Type)
	}

	if _, err := checkpoints.ParseFormat(c.Checkpoint.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Plotting.Timeout < 0 || c.Plotting.RetryDelay < 0 || c.Plotting.RetryAttempts < 0 {
		return fmt.Errorf("%w: plotting timeout, retry_delay and retry_attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LogLevel parses log.level
func (c *Config) LogLevel() (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return level, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}

// Comment is the session label sinks are opened with
func (c *Config) Comment() string {
	return fmt.Sprintf("%s_%s", c.Model, c.Data)
}

// LogDir is where the event file sink writes, {root}/{model}_log
func (c *Config) LogDir() string {
	return filepath.Join(c.Root, strings.ToLower(c.Model)+"_log")
}

// Serializer returns the checkpoint serializer for checkpoint.format
func (c *Config) Serializer() (checkpoints.Serializer, error) {
	format, err := checkpoints.ParseFormat(c.Checkpoint.Format)
	if err != nil {
		return nil, err
	}
	return checkpoints.NewSerializer(format)
}

// NewSink opens the configured sink. run labels the points and series the
// remote sinks write.
func (c *Config) NewSink(run string, logger *zap.Logger) (sink.Sink, error) {
	switch c.Sink.Type {
	case SinkEventFile:
		return sink.NewEventFile(c.LogDir(), c.Comment())
	case SinkInflux:
		return sink.NewInflux(c.Sink.Influx, run), nil
	case SinkPrometheus:
		return sink.NewPrometheus(c.Sink.Prometheus, run), nil
	case SinkPlot:
		return sink.NewPlot(c.Plotting.PlottingServiceConfig, run, logger), nil
	case SinkMulti:
		ef, err := sink.NewEventFile(c.LogDir(), c.Comment())
		if err != nil {
			return nil, err
		}
		sinks := []sink.Sink{ef}
		if c.Sink.Influx.URL != "" {
			sinks = append(sinks, sink.NewInflux(c.Sink.Influx, run))
		}
		if c.Sink.Prometheus.Pushgateway != "" {
			sinks = append(sinks, sink.NewPrometheus(c.Sink.Prometheus, run))
		}
		if c.Plotting.Enabled {
			sinks = append(sinks, sink.NewPlot(c.Plotting.PlottingServiceConfig, run, logger))
		}
		return sink.NewMulti(sinks...), nil
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", ErrInvalidConfig, c.Sink.Type)
	}
}

// NewMirror returns the GCS checkpoint mirror, or nil when no bucket is set
func (c *Config) NewMirror(ctx context.Context) (*checkpoints.GCSMirror, error) {
	if c.Checkpoint.GCS.Bucket == "" {
		return nil, nil
	}
	return checkpoints.NewGCSMirror(ctx, c.Checkpoint.GCS)
}

// PlottingTimeout bounds one plotting request including its retries. A zero
// plotting.timeout gives a minute.
func (c *Config) PlottingTimeout() time.Duration {
	return c.Plotting.PlottingServiceConfig.Budget()
}
