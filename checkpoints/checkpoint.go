package checkpoints

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/go-trainlog/optimizer"
)

// ErrUnsupportedState is returned when a serializer cannot encode the state it is given
var ErrUnsupportedState = errors.New("unsupported checkpoint state")

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatRaw CheckpointFormat = iota
	FormatJSON
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatRaw:
		return "raw"
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// ParseFormat maps a configuration name onto a format
func ParseFormat(name string) (CheckpointFormat, error) {
	switch name {
	case "raw", "":
		return FormatRaw, nil
	case "json":
		return FormatJSON, nil
	case "proto":
		return FormatProto, nil
	default:
		return 0, fmt.Errorf("unsupported checkpoint format: %q", name)
	}
}

// Checkpoint is a self-describing training snapshot for callers that do not
// bring their own serialization
type Checkpoint struct {
	ModelName string         `json:"model_name"`
	Weights   []WeightTensor `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *optimizer.State `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias", "gamma", "beta", etc.
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	TotalSteps   int     `json:"total_steps"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// MarshalBinary encodes the checkpoint as compact JSON so it can be handed
// to RawSerializer like any caller-produced payload
func (c *Checkpoint) MarshalBinary() ([]byte, error) {
	c.stamp()
	return json.Marshal(c)
}

func (c *Checkpoint) stamp() {
	if c.Metadata.Framework == "" {
		c.Metadata.Framework = "go-trainlog"
		c.Metadata.Version = "1.0.0"
		c.Metadata.CreatedAt = time.Now()
	}
}

// Serializer writes an opaque training state to a file. Save replaces any
// existing file at path.
type Serializer interface {
	Save(state interface{}, path string) error
	Format() CheckpointFormat
}

// NewSerializer returns the serializer for format
func NewSerializer(format CheckpointFormat) (Serializer, error) {
	switch format {
	case FormatRaw:
		return RawSerializer{}, nil
	case FormatJSON:
		return JSONSerializer{Indent: "  "}, nil
	case FormatProto:
		return ProtoSerializer{}, nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", format.String())
	}
}

// RawSerializer writes bytes the caller already produced: a []byte, an
// io.Reader, an io.WriterTo or an encoding.BinaryMarshaler
type RawSerializer struct{}

func (RawSerializer) Format() CheckpointFormat { return FormatRaw }

// Save writes state verbatim
func (RawSerializer) Save(state interface{}, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		switch s := state.(type) {
		case []byte:
			_, err := w.Write(s)
			return err
		case io.WriterTo:
			_, err := s.WriteTo(w)
			return err
		case io.Reader:
			_, err := io.Copy(w, s)
			return err
		case encoding.BinaryMarshaler:
			data, err := s.MarshalBinary()
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		default:
			return fmt.Errorf("%w: raw serializer cannot write %T", ErrUnsupportedState, state)
		}
	})
}

// JSONSerializer writes any JSON-encodable state
type JSONSerializer struct {
	Indent string
}

func (JSONSerializer) Format() CheckpointFormat { return FormatJSON }

// Save encodes state as JSON, stamping metadata on *Checkpoint values
func (s JSONSerializer) Save(state interface{}, path string) error {
	if c, ok := state.(*Checkpoint); ok {
		c.stamp()
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		if s.Indent != "" {
			encoder.SetIndent("", s.Indent)
		}
		if err := encoder.Encode(state); err != nil {
			return fmt.Errorf("failed to encode checkpoint: %w", err)
		}
		return nil
	})
}

// LoadJSON reads a checkpoint written by JSONSerializer
func LoadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// writeFileAtomic writes through a temporary file in the target directory
// and renames it over path, so readers never see a partial checkpoint
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set checkpoint permissions: %w", err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}
