package checkpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoSerializer writes protobuf messages as-is. Any other state is first
// converted to a google.protobuf.Struct through its JSON form.
type ProtoSerializer struct{}

func (ProtoSerializer) Format() CheckpointFormat { return FormatProto }

// Save marshals state in protobuf wire format
func (ProtoSerializer) Save(state interface{}, path string) error {
	msg, ok := state.(proto.Message)
	if !ok {
		if c, isCheckpoint := state.(*Checkpoint); isCheckpoint {
			c.stamp()
		}
		var err error
		if msg, err = toStruct(state); err != nil {
			return err
		}
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func toStruct(state interface{}) (*structpb.Struct, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedState, err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("%w: %T does not encode as an object", ErrUnsupportedState, state)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedState, err)
	}
	return s, nil
}

// LoadProto reads a checkpoint file into msg
func LoadProto(path string, msg proto.Message) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return nil
}

// LoadProtoCheckpoint reads a *Checkpoint written by ProtoSerializer
func LoadProtoCheckpoint(path string) (*Checkpoint, error) {
	s := &structpb.Struct{}
	if err := LoadProto(path, s); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(encoded, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}
