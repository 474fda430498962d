package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/vision/preprocessing"
)

// Event kinds written to an event file
const (
	KindHeader = "header"
	KindScalar = "scalar"
	KindImage  = "image"
)

const eventFilePrefix = "events.out.trainlog"

// Event is one decoded record of an event file
type Event struct {
	Kind     string
	Tag      string
	Value    float64
	Step     int
	WallTime time.Time
	Fields   map[string]interface{}
}

// EventFile appends length-delimited protobuf records to a file under a log
// directory. Every record is a google.protobuf.Struct.
type EventFile struct {
	mu     sync.Mutex
	dir    string
	path   string
	runID  string
	file   *os.File
	w      *bufio.Writer
	closed bool
	now    func() time.Time
}

// NewEventFile creates dir if needed and opens a fresh event file in it.
// The first record is a header carrying comment and a generated run id.
func NewEventFile(dir, comment string) (*EventFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runID := uuid.New().String()
	now := time.Now()
	name := fmt.Sprintf("%s.%d.%s", eventFilePrefix, now.Unix(), runID)
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}

	ef := &EventFile{
		dir:   dir,
		path:  path,
		runID: runID,
		file:  file,
		w:     bufio.NewWriter(file),
		now:   time.Now,
	}

	if err := ef.write(KindHeader, map[string]interface{}{
		"run_id":  runID,
		"comment": comment,
	}); err != nil {
		file.Close()
		return nil, err
	}
	return ef, nil
}

// Path returns the file being written
func (ef *EventFile) Path() string {
	return ef.path
}

// RunID returns the identifier written in the header record
func (ef *EventFile) RunID() string {
	return ef.runID
}

// AddScalar appends a scalar record
func (ef *EventFile) AddScalar(_ context.Context, tag string, value float64, step int) error {
	return ef.write(KindScalar, map[string]interface{}{
		"tag":   tag,
		"value": value,
		"step":  step,
	})
}

// AddImage appends an image record with the image encoded as base64 PNG
func (ef *EventFile) AddImage(_ context.Context, tag string, img *tensor.Tensor, step int) error {
	encoded, err := preprocessing.EncodePNGBase64(img)
	if err != nil {
		return fmt.Errorf("failed to encode image %s: %w", tag, err)
	}
	return ef.write(KindImage, map[string]interface{}{
		"tag":      tag,
		"step":     step,
		"channels": img.Shape[0],
		"height":   img.Shape[1],
		"width":    img.Shape[2],
		"png":      encoded,
	})
}

// Flush pushes buffered records to the file
func (ef *EventFile) Flush() error {
	ef.mu.Lock()
	defer ef.mu.Unlock()
	if ef.closed {
		return ErrClosed
	}
	return ef.w.Flush()
}

// Close flushes and closes the file
func (ef *EventFile) Close() error {
	ef.mu.Lock()
	defer ef.mu.Unlock()
	if ef.closed {
		return nil
	}
	ef.closed = true

	flushErr := ef.w.Flush()
	closeErr := ef.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush event file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close event file: %w", closeErr)
	}
	return nil
}

func (ef *EventFile) write(kind string, fields map[string]interface{}) error {
	fields["kind"] = kind
	fields["wall_time"] = float64(ef.now().UnixNano()) / 1e9

	record, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("failed to build %s record: %w", kind, err)
	}

	ef.mu.Lock()
	defer ef.mu.Unlock()
	if ef.closed {
		return ErrClosed
	}
	if _, err := protodelim.MarshalTo(ef.w, record); err != nil {
		return fmt.Errorf("failed to write %s record: %w", kind, err)
	}
	return nil
}

// ReadEvents decodes every record of an event file in order
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var events []Event
	for {
		record := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(r, record); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("failed to read record %d: %w", len(events), err)
		}
		events = append(events, decodeEvent(record.AsMap()))
	}
}

func decodeEvent(fields map[string]interface{}) Event {
	e := Event{Fields: fields}
	e.Kind, _ = fields["kind"].(string)
	e.Tag, _ = fields["tag"].(string)
	e.Value, _ = fields["value"].(float64)
	if step, ok := fields["step"].(float64); ok {
		e.Step = int(step)
	}
	if wall, ok := fields["wall_time"].(float64); ok {
		sec := int64(wall)
		e.WallTime = time.Unix(sec, int64((wall-float64(sec))*1e9))
	}
	return e
}

// FindEventFiles lists the event files in dir, oldest name first
func FindEventFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, eventFilePrefix+".*"))
}
