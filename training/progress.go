package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ProgressBar provides PyTorch-style training progress visualization
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar writing to stdout
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         os.Stdout,
		description: description,
		total:       total,
		current:     0,
		startTime:   time.Now(),
		width:       70, // Character width of progress bar
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
	}
}

// SetOutput redirects the bar, e.g. to stderr or a buffer in tests
func (pb *ProgressBar) SetOutput(w io.Writer) *ProgressBar {
	pb.out = w
	return pb
}

// SetWidth sets the number of characters used for the bar itself
func (pb *ProgressBar) SetWidth(width int) *ProgressBar {
	if width > 0 {
		pb.width = width
	}
	return pb
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// UpdateMetrics updates metrics without advancing progress
func (pb *ProgressBar) UpdateMetrics(metrics map[string]float64) {
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}
	if percentage < 0 {
		percentage = 0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64

	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			totalTime := time.Duration(float64(elapsed) / percentage)
			eta = totalTime - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d",
		pb.description,
		percentage*100,
		bar,
		pb.current,
		pb.total,
	)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s",
			formatDuration(elapsed),
			formatDuration(eta),
		)
	} else {
		line += fmt.Sprintf(" [%s<00:00",
			formatDuration(elapsed),
		)
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	// Metrics in a stable order so consecutive frames line up
	keys := make([]string, 0, len(pb.metrics))
	for key := range pb.metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := pb.metrics[key]
		if strings.Contains(key, "accuracy") || strings.Contains(key, "acc") {
			line += fmt.Sprintf(", %s=%.2f%%", key, value*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", key, value)
		}
	}

	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// TrainingSession draws one progress bar per epoch and prints a loss summary
// when the epoch ends
type TrainingSession struct {
	out           io.Writer
	modelName     string
	epochs        int
	stepsPerEpoch int
	currentEpoch  int

	trainProgress *ProgressBar
	lastMetrics   map[string]float64
}

// NewTrainingSession creates a new training session with progress visualization
func NewTrainingSession(w io.Writer, modelName string, epochs, stepsPerEpoch int) *TrainingSession {
	if w == nil {
		w = os.Stdout
	}
	return &TrainingSession{
		out:           w,
		modelName:     modelName,
		epochs:        epochs,
		stepsPerEpoch: stepsPerEpoch,
	}
}

// StartTraining prints the session header
func (ts *TrainingSession) StartTraining() {
	fmt.Fprintf(ts.out, "Starting training of %s for %d epochs...\n", ts.modelName, ts.epochs)
}

// StartEpoch begins a new epoch
func (ts *TrainingSession) StartEpoch(epoch int) {
	ts.currentEpoch = epoch
	description := fmt.Sprintf("Epoch %d/%d", epoch, ts.epochs)
	ts.trainProgress = NewProgressBar(description, ts.stepsPerEpoch).SetOutput(ts.out)
}

// UpdateProgress updates the current epoch's bar
func (ts *TrainingSession) UpdateProgress(step int, metrics map[string]float64) {
	ts.lastMetrics = metrics
	if ts.trainProgress != nil {
		ts.trainProgress.Update(step, metrics)
	}
}

// FinishEpoch completes the bar and prints the last metrics seen
func (ts *TrainingSession) FinishEpoch() {
	if ts.trainProgress != nil {
		ts.trainProgress.Finish()
	}

	fmt.Fprintf(ts.out, "Epoch %d/%d Summary:", ts.currentEpoch, ts.epochs)
	keys := make([]string, 0, len(ts.lastMetrics))
	for key := range ts.lastMetrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(ts.out, " %s=%.4f", key, ts.lastMetrics[key])
	}
	fmt.Fprintln(ts.out)
}
