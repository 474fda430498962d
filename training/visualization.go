package training

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	// Training plots
	TrainingCurves       PlotType = "training_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"

	// Evaluation plots
	ROCCurve    PlotType = "roc_curve"
	LineChart   PlotType = "line_chart"
	AnomalyPlot PlotType = "anomaly_chart"

	// Representation plots
	Embedding3D PlotType = "embedding_3d"
	ImageMosaic PlotType = "image_mosaic"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	// Data series - flexible structure for different plot types
	Series []SeriesData `json:"series"`

	// Plot configuration
	Config PlotConfig `json:"config"`

	// Metrics metadata
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter", "text3d", "image"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point - flexible for different plot types
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`     // For 3D plots
	Label string      `json:"label,omitempty"` // For categorical data
	Color string      `json:"color,omitempty"` // For custom coloring
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel     string                 `json:"x_axis_label"`
	YAxisLabel     string                 `json:"y_axis_label"`
	ZAxisLabel     string                 `json:"z_axis_label,omitempty"`
	XAxisScale     string                 `json:"x_axis_scale"` // "linear", "log"
	YAxisScale     string                 `json:"y_axis_scale"` // "linear", "log"
	ShowLegend     bool                   `json:"show_legend"`
	LegendLocation string                 `json:"legend_location,omitempty"`
	ShowGrid       bool                   `json:"show_grid"`
	ShowAxis       bool                   `json:"show_axis"`
	Width          int                    `json:"width"`
	Height         int                    `json:"height"`
	Interactive    bool                   `json:"interactive"`
	SavePath       string                 `json:"save_path,omitempty"`
	CustomOptions  map[string]interface{} `json:"custom_options,omitempty"`
}

// ToJSON converts plot data to a JSON string
func (pd PlotData) ToJSON() (string, error) {
	data, err := json.Marshal(pd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data: %w", err)
	}
	return string(data), nil
}

// scalarPoint is one recorded (step, value) pair of a tagged series
type scalarPoint struct {
	step  int
	value float64
}

// VisualizationCollector accumulates scalar series by tag so they can be
// turned into training curve plots at the end of a run
type VisualizationCollector struct {
	mu        sync.Mutex
	modelName string
	enabled   bool

	scalars       map[string][]scalarPoint
	learningRates []scalarPoint
	rocCurves     []NamedROC
}

// NewVisualizationCollector creates a new visualization collector
func NewVisualizationCollector(modelName string) *VisualizationCollector {
	return &VisualizationCollector{
		modelName: modelName,
		scalars:   make(map[string][]scalarPoint),
	}
}

// Enable enables visualization data collection
func (vc *VisualizationCollector) Enable() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.enabled = true
}

// Disable disables visualization data collection
func (vc *VisualizationCollector) Disable() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.enabled = false
}

// IsEnabled returns whether visualization is enabled
func (vc *VisualizationCollector) IsEnabled() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.enabled
}

// RecordScalar appends a value to the series named tag
func (vc *VisualizationCollector) RecordScalar(tag string, step int, value float64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if !vc.enabled {
		return
	}
	vc.scalars[tag] = append(vc.scalars[tag], scalarPoint{step: step, value: value})
}

// RecordLearningRate records the learning rate in effect at step
func (vc *VisualizationCollector) RecordLearningRate(step int, lr float64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if !vc.enabled {
		return
	}
	vc.learningRates = append(vc.learningRates, scalarPoint{step: step, value: lr})
}

// RecordROCData records a ROC curve for the evaluation plot
func (vc *VisualizationCollector) RecordROCData(curve NamedROC) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if !vc.enabled {
		return
	}
	vc.rocCurves = append(vc.rocCurves, curve)
}

// Tags returns the recorded scalar tags in sorted order
func (vc *VisualizationCollector) Tags() []string {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	tags := make([]string, 0, len(vc.scalars))
	for tag := range vc.scalars {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

var seriesPalette = []string{"#FF6B6B", "#4ECDC4", "#FF9F43", "#5F27CD", "#6C5CE7", "#95A5A6"}

// GenerateTrainingCurvesPlot generates one line series per recorded tag
func (vc *VisualizationCollector) GenerateTrainingCurvesPlot() PlotData {
	tags := vc.Tags()

	vc.mu.Lock()
	defer vc.mu.Unlock()

	series := make([]SeriesData, 0, len(tags))
	for i, tag := range tags {
		points := vc.scalars[tag]
		s := SeriesData{
			Name: tag,
			Type: "line",
			Data: make([]DataPoint, len(points)),
			Style: map[string]interface{}{
				"color":      seriesPalette[i%len(seriesPalette)],
				"line_width": 2,
			},
		}
		for j, p := range points {
			s.Data[j] = DataPoint{X: p.step, Y: p.value}
		}
		series = append(series, s)
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Curves - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  "Step",
			YAxisLabel:  "Value",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			ShowAxis:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// GenerateLearningRateSchedulePlot generates learning rate schedule plot data
func (vc *VisualizationCollector) GenerateLearningRateSchedulePlot() PlotData {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	series := []SeriesData{
		{
			Name: "Learning Rate",
			Type: "line",
			Data: make([]DataPoint, len(vc.learningRates)),
			Style: map[string]interface{}{
				"color":      "#6C5CE7",
				"line_width": 2,
			},
		},
	}
	for i, p := range vc.learningRates {
		series[0].Data[i] = DataPoint{X: p.step, Y: p.value}
	}
	if len(vc.learningRates) == 0 {
		series = nil
	}

	return PlotData{
		PlotType:  LearningRateSchedule,
		Title:     fmt.Sprintf("Learning Rate Schedule - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  "Step",
			YAxisLabel:  "Learning Rate",
			XAxisScale:  "linear",
			YAxisScale:  "log",
			ShowLegend:  true,
			ShowGrid:    true,
			ShowAxis:    true,
			Width:       800,
			Height:      400,
			Interactive: true,
		},
	}
}

// GenerateROCCurvePlot generates a ROC plot from the recorded curves
func (vc *VisualizationCollector) GenerateROCCurvePlot() (PlotData, error) {
	vc.mu.Lock()
	curves := append([]NamedROC(nil), vc.rocCurves...)
	vc.mu.Unlock()

	if len(curves) == 0 {
		return PlotData{PlotType: ROCCurve, ModelName: vc.modelName}, nil
	}
	plot, err := NewROCCurvePlot(vc.modelName, curves...)
	if err != nil {
		return PlotData{}, err
	}
	plot.ModelName = vc.modelName
	return plot, nil
}

// Clear drops all recorded data
func (vc *VisualizationCollector) Clear() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.scalars = make(map[string][]scalarPoint)
	vc.learningRates = nil
	vc.rocCurves = nil
}
