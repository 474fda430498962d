package training

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/vision/grid"
	"github.com/tsawler/go-trainlog/vision/preprocessing"
)

// ErrNoSeries is returned when a plot is requested without any data
var ErrNoSeries = errors.New("plot needs at least one series")

// NamedROC is a ROC curve with an optional legend name
type NamedROC struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	ROCSeries `yaml:",inline"`
}

// ROCLabel returns the legend label for a curve: "AUC area:(0.xxxxx)",
// prefixed with the curve name when there is one
func ROCLabel(name string, auc float64) string {
	label := fmt.Sprintf("AUC area:(%s)", FormatAUC(auc))
	if name != "" {
		label = name + " " + label
	}
	return label
}

var rocAxisLimits = []float64{-0.005, 1.005}

// NewROCCurvePlot builds a ROC plot with one line per curve labelled with
// its AUC, plus the dashed chance diagonal
func NewROCCurvePlot(title string, curves ...NamedROC) (PlotData, error) {
	if len(curves) == 0 {
		return PlotData{}, ErrNoSeries
	}

	metrics := make(map[string]interface{}, len(curves))
	series := make([]SeriesData, 0, len(curves)+1)
	for i, c := range curves {
		auc, err := c.AUC()
		if err != nil {
			return PlotData{}, fmt.Errorf("curve %d: %w", i, err)
		}

		s := SeriesData{
			Name: ROCLabel(c.Name, auc),
			Type: "line",
			Data: make([]DataPoint, c.Len()),
			Style: map[string]interface{}{
				"color":      seriesPalette[i%len(seriesPalette)],
				"line_width": 1,
			},
		}
		for j := range c.FPR {
			s.Data[j] = DataPoint{X: c.FPR[j], Y: c.TPR[j]}
		}
		series = append(series, s)

		key := "auc"
		if c.Name != "" {
			key = "auc_" + c.Name
		} else if len(curves) > 1 {
			key = fmt.Sprintf("auc_%d", i)
		}
		metrics[key] = auc
	}

	series = append(series, SeriesData{
		Name: "Random Classifier",
		Type: "line",
		Data: []DataPoint{
			{X: 0.0, Y: 0.0},
			{X: 1.0, Y: 1.0},
		},
		Style: map[string]interface{}{
			"color":      "#95A5A6",
			"line_style": "dashed",
			"line_width": 1,
		},
	})

	return PlotData{
		PlotType:  ROCCurve,
		Title:     fmt.Sprintf("Roc_Curve based on %s", title),
		Timestamp: time.Now(),
		Series:    series,
		Metrics:   metrics,
		Config: PlotConfig{
			XAxisLabel:     "FPR",
			YAxisLabel:     "TPR",
			XAxisScale:     "linear",
			YAxisScale:     "linear",
			ShowLegend:     true,
			LegendLocation: "lower right",
			ShowGrid:       true,
			ShowAxis:       true,
			Width:          600,
			Height:         600,
			Interactive:    true,
			CustomOptions: map[string]interface{}{
				"x_limits": rocAxisLimits,
				"y_limits": rocAxisLimits,
			},
		},
	}, nil
}

// LineChartOptions configures NewLineChartPlot. Second is optional.
type LineChartOptions struct {
	First       []float64
	Second      []float64
	FirstLabel  string
	SecondLabel string
	Title       string
	XAxisLabel  string
	YAxisLabel  string
	ShowGrid    bool
	ShowAxis    bool
	SavePath    string
}

// NewLineChartPlot plots one or two value sequences against their index,
// the first as red circles and the second as green stars
func NewLineChartPlot(opts LineChartOptions) (PlotData, error) {
	if len(opts.First) == 0 {
		return PlotData{}, ErrNoSeries
	}
	if opts.Title == "" {
		opts.Title = "line_chart_for_anomaly_detector"
	}
	if opts.XAxisLabel == "" {
		opts.XAxisLabel = "labels"
	}
	if opts.YAxisLabel == "" {
		opts.YAxisLabel = "loss"
	}

	series := []SeriesData{indexedSeries(opts.FirstLabel, opts.First, "red", "o")}
	if len(opts.Second) > 0 {
		series = append(series, indexedSeries(opts.SecondLabel, opts.Second, "green", "*"))
	}

	return PlotData{
		PlotType:  LineChart,
		Title:     opts.Title,
		Timestamp: time.Now(),
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:     opts.XAxisLabel,
			YAxisLabel:     opts.YAxisLabel,
			XAxisScale:     "linear",
			YAxisScale:     "linear",
			ShowLegend:     opts.FirstLabel != "" || opts.SecondLabel != "",
			LegendLocation: "upper right",
			ShowGrid:       opts.ShowGrid,
			ShowAxis:       opts.ShowAxis,
			Width:          800,
			Height:         600,
			SavePath:       opts.SavePath,
		},
	}, nil
}

func indexedSeries(name string, values []float64, color, marker string) SeriesData {
	s := SeriesData{
		Name: name,
		Type: "line",
		Data: make([]DataPoint, len(values)),
		Style: map[string]interface{}{
			"color":  color,
			"marker": marker,
		},
	}
	for i, v := range values {
		s.Data[i] = DataPoint{X: i, Y: v}
	}
	return s
}

// NewAnomalyChartPlot scatters abnormal scores followed by normal scores on a
// shared x axis: abnormal at 0..len(abnormal), normal right after them
func NewAnomalyChartPlot(abnormal, normal []float64) (PlotData, error) {
	if len(abnormal) == 0 && len(normal) == 0 {
		return PlotData{}, ErrNoSeries
	}

	abnormalSeries := SeriesData{
		Name:  "abnormal",
		Type:  "scatter",
		Data:  make([]DataPoint, len(abnormal)),
		Style: map[string]interface{}{"color": "red", "marker": "o"},
	}
	for i, v := range abnormal {
		abnormalSeries.Data[i] = DataPoint{X: i, Y: v}
	}

	normalSeries := SeriesData{
		Name:  "normal",
		Type:  "scatter",
		Data:  make([]DataPoint, len(normal)),
		Style: map[string]interface{}{"color": "blue", "marker": "o"},
	}
	offset := len(abnormal)
	for i, v := range normal {
		normalSeries.Data[i] = DataPoint{X: offset + i, Y: v}
	}

	return PlotData{
		PlotType:  AnomalyPlot,
		Title:     "abnormal_vs_normal",
		Timestamp: time.Now(),
		Series:    []SeriesData{abnormalSeries, normalSeries},
		Config: PlotConfig{
			XAxisLabel:     "index",
			YAxisLabel:     "score",
			XAxisScale:     "linear",
			YAxisScale:     "linear",
			ShowLegend:     true,
			LegendLocation: "lower right",
			ShowAxis:       true,
			Width:          800,
			Height:         600,
		},
	}, nil
}

// RainbowColor maps a class label onto the rainbow colormap the way the
// embedding plot colours its labels: index int(255*label/9)
func RainbowColor(label int) string {
	idx := int(255 * float64(label) / 9)
	if idx < 0 {
		idx = 0
	}
	if idx > 255 {
		idx = 255
	}
	s := float64(idx) / 255
	r := math.Abs(2*s - 0.5)
	g := math.Sin(s * math.Pi)
	b := math.Cos(s * math.Pi / 2)
	return fmt.Sprintf("#%02X%02X%02X", channelByte(r), channelByte(g), channelByte(b))
}

func channelByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// NewEmbedding3DPlot draws every label as text at its 3D point, coloured by label
func NewEmbedding3DPlot(labels []int, points [][3]float64) (PlotData, error) {
	if len(labels) == 0 {
		return PlotData{}, ErrNoSeries
	}
	if len(labels) != len(points) {
		return PlotData{}, fmt.Errorf("%w: %d labels, %d points", ErrShapeMismatch, len(labels), len(points))
	}

	s := SeriesData{
		Name: "embedding",
		Type: "text3d",
		Data: make([]DataPoint, len(labels)),
	}
	minV, maxV := points[0], points[0]
	for i, p := range points {
		s.Data[i] = DataPoint{
			X:     p[0],
			Y:     p[1],
			Z:     p[2],
			Label: fmt.Sprintf("%d", labels[i]),
			Color: RainbowColor(labels[i]),
		}
		for d := 0; d < 3; d++ {
			minV[d] = math.Min(minV[d], p[d])
			maxV[d] = math.Max(maxV[d], p[d])
		}
	}

	return PlotData{
		PlotType:  Embedding3D,
		Title:     "embedding",
		Timestamp: time.Now(),
		Series:    []SeriesData{s},
		Config: PlotConfig{
			XAxisLabel: "x",
			YAxisLabel: "y",
			ZAxisLabel: "z",
			XAxisScale: "linear",
			YAxisScale: "linear",
			Width:      800,
			Height:     800,
			CustomOptions: map[string]interface{}{
				"x_limits": []float64{minV[0], maxV[0]},
				"y_limits": []float64{minV[1], maxV[1]},
				"z_limits": []float64{minV[2], maxV[2]},
			},
		},
	}, nil
}

// NewImageMosaicPlot lays titled CHW images out on a subplot grid of
// grid.MosaicLayout(len(images)). Each image travels as a base64 PNG.
func NewImageMosaicPlot(taskTitle string, titles []string, images []*tensor.Tensor) (PlotData, error) {
	if len(images) == 0 {
		return PlotData{}, ErrNoSeries
	}
	if len(titles) != len(images) {
		return PlotData{}, fmt.Errorf("%w: %d titles, %d images", ErrShapeMismatch, len(titles), len(images))
	}

	rows, cols := grid.MosaicLayout(len(images))
	series := make([]SeriesData, len(images))
	for i, img := range images {
		encoded, err := preprocessing.EncodePNGBase64(img)
		if err != nil {
			return PlotData{}, fmt.Errorf("image %d: %w", i, err)
		}
		series[i] = SeriesData{
			Name: titles[i],
			Type: "image",
			Style: map[string]interface{}{
				"subplot": i + 1,
				"row":     i / cols,
				"col":     i % cols,
				"png":     encoded,
			},
		}
	}

	return PlotData{
		PlotType:  ImageMosaic,
		Title:     taskTitle,
		Timestamp: time.Now(),
		Series:    series,
		Config: PlotConfig{
			ShowAxis: false,
			Width:    300 * cols,
			Height:   300 * rows,
			CustomOptions: map[string]interface{}{
				"rows":    rows,
				"columns": cols,
			},
		},
	}, nil
}
