package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
)

// ErrPlottingDisabled is returned by calls that need a live sidecar
var ErrPlottingDisabled = errors.New("plotting service is disabled")

const userAgent = "go-trainlog"

// PlottingService handles communication with the sidecar plotting application
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	config     PlottingServiceConfig
	enabled    bool
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url" mapstructure:"url"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	RetryAttempts int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
}

// Budget is the longest SendPlotDataWithRetry can take: RetryAttempts tries
// in total, each bounded by Timeout, with RetryDelay between them. A
// non-positive Timeout gives a minute.
func (c PlottingServiceConfig) Budget() time.Duration {
	if c.Timeout <= 0 {
		return time.Minute
	}
	attempts := c.attempts()
	return c.Timeout*time.Duration(attempts) + c.RetryDelay*time.Duration(attempts-1)
}

func (c PlottingServiceConfig) attempts() int {
	if c.RetryAttempts < 1 {
		return 1
	}
	return c.RetryAttempts
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary,omitempty"`
}

// BatchPlotResult represents a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// StatusError is returned when the sidecar answers with a non-200 status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether a failed request is worth repeating.
// Client errors (4xx) are not.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a new plotting service client
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:  config,
		enabled: false,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable disables the plotting service
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

func disabledResponse() *PlottingResponse {
	return &PlottingResponse{
		Success: false,
		Message: "Plotting service is disabled",
	}
}

// postJSON sends payload to path and decodes the JSON answer into out.
// A non-200 answer is decoded too and reported as *StatusError.
func (ps *PlottingService) postJSON(ctx context.Context, path string, payload, out interface{}, message func() string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal plot data: %w", err)
	}

	url := fmt.Sprintf("%s%s", ps.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Message: message()}
	}
	return nil
}

// SendPlotData sends plot data to the sidecar plotting service
func (ps *PlottingService) SendPlotData(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return disabledResponse(), nil
	}

	var plotResponse PlottingResponse
	err := ps.postJSON(ctx, "/api/plot", plotData, &plotResponse, func() string { return plotResponse.Message })
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return &plotResponse, err
		}
		return nil, err
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry sends plot data, retrying transport failures and
// server errors with the configured attempts and delay
func (ps *PlottingService) SendPlotDataWithRetry(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return disabledResponse(), nil
	}

	attempts := ps.config.attempts()

	var resp *PlottingResponse
	err := retry.Do(
		func() error {
			r, err := ps.SendPlotData(ctx, plotData)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.RetryIf(retryable),
		retry.Attempts(uint(attempts)),
		retry.Delay(ps.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", attempts, err)
	}
	return resp, nil
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth(ctx context.Context) error {
	if !ps.enabled {
		return ErrPlottingDisabled
	}

	url := fmt.Sprintf("%s/health", ps.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// GenerateAndSendPlot generates a plot from the collector and sends it
func (ps *PlottingService) GenerateAndSendPlot(ctx context.Context, collector *VisualizationCollector, plotType PlotType) (*PlottingResponse, error) {
	if !ps.enabled {
		return disabledResponse(), nil
	}

	var plotData PlotData
	switch plotType {
	case TrainingCurves:
		plotData = collector.GenerateTrainingCurvesPlot()
	case LearningRateSchedule:
		plotData = collector.GenerateLearningRateSchedulePlot()
	case ROCCurve:
		var err error
		if plotData, err = collector.GenerateROCCurvePlot(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported plot type: %s", plotType)
	}

	if len(plotData.Series) == 0 {
		return &PlottingResponse{
			Success: false,
			Message: fmt.Sprintf("No data available for plot type: %s", plotType),
		}, nil
	}

	return ps.SendPlotDataWithRetry(ctx, plotData)
}

// BatchSendPlots sends multiple plots in a single request
func (ps *PlottingService) BatchSendPlots(ctx context.Context, plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	batchPayload := map[string]interface{}{
		"plots": plotDataList,
		"batch": true,
	}

	var batchResponse BatchPlottingResponse
	err := ps.postJSON(ctx, "/api/batch-plot", batchPayload, &batchResponse, func() string { return batchResponse.Message })
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return &batchResponse, fmt.Errorf("batch %w", err)
		}
		return nil, err
	}
	return &batchResponse, nil
}
