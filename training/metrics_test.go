package training

import (
	"errors"
	"math"
	"testing"
)

func TestComputeAUC(t *testing.T) {
	tests := []struct {
		name     string
		fpr      []float64
		tpr      []float64
		expected float64
	}{
		{"random classifier", []float64{0, 1}, []float64{0, 1}, 0.5},
		{"perfect classifier", []float64{0, 0, 1}, []float64{0, 1, 1}, 1.0},
		{"worst classifier", []float64{0, 1, 1}, []float64{0, 0, 1}, 0.0},
		{"duplicate points", []float64{0, 0.5, 0.5, 1}, []float64{0, 0.5, 0.5, 1}, 0.5},
		{"step curve", []float64{0, 0.5, 0.5, 1}, []float64{0, 0, 1, 1}, 0.5},
		{"decreasing fpr", []float64{1, 0, 0}, []float64{1, 1, 0}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auc, err := ComputeAUC(tt.fpr, tt.tpr)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(auc-tt.expected) > 1e-12 {
				t.Errorf("Expected AUC %f, got %f", tt.expected, auc)
			}
		})
	}
}

func TestComputeAUCKeepsCallerOrder(t *testing.T) {
	// Non-monotonic fpr is integrated as given, not sorted
	fpr := []float64{0, 1, 0.5}
	tpr := []float64{0, 1, 1}
	auc, err := ComputeAUC(fpr, tpr)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// 1*(0+1)/2 + (-0.5)*(1+1)/2 = 0.5 - 0.5
	if math.Abs(auc) > 1e-12 {
		t.Errorf("Expected 0 for the unsorted curve, got %f", auc)
	}
}

func TestComputeAUCShapeErrors(t *testing.T) {
	cases := []struct {
		name string
		fpr  []float64
		tpr  []float64
	}{
		{"length mismatch", []float64{0, 0.5, 1}, []float64{0, 1}},
		{"single point", []float64{0}, []float64{0}},
		{"empty", nil, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ComputeAUC(c.fpr, c.tpr)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestFormatAUC(t *testing.T) {
	if got := FormatAUC(0.5); got != "0.50000" {
		t.Errorf("Expected 0.50000, got %s", got)
	}
	if got := FormatAUC(2.0 / 3.0); got != "0.66667" {
		t.Errorf("Expected 0.66667, got %s", got)
	}
}

func TestROCCurveFromScores(t *testing.T) {
	t.Run("PerfectRanking", func(t *testing.T) {
		series, err := ROCCurveFromScores([]float64{0.9, 0.8, 0.3, 0.1}, []int{1, 1, 0, 0})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if series.FPR[0] != 0 || series.TPR[0] != 0 {
			t.Errorf("Curve must start at (0,0), got (%f,%f)", series.FPR[0], series.TPR[0])
		}
		last := series.Len() - 1
		if series.FPR[last] != 1 || series.TPR[last] != 1 {
			t.Errorf("Curve must end at (1,1), got (%f,%f)", series.FPR[last], series.TPR[last])
		}
		if !math.IsInf(series.Thresholds[0], 1) {
			t.Errorf("First threshold must be +Inf, got %f", series.Thresholds[0])
		}
		auc, _ := series.AUC()
		if math.Abs(auc-1.0) > 1e-12 {
			t.Errorf("Expected AUC 1.0, got %f", auc)
		}
	})

	t.Run("TiedScores", func(t *testing.T) {
		series, err := ROCCurveFromScores([]float64{0.5, 0.5, 0.5, 0.5}, []int{1, 0, 1, 0})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if series.Len() != 2 {
			t.Errorf("Expected ties to collapse into one point, got %d points", series.Len())
		}
		auc, _ := series.AUC()
		if math.Abs(auc-0.5) > 1e-12 {
			t.Errorf("Expected AUC 0.5, got %f", auc)
		}
	})

	t.Run("SingleClass", func(t *testing.T) {
		_, err := ROCCurveFromScores([]float64{0.1, 0.2}, []int{1, 1})
		if !errors.Is(err, ErrSingleClass) {
			t.Errorf("Expected ErrSingleClass, got %v", err)
		}
	})
}

func TestCalculateAUCROC(t *testing.T) {
	predictions := []float32{0.9, 0.7, 0.6, 0.2}
	labels := []int32{1, 0, 1, 0}

	auc := CalculateAUCROC(predictions, labels, 4)
	// Positives rank 1st and 3rd: 3 of 4 positive/negative pairs ordered correctly
	if math.Abs(auc-0.75) > 1e-9 {
		t.Errorf("Expected AUC 0.75, got %f", auc)
	}

	if CalculateAUCROC(predictions, labels, 3) != 0 {
		t.Error("Expected 0 for batch size mismatch")
	}
	if CalculateAUCROC([]float32{0.1, 0.2}, []int32{0, 0}, 2) != 0 {
		t.Error("Expected 0 for single class labels")
	}
}
