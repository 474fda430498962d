package training

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrShapeMismatch is returned when paired series differ in length or are too short
	ErrShapeMismatch = errors.New("series shape mismatch")

	// ErrSingleClass is returned when a ROC curve is requested for labels of one class only
	ErrSingleClass = errors.New("ROC curve needs both positive and negative labels")
)

// ROCSeries is a receiver operating characteristic curve: false-positive
// rates and true-positive rates swept across classification thresholds.
// Points are kept in the order they were supplied; nothing is re-sorted.
type ROCSeries struct {
	FPR        []float64 `json:"fpr" yaml:"fpr"`
	TPR        []float64 `json:"tpr" yaml:"tpr"`
	Thresholds []float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// AUC returns the area under the curve
func (s ROCSeries) AUC() (float64, error) {
	return ComputeAUC(s.FPR, s.TPR)
}

// Len returns the number of points on the curve
func (s ROCSeries) Len() int {
	return len(s.FPR)
}

// ComputeAUC integrates tpr over fpr with the trapezoidal rule, walking the
// points in the order given. Both slices must have the same length and at
// least two points.
//
// The caller is responsible for supplying a curve swept from (0,0) to (1,1)
// with ascending fpr. A curve whose fpr is monotonically decreasing yields
// the same positive area; a non-monotonic fpr is integrated as-is and the
// result has no area interpretation.
func ComputeAUC(fpr, tpr []float64) (float64, error) {
	if len(fpr) != len(tpr) {
		return 0, fmt.Errorf("%w: fpr has %d points, tpr has %d", ErrShapeMismatch, len(fpr), len(tpr))
	}
	if len(fpr) < 2 {
		return 0, fmt.Errorf("%w: at least 2 points are needed to compute an area, got %d", ErrShapeMismatch, len(fpr))
	}

	area := 0.0
	increasing, decreasing := false, false
	for i := 1; i < len(fpr); i++ {
		dx := fpr[i] - fpr[i-1]
		if dx > 0 {
			increasing = true
		} else if dx < 0 {
			decreasing = true
		}
		area += dx * (tpr[i] + tpr[i-1]) / 2.0
	}

	if decreasing && !increasing {
		area = -area
	}
	return area, nil
}

// FormatAUC renders an AUC value with five decimal places
func FormatAUC(auc float64) string {
	return fmt.Sprintf("%0.5f", auc)
}

// ROCCurveFromScores sweeps a threshold from +Inf down through every distinct
// score and returns the resulting curve. The first point is always (0,0) and
// the last (1,1). A label of 1 is positive, anything else negative.
func ROCCurveFromScores(scores []float64, labels []int) (ROCSeries, error) {
	if len(scores) != len(labels) {
		return ROCSeries{}, fmt.Errorf("%w: %d scores, %d labels", ErrShapeMismatch, len(scores), len(labels))
	}

	type scoreLabel struct {
		score float64
		label int
	}

	pairs := make([]scoreLabel, len(scores))
	totalPos, totalNeg := 0, 0
	for i := range scores {
		pairs[i] = scoreLabel{score: scores[i], label: labels[i]}
		if labels[i] == 1 {
			totalPos++
		} else {
			totalNeg++
		}
	}
	if totalPos == 0 || totalNeg == 0 {
		return ROCSeries{}, ErrSingleClass
	}

	// Sort by prediction score (descending)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	series := ROCSeries{
		FPR:        []float64{0},
		TPR:        []float64{0},
		Thresholds: []float64{math.Inf(1)},
	}

	tp, fp := 0, 0
	for i, pair := range pairs {
		if pair.label == 1 {
			tp++
		} else {
			fp++
		}
		// Tied scores share one threshold, so only emit after the last of them
		if i+1 < len(pairs) && pairs[i+1].score == pair.score {
			continue
		}
		series.FPR = append(series.FPR, float64(fp)/float64(totalNeg))
		series.TPR = append(series.TPR, float64(tp)/float64(totalPos))
		series.Thresholds = append(series.Thresholds, pair.score)
	}

	return series, nil
}

// CalculateAUCROC calculates Area Under ROC Curve for binary classification
// from raw prediction scores. It returns 0 when the inputs are inconsistent
// or contain a single class.
func CalculateAUCROC(
	predictions []float32, // Raw prediction scores
	trueLabels []int32, // Binary labels (0 or 1)
	batchSize int,
) float64 {
	if len(predictions) != batchSize || len(trueLabels) != batchSize {
		return 0.0
	}

	scores := make([]float64, batchSize)
	labels := make([]int, batchSize)
	for i := 0; i < batchSize; i++ {
		scores[i] = float64(predictions[i])
		labels[i] = int(trueLabels[i])
	}

	series, err := ROCCurveFromScores(scores, labels)
	if err != nil {
		return 0.0
	}
	auc, err := series.AUC()
	if err != nil {
		return 0.0
	}
	return auc
}
