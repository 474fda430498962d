package training

import (
	"errors"
	"math"
	"testing"

	"github.com/tsawler/go-trainlog/optimizer"
)

func TestPolyDecay(t *testing.T) {
	tests := []struct {
		name          string
		baseLR        float64
		epoch         int
		interval      int
		maxEpoch      int
		power         float64
		expectedLR    float64
		expectApplied bool
	}{
		{"linear decay", 100, 10, 1, 100, 1, 90, true},
		{"reaches zero at max epoch", 100, 100, 1, 100, 2, 0, true},
		{"epoch zero keeps base", 0.01, 0, 1, 100, 0.9, 0.01, true},
		{"not a decay epoch", 100, 7, 5, 100, 0.9, 0, false},
		{"decay epoch on interval", 100, 10, 5, 100, 1, 90, true},
		{"beyond max epoch", 100, 150, 1, 100, 0.9, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, applied, err := PolyDecay(tt.baseLR, tt.epoch, tt.interval, tt.maxEpoch, tt.power)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if applied != tt.expectApplied {
				t.Fatalf("expected applied=%t, got %t", tt.expectApplied, applied)
			}
			if math.Abs(lr-tt.expectedLR) > 1e-9 {
				t.Errorf("expected LR %f, got %f", tt.expectedLR, lr)
			}
		})
	}
}

func TestPolyDecayErrors(t *testing.T) {
	if _, _, err := PolyDecay(0.1, 5, 0, 100, 0.9); !errors.Is(err, ErrInvalidDecayInterval) {
		t.Errorf("expected ErrInvalidDecayInterval, got %v", err)
	}

	// Negative base raised to a fractional power
	if _, _, err := PolyDecay(0.1, -20, 1, -10, 0.5); !errors.Is(err, ErrNumericDomain) {
		t.Errorf("expected ErrNumericDomain for negative base, got %v", err)
	}

	// Zero base raised to a negative power
	if _, _, err := PolyDecay(0.1, 100, 1, 100, -1); !errors.Is(err, ErrNumericDomain) {
		t.Errorf("expected ErrNumericDomain for zero base, got %v", err)
	}

	// Zero max epoch divides zero by zero
	if _, _, err := PolyDecay(0.1, 0, 1, 0, 0.9); !errors.Is(err, ErrNumericDomain) {
		t.Errorf("expected ErrNumericDomain for zero max epoch, got %v", err)
	}
}

func TestPolyLRSchedulerStep(t *testing.T) {
	opt := optimizer.NewSGD(optimizer.SGDConfig{LearningRate: 100}, "generator", "discriminator")
	scheduler := &PolyLRScheduler{BaseLR: 100, DecayInterval: 5, MaxEpoch: 100, Power: 1}

	lr, applied, err := scheduler.Step(opt, 10)
	if err != nil || !applied {
		t.Fatalf("expected decay at epoch 10, got applied=%t err=%v", applied, err)
	}
	if math.Abs(lr-90) > 1e-9 {
		t.Errorf("expected 90, got %f", lr)
	}
	for _, g := range opt.ParamGroups() {
		if math.Abs(g.LearningRate-90) > 1e-9 {
			t.Errorf("group %s: expected 90, got %f", g.Name, g.LearningRate)
		}
	}

	// Off-interval epoch leaves the groups untouched
	_, applied, err = scheduler.Step(opt, 12)
	if err != nil || applied {
		t.Fatalf("expected no decay at epoch 12, got applied=%t err=%v", applied, err)
	}
	current, err := optimizer.CurrentLearningRate(opt)
	if err != nil {
		t.Fatalf("CurrentLearningRate failed: %v", err)
	}
	if math.Abs(current-90) > 1e-9 {
		t.Errorf("rate changed on a non-decay epoch: %f", current)
	}

	// Past MaxEpoch the rate stays frozen
	_, applied, _ = scheduler.Step(opt, 150)
	if applied {
		t.Error("expected no decay beyond MaxEpoch")
	}
}

func TestPolyLRSchedulerGetLR(t *testing.T) {
	scheduler := &PolyLRScheduler{BaseLR: 1, DecayInterval: 5, MaxEpoch: 20, Power: 1}

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 1},
		{4, 1},     // Still using epoch 0 rate
		{5, 0.75},  // First decay
		{7, 0.75},  // Frozen between intervals
		{10, 0.5},  // Second decay
		{20, 0},    // Max epoch
		{35, 0},    // Frozen after max epoch
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, 1)
		if math.Abs(lr-tt.expectedLR) > 1e-9 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestApplySchedule(t *testing.T) {
	opt := optimizer.NewSGD(optimizer.SGDConfig{LearningRate: 0.1}, "a", "b")
	lr := ApplySchedule(NewStepLRScheduler(2, 0.1), opt, 2, 0.1)
	if math.Abs(lr-0.01) > 1e-9 {
		t.Fatalf("expected 0.01, got %f", lr)
	}
	for _, g := range opt.ParamGroups() {
		if math.Abs(g.LearningRate-0.01) > 1e-9 {
			t.Errorf("group %s: expected 0.01, got %f", g.Name, g.LearningRate)
		}
	}
}

func TestStepLRScheduler(t *testing.T) {
	scheduler := NewStepLRScheduler(2, 0.1)
	baseLR := 0.1

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.1},
		{2, 0.01},
		{3, 0.01},
		{4, 0.001},
		{5, 0.001},
		{6, 0.0001},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestExponentialLRScheduler(t *testing.T) {
	scheduler := NewExponentialLRScheduler(0.9)
	baseLR := 0.1

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.09},
		{2, 0.081},
		{3, 0.0729},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Epoch %d: expected LR %f, got %f", tt.epoch, tt.expectedLR, lr)
		}
	}
}

func TestCosineAnnealingLRScheduler(t *testing.T) {
	scheduler := NewCosineAnnealingLRScheduler(5, 0.0001)
	baseLR := 0.01

	if lr := scheduler.GetLR(0, 0, baseLR); math.Abs(lr-0.01) > 1e-6 {
		t.Errorf("Epoch 0: expected LR 0.01, got %f", lr)
	}
	if lr := scheduler.GetLR(2, 0, baseLR); math.Abs(lr-0.006580) > 1e-6 {
		t.Errorf("Epoch 2: expected LR 0.006580, got %f", lr)
	}
	if lr := scheduler.GetLR(10, 0, baseLR); lr != 0.0001 {
		t.Errorf("Beyond TMax: expected LR %f, got %f", 0.0001, lr)
	}
}

func TestReduceLROnPlateauScheduler(t *testing.T) {
	scheduler := NewReduceLROnPlateauScheduler(0.5, 2, 0.01, "min")

	currentLR := scheduler.Step(1.0, 0.1)
	if currentLR != 0.1 {
		t.Errorf("Initial: expected LR %f, got %f", 0.1, currentLR)
	}

	currentLR = scheduler.Step(0.98, currentLR)
	if currentLR != 0.1 {
		t.Errorf("After improvement: expected LR %f, got %f", 0.1, currentLR)
	}

	currentLR = scheduler.Step(0.99, currentLR)
	currentLR = scheduler.Step(0.99, currentLR)
	if currentLR != 0.05 {
		t.Errorf("After plateau: expected LR %f, got %f", 0.05, currentLR)
	}
}

func TestSchedulerNames(t *testing.T) {
	tests := []struct {
		scheduler LRScheduler
		expected  string
	}{
		{NewPolyLRScheduler(0.1), "PolyLR"},
		{NewStepLRScheduler(10, 0.1), "StepLR"},
		{NewExponentialLRScheduler(0.95), "ExponentialLR"},
		{NewCosineAnnealingLRScheduler(100, 0.0), "CosineAnnealingLR"},
		{NewReduceLROnPlateauScheduler(0.1, 10, 0.001, "min"), "ReduceLROnPlateau"},
		{&NoOpScheduler{}, "ConstantLR"},
	}

	for _, tt := range tests {
		if name := tt.scheduler.GetName(); name != tt.expected {
			t.Errorf("Expected name %s, got %s", tt.expected, name)
		}
	}

	if _, err := SchedulerByName("nope", 0.1); err == nil {
		t.Error("Expected error for unknown scheduler")
	}
}
