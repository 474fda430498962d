package training

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsawler/go-trainlog/optimizer"
)

var (
	// ErrInvalidDecayInterval is returned when the decay interval is not positive
	ErrInvalidDecayInterval = errors.New("decay interval must be positive")

	// ErrNumericDomain is returned when the decay formula leaves the real domain
	ErrNumericDomain = errors.New("learning rate outside numeric domain")
)

// LRScheduler defines the interface for learning rate scheduling strategies
// All schedulers are pure functions of epoch/step and the base rate
type LRScheduler interface {
	// GetLR returns the learning rate for the current epoch/step
	// This is a pure function - no state modifications
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// PolyDecay computes a polynomially decayed learning rate:
//
//	lr = baseLR * (1 - epoch/maxEpoch) ** power
//
// The rate only changes on epochs that are a multiple of decayInterval and
// never beyond maxEpoch. When no decay applies, applied is false and lr is
// zero; callers keep whatever rate they already have.
func PolyDecay(baseLR float64, epoch, decayInterval, maxEpoch int, power float64) (lr float64, applied bool, err error) {
	if decayInterval <= 0 {
		return 0, false, fmt.Errorf("%w: got %d", ErrInvalidDecayInterval, decayInterval)
	}
	if epoch%decayInterval != 0 || epoch > maxEpoch {
		return 0, false, nil
	}

	base := 1 - float64(epoch)/float64(maxEpoch)
	lr = baseLR * math.Pow(base, power)
	if math.IsNaN(lr) || math.IsInf(lr, 0) {
		return 0, false, fmt.Errorf("%w: (1 - %d/%d) ** %g", ErrNumericDomain, epoch, maxEpoch, power)
	}
	return lr, true, nil
}

// PolyLRScheduler decays the learning rate polynomially towards zero at MaxEpoch
type PolyLRScheduler struct {
	BaseLR        float64 // Initial learning rate
	DecayInterval int     // Epochs between decays
	MaxEpoch      int     // Epoch at which the rate reaches zero
	Power         float64 // Polynomial power
}

// NewPolyLRScheduler creates a polynomial scheduler with the usual defaults:
// decay every epoch, 100 epochs, power 0.9
func NewPolyLRScheduler(baseLR float64) *PolyLRScheduler {
	return &PolyLRScheduler{
		BaseLR:        baseLR,
		DecayInterval: 1,
		MaxEpoch:      100,
		Power:         0.9,
	}
}

// Step applies the decayed rate for epoch to every parameter group of opt.
// When the epoch is not a decay epoch the groups are left untouched and
// applied is false.
func (s *PolyLRScheduler) Step(opt optimizer.ParamGroupProvider, epoch int) (lr float64, applied bool, err error) {
	lr, applied, err = PolyDecay(s.BaseLR, epoch, s.DecayInterval, s.MaxEpoch, s.Power)
	if err != nil || !applied {
		return lr, applied, err
	}
	optimizer.SetLearningRate(opt, lr)
	return lr, true, nil
}

// GetLR returns the rate in effect at epoch: the value computed at the most
// recent decay epoch, frozen once MaxEpoch has passed.
func (s *PolyLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	interval := s.DecayInterval
	if interval <= 0 {
		interval = 1
	}
	if epoch > s.MaxEpoch {
		epoch = s.MaxEpoch
	}
	if epoch < 0 {
		return baseLR
	}
	last := (epoch / interval) * interval

	lr, applied, err := PolyDecay(baseLR, last, interval, s.MaxEpoch, s.Power)
	if err != nil || !applied {
		return baseLR
	}
	return lr
}

func (s *PolyLRScheduler) GetName() string {
	return "PolyLR"
}

// ApplySchedule pushes the rate of any scheduler into the parameter groups of opt
func ApplySchedule(s LRScheduler, opt optimizer.ParamGroupProvider, epoch int, baseLR float64) float64 {
	lr := s.GetLR(epoch, 0, baseLR)
	optimizer.SetLearningRate(opt, lr)
	return lr
}

// StepLRScheduler reduces learning rate by a factor every stepSize epochs
type StepLRScheduler struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler decays learning rate exponentially
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per epoch
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler implements cosine annealing schedule
type CosineAnnealingLRScheduler struct {
	TMax   int     // Maximum number of epochs
	EtaMin float64 // Minimum learning rate
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// ReduceLROnPlateauScheduler reduces LR when a metric has stopped improving.
// Unlike the other schedulers it keeps state between calls.
type ReduceLROnPlateauScheduler struct {
	Factor    float64 // Factor by which the learning rate will be reduced
	Patience  int     // Epochs with no improvement before reducing
	Threshold float64 // Minimum change that counts as improvement
	Mode      string  // "min" or "max"

	bestMetric  float64
	badEpochs   int
	currentLR   float64
	initialized bool
}

// NewReduceLROnPlateauScheduler creates a plateau-based scheduler
func NewReduceLROnPlateauScheduler(factor float64, patience int, threshold float64, mode string) *ReduceLROnPlateauScheduler {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	if mode != "min" && mode != "max" {
		mode = "min"
	}

	return &ReduceLROnPlateauScheduler{
		Factor:    factor,
		Patience:  patience,
		Threshold: threshold,
		Mode:      mode,
	}
}

// Step feeds the epoch's validation metric and returns the resulting rate
func (s *ReduceLROnPlateauScheduler) Step(metric float64, currentLR float64) float64 {
	if !s.initialized {
		s.bestMetric = metric
		s.currentLR = currentLR
		s.initialized = true
		return currentLR
	}

	var improved bool
	if s.Mode == "min" {
		improved = metric < s.bestMetric-s.Threshold
	} else {
		improved = metric > s.bestMetric+s.Threshold
	}

	if improved {
		s.bestMetric = metric
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs >= s.Patience {
			s.currentLR *= s.Factor
			s.badEpochs = 0
		}
	}

	return s.currentLR
}

func (s *ReduceLROnPlateauScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	if s.initialized {
		return s.currentLR
	}
	return baseLR
}

func (s *ReduceLROnPlateauScheduler) GetName() string {
	return "ReduceLROnPlateau"
}

// NoOpScheduler maintains constant learning rate
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}

// SchedulerByName returns a scheduler with default settings for the CLI
func SchedulerByName(name string, baseLR float64) (LRScheduler, error) {
	switch name {
	case "poly", "PolyLR":
		return NewPolyLRScheduler(baseLR), nil
	case "step", "StepLR":
		return NewStepLRScheduler(30, 0.1), nil
	case "exponential", "ExponentialLR":
		return NewExponentialLRScheduler(0.95), nil
	case "cosine", "CosineAnnealingLR":
		return NewCosineAnnealingLRScheduler(100, 0), nil
	case "constant", "ConstantLR":
		return &NoOpScheduler{}, nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", name)
	}
}
