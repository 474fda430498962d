package optimizer

import (
	"errors"
	"fmt"
)

// ErrNoParamGroups is returned when an optimizer tracks no parameter groups
var ErrNoParamGroups = errors.New("optimizer has no parameter groups")

// ParamGroup is a set of parameters sharing one learning rate
type ParamGroup struct {
	Name         string  `json:"name"`
	LearningRate float64 `json:"lr"`
	WeightDecay  float64 `json:"weight_decay,omitempty"`
}

// ParamGroupProvider exposes the parameter groups of an optimizer.
// The returned pointers are owned by the optimizer; callers may mutate
// LearningRate in place.
type ParamGroupProvider interface {
	ParamGroups() []*ParamGroup
}

// Optimizer defines the common interface for optimizers whose learning rate
// can be driven by a scheduler
type Optimizer interface {
	ParamGroupProvider

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate sets the learning rate on every parameter group
	UpdateLearningRate(lr float64)

	// GetState extracts optimizer state for checkpointing
	GetState() (*State, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *State) error
}

// State represents the serializable state of an optimizer
type State struct {
	Type       string                 `json:"type"`       // "SGD", "Adam", etc.
	Parameters map[string]interface{} `json:"parameters"` // Hyperparameters
	Groups     []*ParamGroup          `json:"param_groups"`
	StepCount  uint64                 `json:"step_count"`
}

// ParamGroups lets a restored State be driven by a scheduler directly
func (s *State) ParamGroups() []*ParamGroup {
	return s.Groups
}

// CurrentLearningRate returns the learning rate of the first parameter group
func CurrentLearningRate(p ParamGroupProvider) (float64, error) {
	groups := p.ParamGroups()
	if len(groups) == 0 || groups[0] == nil {
		return 0, ErrNoParamGroups
	}
	return groups[0].LearningRate, nil
}

// SetLearningRate writes lr into every parameter group of p
func SetLearningRate(p ParamGroupProvider, lr float64) {
	for _, group := range p.ParamGroups() {
		if group != nil {
			group.LearningRate = lr
		}
	}
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *State) error {
	if state == nil {
		return fmt.Errorf("nil optimizer state")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

// cloneGroups copies parameter groups so state snapshots do not alias live groups
func cloneGroups(groups []*ParamGroup) []*ParamGroup {
	out := make([]*ParamGroup, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		c := *g
		out = append(out, &c)
	}
	return out
}
