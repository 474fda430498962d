package optimizer

import "fmt"

var _ Optimizer = (*SGD)(nil)

// SGD holds the hyperparameters and parameter groups of a stochastic
// gradient descent optimizer. The update rule itself lives in the caller's
// training engine; this type only owns the rate bookkeeping.
type SGD struct {
	Momentum    float64
	WeightDecay float64
	Nesterov    bool

	groups    []*ParamGroup
	stepCount uint64
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// NewSGD creates an SGD optimizer with one parameter group per name.
// With no names a single "default" group is created.
func NewSGD(config SGDConfig, groupNames ...string) *SGD {
	if len(groupNames) == 0 {
		groupNames = []string{"default"}
	}

	groups := make([]*ParamGroup, len(groupNames))
	for i, name := range groupNames {
		groups[i] = &ParamGroup{
			Name:         name,
			LearningRate: config.LearningRate,
			WeightDecay:  config.WeightDecay,
		}
	}

	return &SGD{
		Momentum:    config.Momentum,
		WeightDecay: config.WeightDecay,
		Nesterov:    config.Nesterov,
		groups:      groups,
	}
}

func (sgd *SGD) ParamGroups() []*ParamGroup {
	return sgd.groups
}

// AddParamGroup appends a parameter group with its own learning rate
func (sgd *SGD) AddParamGroup(name string, lr float64) *ParamGroup {
	g := &ParamGroup{Name: name, LearningRate: lr, WeightDecay: sgd.WeightDecay}
	sgd.groups = append(sgd.groups, g)
	return g
}

// Step records one optimization step
func (sgd *SGD) Step() {
	sgd.stepCount++
}

func (sgd *SGD) GetStepCount() uint64 {
	return sgd.stepCount
}

func (sgd *SGD) UpdateLearningRate(lr float64) {
	SetLearningRate(sgd, lr)
}

func (sgd *SGD) GetState() (*State, error) {
	if len(sgd.groups) == 0 {
		return nil, ErrNoParamGroups
	}
	return &State{
		Type: "SGD",
		Parameters: map[string]interface{}{
			"momentum":     sgd.Momentum,
			"weight_decay": sgd.WeightDecay,
			"nesterov":     sgd.Nesterov,
		},
		Groups:    cloneGroups(sgd.groups),
		StepCount: sgd.stepCount,
	}, nil
}

func (sgd *SGD) LoadState(state *State) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}
	if len(state.Groups) == 0 {
		return fmt.Errorf("load SGD state: %w", ErrNoParamGroups)
	}

	if v, ok := state.Parameters["momentum"].(float64); ok {
		sgd.Momentum = v
	}
	if v, ok := state.Parameters["weight_decay"].(float64); ok {
		sgd.WeightDecay = v
	}
	if v, ok := state.Parameters["nesterov"].(bool); ok {
		sgd.Nesterov = v
	}
	sgd.groups = cloneGroups(state.Groups)
	sgd.stepCount = state.StepCount
	return nil
}
