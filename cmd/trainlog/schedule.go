package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-trainlog/optimizer"
	"github.com/tsawler/go-trainlog/training"
)

type scheduleOptions struct {
	scheduler string
	baseLR    float64
	maxEpoch  int
	interval  int
	power     float64
	epochs    int
}

func newScheduleCmd(a *app) *cobra.Command {
	o := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the learning rate of every epoch",
		Long: "Print the learning rate a schedule sets at every epoch. The poly schedule only " +
			"changes the rate on multiples of --interval and freezes it after --max-epoch.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.scheduler, "scheduler", "poly", "poly, step, exponential, cosine or constant")
	flags.Float64Var(&o.baseLR, "base-lr", 0.01, "initial learning rate")
	flags.IntVar(&o.maxEpoch, "max-epoch", 100, "epoch at which the poly rate reaches zero")
	flags.IntVar(&o.interval, "interval", 1, "epochs between poly decays")
	flags.Float64Var(&o.power, "power", 0.9, "poly decay power")
	flags.IntVar(&o.epochs, "epochs", 0, "last epoch to print (defaults to --max-epoch)")
	return cmd
}

func runSchedule(cmd *cobra.Command, o *scheduleOptions) error {
	out := cmd.OutOrStdout()
	last := o.epochs
	if last <= 0 {
		last = o.maxEpoch
	}

	opt := optimizer.NewSGD(optimizer.SGDConfig{LearningRate: o.baseLR})

	if o.scheduler != "poly" && o.scheduler != "PolyLR" {
		s, err := training.SchedulerByName(o.scheduler, o.baseLR)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s from %g\n", s.GetName(), o.baseLR)
		for epoch := 0; epoch <= last; epoch++ {
			lr := training.ApplySchedule(s, opt, epoch, o.baseLR)
			fmt.Fprintf(out, "epoch %4d  lr %.6f\n", epoch, lr)
		}
		return nil
	}

	s := &training.PolyLRScheduler{
		BaseLR:        o.baseLR,
		DecayInterval: o.interval,
		MaxEpoch:      o.maxEpoch,
		Power:         o.power,
	}
	fmt.Fprintf(out, "%s from %g, interval %d, max epoch %d, power %g\n", s.GetName(), o.baseLR, o.interval, o.maxEpoch, o.power)
	for epoch := 0; epoch <= last; epoch++ {
		_, applied, err := s.Step(opt, epoch)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		lr, err := optimizer.CurrentLearningRate(opt)
		if err != nil {
			return err
		}
		if applied {
			fmt.Fprintf(out, "epoch %4d  lr %.6f\n", epoch, lr)
		} else {
			fmt.Fprintf(out, "epoch %4d  lr %.6f (unchanged)\n", epoch, lr)
		}
	}
	return nil
}
