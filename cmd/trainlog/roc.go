package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsawler/go-trainlog/config"
	"github.com/tsawler/go-trainlog/training"
)

type rocOptions struct {
	plot  bool
	title string
}

func newROCCmd(a *app) *cobra.Command {
	o := &rocOptions{}

	cmd := &cobra.Command{
		Use:   "roc FILE",
		Short: "Print the AUC of pre-computed ROC curves",
		Long: "Read ROC curves from a YAML file and print the area under each one. " +
			"Points are integrated in file order. With --plot the curves are sent to the plotting sidecar.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runROC(cmd, a, o, args[0])
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&o.plot, "plot", false, "send the curves to the plotting sidecar")
	flags.StringVar(&o.title, "title", "", "plot title (defaults to the file's title)")
	return cmd
}

func runROC(cmd *cobra.Command, a *app, o *rocOptions, path string) error {
	file, err := config.LoadROCFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, curve := range file.Curves {
		auc, err := curve.AUC()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, training.ROCLabel(curve.Name, auc))
	}

	if !o.plot {
		return nil
	}

	title := o.title
	if title == "" {
		title = file.Title
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	plot, err := training.NewROCCurvePlot(title, file.Curves...)
	if err != nil {
		return err
	}

	resp, err := sendPlot(cmd.Context(), a.cfg, plot)
	if err != nil {
		return fmt.Errorf("failed to send ROC plot: %w", err)
	}
	a.logger.Info("roc plot sent",
		zap.String("title", plot.Title),
		zap.Int("curves", len(file.Curves)),
		zap.String("plot_id", resp.PlotID),
	)
	if resp.ViewURL != "" {
		fmt.Fprintf(out, "plot: %s\n", resp.ViewURL)
	}
	return nil
}

// sendPlot posts one plot to the configured sidecar, retrying transient failures
func sendPlot(ctx context.Context, cfg *config.Config, plot training.PlotData) (*training.PlottingResponse, error) {
	service := training.NewPlottingService(cfg.Plotting.PlottingServiceConfig)
	service.Enable()

	ctx, cancel := context.WithTimeout(ctx, cfg.PlottingTimeout())
	defer cancel()
	return service.SendPlotDataWithRetry(ctx, plot)
}
