package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsawler/go-trainlog/checkpoints"
	"github.com/tsawler/go-trainlog/config"
	"github.com/tsawler/go-trainlog/optimizer"
	"github.com/tsawler/go-trainlog/recorder"
	"github.com/tsawler/go-trainlog/tensor"
	"github.com/tsawler/go-trainlog/training"
	"github.com/tsawler/go-trainlog/vision/dataloader"
	"github.com/tsawler/go-trainlog/vision/dataset"
)

type demoOptions struct {
	model     string
	data      string
	epochs    int
	batches   int
	images    int
	imageSize int
	baseLR    float64
	seed      int64

	imagesFrom    string
	abnormalClass string
}

func newDemoCmd(a *app) *cobra.Command {
	o := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a synthetic GAN training loop through the recorder",
		Long: "Run a synthetic encoder-augmented GAN loop: decay the learning rate every epoch, " +
			"record the three losses every batch, log a batch of generated images at the start " +
			"of every epoch, save a checkpoint at the end of every epoch and score the run with a ROC curve.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if cmd.Flags().Changed("model") {
				cfg.Model = o.model
			}
			if cmd.Flags().Changed("data") {
				cfg.Data = o.data
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), &cfg, a.logger, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.model, "model", "", "model name (overrides the config)")
	flags.StringVar(&o.data, "data", "", "dataset name (overrides the config)")
	flags.IntVar(&o.epochs, "epochs", 3, "number of epochs")
	flags.IntVar(&o.batches, "batches", 10, "batches per epoch")
	flags.IntVar(&o.images, "images", 16, "images logged per epoch")
	flags.IntVar(&o.imageSize, "image-size", 16, "height and width of the generated images")
	flags.Float64Var(&o.baseLR, "base-lr", 0.0002, "initial learning rate")
	flags.Int64Var(&o.seed, "seed", 1, "random seed")
	flags.StringVar(&o.imagesFrom, "images-from", "", "log real images from an image folder (root/<class>/<image>) instead of generated ones")
	flags.StringVar(&o.abnormalClass, "abnormal-class", "", "class held out of the logged images and scored as abnormal")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, o *demoOptions) (err error) {
	if o.epochs < 1 || o.batches < 1 {
		return fmt.Errorf("epochs and batches must be at least 1")
	}

	s, err := cfg.NewSink(cfg.Comment(), logger)
	if err != nil {
		return err
	}
	serializer, err := cfg.Serializer()
	if err != nil {
		return err
	}

	opts := []recorder.Option{
		recorder.WithRootDir(cfg.Root),
		recorder.WithSink(s),
		recorder.WithSerializer(serializer),
		recorder.WithLogger(logger),
		recorder.WithOutput(out),
	}
	mirror, err := cfg.NewMirror(ctx)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
		opts = append(opts, recorder.WithCheckpointMirror(mirror))
	}

	rec, err := recorder.New(cfg.Model, cfg.Data, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rec.Close())
	}()

	var folder *dataset.ImageFolder
	var loader *dataloader.Loader
	if o.imagesFrom != "" {
		if folder, loader, err = openImages(o); err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(o.seed))
	opt := optimizer.NewSGD(optimizer.SGDConfig{LearningRate: o.baseLR, Momentum: 0.5}, "generator", "discriminator")
	scheduler := &training.PolyLRScheduler{
		BaseLR:        o.baseLR,
		DecayInterval: 1,
		MaxEpoch:      o.epochs,
		Power:         0.9,
	}

	session := training.NewTrainingSession(out, cfg.Model, o.epochs, o.batches)
	session.StartTraining()

	for epoch := 0; epoch < o.epochs; epoch++ {
		if _, _, err := scheduler.Step(opt, epoch); err != nil {
			return err
		}
		lr, err := optimizer.CurrentLearningRate(opt)
		if err != nil {
			return err
		}
		if err := rec.Record(ctx, lr, epoch, 0, o.batches, "lr"); err != nil {
			return err
		}

		session.StartEpoch(epoch + 1)
		var loss recorder.GANLoss
		for batch := 0; batch < o.batches; batch++ {
			loss = syntheticLoss(rng, epoch, batch, o.epochs, o.batches)
			losses := []struct {
				name  string
				value float64
			}{
				{"g_loss", loss.Generator},
				{"d_loss", loss.Discriminator},
				{"e_loss", loss.Encoder},
			}
			metrics := make(map[string]float64, len(losses))
			for _, l := range losses {
				if err := rec.Record(ctx, tensor.NewVariable(l.value), epoch, batch, o.batches, l.name); err != nil {
					return err
				}
				metrics[l.name] = l.value
			}
			opt.Step()
			session.UpdateProgress(batch+1, metrics)

			if batch == 0 && o.images > 0 {
				images, title, err := demoImages(rng, loader, o)
				if err != nil {
					return err
				}
				if err := rec.LogImages(ctx, images, images.Shape[0], epoch, batch, o.batches, recorder.ImageOptions{Title: title}); err != nil {
					return err
				}
			}
		}
		session.FinishEpoch()

		if err := recorder.DisplayStatus(out, epoch+1, o.epochs, o.batches, o.batches, loss); err != nil {
			return err
		}

		state, err := opt.GetState()
		if err != nil {
			return err
		}
		checkpoint := &checkpoints.Checkpoint{
			ModelName: cfg.Model,
			TrainingState: checkpoints.TrainingState{
				Epoch:        epoch,
				Step:         recorder.Step(epoch, o.batches-1, o.batches),
				LearningRate: lr,
				BestLoss:     loss.Generator,
				TotalSteps:   o.epochs * o.batches,
			},
			OptimizerState: state,
		}
		if _, err := rec.SaveCheckpoint(ctx, checkpoint, epoch, "netG"); err != nil {
			return err
		}
	}

	scores, labels := syntheticScores(rng, 200)
	if folder != nil && o.abnormalClass != "" {
		if labels, err = folder.AnomalyLabels(o.abnormalClass); err != nil {
			return err
		}
		scores = scoreLabels(rng, labels)
	}
	curve, err := training.ROCCurveFromScores(scores, labels)
	if err != nil {
		return err
	}
	auc, err := curve.AUC()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, training.ROCLabel(cfg.Model, auc))

	if loader != nil {
		logger.Debug("image loader", zap.String("cache", loader.Stats().String()))
	}

	if !cfg.Plotting.Enabled {
		return nil
	}
	plot, err := training.NewROCCurvePlot(cfg.Data, training.NamedROC{Name: cfg.Model, ROCSeries: curve})
	if err != nil {
		return err
	}
	resp, err := sendPlot(ctx, cfg, plot)
	if err != nil {
		return fmt.Errorf("failed to send ROC plot: %w", err)
	}
	logger.Info("roc plot sent", zap.String("plot_id", resp.PlotID), zap.String("view_url", resp.ViewURL))
	return nil
}

// openImages scans the image folder and builds a shuffling loader over its
// normal samples
func openImages(o *demoOptions) (*dataset.ImageFolder, *dataloader.Loader, error) {
	folder, err := dataset.NewImageFolder(o.imagesFrom)
	if err != nil {
		return nil, nil, err
	}
	normal := folder
	if o.abnormalClass != "" {
		if normal, err = folder.Without(o.abnormalClass); err != nil {
			return nil, nil, err
		}
		if normal.Len() == 0 {
			return nil, nil, fmt.Errorf("%w: only class %s in %s", dataset.ErrNoImages, o.abnormalClass, o.imagesFrom)
		}
	}

	loader, err := dataloader.New(normal, dataloader.Config{
		BatchSize: o.images,
		ImageSize: o.imageSize,
		Workers:   4,
		CacheSize: 4 * o.images,
		Shuffle:   true,
		Seed:      o.seed,
	})
	if err != nil {
		return nil, nil, err
	}
	return folder, loader, nil
}

// demoImages returns the batch logged at the start of an epoch: a fresh
// shuffle of real samples when a loader is set, generated images otherwise
func demoImages(rng *rand.Rand, loader *dataloader.Loader, o *demoOptions) (*tensor.Tensor, string, error) {
	if loader == nil {
		images, err := syntheticImages(rng, o.images, o.imageSize)
		return images, "fake samples", err
	}
	loader.Reset()
	images, _, err := loader.Batch(0)
	return images, "real samples", err
}

// syntheticLoss decays from about 2 towards 0.1 over the run with a little noise
func syntheticLoss(rng *rand.Rand, epoch, batch, epochs, batches int) recorder.GANLoss {
	progress := float64(recorder.Step(epoch, batch, batches)) / float64(epochs*batches)
	base := 0.1 + 1.9*math.Exp(-3*progress)
	noise := func(scale float64) float64 {
		return (rng.Float64() - 0.5) * scale
	}
	return recorder.GANLoss{
		Generator:     base + noise(0.1),
		Discriminator: 0.7 + 0.3*math.Exp(-2*progress) + noise(0.05),
		Encoder:       base/2 + noise(0.05),
	}
}

// syntheticImages returns n gradient images with noise in NCHW order
func syntheticImages(rng *rand.Rand, n, size int) (*tensor.Tensor, error) {
	batch, err := tensor.Zeros([]int{n, 3, size, size})
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					v := float32(x+y+c*size)/float32(4*size) + rng.Float32()*0.25
					batch.Set(v, i, c, y, x)
				}
			}
		}
	}
	return batch, nil
}

// syntheticScores returns anomaly scores where abnormal samples (label 1)
// tend to score higher than normal ones
func syntheticScores(rng *rand.Rand, n int) ([]float64, []int) {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i % 2
	}
	return scoreLabels(rng, labels), labels
}

func scoreLabels(rng *rand.Rand, labels []int) []float64 {
	scores := make([]float64, len(labels))
	for i, label := range labels {
		scores[i] = rng.NormFloat64()*0.2 + 0.4 + 0.3*float64(label)
	}
	return scores
}
