package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/LdDl/animeface-gan/dataset"
	"github.com/LdDl/animeface-gan/store"
	"github.com/LdDl/animeface-gan/train"
)

// NewTrainCmd creates the train command.
func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a GAN on an anime face dataset",
		Long: `Train a generator/discriminator pair on images of a folder.

Settings come from (later wins): built-in defaults, the YAML config file,
ANIMEGAN_* environment variables (a .env file is loaded first) and flags.

Examples:
  # DCGAN-like run on 32x32 faces released since 2005
  animegan train --data-root ~/data/animefacedataset/images --min-year 2005

  # Conditional hinge GAN on release years
  animegan train --loss hinge --condition year --max-iters 20000`,
		Args: cobra.NoArgs,
		RunE: runTrainCmd,
	}

	cmd.Flags().StringP("config", "c", "", "YAML config file (default is the XDG config location)")
	cmd.Flags().String("dotenv", ".env", "dotenv file with ANIMEGAN_* overrides")
	cmd.Flags().String("name", "", "Run name")
	cmd.Flags().String("data-root", "", "Images directory")
	cmd.Flags().String("labels", "", "CSV file of \"path\",\"tag\" rows for i2v conditioning")
	cmd.Flags().String("condition", "", "Conditioning: year or i2v")
	cmd.Flags().Int("min-year", 0, "Drop images released before this year")
	cmd.Flags().Int("holdout", 0, "Number of images kept out of training, listed in holdout.txt of the run")
	cmd.Flags().Int("image-size", 0, "Image size")
	cmd.Flags().String("architecture", "", "Architecture: mlp or conv")
	cmd.Flags().String("loss", "", "Objective: gan, lsgan, wgan, hinge, mse or bce")
	cmd.Flags().Int("batch-size", 0, "Batch size")
	cmd.Flags().Int("epochs", 0, "Number of epochs")
	cmd.Flags().Int("max-iters", 0, "Number of batches, overrides epochs")
	cmd.Flags().Float64("lr", 0, "Learning rate")
	cmd.Flags().Bool("ttur", false, "Two time-scale update rule")
	cmd.Flags().String("penalty-center", "", "Monitor gradient norm penalty: zero or one")
	cmd.Flags().String("penalty-point", "", "Where the penalty is measured: real, interpolate or dragan")
	cmd.Flags().String("output", "", "Directory for samples and checkpoints")
	cmd.Flags().String("db-dir", "", "Directory of the run history database")
	cmd.Flags().Int64("seed", 0, "Random seed")

	return cmd
}

func runTrainCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := trainConfig(cmd)
	if err != nil {
		return err
	}
	samples, heldOut, labels, labelDim, err := trainSamples(cfg)
	if err != nil {
		return err
	}
	transform := dataset.DefaultTransform(cfg.ImageSize, cfg.HFlip)
	transform.Channels = cfg.Channels
	loader := &dataset.Loader{
		Samples:   samples,
		Labels:    labels,
		Transform: transform,
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		DropLast:  true,
		Workers:   cfg.Workers,
	}
	log.WithFields(log.Fields{"images": len(samples), "batches": loader.Len(), "labels": labelDim}).Info("dataset ready")

	st, err := store.Open(cfg.DBDir, store.DefaultOptions())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := st.CreateRun(ctx, cfg.Name, cfg)
	if err != nil {
		return err
	}
	cfg.OutputDir = filepath.Join(cfg.OutputDir, run.Slug)
	log.WithFields(log.Fields{"run": run.ID, "output": cfg.OutputDir}).Info("run created")
	if len(heldOut) > 0 {
		if err := writeHoldout(filepath.Join(cfg.OutputDir, "holdout.txt"), heldOut); err != nil {
			finishRun(st, run.ID, store.StatusFailed)
			return err
		}
		log.WithField("images", len(heldOut)).Info("held out of training")
	}

	trainer, err := train.NewTrainer(cfg, labelDim)
	if err != nil {
		finishRun(st, run.ID, store.StatusFailed)
		return err
	}
	defer trainer.Close()
	trainer.WithRecorder(st, run.ID)

	status, err := trainer.Run(ctx, loader)
	switch {
	case errors.Is(err, context.Canceled):
		finishRun(st, run.ID, store.StatusCancelled)
		if status != nil {
			log.WithField("batches", status.BatchesDone()).Warn("training interrupted")
		}
		if saveErr := trainer.SaveCheckpoints(filepath.Join(cfg.OutputDir, "checkpoints", "interrupted")); saveErr != nil {
			log.WithError(saveErr).Error("can't save checkpoints")
		}
		return nil
	case err != nil:
		finishRun(st, run.ID, store.StatusFailed)
		return err
	}
	finishRun(st, run.ID, store.StatusCompleted)
	log.WithField("status", status.String()).Info("done")
	return nil
}

// finishRun uses its own context so an interrupted run is still marked.
func finishRun(st *store.Store, runID, status string) {
	if err := st.FinishRun(context.Background(), runID, status); err != nil {
		log.WithError(err).WithField("run", runID).Error("can't finish run")
	}
}

func trainConfig(cmd *cobra.Command) (train.Config, error) {
	flags := cmd.Flags()
	dotenv, _ := flags.GetString("dotenv")
	if err := train.LoadDotenv(dotenv); err != nil {
		return train.Config{}, err
	}

	path, _ := flags.GetString("config")
	explicit := path != ""
	if !explicit {
		path = train.DefaultConfigPath()
	}
	cfg, err := train.LoadConfig(path)
	if err != nil && (explicit || !errors.Is(err, train.ErrConfigNotFound)) {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	strs := map[string]*string{
		"name":           &cfg.Name,
		"data-root":      &cfg.DataRoot,
		"labels":         &cfg.Labels,
		"condition":      &cfg.Condition,
		"architecture":   &cfg.Architecture,
		"loss":           &cfg.Loss,
		"output":         &cfg.OutputDir,
		"db-dir":         &cfg.DBDir,
		"penalty-center": &cfg.PenaltyCenter,
		"penalty-point":  &cfg.PenaltyPoint,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	ints := map[string]*int{
		"min-year":   &cfg.MinYear,
		"image-size": &cfg.ImageSize,
		"batch-size": &cfg.BatchSize,
		"epochs":     &cfg.Epochs,
		"max-iters":  &cfg.MaxIters,
		"holdout":    &cfg.Holdout,
	}
	for name, dst := range ints {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	if flags.Changed("lr") {
		cfg.LR, _ = flags.GetFloat64("lr")
	}
	if flags.Changed("ttur") {
		cfg.TTUR, _ = flags.GetBool("ttur")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}

	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// trainSamples lists training images, images held out of training and, for
// conditional runs, one-hot labels of the training images.
func trainSamples(cfg train.Config) ([]dataset.Sample, []dataset.Sample, [][]float64, int, error) {
	var samples []dataset.Sample
	var err error
	if cfg.Condition == train.ConditionI2V {
		samples, err = dataset.LoadLabels(cfg.Labels)
	} else {
		samples, err = dataset.ImageFolder(cfg.DataRoot, nil)
	}
	if err != nil {
		return nil, nil, nil, 0, err
	}
	if cfg.MinYear > 0 && cfg.Condition != train.ConditionI2V {
		if samples, err = dataset.FilterMinYear(samples, cfg.MinYear); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	var heldOut []dataset.Sample
	if cfg.Holdout > 0 {
		if samples, heldOut, err = dataset.RandomSplit(samples, cfg.Holdout, rand.New(rand.NewSource(cfg.Seed))); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	if cfg.Condition == train.ConditionNone {
		return samples, heldOut, nil, 0, nil
	}
	if cfg.Condition == train.ConditionYear {
		if err := dataset.YearLabels(samples); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	labels, vocab, err := dataset.OneHotLabels(samples)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	log.WithField("classes", len(vocab)).Debug("labels encoded")
	return samples, heldOut, labels, len(vocab), nil
}

// writeHoldout lists held out image paths, one per line.
func writeHoldout(path string, samples []dataset.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "Can't create run directory")
	}
	var b strings.Builder
	for _, s := range samples {
		b.WriteString(s.Path)
		b.WriteByte('\n')
	}
	return errors.Wrap(os.WriteFile(path, []byte(b.String()), 0o640), "Can't write holdout list")
}
