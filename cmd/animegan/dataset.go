package main

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/LdDl/animeface-gan/dataset"
	"github.com/LdDl/animeface-gan/imageutil"
	"github.com/LdDl/animeface-gan/train"
)

var errPreviewLoaded = errors.New("preview batch loaded")

// NewDatasetCmd creates the dataset command group.
func NewDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect anime face datasets",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count images per release year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			minYear, _ := cmd.Flags().GetInt("min-year")
			samples, err := dataset.ImageFolder(root, nil)
			if err != nil {
				return err
			}
			total := len(samples)
			if minYear > 0 {
				if samples, err = dataset.FilterMinYear(samples, minYear); err != nil {
					return err
				}
			}
			counts, err := dataset.CountByYear(samples)
			if err != nil {
				return err
			}
			years := make([]int, 0, len(counts))
			for y := range counts {
				years = append(years, y)
			}
			sort.Ints(years)
			out := cmd.OutOrStdout()
			for _, y := range years {
				fmt.Fprintf(out, "%d\t%d\n", y, counts[y])
			}
			fmt.Fprintf(out, "%d of %d images kept\n", len(samples), total)
			return nil
		},
	}
	stats.Flags().String("root", train.DefaultConfig().DataRoot, "Images directory")
	stats.Flags().Int("min-year", 0, "Drop images released before this year")

	pyramid := &cobra.Command{
		Use:   "pyramid",
		Short: "Print image sizes of a multi-scale pyramid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxSize, _ := cmd.Flags().GetInt("max")
			minSize, _ := cmd.Flags().GetInt("min")
			factor, _ := cmd.Flags().GetFloat64("factor")
			path, _ := cmd.Flags().GetString("image")
			testScales, _ := cmd.Flags().GetInt("test-scales")
			widthScale, _ := cmd.Flags().GetFloat64("width-scale")
			sizes, err := dataset.PyramidSizes(maxSize, minSize, factor)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				for i, s := range sizes {
					fmt.Fprintf(out, "scale %d: %dx%d\n", i, s, s)
				}
			} else {
				scales, err := dataset.LoadPyramid(path, sizes)
				if err != nil {
					return err
				}
				for i, s := range scales {
					fmt.Fprintf(out, "scale %d: %dx%d\n", i, s.Height, s.Width)
				}
			}
			for i, hw := range dataset.TestSizes(maxSize, testScales, factor, widthScale) {
				fmt.Fprintf(out, "test scale %d: %dx%d\n", i, hw[0], hw[1])
			}
			return nil
		},
	}
	pyramid.Flags().Int("max", 250, "Largest image size")
	pyramid.Flags().Int("min", 25, "Smallest image size")
	pyramid.Flags().Float64("factor", 0.75, "Scale factor between levels")
	pyramid.Flags().String("image", "", "Resize this image to every level, the shorter side matches the level size")
	pyramid.Flags().Int("test-scales", 0, "Number of generation scales to print")
	pyramid.Flags().Float64("width-scale", 1, "Width stretch of generation scales")

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Save a grid of transformed images, optionally next to their XDoG line art",
		Args:  cobra.NoArgs,
		RunE:  runDatasetPreview,
	}
	preview.Flags().String("root", train.DefaultConfig().DataRoot, "Images directory")
	preview.Flags().Int("size", 64, "Image size")
	preview.Flags().Int("count", 16, "Number of images")
	preview.Flags().Bool("pairs", false, "Put line art of the sibling \"xdog\" directory before every image")
	preview.Flags().StringP("output", "o", "preview.png", "Output image (.png or .jpg)")
	preview.Flags().Int64("seed", 1337, "Random seed")

	cmd.AddCommand(stats, pyramid, preview)
	return cmd
}

func runDatasetPreview(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	root, _ := flags.GetString("root")
	size, _ := flags.GetInt("size")
	count, _ := flags.GetInt("count")
	pairs, _ := flags.GetBool("pairs")
	output, _ := flags.GetString("output")
	seed, _ := flags.GetInt64("seed")
	if size <= 0 {
		return fmt.Errorf("size must be positive, got %d", size)
	}

	samples, err := dataset.ImageFolder(root, nil)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no images under %s", root)
	}
	if count <= 0 || count > len(samples) {
		count = len(samples)
	}
	loader := &dataset.Loader{
		Samples:   samples,
		Transform: dataset.DefaultTransform(size, false),
		BatchSize: count,
		Shuffle:   true,
		DropLast:  true,
	}
	if pairs {
		loader.Samples = dataset.XDoGPairs(samples)
		lineArt := dataset.Transform{Size: size, Channels: 1, Mean: 0.5, Std: 0.5}
		loader.PairTransform = &lineArt
	}
	var batch dataset.Batch
	err = loader.Batches(cmd.Context(), rand.New(rand.NewSource(seed)), func(b dataset.Batch) error {
		batch = b
		return errPreviewLoaded
	})
	if err != nil && !errors.Is(err, errPreviewLoaded) {
		return err
	}

	images, err := imageutil.TensorToImages(batch.Images, -1, 1)
	if err != nil {
		return err
	}
	nrow := int(math.Ceil(math.Sqrt(float64(count))))
	if batch.Pairs != nil {
		lines, err := imageutil.TensorToImages(batch.Pairs, -1, 1)
		if err != nil {
			return err
		}
		images = imageutil.Interleave(count, lines, images)
		nrow *= 2
	}
	if err := imageutil.SaveImages(output, images, nrow); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d images saved to %s\n", len(images), output)
	return nil
}
