package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// Batch is a group of decoded samples.
//
// Images - [B, C, H, W]
// Pairs - [B, C', H, W] paired images, nil if samples have no pairs
// Labels - [B, L] one-hot labels, nil if loader has no labels
//
type Batch struct {
	Images *tensor.Dense
	Pairs  *tensor.Dense
	Labels *tensor.Dense
}

// Size returns number of samples in batch.
func (b Batch) Size() int {
	if b.Images == nil {
		return 0
	}
	return b.Images.Shape()[0]
}

// Loader decodes samples into batches.
//
// Labels - optional one-hot rows aligned with Samples
// PairTransform - transform used for Sample.Pair, defaults to Transform
// Workers - number of concurrent decoders, defaults to 1
//
type Loader struct {
	Samples       []Sample
	Labels        [][]float64
	Transform     Transform
	PairTransform *Transform
	BatchSize     int
	Shuffle       bool
	DropLast      bool
	Workers       int
}

// Len returns number of batches per epoch.
func (l *Loader) Len() int {
	if l.BatchSize <= 0 {
		return 0
	}
	n := len(l.Samples) / l.BatchSize
	if !l.DropLast && len(l.Samples)%l.BatchSize != 0 {
		n++
	}
	return n
}

// Batches runs one epoch calling fn for every batch in order. Iteration stops
// on the first error from fn or on context cancellation.
func (l *Loader) Batches(ctx context.Context, rng *rand.Rand, fn func(Batch) error) error {
	if l.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", l.BatchSize)
	}
	if l.Labels != nil && len(l.Labels) != len(l.Samples) {
		return fmt.Errorf("%d labels for %d samples", len(l.Labels), len(l.Samples))
	}
	order := make([]int, len(l.Samples))
	for i := range order {
		order[i] = i
	}
	if l.Shuffle && rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	for start := 0; start < len(order); start += l.BatchSize {
		end := start + l.BatchSize
		if end > len(order) {
			if l.DropLast {
				break
			}
			end = len(order)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := l.load(ctx, rng, order[start:end])
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) load(ctx context.Context, rng *rand.Rand, idx []int) (Batch, error) {
	n := len(idx)
	dims := l.Transform.Dims()
	images := make([]float64, n*dims)

	pairT := l.Transform
	if l.PairTransform != nil {
		pairT = *l.PairTransform
	}
	withPairs := l.Samples[idx[0]].Pair != ""
	var pairs []float64
	if withPairs {
		pairs = make([]float64, n*pairT.Dims())
	}

	// flips are drawn up front so that results do not depend on scheduling
	flips := make([]bool, n)
	if l.Transform.HFlip && rng != nil {
		for i := range flips {
			flips[i] = rng.Intn(2) == 1
		}
	}

	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sampleIdx := range idx {
		i := i
		s := l.Samples[sampleIdx]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decode(s.Path)
			if err != nil {
				return err
			}
			copy(images[i*dims:], l.Transform.Apply(img, flips[i]))
			if withPairs {
				if s.Pair == "" {
					return fmt.Errorf("sample %s has no pair", s.Path)
				}
				pimg, err := decode(s.Pair)
				if err != nil {
					return err
				}
				pd := pairT.Dims()
				copy(pairs[i*pd:], pairT.Apply(pimg, flips[i] && pairT.HFlip))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, errors.Wrap(err, "loading batch")
	}

	size := l.Transform.Size
	batch := Batch{
		Images: tensor.New(tensor.WithShape(n, l.Transform.channels(), size, size), tensor.WithBacking(images)),
	}
	if withPairs {
		batch.Pairs = tensor.New(tensor.WithShape(n, pairT.channels(), pairT.Size, pairT.Size), tensor.WithBacking(pairs))
	}
	if l.Labels != nil {
		width := len(l.Labels[0])
		labels := make([]float64, 0, n*width)
		for _, sampleIdx := range idx {
			labels = append(labels, l.Labels[sampleIdx]...)
		}
		batch.Labels = tensor.New(tensor.WithShape(n, width), tensor.WithBacking(labels))
	}
	log.WithFields(log.Fields{"size": n, "workers": workers}).Debug("batch loaded")
	return batch, nil
}
