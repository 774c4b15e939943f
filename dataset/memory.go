package dataset

import (
	"context"
	"fmt"
	"math/rand"

	animegan "github.com/LdDl/animeface-gan"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// MemorySource serves batches from tensors already in memory.
//
// Images - [N, ...] samples along the first axis
// Labels - optional [N, L]
//
type MemorySource struct {
	Images    *tensor.Dense
	Labels    *tensor.Dense
	BatchSize int
	Shuffle   bool
}

// Len returns number of full batches. Remainder is dropped.
func (m *MemorySource) Len() int {
	if m.BatchSize <= 0 || m.Images == nil {
		return 0
	}
	return m.Images.Shape()[0] / m.BatchSize
}

// Batches calls fn for every full batch.
func (m *MemorySource) Batches(ctx context.Context, rng *rand.Rand, fn func(Batch) error) error {
	if m.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", m.BatchSize)
	}
	images := m.Images
	labels := m.Labels
	if m.Shuffle && rng != nil {
		perm := rng.Perm(images.Shape()[0])
		var err error
		if images, err = permuteRows(images, perm); err != nil {
			return err
		}
		if labels != nil {
			if labels, err = permuteRows(labels, perm); err != nil {
				return err
			}
		}
	}
	for b := 0; b < m.Len(); b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := animegan.SlicerOneStep{StartIdx: b * m.BatchSize, EndIdx: (b + 1) * m.BatchSize}
		batch := Batch{}
		var err error
		if batch.Images, err = rows(images, s); err != nil {
			return errors.Wrap(err, "Can't slice images")
		}
		if labels != nil {
			if batch.Labels, err = rows(labels, s); err != nil {
				return errors.Wrap(err, "Can't slice labels")
			}
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func permuteRows(t *tensor.Dense, perm []int) (*tensor.Dense, error) {
	if t.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("expected float64 tensor, got %v", t.Dtype())
	}
	data := t.Float64s()
	row := len(data) / t.Shape()[0]
	out := make([]float64, len(data))
	for i, p := range perm {
		copy(out[i*row:(i+1)*row], data[p*row:(p+1)*row])
	}
	return tensor.New(tensor.WithShape(t.Shape().Clone()...), tensor.WithBacking(out)), nil
}

// rows copies rows [s.Start(), s.End()) keeping the batch axis even for a single row.
func rows(t *tensor.Dense, s animegan.SlicerOneStep) (*tensor.Dense, error) {
	if t.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("expected float64 tensor, got %v", t.Dtype())
	}
	data := t.Float64s()
	if s.Start() < 0 || s.End() > t.Shape()[0] || s.Start() >= s.End() {
		return nil, fmt.Errorf("rows [%d, %d) out of range for %v", s.Start(), s.End(), t.Shape())
	}
	width := len(data) / t.Shape()[0]
	backing := make([]float64, (s.End()-s.Start())*width)
	copy(backing, data[s.Start()*width:s.End()*width])
	shape := append([]int{s.End() - s.Start()}, t.Shape()[1:]...)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
}
