package animegan

import (
	"fmt"
	"math/rand"
	"sort"

	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense filled with normally distributed float64 values
//
// rng - source of randomness. If nil then global math/rand source is used
// batchSize - Simply batch size
// n - Number of elements in each batch
// Resulting dense will have batchSize*n elements
//
func NormRandDense(rng *rand.Rand, batchSize, n int) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		data[i] = normFloat64(rng)
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// UniformRandDense Return reference to tensor.Dense filled with pseudo-random float64 values in range [0.0,1.0)
//
// rng - source of randomness. If nil then global math/rand source is used
// batchSize - Simply batch size
// n - Number of elements in each batch
// Resulting dense will have batchSize*n elements
//
func UniformRandDense(rng *rand.Rand, batchSize, n int) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		if rng != nil {
			data[i] = rng.Float64()
		} else {
			data[i] = rand.Float64()
		}
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// SmoothedTargets Returns [n, 1] targets spread*N(0,1)+center. Used for label smoothing of discriminator targets:
// center = 0.7, spread = 0.3 for real samples and center = 0, spread = 0.3 for generated ones
func SmoothedTargets(rng *rand.Rand, n int, center, spread float64) *tensor.Dense {
	data := make([]float64, n)
	for i := range data {
		data[i] = spread*normFloat64(rng) + center
	}
	return tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(data))
}

// ConstTargets Returns [n, 1] targets filled with v
func ConstTargets(n int, v float64) *tensor.Dense {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(data))
}

func normFloat64(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.NormFloat64()
	}
	return rand.NormFloat64()
}

// OneHotEncode Encodes labels as one-hot rows. Columns follow sorted order of unique labels, which is returned as vocabulary.
func OneHotEncode(sl []string) ([][]int, []string, error) {
	result := make([][]int, 0, len(sl))
	unique := make(map[string]int)
	for _, s := range sl {
		unique[s] = 0
	}
	uniqueSlice := make([]string, 0, len(unique))
	for k := range unique {
		uniqueSlice = append(uniqueSlice, k)
	}
	sort.Strings(uniqueSlice)
	for i, k := range uniqueSlice {
		unique[k] = i
	}
	maxIdx := len(uniqueSlice)
	for i := range sl {
		oneHotEncodedResult := make([]int, maxIdx)
		oneHotIdx, ok := unique[sl[i]]
		if !ok {
			return nil, nil, fmt.Errorf("Index went to -1. This should not happen at all")
		}
		oneHotEncodedResult[oneHotIdx] = 1
		result = append(result, oneHotEncodedResult)
	}
	return result, uniqueSlice, nil
}

// SlicerOneStep Just iterator with step size = 1
type SlicerOneStep struct {
	StartIdx, EndIdx int
}

func (s SlicerOneStep) Start() int { return s.StartIdx }
func (s SlicerOneStep) End() int   { return s.EndIdx }
func (s SlicerOneStep) Step() int  { return 1 }
