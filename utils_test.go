package animegan

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOneHotEncode(t *testing.T) {
	encoded, vocab, err := OneHotEncode([]string{"blonde", "black", "blonde", "red"})
	require.NoError(t, err)
	require.Equal(t, []string{"black", "blonde", "red"}, vocab)
	require.Equal(t, [][]int{
		{0, 1, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}, encoded)
}

func TestSmoothedTargets(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	targets := SmoothedTargets(rng, 10000, 0.7, 0.3)
	require.Equal(t, []int{10000, 1}, []int(targets.Shape()))
	data := targets.Data().([]float64)
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	require.InDelta(t, 0.7, sum/float64(len(data)), 0.02)
}

func TestRandDenseShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	norm := NormRandDense(rng, 4, 8)
	require.Equal(t, []int{4, 8}, []int(norm.Shape()))
	uniform := UniformRandDense(rng, 3, 2)
	for _, v := range uniform.Data().([]float64) {
		require.True(t, v >= 0 && v < 1)
	}
	require.Equal(t, []float64{1, 1}, ConstTargets(2, 1).Data().([]float64))
}

func TestGradientPenaltyFromGrads(t *testing.T) {
	grads := [][]float64{{3, 4}, {0, 1}}
	gp1, err := GradientPenaltyFromGrads(grads, 1)
	require.NoError(t, err)
	// ((5-1)^2 + (1-1)^2) / 2
	require.InDelta(t, 8.0, gp1, 1e-12)

	gp0, err := GradientPenaltyFromGrads(grads, 0)
	require.NoError(t, err)
	require.InDelta(t, 13.0, gp0, 1e-12)

	_, err = GradientPenaltyFromGrads(grads, 0.5)
	require.Error(t, err)

	r1, err := R1FromGrads(grads)
	require.NoError(t, err)
	require.InDelta(t, 6.5, r1, 1e-12)
}

func TestInterpolate(t *testing.T) {
	out, err := Interpolate([]float64{1, 1}, []float64{-1, 3}, 0.25)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{-0.5, 2.5}, out, 1e-12)
	_, err = Interpolate([]float64{1}, []float64{1, 2}, 0.5)
	require.Error(t, err)
}

func TestDraganPerturb(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	real := []float64{-1, 0, 0.5, 1}
	require.Equal(t, real, DraganPerturb(rng, real, 2, 1))

	out := DraganPerturb(rng, real, 2, 0)
	require.Len(t, out, len(real))
	for i := range real {
		// shift is 0.5*std*beta with beta in [0, 1)
		require.GreaterOrEqual(t, out[i]-real[i], 0.0)
		require.Less(t, out[i]-real[i], 1.0)
	}
	require.NotEqual(t, real, out)
}
