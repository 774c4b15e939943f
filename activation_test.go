package animegan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestActivationByName(t *testing.T) {
	for _, name := range []string{"none", "Tanh", "sigmoid", "relu", "LRELU", "softplus"} {
		f, ok := ActivationByName(name)
		require.True(t, ok, name)
		require.NotNil(t, f, name)
	}
	_, ok := ActivationByName("swish")
	require.False(t, ok)
	require.Equal(t, []string{"lrelu", "none", "relu", "sigmoid", "softplus", "tanh"}, ActivationNames())
}

func TestLeakyRelu(t *testing.T) {
	g := gorgonia.NewGraph()
	x := matrixWithValues(g, "x", 1, 2, -1, 2)
	def, err := LeakyRelu(x)
	require.NoError(t, err)
	custom, err := LeakyRelu(x, Options{}, Options{Alpha: 0.5})
	require.NoError(t, err)

	var defOut, customOut gorgonia.Value
	gorgonia.Read(def, &defOut)
	gorgonia.Read(custom, &customOut)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
	require.InDeltaSlice(t, []float64{-0.2, 2}, defOut.(*tensor.Dense).Float64s(), 1e-12)
	require.InDeltaSlice(t, []float64{-0.5, 2}, customOut.(*tensor.Dense).Float64s(), 1e-12)
}
