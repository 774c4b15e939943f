package animegan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func matrixWithValues(g *gorgonia.ExprGraph, name string, rows, cols int, values ...float64) *gorgonia.Node {
	backing := append([]float64{}, values...)
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(rows, cols), gorgonia.WithName(name), gorgonia.WithValue(tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))))
}

func TestLayerType_String(t *testing.T) {
	require.Equal(t, "linear", LayerLinear.String())
	require.Equal(t, "upsample", LayerUpsample.String())
	require.Equal(t, "layer(42)", LayerType(42).String())
}

func TestNetworkFwd(t *testing.T) {
	g := gorgonia.NewGraph()
	w0 := matrixWithValues(g, "w0", 2, 2, 1, 0, 0, 1)
	w1 := matrixWithValues(g, "w1", 1, 2, 1, 1)
	net := &Network{
		Name: "test",
		Layers: []*Layer{
			{WeightNode: w0, Type: LayerLinear, Activation: Rectify},
			{WeightNode: w1, Type: LayerLinear, Activation: NoActivation},
		},
	}
	input := matrixWithValues(g, "input", 1, 2, 2, -3)
	require.NoError(t, net.Fwd(input, 1))
	require.Len(t, net.Learnables(), 2)

	var out gorgonia.Value
	gorgonia.Read(net.Out(), &out)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
	// relu([2, -3]) = [2, 0] => 2 + 0
	require.Equal(t, []float64{2}, out.(*tensor.Dense).Float64s())
}

func TestNetworkFwdErrors(t *testing.T) {
	g := gorgonia.NewGraph()
	input := matrixWithValues(g, "input", 1, 2, 1, 1)

	empty := &Network{Name: "empty"}
	require.Error(t, empty.Fwd(input, 1))

	noWeights := &Network{Layers: []*Layer{{Type: LayerLinear}}}
	require.Error(t, noWeights.Fwd(input, 1))

	nilLayer := &Network{Layers: []*Layer{nil}}
	require.Error(t, nilLayer.Fwd(input, 1))
}

func TestGANSyncDiscriminator(t *testing.T) {
	genGraph := gorgonia.NewGraph()
	disGraph := gorgonia.NewGraph()

	gw := matrixWithValues(genGraph, "gw", 2, 2, 1, 0, 0, 1)
	generator := Generator(&Layer{WeightNode: gw, Type: LayerLinear, Activation: Tanh})
	z := matrixWithValues(genGraph, "z", 1, 2, 0.1, 0.2)
	require.NoError(t, generator.Fwd(z, 1))

	dw := matrixWithValues(disGraph, "dw", 1, 2, 0.5, 0.5)
	discriminator := Discriminator(&Layer{WeightNode: dw, Type: LayerLinear, Activation: Sigmoid})

	definedGAN, err := NewGAN(genGraph, generator, discriminator)
	require.NoError(t, err)
	require.NoError(t, definedGAN.Fwd(1))
	require.Len(t, definedGAN.GeneratorLearnables(), 1)
	require.Len(t, definedGAN.Learnables(), 2)
	require.NotNil(t, definedGAN.Out())

	copied := definedGAN.Learnables()[1]
	require.Equal(t, "dw_gan", copied.Name())
	require.Equal(t, []float64{0.5, 0.5}, copied.Value().Data().([]float64))

	// Weights are copied by value: changing Discriminator must not affect the copy until sync
	dw.Value().Data().([]float64)[0] = 3
	require.Equal(t, []float64{0.5, 0.5}, copied.Value().Data().([]float64))

	require.NoError(t, definedGAN.SyncDiscriminator())
	require.Equal(t, []float64{3, 0.5}, copied.Value().Data().([]float64))
}

func TestGANFwdRequiresGenerator(t *testing.T) {
	genGraph := gorgonia.NewGraph()
	gw := matrixWithValues(genGraph, "gw", 2, 2, 1, 0, 0, 1)
	generator := Generator(&Layer{WeightNode: gw, Type: LayerLinear})
	dw := matrixWithValues(gorgonia.NewGraph(), "dw", 1, 2, 1, 1)
	definedGAN, err := NewGAN(genGraph, generator, Discriminator(&Layer{WeightNode: dw, Type: LayerLinear}))
	require.NoError(t, err)
	require.Error(t, definedGAN.Fwd(1))
}

func TestClipLearnables(t *testing.T) {
	g := gorgonia.NewGraph()
	w := matrixWithValues(g, "w", 1, 4, -0.5, -0.001, 0.002, 0.7)
	require.NoError(t, ClipLearnables(gorgonia.Nodes{w}, 0.01))
	require.Equal(t, []float64{-0.01, -0.001, 0.002, 0.01}, w.Value().Data().([]float64))
	require.Error(t, ClipLearnables(gorgonia.Nodes{w}, 0))
}

func TestCheckpointRoundTrip(t *testing.T) {
	g := gorgonia.NewGraph()
	w := matrixWithValues(g, "w", 2, 2, 1, 2, 3, 4)
	b := matrixWithValues(g, "b", 1, 2, 5, 6)
	path := filepath.Join(t.TempDir(), "ckpt", "generator.gob")
	require.NoError(t, SaveCheckpoint(path, gorgonia.Nodes{w, b}))

	w.Value().Data().([]float64)[0] = 100
	b.Value().Data().([]float64)[1] = 100
	require.NoError(t, LoadCheckpoint(path, gorgonia.Nodes{w, b}))
	require.Equal(t, []float64{1, 2, 3, 4}, w.Value().Data().([]float64))
	require.Equal(t, []float64{5, 6}, b.Value().Data().([]float64))

	other := matrixWithValues(g, "missing", 1, 1, 0)
	require.Error(t, LoadCheckpoint(path, gorgonia.Nodes{other}))
}

func TestPartString(t *testing.T) {
	g := gorgonia.NewGraph()
	w := matrixWithValues(g, "w", 3, 2, 1, 1, 1, 1, 1, 1)
	generator := Generator(
		&Layer{WeightNode: w, Type: LayerLinear, Activation: Tanh},
		&Layer{Type: LayerReshape, ReshapeDims: []int{1, 1, 1, 3}},
	)
	require.Equal(t, "generator: linear(3, 2) -> reshape", generator.String())
	require.Equal(t, "discriminator: flatten", Discriminator(&Layer{Type: LayerFlatten}).String())
}

func TestNetworkFwdUpsampleDropout(t *testing.T) {
	g := gorgonia.NewGraph()
	backing := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	input := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(2, 1, 2, 2), gorgonia.WithName("input"), gorgonia.WithValue(tensor.New(tensor.WithShape(2, 1, 2, 2), tensor.WithBacking(backing))))
	net := &Network{
		Name: "resample",
		Layers: []*Layer{
			{Type: LayerUpsample, Scale: 2},
			{Type: LayerDropout, Probability: 0.5},
			{Type: LayerFlatten},
		},
	}
	require.NoError(t, net.Fwd(input, 2))
	require.Empty(t, net.Learnables())
	upsampled := g.ByName("resample_0")
	require.Len(t, upsampled, 1)
	require.Equal(t, tensor.Shape{2, 1, 4, 4}, upsampled[0].Shape())
	require.Equal(t, tensor.Shape{2, 16}, net.Out().Shape())

	var out gorgonia.Value
	gorgonia.Read(net.Out(), &out)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
	require.Equal(t, tensor.Shape{2, 16}, out.Shape())
}
