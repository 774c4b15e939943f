// Package models is a registry of small generator/discriminator pairs that
// fit anime face training with gorgonia.
package models

import (
	"fmt"
	"sort"
	"strings"

	animegan "github.com/LdDl/animeface-gan"
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Spec describes data the networks are built for.
//
// LabelDim - width of one-hot condition, 0 for unconditional models
// Hidden - width multiplier of hidden layers
// Activation - hidden layers activation name, empty means "lrelu"
// SigmoidOutput - squash discriminator output into (0, 1) for mse/bce objectives
//
type Spec struct {
	ImageSize     int
	Channels      int
	LatentDim     int
	LabelDim      int
	Hidden        int
	Activation    string
	SigmoidOutput bool
}

// GeneratorInputDim returns width of generator input rows: latent vector joined with label.
func (s Spec) GeneratorInputDim() int {
	return s.LatentDim + s.LabelDim
}

// DiscriminatorChannels returns number of channels discriminator sees: image plus label planes.
func (s Spec) DiscriminatorChannels() int {
	return s.Channels + s.LabelDim
}

// Validate checks spec values.
func (s Spec) Validate() error {
	if s.ImageSize <= 0 {
		return fmt.Errorf("image size must be positive, got %d", s.ImageSize)
	}
	if s.Channels != 1 && s.Channels != 3 {
		return fmt.Errorf("channels must be 1 or 3, got %d", s.Channels)
	}
	if s.LatentDim <= 0 {
		return fmt.Errorf("latent dim must be positive, got %d", s.LatentDim)
	}
	if s.LabelDim < 0 {
		return fmt.Errorf("label dim must not be negative, got %d", s.LabelDim)
	}
	if s.Hidden <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", s.Hidden)
	}
	if _, ok := animegan.ActivationByName(s.Activation); s.Activation != "" && !ok {
		return fmt.Errorf("unknown activation '%s', available: %s", s.Activation, strings.Join(animegan.ActivationNames(), ", "))
	}
	return nil
}

// Pair is a generator defined on the GAN graph and a discriminator defined on its own graph.
type Pair struct {
	Generator     *animegan.GeneratorNet
	Discriminator *animegan.DiscriminatorNet
}

// Builder defines networks on provided graphs. batchSize is the generator's batch size.
type Builder func(gGraph, dGraph *gorgonia.ExprGraph, spec Spec, batchSize int) (*Pair, error)

var registry = map[string]Builder{
	"mlp":  buildMLP,
	"conv": buildConv,
}

// Names returns registered architectures sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build defines architecture by its name.
func Build(name string, gGraph, dGraph *gorgonia.ExprGraph, spec Spec, batchSize int) (*Pair, error) {
	builder, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("architecture '%s' is not registered, available: %s", name, strings.Join(Names(), ", "))
	}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad model spec")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return builder(gGraph, dGraph, spec, batchSize)
}

func matrix(g *gorgonia.ExprGraph, name string, rows, cols int) *gorgonia.Node {
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(rows, cols), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
}

func kernel(g *gorgonia.ExprGraph, name string, out, in, size int) *gorgonia.Node {
	return gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(tensor.Shape{out, in, size, size}...), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
}

func bias(g *gorgonia.ExprGraph, name string, cols int) *gorgonia.Node {
	return gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, cols), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.Zeroes()))
}

// hiddenActivation defaults to leaky ReLU with slope 0.2.
func hiddenActivation(spec Spec) (animegan.ActivationFunc, []animegan.Options) {
	name := spec.Activation
	if name == "" {
		name = "lrelu"
	}
	act, _ := animegan.ActivationByName(name)
	return act, []animegan.Options{{Alpha: 0.2}}
}

func outputActivation(spec Spec) animegan.ActivationFunc {
	if spec.SigmoidOutput {
		return animegan.Sigmoid
	}
	return animegan.NoActivation
}

// buildMLP
//
//	G: z(+label) => linear(hidden) lrelu => linear(2*hidden) lrelu => linear(C*H*W) tanh => reshape(B, C, H, W)
//	D: image(+label planes) => flatten => linear(2*hidden) lrelu => linear(hidden) lrelu => linear(1)
func buildMLP(gGraph, dGraph *gorgonia.ExprGraph, spec Spec, batchSize int) (*Pair, error) {
	pixels := spec.Channels * spec.ImageSize * spec.ImageSize
	h := spec.Hidden
	act, opts := hiddenActivation(spec)

	generator := animegan.Generator(
		&animegan.Layer{
			WeightNode: matrix(gGraph, "generator_w0", h, spec.GeneratorInputDim()),
			BiasNode:   bias(gGraph, "generator_b0", h),
			Type:       animegan.LayerLinear,
			Activation: act,
			Options:    opts,
		},
		&animegan.Layer{
			WeightNode: matrix(gGraph, "generator_w1", 2*h, h),
			BiasNode:   bias(gGraph, "generator_b1", 2*h),
			Type:       animegan.LayerLinear,
			Activation: act,
			Options:    opts,
		},
		&animegan.Layer{
			WeightNode: matrix(gGraph, "generator_w2", pixels, 2*h),
			BiasNode:   bias(gGraph, "generator_b2", pixels),
			Type:       animegan.LayerLinear,
			Activation: animegan.Tanh,
		},
		&animegan.Layer{
			Type:        animegan.LayerReshape,
			ReshapeDims: []int{batchSize, spec.Channels, spec.ImageSize, spec.ImageSize},
		},
	)

	dIn := spec.DiscriminatorChannels() * spec.ImageSize * spec.ImageSize
	discriminator := animegan.Discriminator(
		&animegan.Layer{
			Type: animegan.LayerFlatten,
		},
		&animegan.Layer{
			WeightNode: matrix(dGraph, "discriminator_w0", 2*h, dIn),
			BiasNode:   bias(dGraph, "discriminator_b0", 2*h),
			Type:       animegan.LayerLinear,
			Activation: act,
			Options:    opts,
		},
		&animegan.Layer{
			WeightNode: matrix(dGraph, "discriminator_w1", h, 2*h),
			BiasNode:   bias(dGraph, "discriminator_b1", h),
			Type:       animegan.LayerLinear,
			Activation: act,
			Options:    opts,
		},
		&animegan.Layer{
			WeightNode: matrix(dGraph, "discriminator_w2", 1, h),
			Type:       animegan.LayerLinear,
			Activation: outputActivation(spec),
		},
	)
	return &Pair{Generator: generator, Discriminator: discriminator}, nil
}

// buildConv DCGAN-like pair without normalization layers. Image size must be divisible by 4.
//
//	G: z(+label) => linear(hidden*S/4*S/4) lrelu => reshape(B, hidden, S/4, S/4)
//	   => upsample(2) => conv3x3(hidden/2) lrelu => upsample(2) => conv3x3(C) tanh
//	D: image(+label planes) => conv3x3(hidden/2) lrelu => maxpool(2) => conv3x3(hidden) lrelu => maxpool(2)
//	   => flatten => linear(1)
func buildConv(gGraph, dGraph *gorgonia.ExprGraph, spec Spec, batchSize int) (*Pair, error) {
	if spec.ImageSize%4 != 0 {
		return nil, fmt.Errorf("conv architecture needs image size divisible by 4, got %d", spec.ImageSize)
	}
	h := spec.Hidden
	half := h / 2
	if half < 1 {
		half = 1
	}
	base := spec.ImageSize / 4
	act, opts := hiddenActivation(spec)
	same := []int{1, 1}
	unit := []int{1, 1}

	generator := animegan.Generator(
		&animegan.Layer{
			WeightNode: matrix(gGraph, "generator_w0", h*base*base, spec.GeneratorInputDim()),
			BiasNode:   bias(gGraph, "generator_b0", h*base*base),
			Type:       animegan.LayerLinear,
			Activation: act,
			Options:    opts,
		},
		&animegan.Layer{
			Type:        animegan.LayerReshape,
			ReshapeDims: []int{batchSize, h, base, base},
		},
		&animegan.Layer{
			Type:  animegan.LayerUpsample,
			Scale: 2,
		},
		&animegan.Layer{
			WeightNode:   kernel(gGraph, "generator_w1", half, h, 3),
			Type:         animegan.LayerConvolutional,
			Activation:   act,
			Options:      opts,
			KernelHeight: 3,
			KernelWidth:  3,
			Padding:      same,
			Stride:       unit,
			Dilation:     unit,
		},
		&animegan.Layer{
			Type:  animegan.LayerUpsample,
			Scale: 2,
		},
		&animegan.Layer{
			WeightNode:   kernel(gGraph, "generator_w2", spec.Channels, half, 3),
			Type:         animegan.LayerConvolutional,
			Activation:   animegan.Tanh,
			KernelHeight: 3,
			KernelWidth:  3,
			Padding:      same,
			Stride:       unit,
			Dilation:     unit,
		},
	)

	discriminator := animegan.Discriminator(
		&animegan.Layer{
			WeightNode:   kernel(dGraph, "discriminator_w0", half, spec.DiscriminatorChannels(), 3),
			Type:         animegan.LayerConvolutional,
			Activation:   act,
			Options:      opts,
			KernelHeight: 3,
			KernelWidth:  3,
			Padding:      same,
			Stride:       unit,
			Dilation:     unit,
		},
		&animegan.Layer{
			Type:         animegan.LayerMaxpool,
			KernelHeight: 2,
			KernelWidth:  2,
			Padding:      []int{0, 0},
			Stride:       []int{2, 2},
		},
		&animegan.Layer{
			WeightNode:   kernel(dGraph, "discriminator_w1", h, half, 3),
			Type:         animegan.LayerConvolutional,
			Activation:   act,
			Options:      opts,
			KernelHeight: 3,
			KernelWidth:  3,
			Padding:      same,
			Stride:       unit,
			Dilation:     unit,
		},
		&animegan.Layer{
			Type:         animegan.LayerMaxpool,
			KernelHeight: 2,
			KernelWidth:  2,
			Padding:      []int{0, 0},
			Stride:       []int{2, 2},
		},
		&animegan.Layer{
			Type: animegan.LayerFlatten,
		},
		&animegan.Layer{
			WeightNode: matrix(dGraph, "discriminator_w2", 1, h*base*base),
			Type:       animegan.LayerLinear,
			Activation: outputActivation(spec),
		},
	)
	return &Pair{Generator: generator, Discriminator: discriminator}, nil
}
