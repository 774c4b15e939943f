package animegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GAN Simple implementation of GAN.
//
// generatorPart - reference to Generator
// discriminatorPart - reference to Discriminator
// modifiedDiscriminator - copy of structure of Discriminator which learnables would be ignored during the training process
// condition - optional node joined to Generator's output along channel axis before it goes to the Discriminator copy
//
type GAN struct {
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	modifiedDiscriminator *DiscriminatorNet
	condition             *gorgonia.Node

	out           *gorgonia.Node
	learnables    gorgonia.Nodes
	learnablesGen gorgonia.Nodes
}

// NewGAN Creates GAN on the graph where Generator has been defined. Discriminator's weights are copied by value.
func NewGAN(g *gorgonia.ExprGraph, definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet) (*GAN, error) {
	copied, err := definedDiscriminator.private.cloneOn(g, "gan_discriminator", "_gan")
	if err != nil {
		return nil, errors.Wrap(err, "Can't copy Discriminator onto GAN's graph")
	}
	definedGAN := GAN{
		generatorPart:         definedGenerator,
		discriminatorPart:     definedDiscriminator,
		modifiedDiscriminator: &DiscriminatorNet{part{private: copied}},
		learnablesGen:         definedGenerator.Learnables(),
	}
	definedGAN.learnables = append(gorgonia.Nodes{}, definedGAN.learnablesGen...)
	definedGAN.learnables = append(definedGAN.learnables, copied.Learnables()...)
	return &definedGAN, nil
}

// WithCondition Sets node which is concatenated with Generator's output (axis 1) before Discriminator part. Must be called before Fwd.
func (net *GAN) WithCondition(condition *gorgonia.Node) *GAN {
	net.condition = condition
	return net
}

// Out Returns reference to output node
func (net *GAN) Out() *gorgonia.Node {
	return net.out
}

// GeneratorOut Returns reference to output node of generator part
func (net *GAN) GeneratorOut() *gorgonia.Node {
	return net.generatorPart.Out()
}

// Learnables Returns learnables nodes
func (net *GAN) Learnables() gorgonia.Nodes {
	return net.learnables
}

// GeneratorLearnables Returns learnables nodes of generator part
func (net *GAN) GeneratorLearnables() gorgonia.Nodes {
	return net.learnablesGen
}

// Fwd Initializates feedforward for provided input for disciminator part of GAN
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
// Note: input node is not needed since input for Discriminator is just Generator's output
//
func (net *GAN) Fwd(batchSize int) error {
	if net.generatorPart.Out() == nil {
		return fmt.Errorf("Generator part of GAN has not been fed forward")
	}
	input := net.generatorPart.Out()
	if net.condition != nil {
		joined, err := gorgonia.Concat(1, input, net.condition)
		if err != nil {
			return errors.Wrap(err, "Can't join condition to Generator's output [GAN]")
		}
		input = joined
	}
	if err := net.modifiedDiscriminator.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[GAN]")
	}
	net.out = net.modifiedDiscriminator.Out()
	return nil
}

// SyncDiscriminator Copies current values of trained Discriminator's learnables into Discriminator part of GAN.
// Copy is done in place, so tape machines bound to GAN's graph see new values on next run.
func (net *GAN) SyncDiscriminator() error {
	src := net.discriminatorPart.Learnables()
	dst := net.modifiedDiscriminator.Learnables()
	if len(src) != len(dst) {
		return fmt.Errorf("Discriminator has %d learnables, but GAN's copy has %d", len(src), len(dst))
	}
	for i := range src {
		if err := copyNodeValue(dst[i], src[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't sync learnable '%s'", src[i].Name()))
		}
	}
	return nil
}

func copyNodeValue(dst, src *gorgonia.Node) error {
	dv, ok := dst.Value().(*tensor.Dense)
	if !ok {
		return fmt.Errorf("destination '%s' does not hold *tensor.Dense", dst.Name())
	}
	sv, ok := src.Value().(*tensor.Dense)
	if !ok {
		return fmt.Errorf("source '%s' does not hold *tensor.Dense", src.Name())
	}
	return copyDense(dv, sv)
}

func copyDense(dv, sv *tensor.Dense) error {
	if !dv.Shape().Eq(sv.Shape()) {
		return fmt.Errorf("shapes mismatch: %v vs %v", dv.Shape(), sv.Shape())
	}
	switch data := dv.Data().(type) {
	case []float64:
		src, ok := sv.Data().([]float64)
		if !ok {
			return fmt.Errorf("dtypes mismatch: %v vs %v", dv.Dtype(), sv.Dtype())
		}
		copy(data, src)
	case []float32:
		src, ok := sv.Data().([]float32)
		if !ok {
			return fmt.Errorf("dtypes mismatch: %v vs %v", dv.Dtype(), sv.Dtype())
		}
		copy(data, src)
	default:
		return fmt.Errorf("dtype %v is not handled", dv.Dtype())
	}
	return nil
}

// ClipLearnables Clamps every element of provided learnables to [-c; c] in place. Used as WGAN weight clipping.
func ClipLearnables(nodes gorgonia.Nodes, c float64) error {
	if c <= 0 {
		return fmt.Errorf("clip value must be positive, but got %v", c)
	}
	for _, n := range nodes {
		dense, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("learnable '%s' does not hold *tensor.Dense", n.Name())
		}
		switch data := dense.Data().(type) {
		case []float64:
			for i := range data {
				data[i] = clamp(data[i], -c, c)
			}
		case []float32:
			for i := range data {
				data[i] = float32(clamp(float64(data[i]), -c, c))
			}
		default:
			return fmt.Errorf("dtype %v is not handled", dense.Dtype())
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
