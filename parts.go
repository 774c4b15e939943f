package animegan

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// part Shared body of GAN's halves: a named network with its output
type part struct {
	private *Network
}

func newPart(name string, layers []*Layer) part {
	return part{private: &Network{Name: name, Layers: layers}}
}

// Out Returns reference to output node
func (p part) Out() *gorgonia.Node {
	return p.private.out
}

// Learnables Returns learnables nodes
func (p part) Learnables() gorgonia.Nodes {
	return p.private.Learnables()
}

// Layers Returns layers in feedforward order
func (p part) Layers() []*Layer {
	return p.private.Layers
}

// String Short description of layers, e.g. "generator: linear(leakyrelu) -> reshape"
func (p part) String() string {
	steps := make([]string, 0, len(p.private.Layers))
	for _, l := range p.private.Layers {
		if l == nil {
			steps = append(steps, "nil")
			continue
		}
		step := l.Type.String()
		if l.WeightNode != nil {
			step = fmt.Sprintf("%s%v", step, l.WeightNode.Shape())
		}
		steps = append(steps, step)
	}
	return p.private.Name + ": " + strings.Join(steps, " -> ")
}

func (p part) fwd(input *gorgonia.Node, batchSize int, tag string) error {
	if err := p.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "["+tag+"]")
	}
	return nil
}

// GeneratorNet Maps latent vectors (optionally joined with one-hot condition) to images
type GeneratorNet struct {
	part
}

// Generator Constructor for GeneratorNet
func Generator(layers ...*Layer) *GeneratorNet {
	return &GeneratorNet{newPart("generator", layers)}
}

// Fwd Initializates feedforward for provided input
//
// input - [B, latent(+label)] node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	return net.fwd(input, batchSize, "Generator")
}

// DiscriminatorNet Scores images (optionally joined with label planes). Output is [B, 1]
type DiscriminatorNet struct {
	part
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{newPart("discriminator", layers)}
}

// Fwd Initializates feedforward for provided input
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	return net.fwd(input, batchSize, "Discriminator")
}
