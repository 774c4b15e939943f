package animegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// Probability - drop probability for LayerDropout
// Scale - scale factor for LayerUpsample
// Options - options passed to Activation (e.g. alpha for LeakyRelu)
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Activation ActivationFunc
	Options    []Options
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
	Probability  float64
	Scale        int
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerReshape
	LayerDropout
	LayerUpsample
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv"
	case LayerMaxpool:
		return "maxpool"
	case LayerReshape:
		return "reshape"
	case LayerDropout:
		return "dropout"
	case LayerUpsample:
		return "upsample"
	default:
		return fmt.Sprintf("layer(%d)", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerFlatten, LayerReshape, LayerDropout, LayerUpsample}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Applies layer's operation (without activation) to the input
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied for bias
// input - Input node
//
func (l *Layer) Fwd(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("layer of type '%s' has nil weight node", l.Type)
	}
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerMaxpool:
		out, err = gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		out, err = gorgonia.Reshape(input, l.ReshapeDims)
		if err != nil {
			return nil, errors.Wrap(err, "Can't reshape input")
		}
	case LayerDropout:
		out, err = gorgonia.Dropout(input, l.Probability)
		if err != nil {
			return nil, errors.Wrap(err, "Can't apply dropout to input")
		}
	case LayerUpsample:
		scale := l.Scale
		if scale < 1 {
			scale = 1
		}
		out, err = gorgonia.Upsample2D(input, scale)
		if err != nil {
			return nil, errors.Wrap(err, "Can't upsample[2D] input")
		}
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
	if l.BiasNode == nil {
		return out, nil
	}
	if batchSize < 2 {
		out, err = gorgonia.Add(out, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to non-activated output")
		}
		return out, nil
	}
	out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
	}
	return out, nil
}

// Activate Applies layer's activation function. Nil activation is treated as identity.
func (l *Layer) Activate(a *gorgonia.Node) (*gorgonia.Node, error) {
	if l.Activation == nil {
		return a, nil
	}
	return l.Activation(a, l.Options...)
}

// cloneOn Makes copy of layer's structure on provided graph. Weights and biases are copied by value.
func (l *Layer) cloneOn(g *gorgonia.ExprGraph, suffix string) (*Layer, error) {
	cloned := &Layer{
		Activation:   l.Activation,
		Options:      l.Options,
		Type:         l.Type,
		KernelHeight: l.KernelHeight,
		KernelWidth:  l.KernelWidth,
		Padding:      l.Padding,
		Stride:       l.Stride,
		Dilation:     l.Dilation,
		ReshapeDims:  l.ReshapeDims,
		Probability:  l.Probability,
		Scale:        l.Scale,
	}
	var err error
	if l.WeightNode != nil {
		cloned.WeightNode, err = cloneNode(g, l.WeightNode, suffix)
		if err != nil {
			return nil, errors.Wrap(err, "Can't clone weights")
		}
	}
	if l.BiasNode != nil {
		cloned.BiasNode, err = cloneNode(g, l.BiasNode, suffix)
		if err != nil {
			return nil, errors.Wrap(err, "Can't clone bias")
		}
	}
	return cloned, nil
}

func cloneNode(g *gorgonia.ExprGraph, n *gorgonia.Node, suffix string) (*gorgonia.Node, error) {
	if n.Value() == nil {
		return nil, fmt.Errorf("node '%s' has no value", n.Name())
	}
	v, err := gorgonia.CloneValue(n.Value())
	if err != nil {
		return nil, err
	}
	return gorgonia.NewTensor(g, n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(n.Name()+suffix), gorgonia.WithValue(v)), nil
}
