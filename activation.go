package animegan

import (
	"sort"
	"strings"

	"gorgonia.org/gorgonia"
)

// ActivationFunc Signature of element-wise activation applied after layer's operation
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

// Options Struct for holding options for certain activation functions.
//
// Alpha - negative slope of LeakyRelu
//
type Options struct {
	Alpha float64
}

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Softplus(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRelu max(x, alpha*x). Alpha is taken from the first option with non-zero Alpha, default is 0.2
func LeakyRelu(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	alpha := 0.2
	for i := range opts {
		if opts[i].Alpha != 0 {
			alpha = opts[i].Alpha
			break
		}
	}
	return gorgonia.LeakyRelu(a, alpha)
}

var activations = map[string]ActivationFunc{
	"none":     NoActivation,
	"tanh":     Tanh,
	"sigmoid":  Sigmoid,
	"relu":     Rectify,
	"lrelu":    LeakyRelu,
	"softplus": Softplus,
}

// ActivationByName Returns activation function registered under the given name (case insensitive)
func ActivationByName(name string) (ActivationFunc, bool) {
	f, ok := activations[strings.ToLower(name)]
	return f, ok
}

// ActivationNames Returns registered activation names sorted
func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for name := range activations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
