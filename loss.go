package animegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// LossReduction How pointwise losses are folded into a scalar
type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

func (r LossReduction) String() string {
	switch r {
	case LossReductionSum:
		return "sum"
	case LossReductionMean:
		return "mean"
	default:
		return fmt.Sprintf("reduction(%d)", uint16(r))
	}
}

// reduce Folds x by the first provided reduction. Default is 'mean'
func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	r := LossReductionMean
	if len(reduction) != 0 {
		r = reduction[0]
	}
	switch r {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type '%s' is not supported", r)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Used by LSGAN-style objectives on Sigmoid output and by ContentLoss with p = 2.
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
//
// a - probabilities (Sigmoid output of Discriminator)
// b - targets in [0, 1], possibly smoothed
//
// loss = -[b*log(a) + (1-b)*log(1-a)]
//
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	logA, err := gorgonia.Log(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	positive, err := gorgonia.HadamardProd(b, logA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do B*log(A)")
	}

	one := scalarLike(a, 1)
	oneMinusA, err := gorgonia.Sub(one, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	logOneMinusA, err := gorgonia.Log(oneMinusA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneMinusB, err := gorgonia.Sub(one, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	negative, err := gorgonia.HadamardProd(oneMinusB, logOneMinusA)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)*log(1-A)")
	}

	sum, err := gorgonia.Add(positive, negative)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
// Used by FeatureMatchingLoss and by ContentLoss with p = 1.
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	return reduce(abs, reduction)
}
