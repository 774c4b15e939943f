package animegan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
)

type pointwiseLoss func(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error)

func evalPointwise(t *testing.T, fn pointwiseLoss, pred, target []float64, reduction ...LossReduction) float64 {
	g := gorgonia.NewGraph()
	a := matrixWithValues(g, "pred", len(pred), 1, pred...)
	b := matrixWithValues(g, "target", len(target), 1, target...)
	cost, err := fn(a, b, reduction...)
	require.NoError(t, err)
	return evalScalars(t, g, cost)[0]
}

func TestMSELoss(t *testing.T) {
	pred := []float64{1, 2, 3, 4}
	target := []float64{1, 1, 1, 1}
	// squared errors: 0 1 4 9
	require.InDelta(t, 3.5, evalPointwise(t, MSELoss, pred, target), 1e-9)
	require.InDelta(t, 14.0, evalPointwise(t, MSELoss, pred, target, LossReductionSum), 1e-9)
}

func TestBinaryCrossEntropyLoss(t *testing.T) {
	pred := []float64{0.9, 0.2}
	target := []float64{1, 0}
	expected := -(math.Log(0.9) + math.Log(0.8)) / 2
	require.InDelta(t, expected, evalPointwise(t, BinaryCrossEntropyLoss, pred, target), 1e-9)

	// soft targets mix both terms
	pred = []float64{0.6}
	target = []float64{0.7}
	expected = -(0.7*math.Log(0.6) + 0.3*math.Log(0.4))
	require.InDelta(t, expected, evalPointwise(t, BinaryCrossEntropyLoss, pred, target), 1e-9)
}

func TestLossBadReduction(t *testing.T) {
	g := gorgonia.NewGraph()
	a := matrixWithValues(g, "a", 2, 1, 0.5, 0.5)
	b := matrixWithValues(g, "b", 2, 1, 1, 0)
	_, err := MSELoss(a, b, LossReduction(9))
	require.Error(t, err)
	_, err = BinaryCrossEntropyLoss(a, b, LossReduction(9))
	require.Error(t, err)
}
