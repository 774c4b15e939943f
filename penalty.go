package animegan

import (
	"fmt"
	"math"
	"math/rand"
)

// SoftplusFloat log(1 + exp(x)) computed without overflow for large x
func SoftplusFloat(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// GradientPenaltyFromGrads E[(||g_i||_2 - center)^2] over per-sample flattened gradients.
// center must be 0 or 1 (zero-centered and one-centered penalties).
func GradientPenaltyFromGrads(grads [][]float64, center float64) (float64, error) {
	if center != 0 && center != 1 {
		return 0, fmt.Errorf("center must be 0 or 1, but got %v", center)
	}
	if len(grads) == 0 {
		return 0, fmt.Errorf("no gradients provided")
	}
	penalty := 0.0
	for _, g := range grads {
		d := l2Norm(g) - center
		penalty += d * d
	}
	return penalty / float64(len(grads)), nil
}

// R1FromGrads E[||g_i||_2^2] / 2 where g_i are gradients of D(x) w.r.t. real samples
func R1FromGrads(grads [][]float64) (float64, error) {
	if len(grads) == 0 {
		return 0, fmt.Errorf("no gradients provided")
	}
	penalty := 0.0
	for _, g := range grads {
		n := l2Norm(g)
		penalty += n * n
	}
	return penalty / float64(len(grads)) / 2, nil
}

// Interpolate x_hat = alpha*real + (1-alpha)*fake element-wise
func Interpolate(real, fake []float64, alpha float64) ([]float64, error) {
	if len(real) != len(fake) {
		return nil, fmt.Errorf("real (%d) and fake (%d) lengths mismatch", len(real), len(fake))
	}
	out := make([]float64, len(real))
	for i := range real {
		out[i] = alpha*real[i] + (1-alpha)*fake[i]
	}
	return out, nil
}

// DraganPerturb x_hat = alpha*real + (1-alpha)*(real + 0.5*std*beta), beta ~ U[0, 1)
// drawn per element. std is the standard deviation of the whole real batch.
func DraganPerturb(rng *rand.Rand, real []float64, std, alpha float64) []float64 {
	out := make([]float64, len(real))
	for i, x := range real {
		out[i] = alpha*x + (1-alpha)*(x+0.5*std*rng.Float64())
	}
	return out
}

func l2Norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
