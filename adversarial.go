package animegan

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// LossTerms Partial results of discriminator's loss: Total = Real + Fake
type LossTerms struct {
	Total *gorgonia.Node
	Real  *gorgonia.Node
	Fake  *gorgonia.Node
}

// AdversarialLoss Common interface for adversarial objectives.
//
// real - D(x)
// fake - D(G(z))
//
type AdversarialLoss interface {
	Name() string
	DLoss(real, fake *gorgonia.Node) (LossTerms, error)
	GLoss(fake *gorgonia.Node) (*gorgonia.Node, error)
}

var (
	_ AdversarialLoss = GANLoss{}
	_ AdversarialLoss = LSGANLoss{}
	_ AdversarialLoss = WGANLoss{}
	_ AdversarialLoss = HingeLoss{}
)

// NewAdversarialLoss Returns adversarial loss by its name: "gan", "lsgan", "wgan" or "hinge"
func NewAdversarialLoss(name string) (AdversarialLoss, error) {
	switch strings.ToLower(name) {
	case "gan":
		return GANLoss{}, nil
	case "lsgan":
		return LSGANLoss{}, nil
	case "wgan":
		return WGANLoss{}, nil
	case "hinge":
		return HingeLoss{}, nil
	default:
		return nil, fmt.Errorf("adversarial loss '%s' is not supported", name)
	}
}

// GANLoss Original (non-saturating) GAN loss on logits
type GANLoss struct{}

func (GANLoss) Name() string { return "gan" }

// DLoss Ld = E[softplus(-D(x))] + E[softplus(D(G(z)))]
func (GANLoss) DLoss(real, fake *gorgonia.Node) (LossTerms, error) {
	negReal, err := gorgonia.Neg(real)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do -D(x)")
	}
	realLoss, err := meanOf(negReal, gorgonia.Softplus)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[softplus(-D(x))]")
	}
	fakeLoss, err := meanOf(fake, gorgonia.Softplus)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[softplus(D(G(z)))]")
	}
	return sumTerms(realLoss, fakeLoss)
}

// GLoss Lg = E[softplus(-D(G(z)))]
func (GANLoss) GLoss(fake *gorgonia.Node) (*gorgonia.Node, error) {
	negFake, err := gorgonia.Neg(fake)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -D(G(z))")
	}
	return meanOf(negFake, gorgonia.Softplus)
}

// LSGANLoss Least squares GAN loss with (a, b, c) = (0, 1, 1)
type LSGANLoss struct{}

func (LSGANLoss) Name() string { return "lsgan" }

// DLoss Ld = 1/2*E[(D(x) - 1)^2] + 1/2*E[D(G(z))^2]
func (LSGANLoss) DLoss(real, fake *gorgonia.Node) (LossTerms, error) {
	one := scalarLike(real, 1.0)
	half := scalarLike(real, 0.5)
	realShifted, err := gorgonia.Sub(real, one)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do (D(x)-1)")
	}
	realLoss, err := meanOf(realShifted, gorgonia.Square)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[(D(x)-1)^2]")
	}
	fakeLoss, err := meanOf(fake, gorgonia.Square)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[D(G(z))^2]")
	}
	if realLoss, err = gorgonia.Mul(realLoss, half); err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do x/2")
	}
	if fakeLoss, err = gorgonia.Mul(fakeLoss, half); err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do x/2")
	}
	return sumTerms(realLoss, fakeLoss)
}

// GLoss Lg = 1/2*E[(D(G(z)) - 1)^2]
func (LSGANLoss) GLoss(fake *gorgonia.Node) (*gorgonia.Node, error) {
	shifted, err := gorgonia.Sub(fake, scalarLike(fake, 1.0))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (D(G(z))-1)")
	}
	loss, err := meanOf(shifted, gorgonia.Square)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do E[(D(G(z))-1)^2]")
	}
	return gorgonia.Mul(loss, scalarLike(fake, 0.5))
}

// WGANLoss Wasserstein loss. Pair it with ClipLearnables on Discriminator.
type WGANLoss struct{}

func (WGANLoss) Name() string { return "wgan" }

// DLoss Ld = E[D(G(z))] - E[D(x)]
func (WGANLoss) DLoss(real, fake *gorgonia.Node) (LossTerms, error) {
	realMean, err := gorgonia.Mean(real)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[D(x)]")
	}
	realLoss, err := gorgonia.Neg(realMean)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do -E[D(x)]")
	}
	fakeLoss, err := gorgonia.Mean(fake)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[D(G(z))]")
	}
	return sumTerms(realLoss, fakeLoss)
}

// GLoss Lg = -E[D(G(z))]
func (WGANLoss) GLoss(fake *gorgonia.Node) (*gorgonia.Node, error) {
	return negMean(fake)
}

// HingeLoss Hinge version of adversarial loss
type HingeLoss struct{}

func (HingeLoss) Name() string { return "hinge" }

// DLoss Ld = E[relu(1 - D(x))] + E[relu(1 + D(G(z)))]
func (HingeLoss) DLoss(real, fake *gorgonia.Node) (LossTerms, error) {
	one := scalarLike(real, 1.0)
	realMargin, err := gorgonia.Sub(one, real)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do (1-D(x))")
	}
	realLoss, err := meanOf(realMargin, gorgonia.Rectify)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[relu(1-D(x))]")
	}
	fakeMargin, err := gorgonia.Add(one, fake)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do (1+D(G(z)))")
	}
	fakeLoss, err := meanOf(fakeMargin, gorgonia.Rectify)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do E[relu(1+D(G(z)))]")
	}
	return sumTerms(realLoss, fakeLoss)
}

// GLoss Lg = -E[D(G(z))]
func (HingeLoss) GLoss(fake *gorgonia.Node) (*gorgonia.Node, error) {
	return negMean(fake)
}

// KLDivergence KL(N(mu, exp(logvar)) || N(0, 1)) = -1/2 * sum(1 + logvar - mu^2 - exp(logvar))
func KLDivergence(mu, logvar *gorgonia.Node) (*gorgonia.Node, error) {
	sqrMu, err := gorgonia.Square(mu)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mu^2")
	}
	expLogvar, err := gorgonia.Exp(logvar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do exp(logvar)")
	}
	inner, err := gorgonia.Add(scalarLike(logvar, 1.0), logvar)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1+logvar)")
	}
	if inner, err = gorgonia.Sub(inner, sqrMu); err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mu^2)")
	}
	if inner, err = gorgonia.Sub(inner, expLogvar); err != nil {
		return nil, errors.Wrap(err, "Can't do (x-exp(logvar))")
	}
	sum, err := gorgonia.Sum(inner)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sum(x)")
	}
	return gorgonia.Mul(sum, scalarLike(mu, -0.5))
}

// FeatureMatchingLoss Sum of L1 distances between discriminator's intermediate features.
// Each layer is weighted by 4/len(real) as pix2pixHD does.
func FeatureMatchingLoss(real, fake []*gorgonia.Node) (*gorgonia.Node, error) {
	if len(real) == 0 {
		return nil, fmt.Errorf("at least one feature map is required")
	}
	if len(real) != len(fake) {
		return nil, fmt.Errorf("number of real features (%d) and fake features (%d) mismatch", len(real), len(fake))
	}
	var total *gorgonia.Node
	for i := range real {
		l1, err := L1Loss(real[i], fake[i])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't do L1 for feature #%d", i))
		}
		if total == nil {
			total = l1
			continue
		}
		if total, err = gorgonia.Add(total, l1); err != nil {
			return nil, errors.Wrap(err, "Can't do (x+y)")
		}
	}
	return gorgonia.Mul(total, scalarLike(real[0], 4.0/float64(len(real))))
}

// GramMatrix G = F @ F^T / (C*H*W), where F is [B, C, H*W] view of the [B, C, H, W] input
func GramMatrix(x *gorgonia.Node) (*gorgonia.Node, error) {
	shp := x.Shape()
	if len(shp) != 4 {
		return nil, fmt.Errorf("gram matrix expects 4D input, but got %v", shp)
	}
	b, c, h, w := shp[0], shp[1], shp[2], shp[3]
	feat, err := gorgonia.Reshape(x, []int{b, c, h * w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape to [B, C, H*W]")
	}
	featT, err := gorgonia.Transpose(feat, 0, 2, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose to [B, H*W, C]")
	}
	gram, err := gorgonia.BatchedMatMul(feat, featT)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do F@F^T")
	}
	return gorgonia.Div(gram, scalarLike(x, float64(c*h*w)))
}

// StyleLoss Distance between gram matrices of features. p = 1 means L1, p = 2 means MSE
func StyleLoss(real, fake []*gorgonia.Node, p int) (*gorgonia.Node, error) {
	if len(real) != len(fake) || len(real) == 0 {
		return nil, fmt.Errorf("feature lists must be non-empty and of the same length")
	}
	var total *gorgonia.Node
	for i := range real {
		gReal, err := GramMatrix(real[i])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[real feature #%d]", i))
		}
		gFake, err := GramMatrix(fake[i])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[fake feature #%d]", i))
		}
		dist, err := distance(gFake, gReal, p)
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = dist
			continue
		}
		if total, err = gorgonia.Add(total, dist); err != nil {
			return nil, errors.Wrap(err, "Can't do (x+y)")
		}
	}
	return total, nil
}

// ContentLoss Distance between a pair of feature maps. p = 1 means L1, p = 2 means MSE
func ContentLoss(real, fake *gorgonia.Node, p int) (*gorgonia.Node, error) {
	return distance(fake, real, p)
}

func distance(a, b *gorgonia.Node, p int) (*gorgonia.Node, error) {
	switch p {
	case 1:
		return L1Loss(a, b)
	case 2:
		return MSELoss(a, b)
	default:
		return nil, fmt.Errorf("p must be 1 or 2, but got %d", p)
	}
}

func meanOf(a *gorgonia.Node, f func(*gorgonia.Node) (*gorgonia.Node, error)) (*gorgonia.Node, error) {
	applied, err := f(a)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(applied)
}

func negMean(a *gorgonia.Node) (*gorgonia.Node, error) {
	mean, err := gorgonia.Mean(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do E[x]")
	}
	return gorgonia.Neg(mean)
}

func sumTerms(realLoss, fakeLoss *gorgonia.Node) (LossTerms, error) {
	total, err := gorgonia.Add(realLoss, fakeLoss)
	if err != nil {
		return LossTerms{}, errors.Wrap(err, "Can't do (real+fake)")
	}
	return LossTerms{Total: total, Real: realLoss, Fake: fakeLoss}, nil
}

// scalarLike Creates scalar with the same dtype as provided node on its graph
func scalarLike(a *gorgonia.Node, v float64) *gorgonia.Node {
	var value interface{} = v
	if a.Dtype() == gorgonia.Float32 {
		value = float32(v)
	}
	return gorgonia.NewScalar(a.Graph(), a.Dtype(), gorgonia.WithValue(value), gorgonia.WithName(fmt.Sprintf("const_%v", v)))
}
