package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	animegan "github.com/LdDl/animeface-gan"
	"github.com/LdDl/animeface-gan/dataset"
	"github.com/LdDl/animeface-gan/imageutil"
	"github.com/LdDl/animeface-gan/models"
)

// Source yields training batches epoch by epoch.
type Source interface {
	Len() int
	Batches(ctx context.Context, rng *rand.Rand, fn func(dataset.Batch) error) error
}

// Recorder persists metrics and sample paths of a run.
type Recorder interface {
	RecordMetrics(ctx context.Context, runID string, step int, values map[string]float64) error
	RecordSample(ctx context.Context, runID string, step int, path string) error
}

var (
	_ Source = (*dataset.Loader)(nil)
	_ Source = (*dataset.MemorySource)(nil)

	errStop = errors.New("max iterations reached")
)

// Metric keys reported by Step.
const (
	MetricD       = "D"
	MetricG       = "G"
	MetricDReal   = "D_real"
	MetricDFake   = "D_fake"
	MetricPenalty = "gp"
	MetricR1      = "r1"
)

// Trainer owns both evaluation graphs, tape machines and solvers.
//
// GAN graph: generator + frozen copy of discriminator. Generator is trained here.
// Discriminator graph: discriminator fed with concat(real, fake). Discriminator is trained here.
type Trainer struct {
	cfg       Config
	spec      models.Spec
	batchSize int
	rng       *rand.Rand

	adversarial animegan.AdversarialLoss

	ganGraph *gorgonia.ExprGraph
	disGraph *gorgonia.ExprGraph
	pair     *models.Pair
	gan      *animegan.GAN

	inputGenerator      *gorgonia.Node
	conditionGAN        *gorgonia.Node
	inputDiscriminator  *gorgonia.Node
	targetDiscriminator *gorgonia.Node
	targetGAN           *gorgonia.Node
	inputGrad           *gorgonia.Node

	generatedSamples gorgonia.Value
	costDis          gorgonia.Value
	costGAN          gorgonia.Value
	costDisReal      gorgonia.Value
	costDisFake      gorgonia.Value
	inputGradVal     gorgonia.Value
	scoresDis        gorgonia.Value

	tmSampler gorgonia.VM
	tmGAN     gorgonia.VM
	tmDis     gorgonia.VM

	solverGAN gorgonia.Solver
	solverDis gorgonia.Solver

	fixedNoise  []*tensor.Dense
	fixedLabels []*tensor.Dense

	recorder Recorder
	runID    string
}

// NewTrainer builds networks and machines for cfg. labelDim is the width of
// one-hot condition (0 for unconditional training).
func NewTrainer(cfg Config, labelDim int) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad config")
	}
	if cfg.Condition != ConditionNone && labelDim <= 0 {
		return nil, fmt.Errorf("condition '%s' needs positive label dim", cfg.Condition)
	}
	if cfg.Condition == ConditionNone {
		labelDim = 0
	}
	objective := cfg.Objective()
	t := &Trainer{
		cfg:       cfg,
		batchSize: cfg.BatchSize,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		spec: models.Spec{
			ImageSize:     cfg.ImageSize,
			Channels:      cfg.Channels,
			LatentDim:     cfg.LatentDim,
			LabelDim:      labelDim,
			Hidden:        cfg.Hidden,
			Activation:    cfg.Activation,
			SigmoidOutput: objective == "mse" || objective == "bce",
		},
		ganGraph: gorgonia.NewGraph(),
		disGraph: gorgonia.NewGraph(),
	}
	if objective != "mse" && objective != "bce" {
		loss, err := animegan.NewAdversarialLoss(objective)
		if err != nil {
			return nil, err
		}
		t.adversarial = loss
	}
	if err := t.build(); err != nil {
		t.Close()
		return nil, err
	}
	t.prepareFixedInputs()
	return t, nil
}

func (t *Trainer) build() error {
	b := t.batchSize
	size := t.cfg.ImageSize
	pair, err := models.Build(t.cfg.Architecture, t.ganGraph, t.disGraph, t.spec, b)
	if err != nil {
		return err
	}
	t.pair = pair
	log.Debug(pair.Generator.String())
	log.Debug(pair.Discriminator.String())

	// Generator on GAN's graph
	t.inputGenerator = gorgonia.NewMatrix(t.ganGraph, gorgonia.Float64, gorgonia.WithShape(b, t.spec.GeneratorInputDim()), gorgonia.WithName("generator_input"))
	if err := pair.Generator.Fwd(t.inputGenerator, b); err != nil {
		return err
	}

	// Discriminator on its own graph, real and fake halves in one batch
	t.inputDiscriminator = gorgonia.NewTensor(t.disGraph, gorgonia.Float64, 4, gorgonia.WithShape(2*b, t.spec.DiscriminatorChannels(), size, size), gorgonia.WithName("discriminator_train_input"))
	if err := pair.Discriminator.Fwd(t.inputDiscriminator, 2*b); err != nil {
		return err
	}

	definedGAN, err := animegan.NewGAN(t.ganGraph, pair.Generator, pair.Discriminator)
	if err != nil {
		return err
	}
	if t.spec.LabelDim > 0 {
		t.conditionGAN = gorgonia.NewTensor(t.ganGraph, gorgonia.Float64, 4, gorgonia.WithShape(b, t.spec.LabelDim, size, size), gorgonia.WithName("gan_condition"))
		definedGAN.WithCondition(t.conditionGAN)
	}
	if err := definedGAN.Fwd(b); err != nil {
		return err
	}
	t.gan = definedGAN

	gorgonia.Read(definedGAN.GeneratorOut(), &t.generatedSamples)

	// Sampler is compiled before costs are attached, so it only does feedforward
	t.tmSampler = gorgonia.NewTapeMachine(t.ganGraph)

	costGAN, err := t.generatorCost()
	if err != nil {
		return errors.Wrap(err, "Can't define generator cost")
	}
	if _, err := gorgonia.Grad(costGAN, definedGAN.Learnables()...); err != nil {
		return errors.Wrap(err, "Can't define generator gradients")
	}
	gorgonia.Read(costGAN, &t.costGAN)

	// Input gradients go first: the cost gradients below must be the last
	// derivatives assigned to the learnables
	if _, ok := t.cfg.PenaltyCenterValue(); ok {
		if err := t.defineInputGradients(); err != nil {
			return err
		}
	}

	costDis, err := t.discriminatorCost()
	if err != nil {
		return errors.Wrap(err, "Can't define discriminator cost")
	}
	if _, err := gorgonia.Grad(costDis, pair.Discriminator.Learnables()...); err != nil {
		return errors.Wrap(err, "Can't define discriminator gradients")
	}
	gorgonia.Read(costDis, &t.costDis)

	t.tmGAN = gorgonia.NewTapeMachine(t.ganGraph, gorgonia.BindDualValues(definedGAN.Learnables()...))
	t.tmDis = gorgonia.NewTapeMachine(t.disGraph, gorgonia.BindDualValues(pair.Discriminator.Learnables()...))

	gLR, dLR, beta1, beta2 := t.cfg.Rates()
	t.solverGAN = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(b)), gorgonia.WithLearnRate(gLR), gorgonia.WithBeta1(beta1), gorgonia.WithBeta2(beta2))
	t.solverDis = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(2*b)), gorgonia.WithLearnRate(dLR), gorgonia.WithBeta1(beta1), gorgonia.WithBeta2(beta2))
	return nil
}

// defineInputGradients attaches dD(x)/dx. Only real rows contribute to the
// summed scores, so fake rows of the gradient are zero.
func (t *Trainer) defineInputGradients() error {
	realScores, err := gorgonia.Slice(t.pair.Discriminator.Out(), gorgonia.S(0, t.batchSize))
	if err != nil {
		return errors.Wrap(err, "Can't slice real scores")
	}
	total, err := gorgonia.Sum(realScores)
	if err != nil {
		return errors.Wrap(err, "Can't sum real scores")
	}
	grads, err := gorgonia.Grad(total, t.inputDiscriminator)
	if err != nil {
		return errors.Wrap(err, "Can't define input gradients")
	}
	t.inputGrad = grads[0]
	gorgonia.Read(t.inputGrad, &t.inputGradVal)
	gorgonia.Read(t.pair.Discriminator.Out(), &t.scoresDis)
	return nil
}

func (t *Trainer) generatorCost() (*gorgonia.Node, error) {
	out := t.gan.Out()
	if t.adversarial != nil {
		return t.adversarial.GLoss(out)
	}
	t.targetGAN = gorgonia.NewTensor(t.ganGraph, gorgonia.Float64, out.Dims(), gorgonia.WithShape(out.Shape()...), gorgonia.WithName("gan_discriminator_target"))
	return t.criterion(out, t.targetGAN)
}

func (t *Trainer) discriminatorCost() (*gorgonia.Node, error) {
	out := t.pair.Discriminator.Out()
	if t.adversarial == nil {
		t.targetDiscriminator = gorgonia.NewTensor(t.disGraph, gorgonia.Float64, out.Dims(), gorgonia.WithShape(out.Shape()...), gorgonia.WithName("discriminator_target"))
		return t.criterion(out, t.targetDiscriminator)
	}
	b := t.batchSize
	real, err := gorgonia.Slice(out, gorgonia.S(0, b))
	if err != nil {
		return nil, errors.Wrap(err, "Can't select D(x)")
	}
	fake, err := gorgonia.Slice(out, gorgonia.S(b, 2*b))
	if err != nil {
		return nil, errors.Wrap(err, "Can't select D(G(z))")
	}
	terms, err := t.adversarial.DLoss(real, fake)
	if err != nil {
		return nil, err
	}
	gorgonia.Read(terms.Real, &t.costDisReal)
	gorgonia.Read(terms.Fake, &t.costDisFake)
	return terms.Total, nil
}

func (t *Trainer) criterion(out, target *gorgonia.Node) (*gorgonia.Node, error) {
	if t.cfg.Objective() == "bce" {
		return animegan.BinaryCrossEntropyLoss(out, target)
	}
	return animegan.MSELoss(out, target)
}

func (t *Trainer) prepareFixedInputs() {
	n := t.cfg.SampleCount
	if n == 0 {
		return
	}
	runs := (n + t.batchSize - 1) / t.batchSize
	for r := 0; r < runs; r++ {
		t.fixedNoise = append(t.fixedNoise, animegan.NormRandDense(t.rng, t.batchSize, t.spec.LatentDim))
		if t.spec.LabelDim > 0 {
			rows := make([]float64, t.batchSize*t.spec.LabelDim)
			for i := 0; i < t.batchSize; i++ {
				class := (r*t.batchSize + i) % t.spec.LabelDim
				rows[i*t.spec.LabelDim+class] = 1
			}
			t.fixedLabels = append(t.fixedLabels, tensor.New(tensor.WithShape(t.batchSize, t.spec.LabelDim), tensor.WithBacking(rows)))
		}
	}
}

// WithRecorder attaches run history storage.
func (t *Trainer) WithRecorder(rec Recorder, runID string) *Trainer {
	t.recorder = rec
	t.runID = runID
	return t
}

// Spec returns the architecture spec used by the trainer.
func (t *Trainer) Spec() models.Spec {
	return t.spec
}

// GeneratorLearnables returns trainable nodes of the generator.
func (t *Trainer) GeneratorLearnables() gorgonia.Nodes {
	return t.gan.GeneratorLearnables()
}

// DiscriminatorLearnables returns trainable nodes of the discriminator.
func (t *Trainer) DiscriminatorLearnables() gorgonia.Nodes {
	return t.pair.Discriminator.Learnables()
}

// Close releases tape machines.
func (t *Trainer) Close() {
	for _, vm := range []gorgonia.VM{t.tmSampler, t.tmGAN, t.tmDis} {
		if vm != nil {
			vm.Close()
		}
	}
}

// Step runs DSteps discriminator updates and GSteps generator updates on one batch.
func (t *Trainer) Step(batch dataset.Batch) (map[string]float64, error) {
	b := t.batchSize
	if batch.Size() != b {
		return nil, fmt.Errorf("batch of %d samples, trainer is built for %d", batch.Size(), b)
	}
	want := tensor.Shape{b, t.spec.Channels, t.cfg.ImageSize, t.cfg.ImageSize}
	if !batch.Images.Shape().Eq(want) {
		return nil, fmt.Errorf("images shape %v, expected %v", batch.Images.Shape(), want)
	}
	var labels *tensor.Dense
	if t.spec.LabelDim > 0 {
		if batch.Labels == nil {
			return nil, fmt.Errorf("conditional training needs labels in batch")
		}
		labels = batch.Labels
	}

	metrics := make(map[string]float64)
	realInput, err := t.withPlanes(batch.Images, labels)
	if err != nil {
		return nil, err
	}

	for step := 0; step < t.cfg.DSteps; step++ {
		fake, err := t.generate(animegan.NormRandDense(t.rng, b, t.spec.LatentDim), labels)
		if err != nil {
			return nil, err
		}
		fakeInput, err := t.withPlanes(fake, labels)
		if err != nil {
			return nil, err
		}
		allSamples, err := tensor.Concat(0, realInput, fakeInput)
		if err != nil {
			return nil, errors.Wrap(err, "Can't concat real and fake samples")
		}
		if err := gorgonia.Let(t.inputDiscriminator, allSamples); err != nil {
			return nil, errors.Wrap(err, "Can't set discriminator input")
		}
		if t.targetDiscriminator != nil {
			if err := gorgonia.Let(t.targetDiscriminator, t.discriminatorTargets()); err != nil {
				return nil, errors.Wrap(err, "Can't set discriminator target")
			}
		}
		if err := t.tmDis.RunAll(); err != nil {
			t.tmDis.Reset()
			return nil, errors.Wrap(err, "Can't run discriminator step")
		}
		if err := t.solverDis.Step(gorgonia.NodesToValueGrads(t.pair.Discriminator.Learnables())); err != nil {
			t.tmDis.Reset()
			return nil, errors.Wrap(err, "Can't update discriminator")
		}
		t.collectDiscriminatorMetrics(metrics)
		t.tmDis.Reset()
		if t.cfg.ClipValue > 0 {
			if err := animegan.ClipLearnables(t.pair.Discriminator.Learnables(), t.cfg.ClipValue); err != nil {
				return nil, err
			}
		}
		if t.inputGrad != nil && t.cfg.PenaltyPointName() != PenaltyReal {
			gp, err := t.penaltyAt(realInput, fakeInput)
			if err != nil {
				log.WithError(err).Debug("gradient penalty is not available")
				continue
			}
			metrics[MetricPenalty] = gp
		}
	}

	if err := t.gan.SyncDiscriminator(); err != nil {
		return nil, err
	}

	for step := 0; step < t.cfg.GSteps; step++ {
		if err := t.feedGenerator(animegan.NormRandDense(t.rng, b, t.spec.LatentDim), labels); err != nil {
			return nil, err
		}
		if t.targetGAN != nil {
			if err := gorgonia.Let(t.targetGAN, t.realTargets()); err != nil {
				return nil, errors.Wrap(err, "Can't set GAN target")
			}
		}
		if err := t.tmGAN.RunAll(); err != nil {
			t.tmGAN.Reset()
			return nil, errors.Wrap(err, "Can't run generator step")
		}
		if err := t.solverGAN.Step(gorgonia.NodesToValueGrads(t.gan.GeneratorLearnables())); err != nil {
			t.tmGAN.Reset()
			return nil, errors.Wrap(err, "Can't update generator")
		}
		metrics[MetricG] = scalarOf(t.costGAN)
		t.tmGAN.Reset()
	}
	return metrics, nil
}

func (t *Trainer) collectDiscriminatorMetrics(metrics map[string]float64) {
	metrics[MetricD] = scalarOf(t.costDis)
	if t.costDisReal != nil {
		metrics[MetricDReal] = scalarOf(t.costDisReal)
		metrics[MetricDFake] = scalarOf(t.costDisFake)
	}
	if t.inputGrad == nil || t.cfg.PenaltyPointName() != PenaltyReal {
		return
	}
	center, _ := t.cfg.PenaltyCenterValue()
	grads, err := realRows(t.inputGradVal, t.batchSize)
	if err != nil {
		log.WithError(err).Debug("input gradients are not available")
		return
	}
	if gp, err := animegan.GradientPenaltyFromGrads(grads, center); err == nil {
		metrics[MetricPenalty] = gp
	}
	if r1, err := animegan.R1FromGrads(grads); err == nil {
		metrics[MetricR1] = r1
	}
}

// penaltyAt runs the discriminator graph once more with the real half replaced
// by interpolates of real and fake rows or by DRAGAN perturbations of real
// rows, and returns the penalty of the input gradients there. Learnables are
// not updated.
func (t *Trainer) penaltyAt(realInput, fakeInput *tensor.Dense) (float64, error) {
	b := t.batchSize
	realData, fakeData := realInput.Float64s(), fakeInput.Float64s()
	width := len(realData) / b
	imageWidth := t.spec.Channels * t.cfg.ImageSize * t.cfg.ImageSize

	images := make([]float64, 0, b*imageWidth)
	for i := 0; i < b; i++ {
		images = append(images, realData[i*width:i*width+imageWidth]...)
	}
	std := stat.StdDev(images, nil)

	points := make([]float64, 0, 2*b*width)
	for i := 0; i < b; i++ {
		row := realData[i*width : (i+1)*width]
		alpha := t.rng.Float64()
		if t.cfg.PenaltyPointName() == PenaltyInterpolate {
			mixed, err := animegan.Interpolate(row, fakeData[i*width:(i+1)*width], alpha)
			if err != nil {
				return 0, err
			}
			points = append(points, mixed...)
			continue
		}
		// condition planes stay as they are
		points = append(points, animegan.DraganPerturb(t.rng, row[:imageWidth], std, alpha)...)
		points = append(points, row[imageWidth:]...)
	}
	points = append(points, fakeData...)
	shape := append(tensor.Shape{2 * b}, realInput.Shape()[1:]...)

	if err := gorgonia.Let(t.inputDiscriminator, tensor.New(tensor.WithShape(shape...), tensor.WithBacking(points))); err != nil {
		return 0, errors.Wrap(err, "Can't set discriminator input")
	}
	if t.targetDiscriminator != nil {
		if err := gorgonia.Let(t.targetDiscriminator, t.discriminatorTargets()); err != nil {
			return 0, errors.Wrap(err, "Can't set discriminator target")
		}
	}
	defer t.tmDis.Reset()
	if err := t.tmDis.RunAll(); err != nil {
		return 0, errors.Wrap(err, "Can't run discriminator for penalty")
	}
	grads, err := realRows(t.inputGradVal, b)
	if err != nil {
		return 0, err
	}
	center, _ := t.cfg.PenaltyCenterValue()
	return animegan.GradientPenaltyFromGrads(grads, center)
}

// realRows splits the real half of [2B, ...] gradients into per-sample rows.
func realRows(v gorgonia.Value, b int) ([][]float64, error) {
	dense, ok := v.(*tensor.Dense)
	if !ok || dense.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("unexpected gradient value %T", v)
	}
	data := dense.Float64s()
	width := len(data) / (2 * b)
	rows := make([][]float64, b)
	for i := range rows {
		rows[i] = data[i*width : (i+1)*width]
	}
	return rows, nil
}

// discriminatorTargets returns [2B, 1]: real targets followed by fake ones.
func (t *Trainer) discriminatorTargets() *tensor.Dense {
	b := t.batchSize
	var fake *tensor.Dense
	if t.cfg.LabelSmoothing {
		fake = animegan.SmoothedTargets(t.rng, b, 0, 0.3)
	} else {
		fake = animegan.ConstTargets(b, 0)
	}
	data := append(append([]float64{}, t.realTargets().Float64s()...), fake.Float64s()...)
	return tensor.New(tensor.WithShape(2*b, 1), tensor.WithBacking(data))
}

func (t *Trainer) realTargets() *tensor.Dense {
	if t.cfg.LabelSmoothing {
		return animegan.SmoothedTargets(t.rng, t.batchSize, 0.7, 0.3)
	}
	return animegan.ConstTargets(t.batchSize, 1)
}

func (t *Trainer) feedGenerator(noise, labels *tensor.Dense) error {
	input := noise
	if labels != nil {
		joined, err := tensor.Concat(1, noise, labels)
		if err != nil {
			return errors.Wrap(err, "Can't join noise and labels")
		}
		input = joined.(*tensor.Dense)
		planes, err := labelPlanes(labels, t.cfg.ImageSize)
		if err != nil {
			return err
		}
		if err := gorgonia.Let(t.conditionGAN, planes); err != nil {
			return errors.Wrap(err, "Can't set GAN condition")
		}
	}
	if err := gorgonia.Let(t.inputGenerator, input); err != nil {
		return errors.Wrap(err, "Can't set generator input")
	}
	return nil
}

// generate runs the sampler once and returns a copy of generated images.
func (t *Trainer) generate(noise, labels *tensor.Dense) (*tensor.Dense, error) {
	if err := t.feedGenerator(noise, labels); err != nil {
		return nil, err
	}
	defer t.tmSampler.Reset()
	if err := t.tmSampler.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run generator")
	}
	dense, ok := t.generatedSamples.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("generator output is %T", t.generatedSamples)
	}
	return dense.Clone().(*tensor.Dense), nil
}

// Sample generates images from the fixed noise (and fixed labels): [SampleCount, C, H, W].
func (t *Trainer) Sample() (*tensor.Dense, error) {
	if len(t.fixedNoise) == 0 {
		return nil, fmt.Errorf("sample count is zero")
	}
	var parts []tensor.Tensor
	for i, noise := range t.fixedNoise {
		var labels *tensor.Dense
		if t.spec.LabelDim > 0 {
			labels = t.fixedLabels[i]
		}
		out, err := t.generate(noise, labels)
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	all := parts[0].(*tensor.Dense)
	if len(parts) > 1 {
		joined, err := tensor.Concat(0, parts[0], parts[1:]...)
		if err != nil {
			return nil, errors.Wrap(err, "Can't join samples")
		}
		all = joined.(*tensor.Dense)
	}
	n := t.cfg.SampleCount
	data := all.Float64s()
	width := len(data) / all.Shape()[0]
	shape := append(tensor.Shape{n}, all.Shape()[1:]...)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(append([]float64{}, data[:n*width]...))), nil
}

// withPlanes joins label planes to images along channel axis.
func (t *Trainer) withPlanes(images, labels *tensor.Dense) (*tensor.Dense, error) {
	if labels == nil {
		return images, nil
	}
	planes, err := labelPlanes(labels, t.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	joined, err := tensor.Concat(1, images, planes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't join label planes")
	}
	return joined.(*tensor.Dense), nil
}

// labelPlanes expands [B, L] labels into [B, L, size, size] constant planes.
func labelPlanes(labels *tensor.Dense, size int) (*tensor.Dense, error) {
	shape := labels.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("labels must be [B, L], got %v", shape)
	}
	b, l := shape[0], shape[1]
	src := labels.Float64s()
	plane := size * size
	data := make([]float64, b*l*plane)
	for i := 0; i < b*l; i++ {
		v := src[i]
		if v == 0 {
			continue
		}
		for j := 0; j < plane; j++ {
			data[i*plane+j] = v
		}
	}
	return tensor.New(tensor.WithShape(b, l, size, size), tensor.WithBacking(data)), nil
}

func scalarOf(v gorgonia.Value) float64 {
	var f float64
	switch x := v.(type) {
	case *gorgonia.F64:
		f = float64(*x)
	case *gorgonia.F32:
		f = float64(*x)
	case *tensor.Dense:
		if x.Dtype() == tensor.Float64 && x.DataSize() > 0 {
			f = x.Float64s()[0]
		}
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Run trains until MaxIters (or Epochs*Len batches) are done or ctx is cancelled.
func (t *Trainer) Run(ctx context.Context, src Source) (*Status, error) {
	maxIters := t.cfg.MaxIters
	if maxIters <= 0 {
		maxIters = t.cfg.Epochs * src.Len()
	}
	if maxIters <= 0 {
		return nil, fmt.Errorf("source has no batches")
	}
	status := NewStatus(maxIters)
	log.WithFields(log.Fields{
		"architecture": t.cfg.Architecture,
		"loss":         t.cfg.Objective(),
		"batch_size":   t.batchSize,
		"max_iters":    maxIters,
		"label_dim":    t.spec.LabelDim,
	}).Info("training started")

	for epoch := 0; status.BatchesDone() < maxIters; epoch++ {
		used := 0
		err := src.Batches(ctx, t.rng, func(batch dataset.Batch) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if batch.Size() != t.batchSize {
				log.WithField("size", batch.Size()).Debug("skipping incomplete batch")
				return nil
			}
			used++
			metrics, err := t.Step(batch)
			if err != nil {
				return err
			}
			status.Update(metrics)
			done := status.BatchesDone()
			if done%t.cfg.VerboseInterval == 0 {
				t.report(ctx, epoch, done, status, metrics)
			}
			if done%t.cfg.SaveInterval == 0 {
				if err := t.saveArtifacts(ctx, done); err != nil {
					return err
				}
			}
			if done >= maxIters {
				return errStop
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return status, err
		}
		if used == 0 {
			return status, fmt.Errorf("epoch %d produced no batch of size %d", epoch, t.batchSize)
		}
	}

	if t.cfg.OutputDir != "" {
		if err := t.SaveCheckpoints(filepath.Join(t.cfg.OutputDir, "checkpoints", "final")); err != nil {
			return status, err
		}
		if err := status.Plot(filepath.Join(t.cfg.OutputDir, "loss.png")); err != nil {
			log.WithError(err).Warn("can't plot losses")
		}
	}
	log.WithField("batches", status.BatchesDone()).Info("training finished")
	return status, nil
}

func (t *Trainer) report(ctx context.Context, epoch, done int, status *Status, metrics map[string]float64) {
	fields := log.Fields{"epoch": epoch, "batch": done, "eta": status.ETA().Round(time.Second).String()}
	for k, v := range metrics {
		fields[k] = fmt.Sprintf("%.5f", v)
	}
	log.WithFields(fields).Info("progress")
	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordMetrics(ctx, t.runID, done, metrics); err != nil {
		log.WithError(err).Warn("can't record metrics")
	}
}

func (t *Trainer) saveArtifacts(ctx context.Context, done int) error {
	if t.cfg.OutputDir == "" {
		return nil
	}
	if t.cfg.SampleCount > 0 {
		samples, err := t.Sample()
		if err != nil {
			return err
		}
		path := filepath.Join(t.cfg.OutputDir, "samples", fmt.Sprintf("%d.png", done))
		nrow := int(math.Ceil(math.Sqrt(float64(t.cfg.SampleCount))))
		if err := imageutil.SaveGrid(path, samples, nrow, -1, 1); err != nil {
			return err
		}
		if t.recorder != nil {
			if err := t.recorder.RecordSample(ctx, t.runID, done, path); err != nil {
				log.WithError(err).Warn("can't record sample")
			}
		}
	}
	return t.SaveCheckpoints(filepath.Join(t.cfg.OutputDir, "checkpoints", fmt.Sprint(done)))
}

// SaveCheckpoints writes G.gob and D.gob into dir.
func (t *Trainer) SaveCheckpoints(dir string) error {
	if err := animegan.SaveCheckpoint(filepath.Join(dir, "G.gob"), t.GeneratorLearnables()); err != nil {
		return errors.Wrap(err, "Can't save generator")
	}
	if err := animegan.SaveCheckpoint(filepath.Join(dir, "D.gob"), t.DiscriminatorLearnables()); err != nil {
		return errors.Wrap(err, "Can't save discriminator")
	}
	return nil
}

// LoadCheckpoints restores G.gob and D.gob from dir and syncs the discriminator copy.
func (t *Trainer) LoadCheckpoints(dir string) error {
	if err := animegan.LoadCheckpoint(filepath.Join(dir, "G.gob"), t.GeneratorLearnables()); err != nil {
		return errors.Wrap(err, "Can't load generator")
	}
	if err := animegan.LoadCheckpoint(filepath.Join(dir, "D.gob"), t.DiscriminatorLearnables()); err != nil {
		return errors.Wrap(err, "Can't load discriminator")
	}
	return t.gan.SyncDiscriminator()
}
