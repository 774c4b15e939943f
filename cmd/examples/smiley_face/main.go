// Command smiley_face trains a tiny GAN to draw a 10x10 smiley face.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
	"gorgonia.org/tensor"

	"github.com/LdDl/animeface-gan/dataset"
	"github.com/LdDl/animeface-gan/logging"
	"github.com/LdDl/animeface-gan/train"
)

const imgSize = 10

var faceData = []float64{
	0, 1, 1, 0, 0, 0, 1, 1, 0, 0,
	0, 1, 1, 0, 0, 0, 1, 1, 0, 0,
	0, 1, 1, 0, 0, 0, 1, 1, 0, 0,
	0, 1, 1, 0, 0, 0, 1, 1, 0, 0,
	0, 0, 0, 0, 1, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 1, 0, 0, 0, 0, 0,
	0, 0, 0, 1, 1, 1, 0, 0, 0, 0,
	1, 1, 0, 0, 0, 0, 0, 1, 1, 0,
	0, 1, 1, 1, 0, 1, 1, 1, 0, 0,
	0, 0, 0, 1, 1, 1, 0, 0, 0, 0,
}

// syntheticFaces repeats the face n times, mapped to [-1, 1] like real images.
func syntheticFaces(n int) *tensor.Dense {
	data := make([]float64, 0, n*len(faceData))
	for i := 0; i < n; i++ {
		for _, v := range faceData {
			data = append(data, 2*v-1)
		}
	}
	return tensor.New(tensor.WithShape(n, 1, imgSize, imgSize), tensor.WithBacking(data))
}

func printFace(pixels []float64) {
	for y := 0; y < imgSize; y++ {
		fmt.Printf("\t")
		for x := 0; x < imgSize; x++ {
			char := " "
			if pixels[y*imgSize+x] > 0 {
				char = "x"
			}
			fmt.Printf("%s ", char)
		}
		fmt.Println()
	}
}

func main() {
	if err := logging.Setup(os.Stderr, "info"); err != nil {
		panic(err)
	}

	cfg := train.DefaultConfig()
	cfg.Name = "smiley-face"
	cfg.Architecture = "mlp"
	cfg.Loss = "bce"
	cfg.ImageSize = imgSize
	cfg.Channels = 1
	cfg.LatentDim = 16
	cfg.Hidden = 32
	cfg.BatchSize = 2
	cfg.Epochs = 0
	cfg.MaxIters = 1500
	cfg.LR = 0.001
	cfg.VerboseInterval = 50
	cfg.SaveInterval = cfg.MaxIters
	cfg.SampleCount = 1
	cfg.OutputDir = ""

	fmt.Println("Actual smiley face:")
	printFace(syntheticFaces(1).Float64s())

	trainer, err := train.NewTrainer(cfg, 0)
	if err != nil {
		log.WithError(err).Fatal("can't build trainer")
	}
	defer trainer.Close()

	src := &dataset.MemorySource{Images: syntheticFaces(8), BatchSize: cfg.BatchSize, Shuffle: true}
	status, err := trainer.Run(context.Background(), src)
	if err != nil {
		log.WithError(err).Fatal("training failed")
	}
	log.Info(status.String())

	generated, err := trainer.Sample()
	if err != nil {
		log.WithError(err).Fatal("can't sample")
	}
	fmt.Println("Generated smiley face:")
	printFace(generated.Float64s())
}
