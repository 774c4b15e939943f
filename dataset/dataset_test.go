package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestYearFromPath(t *testing.T) {
	var tests = []struct {
		path        string
		year        int
		errExpected bool
	}{
		{path: "/data/images/63568_2019.jpg", year: 2019},
		{path: "1_2000.png", year: 2000},
		{path: "a_b_2005.jpeg", year: 2005},
		{path: "2019.jpg", year: 2019},
		{path: "noyear.png", errExpected: true},
		{path: "12_abc.png", errExpected: true},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			year, err := YearFromPath(test.path)
			if test.errExpected {
				require.ErrorIs(t, err, ErrBadYear)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.year, year)
		})
	}
}

func TestImageFolderAndFilters(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	writePNG(t, filepath.Join(root, "2_2010.png"), 4, 4, color.White)
	writePNG(t, filepath.Join(root, "1_2003.png"), 4, 4, color.White)
	writePNG(t, filepath.Join(root, "3_2010.png"), 4, 4, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	samples, err := ImageFolder(root, nil)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, filepath.Join(root, "1_2003.png"), samples[0].Path)

	counts, err := CountByYear(samples)
	require.NoError(t, err)
	require.Equal(t, map[int]int{2003: 1, 2010: 2}, counts)

	kept, err := FilterMinYear(samples, 2005)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	require.Len(t, samples, 3)

	require.NoError(t, YearLabels(kept))
	require.Equal(t, "2010", kept[0].Label)

	paired := XDoGPairs(samples[:1])
	require.Equal(t, filepath.Join(filepath.Dir(root), "xdog", "1_2003.png"), paired[0].Pair)
	require.Empty(t, samples[0].Pair)

	_, err = ImageFolder(t.TempDir(), nil)
	require.ErrorIs(t, err, ErrNoImages)
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "labels.csv")
	content := "\"images/1_2010.png\",\"blonde hair\"\n\"/abs/2_2011.png\",\"black hair\"\n\"images/3_2012.png\",\"blonde hair\"\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	samples, err := LoadLabels(csvPath)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, filepath.Join(dir, "images", "1_2010.png"), samples[0].Path)
	require.Equal(t, "/abs/2_2011.png", samples[1].Path)
	require.Equal(t, "blonde hair", samples[0].Label)

	rows, vocab, err := OneHotLabels(samples)
	require.NoError(t, err)
	require.Equal(t, []string{"black hair", "blonde hair"}, vocab)
	require.Equal(t, [][]float64{{0, 1}, {1, 0}, {0, 1}}, rows)

	require.NoError(t, os.WriteFile(csvPath, []byte("\"only one field\"\n"), 0o644))
	_, err = LoadLabels(csvPath)
	require.Error(t, err)
}

func TestRandomSplit(t *testing.T) {
	samples := make([]Sample, 10)
	for i := range samples {
		samples[i] = Sample{Path: string(rune('a' + i))}
	}
	train, test, err := RandomSplit(samples, 3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, train, 7)
	require.Len(t, test, 3)

	seen := make(map[string]bool)
	for _, s := range append(append([]Sample{}, train...), test...) {
		seen[s.Path] = true
	}
	require.Len(t, seen, 10)

	_, _, err = RandomSplit(samples, 11, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}

func TestTransformApply(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if x < 4 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	tr := DefaultTransform(4, false)
	require.Equal(t, 48, tr.Dims())

	out := tr.Apply(img, false)
	require.Len(t, out, 48)
	for _, v := range out {
		require.GreaterOrEqual(t, v, -1.0)
		require.LessOrEqual(t, v, 1.0)
	}
	// red channel, top left pixel is red; blue channel, top right pixel is blue
	require.InDelta(t, 1.0, out[0], 1e-9)
	require.InDelta(t, 1.0, out[2*16+3], 1e-9)

	flipped := tr.Apply(img, true)
	require.InDelta(t, -1.0, flipped[0], 1e-9)
	require.InDelta(t, 1.0, flipped[2*16], 1e-9)

	gray := Transform{Size: 2, Channels: 1}
	g := gray.Apply(image.NewRGBA(image.Rect(0, 0, 2, 2)), false)
	require.Len(t, g, 4)
	require.InDelta(t, -1.0, g[0], 1e-9)
}

func TestLoaderBatches(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	var samples []Sample
	for i := 0; i < 5; i++ {
		p := filepath.Join(root, string(rune('a'+i))+"_2010.png")
		writePNG(t, p, 6, 6, color.Gray{Y: uint8(i * 50)})
		writePNG(t, filepath.Join(filepath.Dir(root), "xdog", filepath.Base(p)), 6, 6, color.White)
		samples = append(samples, Sample{Path: p})
	}

	loader := &Loader{
		Samples:   XDoGPairs(samples),
		Labels:    [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 1}, {1, 0}},
		Transform: DefaultTransform(4, false),
		PairTransform: &Transform{
			Size:     4,
			Channels: 1,
		},
		BatchSize: 2,
		Workers:   3,
	}
	require.Equal(t, 3, loader.Len())
	loader.DropLast = true
	require.Equal(t, 2, loader.Len())
	loader.DropLast = false

	var batches []Batch
	err := loader.Batches(context.Background(), nil, func(b Batch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 3)
	require.Equal(t, tensor.Shape{2, 3, 4, 4}, batches[0].Images.Shape())
	require.Equal(t, tensor.Shape{2, 1, 4, 4}, batches[0].Pairs.Shape())
	require.Equal(t, tensor.Shape{2, 2}, batches[0].Labels.Shape())
	require.Equal(t, 1, batches[2].Size())

	// order is preserved: second image is brighter than the first
	data := batches[0].Images.Float64s()
	require.Less(t, data[0], data[48])
	require.InDelta(t, 1.0, batches[0].Pairs.Float64s()[0], 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = loader.Batches(ctx, nil, func(Batch) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := &Loader{
		Samples:   []Sample{{Path: filepath.Join(t.TempDir(), "missing.png")}},
		Transform: DefaultTransform(4, false),
		BatchSize: 1,
	}
	err := loader.Batches(context.Background(), nil, func(Batch) error { return nil })
	require.Error(t, err)
}

func TestPyramidSizes(t *testing.T) {
	sizes, err := PyramidSizes(250, 25, 0.75)
	require.NoError(t, err)
	require.Equal(t, []int{25, 33, 44, 59, 79, 105, 141, 188, 250}, sizes)

	_, err = PyramidSizes(250, 25, 1.5)
	require.Error(t, err)
	_, err = PyramidSizes(0, 25, 0.5)
	require.Error(t, err)
}

func TestTestSizes(t *testing.T) {
	sizes := TestSizes(100, 3, 0.5, 2)
	require.Equal(t, [][2]int{{25, 50}, {50, 100}, {100, 200}}, sizes)
}

func TestLoadPyramid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	writePNG(t, path, 20, 10, color.White)
	scales, err := LoadPyramid(path, []int{5, 10})
	require.NoError(t, err)
	require.Len(t, scales, 2)
	require.Equal(t, 5, scales[0].Height)
	require.Equal(t, 10, scales[0].Width)
	require.Equal(t, tensor.Shape{1, 3, 10, 20}, scales[1].Image.Shape())
	require.InDelta(t, 1.0, scales[1].Image.Float64s()[0], 1e-9)
}

func TestShorterSideTo(t *testing.T) {
	h, w := shorterSideTo(image.Rect(0, 0, 7, 3), 2)
	require.Equal(t, 2, h)
	require.Equal(t, 4, w)
	h, w = shorterSideTo(image.Rect(0, 0, 3, 7), 2)
	require.Equal(t, 4, h)
	require.Equal(t, 2, w)

	path := filepath.Join(t.TempDir(), "wide.png")
	writePNG(t, path, 7, 3, color.White)
	scales, err := LoadPyramid(path, []int{2})
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 3, 2, 4}, scales[0].Image.Shape())
}

func TestMemorySource(t *testing.T) {
	images := tensor.New(tensor.WithShape(5, 2), tensor.WithBacking([]float64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}))
	labels := tensor.New(tensor.WithShape(5, 1), tensor.WithBacking([]float64{0, 1, 2, 3, 4}))
	src := &MemorySource{Images: images, Labels: labels, BatchSize: 2, Shuffle: true}
	require.Equal(t, 2, src.Len())

	var total int
	err := src.Batches(context.Background(), rand.New(rand.NewSource(3)), func(b Batch) error {
		require.Equal(t, tensor.Shape{2, 2}, b.Images.Shape())
		img := b.Images.Float64s()
		lbl := b.Labels.Float64s()
		for i := 0; i < 2; i++ {
			require.Equal(t, lbl[i], img[2*i])
		}
		total += b.Size()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, total)

	single := &MemorySource{Images: images, BatchSize: 1}
	err = single.Batches(context.Background(), nil, func(b Batch) error {
		require.Equal(t, tensor.Shape{1, 2}, b.Images.Shape())
		return nil
	})
	require.NoError(t, err)
}
