package dataset

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Transform turns an image file into a normalized CHW vector.
//
// Size - output width and height. Shorter side is resized to Size, then the center is cropped
// HFlip - flip horizontally with probability 0.5
// Channels - 3 for RGB, 1 for grayscale
// Mean, Std - per channel normalization, (x - Mean) / Std. Zero Std means 0.5/0.5, i.e. [-1, 1] output
//
type Transform struct {
	Size     int
	HFlip    bool
	Channels int
	Mean     float64
	Std      float64
}

// DefaultTransform resizes to size and maps pixels to [-1, 1].
func DefaultTransform(size int, hflip bool) Transform {
	return Transform{Size: size, HFlip: hflip, Channels: 3, Mean: 0.5, Std: 0.5}
}

// Dims returns length of a transformed vector.
func (t Transform) Dims() int {
	return t.channels() * t.Size * t.Size
}

func (t Transform) channels() int {
	if t.Channels == 1 {
		return 1
	}
	return 3
}

// Load decodes the file at path and applies the transform.
func (t Transform) Load(path string, rng *rand.Rand) ([]float64, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	flip := false
	if t.HFlip && rng != nil {
		flip = rng.Intn(2) == 1
	}
	return t.Apply(img, flip), nil
}

// Apply transforms a decoded image.
func (t Transform) Apply(img image.Image, flip bool) []float64 {
	dst := resizeCrop(img, t.Size)
	mean, std := t.Mean, t.Std
	if std == 0 {
		mean, std = 0.5, 0.5
	}
	ch := t.channels()
	plane := t.Size * t.Size
	out := make([]float64, ch*plane)
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			sx := x
			if flip {
				sx = t.Size - 1 - x
			}
			c := dst.RGBAAt(sx, y)
			idx := y*t.Size + x
			if ch == 1 {
				out[idx] = (luma(c) - mean) / std
				continue
			}
			out[idx] = (float64(c.R)/255 - mean) / std
			out[plane+idx] = (float64(c.G)/255 - mean) / std
			out[2*plane+idx] = (float64(c.B)/255 - mean) / std
		}
	}
	return out
}

// luma follows ITU-R 601-2 like PIL's "L" conversion.
func luma(c color.RGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

func resize(img image.Image, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func resizeNormalize(img image.Image, h, w int) []float64 {
	dst := resize(img, h, w)
	plane := h * w
	out := make([]float64, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := dst.RGBAAt(x, y)
			idx := y*w + x
			out[idx] = float64(c.R)/127.5 - 1
			out[plane+idx] = float64(c.G)/127.5 - 1
			out[2*plane+idx] = float64(c.B)/127.5 - 1
		}
	}
	return out
}

func resizeCrop(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, size, size))
	}
	rw, rh := size, size
	if w < h {
		rh = h * size / w
	} else {
		rw = w * size / h
	}
	resized := resize(img, rh, rw)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	off := image.Pt((rw-size)/2, (rh-size)/2)
	draw.Draw(dst, dst.Bounds(), resized, off, draw.Src)
	return dst
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return img, nil
}
