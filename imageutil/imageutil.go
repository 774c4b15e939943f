// Package imageutil converts generator output tensors into image grids.
package imageutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Denormalize maps v from [lo, hi] into [0, 1] clamping out of range values.
func Denormalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	x := (v - lo) / (hi - lo)
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// TensorToImages converts [B, C, H, W] (C is 1 or 3) into images. Values are
// expected in [lo, hi].
func TensorToImages(t *tensor.Dense, lo, hi float64) ([]image.Image, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("expected [B, C, H, W] tensor, got %v", shape)
	}
	if t.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("expected float64 tensor, got %v", t.Dtype())
	}
	b, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("expected 1 or 3 channels, got %d", c)
	}
	data := t.Float64s()
	plane := h * w
	images := make([]image.Image, b)
	for n := 0; n < b; n++ {
		base := n * c * plane
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := base + y*w + x
				r := toByte(Denormalize(data[idx], lo, hi))
				g, bl := r, r
				if c == 3 {
					g = toByte(Denormalize(data[idx+plane], lo, hi))
					bl = toByte(Denormalize(data[idx+2*plane], lo, hi))
				}
				img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bl, A: 255})
			}
		}
		images[n] = img
	}
	return images, nil
}

func toByte(v float64) uint8 {
	return uint8(v*255 + 0.5)
}

// Grid tiles images nrow per row with padding pixels between them, like
// torchvision's make_grid. All images must share the first image's size.
func Grid(images []image.Image, nrow, padding int) (*image.RGBA, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images for grid")
	}
	if nrow <= 0 {
		nrow = 8
	}
	if nrow > len(images) {
		nrow = len(images)
	}
	cell := images[0].Bounds()
	cw, ch := cell.Dx(), cell.Dy()
	rows := (len(images) + nrow - 1) / nrow
	width := nrow*(cw+padding) + padding
	height := rows*(ch+padding) + padding

	grid := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(grid, grid.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for i, img := range images {
		b := img.Bounds()
		if b.Dx() != cw || b.Dy() != ch {
			return nil, fmt.Errorf("image #%d is %dx%d, expected %dx%d", i, b.Dx(), b.Dy(), cw, ch)
		}
		x := padding + (i%nrow)*(cw+padding)
		y := padding + (i/nrow)*(ch+padding)
		draw.Draw(grid, image.Rect(x, y, x+cw, y+ch), img, b.Min, draw.Src)
	}
	return grid, nil
}

// SaveGrid writes t as an image grid. The format follows the file extension
// (.png or .jpg), directories are created as needed.
func SaveGrid(path string, t *tensor.Dense, nrow int, lo, hi float64) error {
	images, err := TensorToImages(t, lo, hi)
	if err != nil {
		return err
	}
	return SaveImages(path, images, nrow)
}

// SaveImages writes images as one grid in the same way as SaveGrid.
func SaveImages(path string, images []image.Image, nrow int) error {
	grid, err := Grid(images, nrow, 2)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "Can't create samples directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create grid file")
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, grid, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(f, grid)
	}
	if err != nil {
		return errors.Wrap(err, "Can't encode grid")
	}
	return nil
}

// Interleave takes up to limit items from each group in turn: (a0, b0, c0, a1, b1, c1, ...).
// It is used to lay out (line art, generated, real) triplets. Groups of
// different lengths are cut to the shortest one.
func Interleave(limit int, groups ...[]image.Image) []image.Image {
	if len(groups) == 0 {
		return nil
	}
	n := len(groups[0])
	for _, g := range groups[1:] {
		if len(g) < n {
			n = len(g)
		}
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]image.Image, 0, n*len(groups))
	for i := 0; i < n; i++ {
		for _, g := range groups {
			out = append(out, g[i])
		}
	}
	return out
}
