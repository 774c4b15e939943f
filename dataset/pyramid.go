package dataset

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gorgonia.org/tensor"
)

// Scale is one level of an image pyramid.
type Scale struct {
	Height, Width int
	Image         *tensor.Dense
}

// PyramidSizes returns SinGAN training sizes: round(max*factor^k) for k = 0, 1, ...
// until a size not above min is reached, ascending. Rounding is half to even.
func PyramidSizes(max, min int, factor float64) ([]int, error) {
	if max <= 0 || min <= 0 {
		return nil, fmt.Errorf("sizes must be positive, got max=%d min=%d", max, min)
	}
	if factor <= 0 || factor >= 1 {
		return nil, fmt.Errorf("scale factor must be in (0, 1), got %v", factor)
	}
	var sizes []int
	size := max
	for size > min {
		size = int(math.RoundToEven(float64(max) * math.Pow(factor, float64(len(sizes)))))
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes, nil
}

// TestSizes returns (height, width) pairs for numScale scales, ascending.
// widthScale stretches the width of every scale.
func TestSizes(max, numScale int, factor, widthScale float64) [][2]int {
	sizes := make([][2]int, 0, numScale)
	for k := 0; k < numScale; k++ {
		s := float64(max) * math.Pow(factor, float64(k))
		sizes = append(sizes, [2]int{int(math.RoundToEven(s)), int(math.RoundToEven(s * widthScale))})
	}
	sort.Slice(sizes, func(i, j int) bool {
		if sizes[i][0] != sizes[j][0] {
			return sizes[i][0] < sizes[j][0]
		}
		return sizes[i][1] < sizes[j][1]
	})
	return sizes
}

// LoadPyramid decodes one image and resizes it to every size. The shorter
// side is scaled to the size keeping aspect ratio. Every level is [1, 3, H, W]
// normalized to [-1, 1].
func LoadPyramid(path string, sizes []int) ([]Scale, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	scales := make([]Scale, 0, len(sizes))
	for _, size := range sizes {
		h, w := shorterSideTo(img.Bounds(), size)
		data := resizeNormalize(img, h, w)
		scales = append(scales, Scale{
			Height: h,
			Width:  w,
			Image:  tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(data)),
		})
	}
	return scales, nil
}

func shorterSideTo(b image.Rectangle, size int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if w <= h {
		return h * size / w, size
	}
	return size, w * size / h
}
