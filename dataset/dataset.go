// Package dataset loads anime face images from disk and turns them into
// batches of normalized tensors.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	animegan "github.com/LdDl/animeface-gan"
	"github.com/pkg/errors"
)

// Sample is one training example.
//
// Pair - optional path of a paired image (e.g. XDoG line art)
// Label - optional textual label (illustration2vec tag or year)
//
type Sample struct {
	Path  string
	Pair  string
	Label string
}

var (
	// ErrNoImages is returned when a folder holds no image files.
	ErrNoImages = errors.New("no images found")
	// ErrBadYear is returned for file names without trailing year.
	ErrBadYear = errors.New("file name has no year suffix")
)

// DefaultExtensions are the image file extensions ImageFolder picks up.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// ImageFolder lists images directly under root, sorted by path.
func ImageFolder(root string, exts []string) ([]Sample, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", root)
	}
	var samples []Sample
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		samples = append(samples, Sample{Path: filepath.Join(root, e.Name())})
	}
	if len(samples) == 0 {
		return nil, errors.Wrap(ErrNoImages, root)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	return samples, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// YearFromPath parses "<id>_<year>.<ext>" or bare "<year>.<ext>" file names.
func YearFromPath(path string) (int, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	year, err := strconv.Atoi(name[strings.LastIndexByte(name, '_')+1:])
	if err != nil {
		return 0, errors.Wrap(ErrBadYear, path)
	}
	return year, nil
}

// FilterMinYear keeps samples released in minYear or later. Files without
// a year are an error.
func FilterMinYear(samples []Sample, minYear int) ([]Sample, error) {
	kept := samples[:0:0]
	for _, s := range samples {
		year, err := YearFromPath(s.Path)
		if err != nil {
			return nil, err
		}
		if year >= minYear {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// CountByYear returns number of samples per release year.
func CountByYear(samples []Sample) (map[int]int, error) {
	counts := make(map[int]int)
	for _, s := range samples {
		year, err := YearFromPath(s.Path)
		if err != nil {
			return nil, err
		}
		counts[year]++
	}
	return counts, nil
}

// YearLabels sets each sample's label to its release year.
func YearLabels(samples []Sample) error {
	for i := range samples {
		year, err := YearFromPath(samples[i].Path)
		if err != nil {
			return err
		}
		samples[i].Label = strconv.Itoa(year)
	}
	return nil
}

// XDoGPairs pairs every image with its line art: the "images" directory in
// the path is replaced by "xdog".
func XDoGPairs(samples []Sample) []Sample {
	paired := make([]Sample, len(samples))
	for i, s := range samples {
		s.Pair = strings.ReplaceAll(s.Path, "images", "xdog")
		paired[i] = s
	}
	return paired
}

// LoadLabels reads a headerless CSV of "path","i2vtag" rows. Relative paths
// are resolved against the CSV directory.
func LoadLabels(csvPath string) ([]Sample, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening labels")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	base := filepath.Dir(csvPath)
	var samples []Sample
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "labels line %d", line)
		}
		path := rec[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		samples = append(samples, Sample{Path: path, Label: rec[1]})
	}
	if len(samples) == 0 {
		return nil, errors.Wrap(ErrNoImages, csvPath)
	}
	return samples, nil
}

// OneHotLabels encodes sample labels. Returned vocabulary gives column order.
func OneHotLabels(samples []Sample) ([][]float64, []string, error) {
	labels := make([]string, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
	}
	encoded, vocab, err := animegan.OneHotEncode(labels)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]float64, len(encoded))
	for i, row := range encoded {
		rows[i] = make([]float64, len(row))
		for j, v := range row {
			rows[i][j] = float64(v)
		}
	}
	return rows, vocab, nil
}

// RandomSplit shuffles samples and returns (rest, last n) like
// torch.utils.data.random_split(ds, [len-n, n]).
func RandomSplit(samples []Sample, n int, rng *rand.Rand) ([]Sample, []Sample, error) {
	if n < 0 || n > len(samples) {
		return nil, nil, fmt.Errorf("can't split %d samples into %d held out", len(samples), n)
	}
	perm := rng.Perm(len(samples))
	shuffled := make([]Sample, len(samples))
	for i, p := range perm {
		shuffled[i] = samples[p]
	}
	cut := len(samples) - n
	return shuffled[:cut], shuffled[cut:], nil
}
