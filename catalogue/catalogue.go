// Package catalogue holds the bibliography of generative models and anime face
// datasets, validates it and renders it as Markdown.
package catalogue

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Category groups catalogue models.
type Category string

const (
	CategoryGAN          Category = "gan"
	CategoryAutoencoder  Category = "autoencoder"
	CategoryOptimizer    Category = "optimizer"
	CategoryAugmentation Category = "augmentation"
	CategoryLoss         Category = "loss"
	CategoryOther        Category = "other"
)

// Categories lists known categories in rendering order.
var Categories = []Category{
	CategoryGAN,
	CategoryAutoencoder,
	CategoryOptimizer,
	CategoryAugmentation,
	CategoryLoss,
	CategoryOther,
}

// Title returns human readable category name.
func (c Category) Title() string {
	switch c {
	case CategoryGAN:
		return "GANs"
	case CategoryAutoencoder:
		return "Autoencoders"
	case CategoryOptimizer:
		return "Optimizers"
	case CategoryAugmentation:
		return "Augmentation"
	case CategoryLoss:
		return "Losses and regularization"
	case CategoryOther:
		return "Other"
	default:
		return string(c)
	}
}

func (c Category) known() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Model is one paper entry.
type Model struct {
	Name           string   `yaml:"name" json:"name"`
	Year           int      `yaml:"year" json:"year"`
	Category       Category `yaml:"category" json:"category"`
	Paper          string   `yaml:"paper" json:"paper"`
	Implementation string   `yaml:"implementation,omitempty" json:"implementation,omitempty"`
	Notes          string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	Implemented    bool     `yaml:"implemented,omitempty" json:"implemented,omitempty"`
}

// Dataset is one dataset entry.
type Dataset struct {
	Name        string `yaml:"name" json:"name"`
	Source      string `yaml:"source" json:"source"`
	Images      int    `yaml:"images" json:"images"`
	Description string `yaml:"description" json:"description"`
}

// Catalogue is the whole document.
type Catalogue struct {
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Models      []Model   `yaml:"models" json:"models"`
	Datasets    []Dataset `yaml:"datasets" json:"datasets"`
}

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Default returns the catalogue shipped with the binary.
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// Parse decodes YAML document.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decoding catalogue")
	}
	for i := range c.Models {
		c.Models[i].Category = Category(strings.ToLower(string(c.Models[i].Category)))
	}
	return &c, nil
}

// Load reads catalogue from a YAML file.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading catalogue %s", path)
	}
	return Parse(data)
}

// Sorted returns models ordered by year then name. The catalogue is not modified.
func (c *Catalogue) Sorted() []Model {
	models := append([]Model(nil), c.Models...)
	sort.SliceStable(models, func(i, j int) bool {
		if models[i].Year != models[j].Year {
			return models[i].Year < models[j].Year
		}
		return strings.ToLower(models[i].Name) < strings.ToLower(models[j].Name)
	})
	return models
}

// Group is models of one category.
type Group struct {
	Category Category
	Models   []Model
}

// ByCategory groups sorted models. Known categories come first in their fixed
// order; unknown ones follow alphabetically. Empty groups are skipped.
func (c *Catalogue) ByCategory() []Group {
	buckets := make(map[Category][]Model)
	for _, m := range c.Sorted() {
		buckets[m.Category] = append(buckets[m.Category], m)
	}

	var groups []Group
	for _, cat := range Categories {
		if models, ok := buckets[cat]; ok {
			groups = append(groups, Group{Category: cat, Models: models})
			delete(buckets, cat)
		}
	}

	var rest []Category
	for cat := range buckets {
		rest = append(rest, cat)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, cat := range rest {
		groups = append(groups, Group{Category: cat, Models: buckets[cat]})
	}
	return groups
}

// TotalImages sums image counts of all datasets.
func (c *Catalogue) TotalImages() int {
	total := 0
	for _, d := range c.Datasets {
		total += d.Images
	}
	return total
}
